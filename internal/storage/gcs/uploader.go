// Package gcs publishes a dataset directory to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Config captures the parameters required to publish to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// ProjectID owns the bucket when it has to be created.
	ProjectID string
}

// Uploader copies a local directory tree into a bucket.
type Uploader struct {
	client *storage.Client
	cfg    Config
}

// NewClient creates a storage client authenticated with a static access
// token. Extra options are appended, so tests can override the endpoint.
func NewClient(ctx context.Context, token string, opts ...option.ClientOption) (*storage.Client, error) {
	if strings.TrimSpace(token) != "" {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		opts = append([]option.ClientOption{option.WithTokenSource(source)}, opts...)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// New creates a GCS-backed uploader.
func New(client *storage.Client, cfg Config) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Uploader{client: client, cfg: cfg}, nil
}

// Destination returns the gs:// URI the directory is published under.
func (u *Uploader) Destination() string {
	if u.cfg.Prefix == "" {
		return fmt.Sprintf("gs://%s", u.cfg.Bucket)
	}
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, u.cfg.Prefix)
}

// EnsureDestination creates the bucket when it does not exist. A concurrent
// creation by someone else is not an error.
func (u *Uploader) EnsureDestination(ctx context.Context) error {
	bucket := u.client.Bucket(u.cfg.Bucket)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("get bucket %s: %w", u.cfg.Bucket, err)
	}
	if err := bucket.Create(ctx, u.cfg.ProjectID, nil); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", u.cfg.Bucket, err)
	}
	return nil
}

// UploadDir streams every regular file under dir to the bucket, keeping the
// relative layout. It returns the number of uploaded files.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if err := u.uploadFile(ctx, p, u.objectName(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("upload %s: %w", dir, err)
	}
	return uploaded, nil
}

func (u *Uploader) objectName(rel string) string {
	return path.Join(u.cfg.Prefix, filepath.ToSlash(rel))
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, object string) error {
	f, err := os.Open(localPath) // #nosec G304 -- walking a directory we produced.
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	writer := u.client.Bucket(u.cfg.Bucket).Object(object).NewWriter(ctx)
	if contentType := mime.TypeByExtension(path.Ext(object)); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, f); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return fmt.Errorf("copy object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", object, err)
	}
	return nil
}
