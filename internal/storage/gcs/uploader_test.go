// Package gcs_test contains unit tests for the GCS uploader.
package gcs_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/igboarchives/harvester/internal/storage/gcs"
)

const bucketName = "test-bucket"

// fakeGCS simulates the parts of the JSON API the uploader touches.
type fakeGCS struct {
	mu            sync.Mutex
	bucketExists  bool
	createStatus  int
	bucketCreates int
	objects       []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/"+bucketName):
		if !f.bucketExists {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"Not Found"}}`)
			return
		}
		fmt.Fprintln(w, `{"name":"`+bucketName+`"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/b"):
		f.bucketCreates++
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`+"\n", f.createStatus)
			return
		}
		f.bucketExists = true
		fmt.Fprintln(w, `{"name":"`+bucketName+`"}`)
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/storage/v1/b/"+bucketName+"/o"):
		name := r.URL.Query().Get("name")
		f.objects = append(f.objects, name)
		fmt.Fprintln(w, `{"name":"`+name+`","bucket":"`+bucketName+`"}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeGCS) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objects := append([]string(nil), f.objects...)
	sort.Strings(objects)
	return f.bucketCreates, objects
}

func newUploader(t *testing.T, fake *fakeGCS, prefix string) *gcs.Uploader {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := gcs.NewClient(context.Background(), "", option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	uploader, err := gcs.New(client, gcs.Config{Bucket: bucketName, Prefix: prefix, ProjectID: "proj"})
	require.NoError(t, err)
	return uploader
}

func TestEnsureDestinationCreatesMissingBucket(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	uploader := newUploader(t, fake, "")
	require.NoError(t, uploader.EnsureDestination(context.Background()))
	require.NoError(t, uploader.EnsureDestination(context.Background()))

	creates, _ := fake.snapshot()
	assert.Equal(t, 1, creates)
}

func TestEnsureDestinationToleratesConflict(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{createStatus: http.StatusConflict}
	require.NoError(t, newUploader(t, fake, "").EnsureDestination(context.Background()))
}

func TestEnsureDestinationFails(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{createStatus: http.StatusForbidden}
	assert.Error(t, newUploader(t, fake, "").EnsureDestination(context.Background()))
}

func TestUploadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.jsonl"), []byte(`{"id":"1"}`+"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# card\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "a.jpg"), []byte("jpeg"), 0o600))

	fake := &fakeGCS{bucketExists: true}
	uploader := newUploader(t, fake, "/datasets/ukpuru/")
	assert.Equal(t, "gs://test-bucket/datasets/ukpuru", uploader.Destination())

	n, err := uploader.UploadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, objects := fake.snapshot()
	assert.Equal(t, []string{
		"datasets/ukpuru/README.md",
		"datasets/ukpuru/data.jsonl",
		"datasets/ukpuru/images/a.jpg",
	}, objects)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: bucketName})
	assert.Error(t, err)
}
