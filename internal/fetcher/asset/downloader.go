// Package asset downloads binary assets into a harvest.AssetStore.
package asset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/harvest"
	"github.com/igboarchives/harvester/internal/hash/sha256"
	"github.com/igboarchives/harvester/internal/imaging"
	"github.com/igboarchives/harvester/internal/transport"
)

const defaultTimeout = 15 * time.Second

// Config controls asset requests.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	InsecureTLS bool
	// ProbeDimensions records width, height, size and digest for every asset.
	ProbeDimensions bool
}

// Downloader implements harvest.AssetFetcher. Assets already in the store are
// never requested again.
type Downloader struct {
	cfg    Config
	client *http.Client
	store  harvest.AssetStore
	index  harvest.CompletedIndex
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New builds a Downloader. index may be nil.
func New(cfg Config, store harvest.AssetStore, index harvest.CompletedIndex, logger *zap.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		cfg:    cfg,
		client: &http.Client{Transport: transport.New(cfg.InsecureTLS)},
		store:  store,
		index:  index,
		hasher: sha256.New(),
		logger: logger.Named("asset"),
	}
}

// Fetch stores req.URL under req.FileName.
func (d *Downloader) Fetch(ctx context.Context, req harvest.AssetRequest) (harvest.AssetResult, error) {
	present, err := d.present(ctx, req.FileName)
	if err != nil {
		return harvest.AssetResult{}, err
	}
	if present {
		d.logger.Debug("asset already stored", zap.String("file", req.FileName))
		result := harvest.AssetResult{FileName: req.FileName, Skipped: true}
		if d.cfg.ProbeDimensions {
			return d.probe(ctx, result)
		}
		return result, nil
	}

	result, err := d.download(ctx, req)
	if err != nil {
		return harvest.AssetResult{}, err
	}
	if d.index != nil {
		if err := d.index.Mark(ctx, req.FileName); err != nil {
			return harvest.AssetResult{}, fmt.Errorf("mark %s: %w", req.FileName, err)
		}
	}
	if d.cfg.ProbeDimensions {
		return d.probe(ctx, result)
	}
	return result, nil
}

func (d *Downloader) present(ctx context.Context, name string) (bool, error) {
	exists, err := d.store.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	if !exists || d.index == nil {
		return exists, nil
	}
	marked, err := d.index.Has(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check index for %s: %w", name, err)
	}
	if !marked {
		if err := d.index.Mark(ctx, name); err != nil {
			return false, fmt.Errorf("mark %s: %w", name, err)
		}
	}
	return true, nil
}

func (d *Downloader) download(ctx context.Context, req harvest.AssetRequest) (harvest.AssetResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return harvest.AssetResult{}, fmt.Errorf("build request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return harvest.AssetResult{}, fmt.Errorf("get %s: %w", req.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return harvest.AssetResult{}, fmt.Errorf("get %s: %w %d", req.URL, harvest.ErrStatus, resp.StatusCode)
	}

	n, err := d.store.Put(ctx, req.FileName, resp.Body)
	if err != nil {
		return harvest.AssetResult{}, fmt.Errorf("store %s: %w", req.FileName, err)
	}
	return harvest.AssetResult{FileName: req.FileName, Size: n}, nil
}

// probe fills dimensions, size and digest from the stored copy.
func (d *Downloader) probe(ctx context.Context, result harvest.AssetResult) (harvest.AssetResult, error) {
	rc, err := d.store.Open(ctx, result.FileName)
	if err != nil {
		return harvest.AssetResult{}, fmt.Errorf("open %s: %w", result.FileName, err)
	}
	defer rc.Close() //nolint:errcheck // read-only

	counted := &countingReader{r: rc}
	r, digest := d.hasher.Tee(counted)
	info, inspectErr := imaging.Inspect(r)
	if _, err := io.Copy(io.Discard, r); err != nil {
		return harvest.AssetResult{}, fmt.Errorf("read %s: %w", result.FileName, err)
	}
	result.Size = counted.n
	result.SHA256 = digest()
	result.Probed = true
	if inspectErr != nil {
		// Structural problems are the cleaner's to judge; keep the size.
		d.logger.Debug("dimension probe failed", zap.String("file", result.FileName), zap.Error(inspectErr))
		return result, nil
	}
	result.Width = info.Width
	result.Height = info.Height
	return result, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
