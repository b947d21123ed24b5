// Package pipeline runs the scrape stage of a harvest: discovery, extraction
// and asset fetching, writing one raw record per item in discovery order.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igboarchives/harvester/internal/harvest"
	"github.com/igboarchives/harvester/internal/metrics"
)

// Config controls Runner behavior.
type Config struct {
	// Concurrency bounds parallel asset downloads within a record. Defaults to 4.
	Concurrency int
}

// Stats summarizes a scrape.
type Stats struct {
	Locators      int
	PagesFailed   int
	Records       int
	Duplicates    int
	AssetsFetched int
	AssetsSkipped int
	AssetsFailed  int
	Bytes         int64
}

// Runner drives one source through the scrape stage.
type Runner struct {
	source   harvest.Source
	fetcher  harvest.AssetFetcher
	writer   harvest.RecordWriter
	cfg      Config
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// New builds a Runner. recorder may be nil.
func New(
	source harvest.Source,
	fetcher harvest.AssetFetcher,
	writer harvest.RecordWriter,
	cfg Config,
	logger *zap.Logger,
	recorder *metrics.Recorder,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		source:   source,
		fetcher:  fetcher,
		writer:   writer,
		cfg:      cfg,
		logger:   logger.Named("pipeline"),
		recorder: recorder,
	}
}

// Scrape discovers every item and writes its raw record. Discovery errors
// are returned as-is; page and asset failures are logged and counted.
func (r *Runner) Scrape(ctx context.Context) (Stats, error) {
	var stats Stats
	locators, err := r.source.Discover(ctx)
	if err != nil {
		return stats, fmt.Errorf("discover %s: %w", r.source.ID(), err)
	}
	stats.Locators = len(locators)
	r.recorder.ObserveLocators(len(locators))
	r.logger.Info("discovery complete", zap.String("source", r.source.ID()), zap.Int("locators", len(locators)))

	seen := make(map[string]struct{})
	for _, loc := range locators {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("scrape canceled: %w", err)
		}
		drafts, err := r.source.Extract(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("scrape canceled: %w", ctx.Err())
			}
			stats.PagesFailed++
			r.recorder.ObservePageFailure()
			r.logger.Warn("skipping item page", zap.String("url", loc.URL), zap.Error(err))
			continue
		}
		for _, draft := range drafts {
			if _, dup := seen[draft.Record.ID]; dup {
				stats.Duplicates++
				r.logger.Debug("duplicate record", zap.String("item_id", draft.Record.ID))
				continue
			}
			seen[draft.Record.ID] = struct{}{}

			record, err := r.fetchAssets(ctx, draft, &stats)
			if err != nil {
				return stats, err
			}
			if err := r.writer.Encode(record); err != nil {
				return stats, fmt.Errorf("write record %s: %w", record.ID, err)
			}
			stats.Records++
			r.recorder.ObserveRecord(metrics.RecordRaw)
		}
	}

	r.logger.Info("scrape complete",
		zap.Int("locators", stats.Locators),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("records", stats.Records),
		zap.Int("assets_fetched", stats.AssetsFetched),
		zap.Int("assets_skipped", stats.AssetsSkipped),
		zap.Int("assets_failed", stats.AssetsFailed),
	)
	return stats, nil
}

// fetchAssets downloads the draft's assets on a bounded pool and returns the
// record with the stored images in asset order.
func (r *Runner) fetchAssets(ctx context.Context, draft harvest.Draft, stats *Stats) (harvest.ItemRecord, error) {
	record := draft.Record
	requests := uniqueRequests(draft.Assets)
	refs := make([]*harvest.ImageRef, len(requests))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.Concurrency)
	for i, req := range requests {
		g.Go(func() error {
			res, err := r.fetcher.Fetch(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stats.AssetsFailed++
				r.recorder.ObserveAsset(metrics.AssetFailed, 0)
				r.logger.Warn("asset fetch failed",
					zap.String("item_id", record.ID),
					zap.String("url", req.URL),
					zap.String("file", req.FileName),
					zap.Error(err),
				)
				return nil
			}
			if res.Skipped {
				stats.AssetsSkipped++
				r.recorder.ObserveAsset(metrics.AssetSkipped, 0)
			} else {
				stats.AssetsFetched++
				stats.Bytes += res.Size
				r.recorder.ObserveAsset(metrics.AssetFetched, res.Size)
			}
			refs[i] = imageRef(req, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return record, fmt.Errorf("fetch assets of %s: %w", record.ID, err)
	}

	record.Images = make([]harvest.ImageRef, 0, len(refs))
	for _, ref := range refs {
		if ref != nil {
			record.Images = append(record.Images, *ref)
		}
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	return record, nil
}

func imageRef(req harvest.AssetRequest, res harvest.AssetResult) *harvest.ImageRef {
	ref := &harvest.ImageRef{
		FileName:    req.FileName,
		OriginalURL: req.URL,
		RawCaption:  req.Caption,
	}
	if res.Probed {
		ref.Width = res.Width
		ref.Height = res.Height
		ref.FileSizeBytes = res.Size
		ref.SHA256 = res.SHA256
	}
	return ref
}

func uniqueRequests(in []harvest.AssetRequest) []harvest.AssetRequest {
	seen := make(map[string]struct{}, len(in))
	out := make([]harvest.AssetRequest, 0, len(in))
	for _, req := range in {
		if _, dup := seen[req.FileName]; dup {
			continue
		}
		seen[req.FileName] = struct{}{}
		out = append(out, req)
	}
	return out
}
