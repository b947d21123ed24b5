// Package reconcile derives the clean dataset from the raw one.
//
// A cleaning pass verifies every raw image, empties the clean store, then
// streams the raw metadata and rewrites each record so that it references
// only images that passed verification. Referenced files are copied into the
// clean store exactly once, so the clean store never holds an orphan and no
// clean record points at a missing file.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igboarchives/harvester/internal/harvest"
	"github.com/igboarchives/harvester/internal/imaging"
	"github.com/igboarchives/harvester/internal/jsonl"
	"github.com/igboarchives/harvester/internal/metrics"
)

const imagesField = "images"

// Config controls a cleaning pass.
type Config struct {
	Policy harvest.EmptyPolicy
	// Concurrency bounds parallel verification. Defaults to 8.
	Concurrency int
}

// Stats summarizes a cleaning pass.
type Stats struct {
	FilesChecked     int
	FilesValid       int
	FilesInvalid     int
	FilesCopied      int
	RecordsIn        int
	RecordsOut       int
	RecordsDropped   int
	RecordsMalformed int
}

// Cleaner reconciles a raw asset store against its metadata stream.
type Cleaner struct {
	raw      harvest.AssetStore
	clean    harvest.ResettableStore
	cfg      Config
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// New builds a Cleaner. recorder may be nil.
func New(raw harvest.AssetStore, clean harvest.ResettableStore, cfg Config, logger *zap.Logger, recorder *metrics.Recorder) *Cleaner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Policy == "" {
		cfg.Policy = harvest.DropIfEmpty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{raw: raw, clean: clean, cfg: cfg, logger: logger.Named("cleaner"), recorder: recorder}
}

// Run performs one full cleaning pass, reading raw metadata from rawMeta and
// writing clean metadata to cleanMeta.
func (c *Cleaner) Run(ctx context.Context, rawMeta io.Reader, cleanMeta io.Writer) (Stats, error) {
	var stats Stats
	good, err := c.validate(ctx, &stats)
	if err != nil {
		return stats, err
	}
	c.logger.Info("raw images validated",
		zap.Int("checked", stats.FilesChecked),
		zap.Int("valid", stats.FilesValid),
		zap.Int("invalid", stats.FilesInvalid),
	)

	if err := c.clean.Clear(ctx); err != nil {
		return stats, fmt.Errorf("clear clean store: %w", err)
	}

	reader := jsonl.NewReader(rawMeta)
	writer := jsonl.NewWriter(cleanMeta)
	copied := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			_ = writer.Flush()
			return stats, fmt.Errorf("clean canceled: %w", err)
		}
		line, lineNo, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = writer.Flush()
			return stats, fmt.Errorf("read raw metadata: %w", err)
		}
		stats.RecordsIn++

		out, kept, err := c.reconcileLine(ctx, line, good, copied, &stats)
		switch {
		case err != nil:
			stats.RecordsMalformed++
			c.recorder.ObserveRecord(metrics.RecordMalformed)
			c.logger.Warn("skipping malformed record", zap.Int("line", lineNo), zap.Error(err))
			continue
		case !kept:
			stats.RecordsDropped++
			c.recorder.ObserveRecord(metrics.RecordDropped)
			continue
		}
		if err := writer.WriteRaw(out); err != nil {
			return stats, fmt.Errorf("write clean metadata: %w", err)
		}
		stats.RecordsOut++
		c.recorder.ObserveRecord(metrics.RecordClean)
	}
	if err := writer.Flush(); err != nil {
		return stats, err
	}

	c.logger.Info("clean dataset written",
		zap.Int("records_in", stats.RecordsIn),
		zap.Int("records_out", stats.RecordsOut),
		zap.Int("dropped", stats.RecordsDropped),
		zap.Int("malformed", stats.RecordsMalformed),
		zap.Int("files_copied", stats.FilesCopied),
	)
	return stats, nil
}

// validate verifies every raw file in parallel and returns the good set.
func (c *Cleaner) validate(ctx context.Context, stats *Stats) (map[string]bool, error) {
	names, err := c.raw.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list raw store: %w", err)
	}

	var mu sync.Mutex
	good := make(map[string]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := c.verify(gctx, name)
			c.recorder.ObserveImage(err == nil)

			mu.Lock()
			defer mu.Unlock()
			stats.FilesChecked++
			if err != nil {
				stats.FilesInvalid++
				c.logger.Warn("invalid image", zap.String("file", name), zap.Error(err))
				return nil
			}
			stats.FilesValid++
			good[name] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate raw store: %w", err)
	}
	return good, nil
}

func (c *Cleaner) verify(ctx context.Context, name string) error {
	rc, err := c.raw.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // read-only
	_, err = imaging.Verify(rc, name)
	return err
}

// reconcileLine filters the images of one raw record. Every other field is
// written back with its original bytes and key order. Nothing is copied until
// the whole line has decoded and the record is admitted.
func (c *Cleaner) reconcileLine(
	ctx context.Context,
	line []byte,
	good map[string]bool,
	copied map[string]bool,
	stats *Stats,
) ([]byte, bool, error) {
	fields, err := parseObject(line)
	if err != nil {
		return nil, false, err
	}

	imagesAt := -1
	var images []json.RawMessage
	for i, f := range fields {
		if f.key != imagesField {
			continue
		}
		if imagesAt >= 0 {
			return nil, false, fmt.Errorf("duplicate %q field", imagesField)
		}
		imagesAt = i
		if err := json.Unmarshal(f.value, &images); err != nil {
			return nil, false, fmt.Errorf("decode images: %w", err)
		}
	}

	names := make([]string, len(images))
	for i, img := range images {
		var ref struct {
			FileName string `json:"file_name"`
		}
		if err := json.Unmarshal(img, &ref); err != nil {
			return nil, false, fmt.Errorf("decode image reference %d: %w", i, err)
		}
		names[i] = ref.FileName
	}

	candidates := 0
	for _, name := range names {
		if good[name] {
			candidates++
		}
	}
	if !c.cfg.Policy.Admits(candidates) {
		return nil, false, nil
	}

	kept := make([]json.RawMessage, 0, candidates)
	for i, name := range names {
		if !good[name] {
			continue
		}
		if !copied[name] {
			if err := c.copyFile(ctx, name); err != nil {
				c.logger.Warn("copy to clean store failed", zap.String("file", name), zap.Error(err))
				continue
			}
			copied[name] = true
			stats.FilesCopied++
		}
		kept = append(kept, images[i])
	}
	// A failed copy can still empty the record.
	if !c.cfg.Policy.Admits(len(kept)) {
		return nil, false, nil
	}

	encoded := encodeArray(kept)
	if imagesAt < 0 {
		fields = append(fields, field{key: imagesField, value: encoded})
	} else {
		fields[imagesAt].value = encoded
	}
	return encodeObject(fields), true, nil
}

func (c *Cleaner) copyFile(ctx context.Context, name string) error {
	rc, err := c.raw.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // read-only
	if _, err := c.clean.Put(ctx, name, rc); err != nil {
		return err
	}
	return nil
}
