package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/adapters/britishmuseum"
	"github.com/igboarchives/harvester/internal/adapters/gijones"
	"github.com/igboarchives/harvester/internal/adapters/ukpuru"
	"github.com/igboarchives/harvester/internal/clock/system"
	"github.com/igboarchives/harvester/internal/config"
	"github.com/igboarchives/harvester/internal/fetcher/asset"
	collyfetcher "github.com/igboarchives/harvester/internal/fetcher/colly"
	"github.com/igboarchives/harvester/internal/harvest"
	"github.com/igboarchives/harvester/internal/id/uuid"
	"github.com/igboarchives/harvester/internal/index/manifest"
	"github.com/igboarchives/harvester/internal/index/postgres"
	"github.com/igboarchives/harvester/internal/jsonl"
	"github.com/igboarchives/harvester/internal/logging"
	"github.com/igboarchives/harvester/internal/metrics"
	"github.com/igboarchives/harvester/internal/notify"
	notifypubsub "github.com/igboarchives/harvester/internal/notify/pubsub"
	"github.com/igboarchives/harvester/internal/pipeline"
	"github.com/igboarchives/harvester/internal/policy/ratelimit"
	"github.com/igboarchives/harvester/internal/publish"
	"github.com/igboarchives/harvester/internal/readme"
	"github.com/igboarchives/harvester/internal/reconcile"
	"github.com/igboarchives/harvester/internal/retry"
	"github.com/igboarchives/harvester/internal/storage/gcs"
	"github.com/igboarchives/harvester/internal/storage/local"
)

// Exit codes returned by Main.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Data layout below a source's raw and clean directories.
const (
	imagesDir     = "images"
	metadataFile  = "data.jsonl"
	completedFile = "completed.txt"
)

const metricsPushTimeout = 10 * time.Second

// Options replaces external collaborators, mainly for tests.
type Options struct {
	Clock    harvest.Clock
	Uploader publish.Uploader
	Notifier notify.Publisher
}

// Summary reports what a run did.
type Summary struct {
	RunID       string
	Scrape      pipeline.Stats
	Clean       reconcile.Stats
	Published   bool
	Destination string
}

// Main runs the harvest for sourceID and returns the process exit code.
func Main(sourceID string) int {
	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return ExitFailure
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, File: cfg.Logging.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return ExitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = Run(ctx, cfg, sourceID, Options{}, logger)
	return exitCode(ctx, err, logger)
}

func exitCode(ctx context.Context, err error, logger *zap.Logger) int {
	switch {
	case err == nil:
		return ExitOK
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		logger.Warn("harvest interrupted; rerun to resume", zap.Error(err))
		return ExitInterrupted
	case harvest.IsFatal(err):
		logger.Error("harvest aborted: source input unavailable", zap.Error(err))
		return ExitFailure
	default:
		logger.Error("harvest failed", zap.Error(err))
		return ExitFailure
	}
}

// Run executes one full harvest of sourceID. Per-page and per-asset problems
// are logged and counted; only discovery, input, configuration and local
// storage failures are returned.
func Run(ctx context.Context, cfg config.Config, sourceID string, opts Options, logger *zap.Logger) (Summary, error) {
	var summary Summary
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := cfg.Source(sourceID)
	if err != nil {
		return summary, err
	}
	policy, err := harvest.ParseEmptyPolicy(src.EmptyPolicy)
	if err != nil {
		return summary, fmt.Errorf("sources.%s.empty_policy: %w", sourceID, err)
	}
	runID, err := uuid.NewGenerator().NewRunID()
	if err != nil {
		return summary, err
	}
	summary.RunID = runID
	logger = logger.With(zap.String("source", sourceID), zap.String("run_id", runID))
	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}

	recorder := metrics.NewRecorder(sourceID)
	if cfg.Metrics.PushgatewayURL != "" {
		defer pushMetrics(ctx, cfg.Metrics, recorder, logger)
	}

	rawImages, err := local.New(local.Config{BaseDir: filepath.Join(src.RawDir, imagesDir)})
	if err != nil {
		return summary, fmt.Errorf("open raw store: %w", err)
	}
	cleanImages, err := local.New(local.Config{BaseDir: filepath.Join(src.CleanDir, imagesDir)})
	if err != nil {
		return summary, fmt.Errorf("open clean store: %w", err)
	}
	index, closeIndex, err := openIndex(ctx, cfg, sourceID, src)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := closeIndex(); err != nil {
			logger.Warn("close completed index", zap.Error(err))
		}
	}()

	source, err := buildSource(sourceID, cfg, src, clock, logger)
	if err != nil {
		return summary, err
	}
	downloader := asset.New(asset.Config{
		UserAgent:       src.UserAgent,
		Timeout:         cfg.HTTP.AssetTimeout,
		InsecureTLS:     src.InsecureTLS,
		ProbeDimensions: src.ProbeDimensions,
	}, rawImages, index, logger)

	logger.Info("scrape starting", zap.String("raw_dir", src.RawDir))
	rawMeta := filepath.Join(src.RawDir, metadataFile)
	err = writeAtomically(rawMeta, func(f *os.File) (bool, error) {
		writer := jsonl.NewWriter(f)
		runner := pipeline.New(source, downloader, writer, pipeline.Config{Concurrency: cfg.Crawl.Concurrency}, logger, recorder)
		stats, scrapeErr := runner.Scrape(ctx)
		summary.Scrape = stats
		if err := writer.Flush(); err != nil {
			return false, errors.Join(scrapeErr, err)
		}
		// Records of fully fetched items stay valid when the scrape stops early.
		return writer.Lines() > 0, scrapeErr
	})
	if err != nil {
		if summary.Scrape.Records > 0 {
			logger.Warn("scrape stopped early; partial raw metadata kept",
				zap.String("file", rawMeta), zap.Int("records", summary.Scrape.Records))
		}
		return summary, err
	}

	logger.Info("cleaning starting", zap.String("clean_dir", src.CleanDir))
	cleaner := reconcile.New(rawImages, cleanImages, reconcile.Config{
		Policy:      policy,
		Concurrency: cfg.Crawl.ValidateConcurrency,
	}, logger, recorder)
	cleanMeta := filepath.Join(src.CleanDir, metadataFile)
	err = writeAtomically(cleanMeta, func(out *os.File) (bool, error) {
		in, err := os.Open(rawMeta) // #nosec G304 -- path built from configuration.
		if err != nil {
			return false, fmt.Errorf("open raw metadata: %w", err)
		}
		defer in.Close() //nolint:errcheck // read-only
		stats, err := cleaner.Run(ctx, in, out)
		summary.Clean = stats
		return false, err
	})
	if err != nil {
		// The clean images may already be gone; stale metadata must not
		// outlive them.
		_ = os.Remove(cleanMeta)
		return summary, err
	}

	if err := readme.Write(src.CleanDir, readme.Card{
		PrettyName:  src.Name,
		SourceName:  src.Name,
		SourceURL:   src.BaseURL,
		DatasetID:   src.DatasetID,
		License:     src.License,
		Records:     summary.Clean.RecordsOut,
		Images:      summary.Clean.FilesCopied,
		Dropped:     summary.Clean.RecordsDropped,
		GeneratedAt: clock.Now(),
	}); err != nil {
		return summary, err
	}

	published, err := publishDataset(ctx, cfg, sourceID, src, opts, logger, recorder)
	if err != nil {
		if ctx.Err() != nil {
			return summary, err
		}
		logger.Error("publish failed; clean dataset left on disk", zap.String("dir", src.CleanDir), zap.Error(err))
	}
	summary.Published = err == nil && published.Destination != ""
	summary.Destination = published.Destination
	if summary.Published {
		announce(ctx, cfg.Notify, opts.Notifier, notify.Notice{
			RunID:       runID,
			SourceID:    sourceID,
			Destination: published.Destination,
			Records:     summary.Clean.RecordsOut,
			Images:      summary.Clean.FilesCopied,
		}, logger)
	}

	logger.Info("harvest complete",
		zap.Int("discovered", summary.Scrape.Locators),
		zap.Int("fetched", summary.Scrape.AssetsFetched),
		zap.Int("valid", summary.Clean.FilesValid),
		zap.Int("dropped", summary.Clean.RecordsDropped),
		zap.Bool("published", summary.Published),
	)
	return summary, nil
}

func buildSource(id string, cfg config.Config, src config.SourceConfig, clock harvest.Clock, logger *zap.Logger) (harvest.Source, error) {
	pageFetcher := func(query url.Values) *collyfetcher.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     src.UserAgent,
			Timeout:       cfg.HTTP.PageTimeout,
			InsecureTLS:   src.InsecureTLS,
			RespectRobots: src.RespectRobots,
			Query:         query,
		}, ratelimit.New(ratelimit.Config{Delay: src.Delay}))
	}
	switch id {
	case config.SourceUkpuru:
		return ukpuru.New(ukpuru.Config{
			Name:       src.Name,
			BaseURL:    src.BaseURL,
			FilePrefix: src.FilePrefix,
			License:    src.License,
			MaxPages:   cfg.Crawl.MaxPages,
		}, pageFetcher(ukpuru.Query()), clock, logger), nil
	case config.SourceGIJones:
		return gijones.New(gijones.Config{
			Name:       src.Name,
			BaseURL:    src.BaseURL,
			FilePrefix: src.FilePrefix,
			License:    src.License,
		}, pageFetcher(nil), clock, logger), nil
	case config.SourceBritishMuseum:
		return britishmuseum.New(britishmuseum.Config{
			Name:          src.Name,
			CollectionURL: src.BaseURL,
			FilePrefix:    src.FilePrefix,
			License:       src.License,
			CSVPath:       src.CSVPath,
		}, clock, logger), nil
	default:
		return nil, fmt.Errorf("no adapter for source %q", id)
	}
}

type completedIndex interface {
	harvest.CompletedIndex
	Close() error
}

func openIndex(ctx context.Context, cfg config.Config, sourceID string, src config.SourceConfig) (harvest.CompletedIndex, func() error, error) {
	var (
		index completedIndex
		err   error
	)
	if cfg.Index.DSN != "" {
		index, err = postgres.New(ctx, postgres.Config{
			DSN:      cfg.Index.DSN,
			Table:    cfg.Index.Table,
			SourceID: sourceID,
		})
	} else {
		index, err = manifest.Open(filepath.Join(src.RawDir, completedFile))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open completed index: %w", err)
	}
	return index, index.Close, nil
}

// writeAtomically lets fn fill a temporary file that replaces target when fn
// succeeds, or when it fails but asks to keep what it wrote. Otherwise the
// last good target is left untouched.
func writeAtomically(target string, fn func(f *os.File) (keepPartial bool, err error)) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	keep, fnErr := fn(tmp)
	if fnErr != nil && !keep {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fnErr
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(fnErr, fmt.Errorf("close %s: %w", target, err))
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(fnErr, fmt.Errorf("commit %s: %w", target, err))
	}
	return fnErr
}

func publishDataset(
	ctx context.Context,
	cfg config.Config,
	sourceID string,
	src config.SourceConfig,
	opts Options,
	logger *zap.Logger,
	recorder *metrics.Recorder,
) (publish.Result, error) {
	uploader := opts.Uploader
	if uploader == nil {
		if !cfg.PublishReady() {
			logger.Warn("publishing skipped: publish token or bucket not configured",
				zap.String("dir", src.CleanDir))
			return publish.Result{}, nil
		}
		client, err := gcs.NewClient(ctx, cfg.Publish.Token)
		if err != nil {
			return publish.Result{}, err
		}
		defer client.Close() //nolint:errcheck // best effort
		gcsUploader, err := gcs.New(client, gcs.Config{
			Bucket:    cfg.Publish.Bucket,
			Prefix:    path.Join(cfg.Publish.Prefix, sourceID),
			ProjectID: cfg.Publish.ProjectID,
		})
		if err != nil {
			return publish.Result{}, err
		}
		uploader = gcsUploader
	}
	publisher := publish.New(uploader, publishPolicy(cfg.Publish), logger, recorder)
	return publisher.Publish(ctx, src.CleanDir)
}

func publishPolicy(cfg config.PublishConfig) retry.Policy {
	if cfg.MaxBackoff > cfg.Backoff {
		return retry.Exponential(cfg.MaxAttempts, cfg.Backoff, cfg.MaxBackoff)
	}
	return retry.Fixed(cfg.MaxAttempts, cfg.Backoff)
}

func announce(ctx context.Context, cfg config.NotifyConfig, publisher notify.Publisher, notice notify.Notice, logger *zap.Logger) {
	if publisher == nil {
		if cfg.Topic == "" {
			return
		}
		pub, err := notifypubsub.Dial(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			logger.Warn("notice not sent", zap.Error(err))
			return
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close notice publisher", zap.Error(err))
			}
		}()
		publisher = pub
	}
	id, err := publisher.Publish(ctx, cfg.Topic, notice)
	if err != nil {
		logger.Warn("notice not sent", zap.Error(err))
		return
	}
	logger.Info("notice sent", zap.String("message_id", id), zap.String("topic", cfg.Topic))
}

func pushMetrics(ctx context.Context, cfg config.MetricsConfig, recorder *metrics.Recorder, logger *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := recorder.Push(pushCtx, cfg.PushgatewayURL, cfg.Job); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}
}
