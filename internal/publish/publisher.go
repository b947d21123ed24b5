// Package publish uploads a finished clean dataset under a bounded retry
// policy.
package publish

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/metrics"
	"github.com/igboarchives/harvester/internal/retry"
)

// Uploader copies a directory to a remote destination.
type Uploader interface {
	// EnsureDestination creates the destination when it does not exist.
	EnsureDestination(ctx context.Context) error
	// UploadDir uploads every file under dir and returns how many were sent.
	UploadDir(ctx context.Context, dir string) (int, error)
	Destination() string
}

// Result describes a successful publish.
type Result struct {
	Destination string
	Files       int
	Attempts    int
}

// Publisher runs an Uploader under a retry policy.
type Publisher struct {
	uploader Uploader
	policy   retry.Policy
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// New builds a Publisher. recorder may be nil.
func New(uploader Uploader, policy retry.Policy, logger *zap.Logger, recorder *metrics.Recorder) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{uploader: uploader, policy: policy, logger: logger.Named("publish"), recorder: recorder}
}

// Publish uploads dir as a unit. Each attempt re-ensures the destination and
// re-uploads the whole directory.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	result := Result{Destination: p.uploader.Destination()}
	err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		result.Attempts = attempt
		err := p.attempt(ctx, dir, &result)
		p.recorder.ObservePublishAttempt(err)
		if err != nil {
			p.logger.Warn("publish attempt failed",
				zap.Int("attempt", attempt),
				zap.String("destination", result.Destination),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return result, fmt.Errorf("publish %s: %w", dir, err)
	}
	p.logger.Info("dataset published",
		zap.String("destination", result.Destination),
		zap.Int("files", result.Files),
		zap.Int("attempts", result.Attempts),
	)
	return result, nil
}

func (p *Publisher) attempt(ctx context.Context, dir string, result *Result) error {
	if err := p.uploader.EnsureDestination(ctx); err != nil {
		return err
	}
	n, err := p.uploader.UploadDir(ctx, dir)
	if err != nil {
		return err
	}
	result.Files = n
	return nil
}
