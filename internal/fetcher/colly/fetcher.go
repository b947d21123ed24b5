// Package collyfetcher implements harvest.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/igboarchives/harvester/internal/harvest"
	"github.com/igboarchives/harvester/internal/transport"
)

const defaultTimeout = 20 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	InsecureTLS   bool
	RespectRobots bool
	// Query is merged into every request URL.
	Query url.Values
}

// Fetcher implements harvest.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	pacer         harvest.Pacer
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. pacer may be nil.
func New(cfg Config, pacer harvest.Pacer) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(transport.New(cfg.InsecureTLS))
	return &Fetcher{
		cfg:           cfg,
		pacer:         pacer,
		baseCollector: c,
	}
}

// Fetch executes a single paced HTTP GET using Colly. Non-2xx responses are
// returned as errors wrapping harvest.ErrStatus.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (harvest.Page, error) {
	target, err := f.requestURL(rawURL)
	if err != nil {
		return harvest.Page{}, err
	}
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, target); err != nil {
			return harvest.Page{}, fmt.Errorf("pace %s: %w", rawURL, err)
		}
	}

	var (
		result   harvest.Page
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	configureCollectorHooks(collector, rawURL, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return harvest.Page{}, err
	}
	return result, nil
}

func (f *Fetcher) requestURL(rawURL string) (string, error) {
	if len(f.cfg.Query) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for key, values := range f.cfg.Query {
		q.Del(key)
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, requested string, result *harvest.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = harvest.Page{
			URL:        requested,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < http.StatusOK || r.StatusCode > 299) {
			*fetchErr = fmt.Errorf("%w %d", harvest.ErrStatus, r.StatusCode)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", target, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}
