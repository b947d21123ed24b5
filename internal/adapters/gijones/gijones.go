// Package gijones adapts the G.I. Jones photographic archive, a gallery site
// organized in category pages, to the harvest record model. Every gallery
// image becomes its own record.
package gijones

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/discovery"
	"github.com/igboarchives/harvester/internal/harvest"
)

// SourceID identifies records produced by this adapter.
const SourceID = "gijones"

const (
	indexPath       = "photo-indexes/"
	hostSuffix      = "siu.edu"
	itemSelector    = ".et_pb_gallery_item"
	linkSelector    = ".et_pb_gallery_image a[href]"
	captionSelector = ".et_pb_gallery_caption"
	untitled        = "Untitled"
)

var (
	excludedSections = []string{"/jones-biography/", "/bibliography/"}
	stemSanitizer    = harvest.Sanitizer{AllowDots: true, MaxLen: 100}
	idSanitizer      = harvest.Sanitizer{}
)

// Config describes the archive.
type Config struct {
	Name       string
	BaseURL    string
	FilePrefix string
	License    string
}

// Source implements harvest.Source for the archive.
type Source struct {
	cfg     Config
	fetcher harvest.PageFetcher
	clock   harvest.Clock
	logger  *zap.Logger
}

// New builds the adapter.
func New(cfg Config, fetcher harvest.PageFetcher, clock harvest.Clock, logger *zap.Logger) *Source {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = SourceID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, fetcher: fetcher, clock: clock, logger: logger.Named(SourceID)}
}

// ID implements harvest.Source.
func (s *Source) ID() string { return SourceID }

// Discover lists the category galleries linked from the photo index.
func (s *Source) Discover(ctx context.Context) ([]harvest.Locator, error) {
	indexURL, err := harvest.ResolveURL(s.cfg.BaseURL, indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harvest.ErrEntryUnreachable, err)
	}
	return discovery.Categories{
		Fetcher:    s.fetcher,
		IndexURL:   indexURL,
		HostSuffix: hostSuffix,
		Exclude:    excludedSections,
		Logger:     s.logger,
	}.Discover(ctx)
}

// Extract turns every gallery item of a category page into a draft.
func (s *Source) Extract(ctx context.Context, loc harvest.Locator) ([]harvest.Draft, error) {
	page, err := s.fetcher.Fetch(ctx, loc.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch gallery: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse gallery: %w", err)
	}

	items := doc.Find(itemSelector)
	if items.Length() == 0 {
		s.logger.Warn("no gallery items found", zap.String("url", loc.URL))
		return nil, nil
	}

	var drafts []harvest.Draft
	items.Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(linkSelector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		imageURL, err := harvest.ResolveURL(loc.URL, href)
		if err != nil {
			return
		}
		caption := strings.TrimSpace(item.Find(captionSelector).First().Text())
		if caption == "" {
			caption = untitled
		}
		drafts = append(drafts, s.draft(loc.URL, imageURL, caption))
	})
	return drafts, nil
}

func (s *Source) draft(galleryURL, imageURL, caption string) harvest.Draft {
	stem := stemSanitizer.Sanitize(harvest.StemFromURL(imageURL))
	fileName := harvest.DeriveFilename(s.cfg.FilePrefix, stem, -1, harvest.ExtensionFromURL(imageURL))
	return harvest.Draft{
		Record: harvest.ItemRecord{
			ID:           s.cfg.FilePrefix + "_" + idSanitizer.Sanitize(imageURL),
			SourceID:     SourceID,
			SourceName:   s.cfg.Name,
			SourceType:   harvest.SourcePrimary,
			CanonicalURL: galleryURL,
			Title:        caption,
			RawContent:   caption,
			Metadata: map[string]any{
				"source_id":    SourceID,
				"gallery_page": galleryURL,
			},
			Images:           []harvest.ImageRef{},
			Tags:             []string{},
			LicenseInfo:      s.cfg.License,
			TimestampScraped: s.clock.Now(),
		},
		Assets: []harvest.AssetRequest{{URL: imageURL, FileName: fileName, Caption: caption}},
	}
}
