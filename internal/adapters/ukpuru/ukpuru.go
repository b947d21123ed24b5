// Package ukpuru adapts the Ukpuru blog, a paginated Blogger site, to the
// harvest record model.
package ukpuru

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/igboarchives/harvester/internal/discovery"
	"github.com/igboarchives/harvester/internal/harvest"
)

// SourceID identifies records produced by this adapter.
const SourceID = "ukpuru"

const (
	postLinkSelector = "h3.post-title a"
	olderSelector    = "a.blog-pager-older-link"
	bodySelector     = "div.post-body"
	tagSelector      = "a[rel='tag']"
	untitled         = "Untitled"
)

var (
	slugSanitizer = harvest.Sanitizer{MaxLen: 100}
	idSanitizer   = harvest.Sanitizer{}
)

// Config describes the blog.
type Config struct {
	Name       string
	BaseURL    string
	FilePrefix string
	License    string
	MaxPages   int
}

// Source implements harvest.Source for the blog.
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

// Query returns the parameters every blog request carries; m=0 selects the
// desktop layout the selectors target.
func Query() url.Values {
	return url.Values{"m": {"0"}}
}

// ID implements harvest.Source.
func (s *Source) ID() string { return SourceID }

// Discover walks the "older posts" chain from the blog front page.
func (s *Source) Discover(ctx context.Context) ([]harvest.Locator, error) {
	return discovery.Paginated{
		Fetcher:      s.fetcher,
		Start:        s.cfg.BaseURL,
		ItemSelector: postLinkSelector,
		NextSelector: olderSelector,
		MaxPages:     s.cfg.MaxPages,
		Logger:       s.logger,
	}.Discover(ctx)
}

// Extract parses one post. A post without a body yields no draft.
func (s *Source) Extract(ctx context.Context, loc harvest.Locator) ([]harvest.Draft, error) {
	page, err := s.fetcher.Fetch(ctx, loc.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch post: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse post: %w", err)
	}

	title := postTitle(doc)
	body := doc.Find(bodySelector).First()
	if body.Length() == 0 {
		s.logger.Warn("post has no body, skipping", zap.String("url", loc.URL))
		return nil, nil
	}

	slug := slugSanitizer.Sanitize(title)
	var assets []harvest.AssetRequest
	body.Find("img").Each(func(i int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		resolved, err := harvest.ResolveURL(loc.URL, src)
		if err != nil {
			s.logger.Debug("unresolvable image src", zap.String("url", loc.URL), zap.String("src", src))
			return
		}
		assets = append(assets, harvest.AssetRequest{
			URL:      resolved,
			FileName: harvest.DeriveFilename(s.cfg.FilePrefix, slug, i, harvest.ExtensionFromURL(resolved)),
			Caption:  caption(img),
		})
	})

	tags := []string{}
	doc.Find(tagSelector).Each(func(_ int, a *goquery.Selection) {
		if tag := strings.TrimSpace(a.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})

	record := harvest.ItemRecord{
		ID:               s.cfg.FilePrefix + "_" + idSanitizer.Sanitize(loc.URL),
		SourceID:         SourceID,
		SourceName:       s.cfg.Name,
		SourceType:       harvest.SourceSecondary,
		CanonicalURL:     loc.URL,
		Title:            title,
		RawContent:       textLines(body),
		Images:           []harvest.ImageRef{},
		Tags:             tags,
		LicenseInfo:      s.cfg.License,
		TimestampScraped: s.clock.Now(),
	}
	return []harvest.Draft{{Record: record, Assets: assets}}, nil
}

func postTitle(doc *goquery.Document) string {
	for _, sel := range []string{"h1.post-title", "h3.post-title"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return untitled
}

// caption prefers an enclosing figure's figcaption, then a following
// WordPress-style caption paragraph.
func caption(img *goquery.Selection) string {
	if figure := img.Closest("figure"); figure.Length() > 0 {
		return strings.TrimSpace(figure.Find("figcaption").First().Text())
	}
	return strings.TrimSpace(img.NextAllFiltered("p.wp-caption-text").First().Text())
}

// textLines joins every non-blank text node under sel with newlines.
func textLines(sel *goquery.Selection) string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
