package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/harvest"
)

// Categories lists the category pages linked from a master index page.
type Categories struct {
	Fetcher  harvest.PageFetcher
	IndexURL string
	// HostSuffix restricts links to hosts ending with it.
	HostSuffix string
	// Exclude drops links whose path contains any of these fragments.
	Exclude []string
	Logger  *zap.Logger
}

// Discover returns every accepted category link in page order. Only the
// index page is fetched.
func (c Categories) Discover(ctx context.Context) ([]harvest.Locator, error) {
	logger := loggerOrNop(c.Logger).Named("categories")
	page, err := c.Fetcher.Fetch(ctx, c.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", harvest.ErrEntryUnreachable, c.IndexURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", harvest.ErrEntryUnreachable, c.IndexURL, err)
	}

	seen := seenSet{}
	seen.add(c.IndexURL)
	var locators []harvest.Locator
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := harvest.ResolveURL(c.IndexURL, href)
		if err != nil {
			return
		}
		if !c.accept(resolved, strings.TrimSpace(s.Text())) {
			return
		}
		if seen.add(resolved) {
			locators = append(locators, harvest.Locator{URL: resolved})
		}
	})
	logger.Info("categories discovered", zap.String("url", c.IndexURL), zap.Int("count", len(locators)))
	return locators, nil
}

func (c Categories) accept(link, text string) bool {
	if text == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if c.HostSuffix != "" && !strings.HasSuffix(strings.ToLower(u.Hostname()), c.HostSuffix) {
		return false
	}
	if !strings.HasSuffix(u.Path, "/") {
		return false
	}
	for _, fragment := range c.Exclude {
		if strings.Contains(u.Path, fragment) {
			return false
		}
	}
	return true
}
