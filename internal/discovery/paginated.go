package discovery

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/harvest"
)

// Paginated follows an "older posts" chain from Start, collecting item links
// from every listing page.
type Paginated struct {
	Fetcher      harvest.PageFetcher
	Start        string
	ItemSelector string
	NextSelector string
	// MaxPages stops the walk after that many listing pages when positive.
	MaxPages int
	Logger   *zap.Logger
}

// Discover walks the chain until a page has no next link, yields zero item
// links, or links back to a page already visited.
func (p Paginated) Discover(ctx context.Context) ([]harvest.Locator, error) {
	logger := loggerOrNop(p.Logger).Named("paginated")
	var (
		locators []harvest.Locator
		items    = seenSet{}
		pages    = seenSet{}
		current  = p.Start
	)
	pages.add(current)

	for pageNum := 1; current != ""; pageNum++ {
		if err := ctx.Err(); err != nil {
			return locators, fmt.Errorf("discover canceled: %w", err)
		}
		if p.MaxPages > 0 && pageNum > p.MaxPages {
			logger.Info("page limit reached", zap.Int("max_pages", p.MaxPages))
			break
		}

		page, err := p.Fetcher.Fetch(ctx, current)
		if err != nil {
			if pageNum == 1 {
				return nil, fmt.Errorf("%w: %s: %v", harvest.ErrEntryUnreachable, current, err)
			}
			logger.Warn("listing page failed, ending pagination", zap.String("url", current), zap.Error(err))
			break
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			if pageNum == 1 {
				return nil, fmt.Errorf("%w: parse %s: %v", harvest.ErrEntryUnreachable, current, err)
			}
			logger.Warn("listing page unparsable, ending pagination", zap.String("url", current), zap.Error(err))
			break
		}

		links := resolvedHrefs(doc.Find(p.ItemSelector), current)
		if len(links) == 0 {
			logger.Info("listing page has no item links", zap.String("url", current))
			break
		}
		added := 0
		for _, link := range links {
			if items.add(link) {
				locators = append(locators, harvest.Locator{URL: link})
				added++
			}
		}
		logger.Debug("listing page parsed", zap.String("url", current), zap.Int("links", len(links)), zap.Int("new", added))

		next := ""
		if href, ok := doc.Find(p.NextSelector).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			if resolved, err := harvest.ResolveURL(current, href); err == nil {
				next = resolved
			}
		}
		if next != "" && !pages.add(next) {
			logger.Warn("pagination cycle detected", zap.String("url", current), zap.String("next", next))
			next = ""
		}
		current = next
	}
	return locators, nil
}

func resolvedHrefs(sel *goquery.Selection, base string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		resolved, err := harvest.ResolveURL(base, href)
		if err != nil {
			return
		}
		out = append(out, resolved)
	})
	return out
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
