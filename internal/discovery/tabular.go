package discovery

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/harvest"
)

const utf8BOM = "\ufeff"

// Tabular reads a CSV export and yields one locator per row whose asset URL
// column holds an absolute http(s) URL.
type Tabular struct {
	Path      string
	URLColumn string
	// KeyColumn deduplicates rows. Empty falls back to the URL column.
	KeyColumn string
	Logger    *zap.Logger
}

// Discover parses the whole file. A missing file is reported as
// harvest.ErrInputMissing.
func (t Tabular) Discover(ctx context.Context) ([]harvest.Locator, error) {
	logger := loggerOrNop(t.Logger).Named("tabular")
	f, err := os.Open(t.Path) // #nosec G304 -- path comes from configuration.
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", harvest.ErrInputMissing, t.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.Path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", t.Path, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		columns[strings.TrimSpace(name)] = i
	}
	if _, ok := columns[t.URLColumn]; !ok {
		return nil, fmt.Errorf("%s: column %q not found", t.Path, t.URLColumn)
	}
	keyColumn := t.KeyColumn
	if keyColumn == "" {
		keyColumn = t.URLColumn
	}

	var (
		locators []harvest.Locator
		seen     = make(map[string]struct{})
		skipped  int
	)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return locators, fmt.Errorf("discover canceled: %w", err)
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("unreadable csv row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		row := make(map[string]string, len(columns))
		for name, i := range columns {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}
		assetURL := row[t.URLColumn]
		if !harvest.IsAbsoluteHTTPURL(assetURL) {
			skipped++
			continue
		}
		key := row[keyColumn]
		if key == "" {
			key = assetURL
		}
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		locators = append(locators, harvest.Locator{URL: assetURL, Row: row})
	}
	logger.Info("rows discovered", zap.String("path", t.Path), zap.Int("rows", len(locators)), zap.Int("skipped", skipped))
	return locators, nil
}
