// Package britishmuseum adapts a British Museum collection CSV export to the
// harvest record model. Rows are read locally; only images are downloaded.
package britishmuseum

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/igboarchives/harvester/internal/discovery"
	"github.com/igboarchives/harvester/internal/harvest"
)

// SourceID identifies records produced by this adapter.
const SourceID = "british_museum"

// Export column names.
const (
	ColImage          = "Image"
	ColMuseumNumber   = "Museum number"
	ColTitle          = "Title"
	ColDescription    = "Description"
	ColObjectType     = "Object type"
	ColProductionDate = "Production date"
	ColMaterials      = "Materials"
)

var idReplacer = strings.NewReplacer(".", "_", " ", "_", "/", "-", ",", "")

// Config describes the export.
type Config struct {
	Name          string
	CollectionURL string
	FilePrefix    string
	License       string
	CSVPath       string
}

// Source implements harvest.Source for the export.
type Source struct {
	cfg    Config
	clock  harvest.Clock
	logger *zap.Logger
}

// New builds the adapter.
func New(cfg Config, clock harvest.Clock, logger *zap.Logger) *Source {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "bm"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, clock: clock, logger: logger.Named(SourceID)}
}

// ID implements harvest.Source.
func (s *Source) ID() string { return SourceID }

// Discover reads every row with an absolute image URL.
func (s *Source) Discover(ctx context.Context) ([]harvest.Locator, error) {
	return discovery.Tabular{
		Path:      s.cfg.CSVPath,
		URLColumn: ColImage,
		KeyColumn: ColMuseumNumber,
		Logger:    s.logger,
	}.Discover(ctx)
}

// Extract maps one row to a draft with a single image.
func (s *Source) Extract(_ context.Context, loc harvest.Locator) ([]harvest.Draft, error) {
	row := loc.Row
	number := valueOr(row[ColMuseumNumber], "unknown")
	title := valueOr(row[ColTitle], "Untitled")
	fileName := harvest.DeriveFilename(s.cfg.FilePrefix, idReplacer.Replace(number), -1, harvest.ExtensionFromURL(loc.URL))

	record := harvest.ItemRecord{
		ID:           number,
		SourceID:     SourceID,
		SourceName:   s.cfg.Name,
		SourceType:   harvest.SourcePrimary,
		CanonicalURL: s.cfg.CollectionURL,
		Title:        title,
		RawContent:   row[ColDescription],
		Metadata: map[string]any{
			"title":           title,
			"idno":            number,
			"description":     row[ColDescription],
			"object_type":     row[ColObjectType],
			"production_date": row[ColProductionDate],
			"materials":       row[ColMaterials],
			"copyright":       s.cfg.License,
		},
		Images:           []harvest.ImageRef{},
		Tags:             []string{},
		LicenseInfo:      s.cfg.License,
		TimestampScraped: s.clock.Now(),
	}
	return []harvest.Draft{{
		Record: record,
		Assets: []harvest.AssetRequest{{URL: loc.URL, FileName: fileName}},
	}}, nil
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
