package harvest

import (
	"context"
	"io"
	"time"
)

// PageFetcher retrieves HTML documents.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Pacer spaces out consecutive requests.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Source adapts one website or export to the record model.
type Source interface {
	ID() string
	// Discover enumerates every unit of work in discovery order.
	Discover(ctx context.Context) ([]Locator, error)
	// Extract turns one locator into zero or more drafts.
	Extract(ctx context.Context, loc Locator) ([]Draft, error)
}

// AssetFetcher downloads one asset into the raw store.
type AssetFetcher interface {
	Fetch(ctx context.Context, req AssetRequest) (AssetResult, error)
}

// AssetStore is a flat, filename-keyed blob store.
type AssetStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Put streams r into name. A partially written object is never visible.
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
}

// ResettableStore can be emptied before being regenerated.
type ResettableStore interface {
	AssetStore
	Clear(ctx context.Context) error
}

// CompletedIndex remembers which filenames have been fully fetched.
type CompletedIndex interface {
	Has(ctx context.Context, name string) (bool, error)
	Mark(ctx context.Context, name string) error
}

// RecordWriter appends one object to a metadata stream.
type RecordWriter interface {
	Encode(v any) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
