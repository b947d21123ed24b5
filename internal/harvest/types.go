package harvest

import "time"

// SourceType classifies how close a source is to the original material.
type SourceType string

// Source provenance values written on every record.
const (
	SourcePrimary   SourceType = "primary"
	SourceSecondary SourceType = "secondary"
)

// ImageRef points at one stored asset of a record.
type ImageRef struct {
	FileName      string `json:"file_name"`
	OriginalURL   string `json:"original_url"`
	RawCaption    string `json:"raw_caption,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	FileSizeBytes int64  `json:"file_size_bytes,omitempty"`
	SHA256        string `json:"sha256,omitempty"`
}

// ItemRecord is one line of the metadata stream.
type ItemRecord struct {
	ID               string         `json:"id"`
	SourceID         string         `json:"source_id"`
	SourceName       string         `json:"source_name"`
	SourceType       SourceType     `json:"source_type"`
	CanonicalURL     string         `json:"canonical_url"`
	Title            string         `json:"title"`
	RawContent       string         `json:"raw_content"`
	Metadata         map[string]any `json:"source_specific_metadata,omitempty"`
	Images           []ImageRef     `json:"images"`
	Tags             []string       `json:"tags"`
	LicenseInfo      string         `json:"license_info"`
	TimestampScraped time.Time      `json:"timestamp_scraped"`
}

// Locator identifies one unit of discovery work: an item page, a category
// page, or a row of a tabular export.
type Locator struct {
	URL string
	Row map[string]string
}

// AssetRequest asks the fetcher to store URL under FileName.
type AssetRequest struct {
	URL      string
	FileName string
	Caption  string
}

// AssetResult describes a stored asset.
type AssetResult struct {
	FileName string
	Width    int
	Height   int
	Size     int64
	SHA256   string
	// Skipped is set when the asset was already present and no request was made.
	Skipped bool
	// Probed is set when Width, Height, Size and SHA256 were read back from
	// the stored copy.
	Probed bool
}

// Draft is an extracted record whose images have not been fetched yet.
type Draft struct {
	Record ItemRecord
	Assets []AssetRequest
}

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}
