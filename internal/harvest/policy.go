package harvest

import "fmt"

// EmptyPolicy decides whether a record without surviving images is kept.
type EmptyPolicy string

// Supported empty-image policies.
const (
	DropIfEmpty    EmptyPolicy = "drop-if-empty"
	KeepRegardless EmptyPolicy = "keep-regardless"
)

// ParseEmptyPolicy validates a configured policy name. Empty means DropIfEmpty.
func ParseEmptyPolicy(raw string) (EmptyPolicy, error) {
	switch EmptyPolicy(raw) {
	case "", DropIfEmpty:
		return DropIfEmpty, nil
	case KeepRegardless:
		return KeepRegardless, nil
	default:
		return "", fmt.Errorf("unknown empty policy %q", raw)
	}
}

// Admits reports whether a record with imageCount surviving images is written.
func (p EmptyPolicy) Admits(imageCount int) bool {
	if p == KeepRegardless {
		return true
	}
	return imageCount > 0
}
