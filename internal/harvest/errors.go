package harvest

import "errors"

var (
	// ErrEntryUnreachable marks a failure to load the first listing or index page.
	ErrEntryUnreachable = errors.New("entry page unreachable")
	// ErrInputMissing marks a missing tabular input file.
	ErrInputMissing = errors.New("input file missing")
	// ErrStatus marks a non-2xx HTTP response.
	ErrStatus = errors.New("unexpected http status")
)

// IsFatal reports whether err should abort a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEntryUnreachable) || errors.Is(err, ErrInputMissing)
}
