package harvest

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxFileNameLength bounds every derived asset filename, extension included.
const MaxFileNameLength = 128

// DefaultExtension is used when a URL carries no allow-listed extension.
const DefaultExtension = ".jpg"

var (
	allowedExtensions = map[string]struct{}{
		".jpg":  {},
		".jpeg": {},
		".png":  {},
		".gif":  {},
		".webp": {},
	}
	invalidFilenameChars = regexp.MustCompile(`[^a-z0-9._-]+`)
)

// Sanitizer reduces free text to a filename-safe slug.
type Sanitizer struct {
	// Separator replaces whitespace, dashes and slashes. Defaults to '-'.
	Separator rune
	// AllowDots keeps '.' characters.
	AllowDots bool
	// MaxLen truncates the slug when positive.
	MaxLen int
}

// Sanitize lower-cases s, folds accented letters to ASCII, maps separators
// to a single Separator and strips everything outside [a-z0-9_] (plus '.'
// when AllowDots is set). An empty result becomes "untitled".
func (s Sanitizer) Sanitize(in string) string {
	sep := s.Separator
	if sep == 0 {
		sep = '-'
	}
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(foldDiacritics(in)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', s.AllowDots && r == '.':
			if pending && b.Len() > 0 {
				b.WriteRune(sep)
			}
			pending = false
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/', r == '\\', r == sep:
			pending = true
		}
	}
	out := b.String()
	if s.MaxLen > 0 && len(out) > s.MaxLen {
		out = strings.TrimRight(out[:s.MaxLen], string(sep))
	}
	if out == "" {
		return "untitled"
	}
	return out
}

func foldDiacritics(in string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, in)
	if err != nil {
		return in
	}
	return out
}

// DeriveFilename builds "<prefix>_<stem>[_<NN>]<ext>". A negative index omits
// the counter. The stem is shortened so the name never exceeds
// MaxFileNameLength, and any byte outside [a-z0-9._-] is replaced.
func DeriveFilename(prefix, stem string, index int, ext string) string {
	ext = strings.ToLower(ext)
	if _, ok := allowedExtensions[ext]; !ok {
		ext = DefaultExtension
	}
	counter := ""
	if index >= 0 {
		counter = fmt.Sprintf("_%02d", index)
	}
	prefix = invalidFilenameChars.ReplaceAllString(strings.ToLower(prefix), "_")
	stem = invalidFilenameChars.ReplaceAllString(strings.ToLower(stem), "_")
	if stem == "" {
		stem = "untitled"
	}
	budget := MaxFileNameLength - len(prefix) - 1 - len(counter) - len(ext)
	if budget < 1 {
		budget = 1
	}
	if len(stem) > budget {
		stem = stem[:budget]
	}
	return prefix + "_" + stem + counter + ext
}

// ExtensionFromURL returns the allow-listed, lower-cased extension of the
// URL path, or DefaultExtension.
func ExtensionFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if _, ok := allowedExtensions[ext]; ok {
		return ext
	}
	return DefaultExtension
}

// StemFromURL returns the last path segment of raw without its extension.
func StemFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
