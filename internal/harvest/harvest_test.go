package harvest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseEmptyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropIfEmpty, p)

	p, err = ParseEmptyPolicy("keep-regardless")
	require.NoError(t, err)
	assert.Equal(t, KeepRegardless, p)

	_, err = ParseEmptyPolicy("sometimes")
	require.Error(t, err)
}

func TestEmptyPolicyAdmits(t *testing.T) {
	t.Parallel()

	assert.False(t, DropIfEmpty.Admits(0))
	assert.True(t, DropIfEmpty.Admits(1))
	assert.True(t, KeepRegardless.Admits(0))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	got, err := ResolveURL("https://jonesarchive.siu.edu/photo-indexes/", "../masks/#top")
	require.NoError(t, err)
	assert.Equal(t, "https://jonesarchive.siu.edu/masks/", got)

	got, err = ResolveURL("https://a.org/x", "https://b.org/y.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://b.org/y.jpg", got)
}

func TestIsAbsoluteHTTPURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAbsoluteHTTPURL("https://media.britishmuseum.org/a.jpg"))
	assert.True(t, IsAbsoluteHTTPURL(" http://x.org "))
	assert.False(t, IsAbsoluteHTTPURL("ftp://x.org/a.jpg"))
	assert.False(t, IsAbsoluteHTTPURL("/relative.jpg"))
	assert.False(t, IsAbsoluteHTTPURL(""))
	assert.False(t, IsAbsoluteHTTPURL("https://"))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(fmt.Errorf("discover: %w", ErrEntryUnreachable)))
	assert.True(t, IsFatal(fmt.Errorf("read csv: %w", ErrInputMissing)))
	assert.False(t, IsFatal(fmt.Errorf("fetch: %w", ErrStatus)))
}
