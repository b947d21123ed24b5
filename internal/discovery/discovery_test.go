package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igboarchives/harvester/internal/harvest"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (harvest.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	body, ok := s.pages[url]
	if !ok {
		return harvest.Page{}, errors.New("connection refused")
	}
	return harvest.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func listing(items []string, next string) string {
	html := "<html><body>"
	for _, item := range items {
		html += `<h3 class="post-title"><a href="` + item + `">post</a></h3>`
	}
	if next != "" {
		html += `<a class="blog-pager-older-link" href="` + next + `">Older</a>`
	}
	return html + "</body></html>"
}

func paginated(f harvest.PageFetcher) Paginated {
	return Paginated{
		Fetcher:      f,
		Start:        "https://blog.example/",
		ItemSelector: "h3.post-title a",
		NextSelector: "a.blog-pager-older-link",
	}
}

func urls(locs []harvest.Locator) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.URL)
	}
	return out
}

func TestPaginatedFollowsChainAndDedupes(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/":              listing([]string{"/p/1.html", "/p/2.html"}, "/search?page=2"),
		"https://blog.example/search?page=2": listing([]string{"/p/2.html", "https://blog.example/p/3.html#c"}, ""),
	}}
	locs, err := paginated(f).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://blog.example/p/1.html",
		"https://blog.example/p/2.html",
		"https://blog.example/p/3.html",
	}, urls(locs))
}

func TestPaginatedSelfLinkTerminates(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/": listing([]string{"/p/1.html"}, "https://blog.example/#top"),
	}}
	locs, err := paginated(f).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs, 1)
	assert.Len(t, f.calls, 1)
}

func TestPaginatedLongerCycleTerminates(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/":      listing([]string{"/p/1.html"}, "/older"),
		"https://blog.example/older": listing([]string{"/p/2.html"}, "/"),
	}}
	locs, err := paginated(f).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs, 2)
	assert.Len(t, f.calls, 2)
}

func TestPaginatedStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/":      listing([]string{"/p/1.html"}, "/older"),
		"https://blog.example/older": listing(nil, "/older2"),
	}}
	locs, err := paginated(f).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs, 1)
	assert.NotContains(t, f.calls, "https://blog.example/older2")
}

func TestPaginatedFirstPageFatal(t *testing.T) {
	t.Parallel()

	_, err := paginated(&stubFetcher{}).Discover(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, harvest.ErrEntryUnreachable))
}

func TestPaginatedLaterPageFailureKeepsResults(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/": listing([]string{"/p/1.html"}, "/broken"),
	}}
	locs, err := paginated(f).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs, 1)
}

func TestPaginatedMaxPages(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example/":      listing([]string{"/p/1.html"}, "/older"),
		"https://blog.example/older": listing([]string{"/p/2.html"}, ""),
	}}
	p := paginated(f)
	p.MaxPages = 1
	locs, err := p.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs, 1)
}

const jonesIndex = `<html><body>
<a href="https://jonesarchive.siu.edu/photo-indexes/">Photo Indexes</a>
<a href="/masks/">Masks</a>
<a href="https://jonesarchive.siu.edu/mbari-houses/">Mbari Houses</a>
<a href="https://jonesarchive.siu.edu/masks/">Masks again</a>
<a href="https://jonesarchive.siu.edu/jones-biography/">Biography</a>
<a href="https://jonesarchive.siu.edu/bibliography/">Bibliography</a>
<a href="https://jonesarchive.siu.edu/contact">Contact</a>
<a href="https://www.google.com/maps/">Map</a>
<a href="https://jonesarchive.siu.edu/shrines/"> </a>
</body></html>`

func TestCategoriesFiltersLinks(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{pages: map[string]string{
		"https://jonesarchive.siu.edu/photo-indexes/": jonesIndex,
	}}
	c := Categories{
		Fetcher:    f,
		IndexURL:   "https://jonesarchive.siu.edu/photo-indexes/",
		HostSuffix: "siu.edu",
		Exclude:    []string{"/jones-biography/", "/bibliography/"},
	}
	locs, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://jonesarchive.siu.edu/masks/",
		"https://jonesarchive.siu.edu/mbari-houses/",
	}, urls(locs))
}

func TestCategoriesIndexFatal(t *testing.T) {
	t.Parallel()

	_, err := Categories{Fetcher: &stubFetcher{}, IndexURL: "https://x.example/"}.Discover(context.Background())
	assert.True(t, errors.Is(err, harvest.ErrEntryUnreachable))
}

func TestTabularFiltersAndDedupes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "british_museum.csv")
	csvData := "\ufeffImage,Museum number,Title\n" +
		"https://media.example/a.jpg,Af1910.5,Mask\n" +
		"not a url,Af1910.6,Broken\n" +
		",Af1910.7,Empty\n" +
		"https://media.example/a2.jpg,Af1910.5,Duplicate\n" +
		"\"https://media.example/b.jpg\",\"Af1934,0307.1\",\"Figure, \"\"carved\"\"\"\n" +
		"ftp://media.example/c.jpg,Af1,Ftp\n"
	require.NoError(t, os.WriteFile(path, []byte(csvData), 0o600))

	locs, err := Tabular{Path: path, URLColumn: "Image", KeyColumn: "Museum number"}.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "https://media.example/a.jpg", locs[0].URL)
	assert.Equal(t, "Mask", locs[0].Row["Title"])
	assert.Equal(t, "Af1934,0307.1", locs[1].Row["Museum number"])
	assert.Equal(t, `Figure, "carved"`, locs[1].Row["Title"])
}

func TestTabularMissingFileFatal(t *testing.T) {
	t.Parallel()

	_, err := Tabular{Path: filepath.Join(t.TempDir(), "nope.csv"), URLColumn: "Image"}.Discover(context.Background())
	assert.True(t, errors.Is(err, harvest.ErrInputMissing))
}

func TestTabularMissingColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,B\n1,2\n"), 0o600))
	_, err := Tabular{Path: path, URLColumn: "Image"}.Discover(context.Background())
	require.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := normalizeURL("HTTPS://Blog.Example:443/p?b=2&a=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example/p?a=1&b=2", got)
}
