package crawler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domain-intel/internal/config"
	"domain-intel/internal/extractor"
	"domain-intel/internal/fetcher"
)

// mapFetcher serves canned HTML per URL, like a tiny static site.
type mapFetcher struct {
	pages map[string]string
}

func (m *mapFetcher) Fetch(ctx context.Context, url string) (string, string) {
	html, ok := m.pages[url]
	if !ok {
		return "", fetcher.SourceNone
	}
	return html, fetcher.SourceDirect
}

func page(title, body string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><main>")
	b.WriteString(body)
	b.WriteString("</main>")
	for _, l := range links {
		b.WriteString(fmt.Sprintf(`<a href="%s">link</a>`, l))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func longText(marker string) string {
	return marker + " " + strings.Repeat("substantial crawlable page content with many words ", 10)
}

func testConfig(maxPages int) config.CrawlerConfig {
	return config.CrawlerConfig{MaxPages: maxPages, MaxContentLength: 10000}
}

func newTestCrawler(pages map[string]string, maxPages int) *Crawler {
	cfg := testConfig(maxPages)
	return New(&mapFetcher{pages: pages}, extractor.New(cfg.MaxContentLength), cfg)
}

func TestCrawlDomain_KeywordLinksFirst(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{
		seed:                page("Home", longText("home"), "/zebra", "/about", "/misc"),
		seed + "/zebra":     page("Zebra", longText("zebra")),
		seed + "/about":     page("About", longText("about")),
		seed + "/misc":      page("Misc", longText("misc")),
	}
	c := newTestCrawler(pages, 25)

	result, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)
	require.Len(t, result.Pages, 4)

	// Seed first, then the keyword match, then the rest in first-seen order.
	assert.Equal(t, seed, result.Pages[0].URL)
	assert.Equal(t, seed+"/about", result.Pages[1].URL)
	assert.Equal(t, seed+"/zebra", result.Pages[2].URL)
	assert.Equal(t, seed+"/misc", result.Pages[3].URL)
}

func TestCrawlDomain_SameHostAndDenyList(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{
		seed: page("Home", longText("home"),
			"https://other.com/page",
			"/login",
			"/assets/pic.png",
			"/privacy",
			"javascript:void(0)",
			"/ok"),
		seed + "/ok": page("OK", longText("ok")),
	}
	c := newTestCrawler(pages, 25)

	result, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)

	for _, p := range result.Pages {
		assert.True(t, strings.HasPrefix(p.URL, seed), "unexpected host: %s", p.URL)
		for _, bad := range []string{"login", ".png", "privacy", "javascript:"} {
			assert.NotContains(t, strings.ToLower(p.URL), bad)
		}
	}
	require.Len(t, result.Pages, 2)
	assert.Equal(t, seed+"/ok", result.Pages[1].URL)
}

func TestCrawlDomain_PageBudgetIncludesSeed(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{
		seed:           page("Home", longText("home"), "/a", "/b", "/c"),
		seed + "/a":    page("A", longText("a")),
		seed + "/b":    page("B", longText("b")),
		seed + "/c":    page("C", longText("c")),
	}
	c := newTestCrawler(pages, 2)

	result, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)
}

func TestCrawlDomain_RejectsThinPages(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{
		seed:            page("Home", longText("home"), "/thin"),
		seed + "/thin":  page("Thin", "just a few words here"+strings.Repeat(" pad", 30)),
	}
	// /thin has ~34 words, under the 50-word floor.
	c := newTestCrawler(pages, 25)

	result, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, seed, result.Pages[0].URL)
}

func TestCrawlDomain_SyncClassification(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{
		seed:              page("Home", longText("home"), "/stable", "/changing"),
		seed + "/stable":   page("Stable", longText("stable")),
		seed + "/changing": page("Changing", longText("first version")),
	}
	c := newTestCrawler(pages, 25)

	_, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)

	// Second pass: one page changed, one brand new, one untouched.
	pages[seed+"/changing"] = page("Changing", longText("second version"))
	pages[seed] = page("Home", longText("home"), "/stable", "/changing", "/fresh")
	pages[seed+"/fresh"] = page("Fresh", longText("fresh"))

	result, err := c.CrawlDomain(context.Background(), seed, true)
	require.NoError(t, err)
	require.NotNil(t, result.SyncDiff)

	assert.Equal(t, []string{seed + "/fresh"}, result.SyncDiff.NewURLs)
	assert.Contains(t, result.SyncDiff.UpdatedURLs, seed+"/changing")
	assert.NotContains(t, result.SyncDiff.UpdatedURLs, seed+"/stable")
	assert.NotContains(t, result.SyncDiff.NewURLs, seed+"/stable")
}

func TestCrawlDomain_SyncUnchangedSeedNotReported(t *testing.T) {
	seed := "https://example.com"
	pages := map[string]string{seed: page("Home", longText("home"))}
	c := newTestCrawler(pages, 25)

	_, err := c.CrawlDomain(context.Background(), seed, false)
	require.NoError(t, err)

	result, err := c.CrawlDomain(context.Background(), seed, true)
	require.NoError(t, err)
	require.NotNil(t, result.SyncDiff)
	assert.Zero(t, result.SyncDiff.TotalChanges())
}

func TestCrawlURLs_FailuresRecorded(t *testing.T) {
	good := "https://example.com/good"
	pages := map[string]string{good: page("Good", longText("good"))}
	c := newTestCrawler(pages, 25)

	result, err := c.CrawlURLs(context.Background(), []string{"example.com/good", "example.com/missing", "  "})
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, good, result.Pages[0].URL)
	assert.Equal(t, []string{"https://example.com/missing"}, result.FailedURLs)
	// Blank entries are dropped, scheme-less entries prefixed.
	assert.Equal(t, []string{good, "https://example.com/missing"}, result.URLs)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", NormalizeURL("example.com"))
	assert.Equal(t, "http://example.com", NormalizeURL("http://example.com"))
	assert.Equal(t, "https://example.com", NormalizeURL("https://example.com"))
}
