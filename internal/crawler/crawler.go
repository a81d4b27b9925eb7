package crawler

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"domain-intel/internal/config"
	"domain-intel/internal/extractor"
	"domain-intel/internal/models"
)

// URL substrings excluded from discovery: auth/commerce flows, asset
// extensions, legal boilerplate, and pseudo-links.
var skipPatterns = []string{
	"login", "register", "cart", "checkout", "admin",
	"wp-admin", "wp-content", ".pdf", ".jpg", ".png", ".gif",
	"privacy", "terms", "cookie", "legal", "#", "javascript:",
}

// Links containing these substrings are crawled before the rest.
var priorityKeywords = []string{
	"about", "service", "product", "solution", "team",
	"contact", "portfolio", "work", "case-study", "blog",
	"news", "career", "job", "pricing", "plan",
}

// Pages at or below this word count are noise and are not stored.
const minWordCount = 50

// PageFetcher retrieves raw HTML for one URL. Failures surface as
// empty HTML, never as an error.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (html string, source string)
}

// Crawler discovers and fetches in-domain pages. The content-hash map
// lives for the crawler's lifetime so sync crawls can diff against the
// previous pass.
type Crawler struct {
	fetcher   PageFetcher
	extractor *extractor.Extractor
	cfg       config.CrawlerConfig

	mu         sync.Mutex
	lastHashes map[string]string
}

func New(f PageFetcher, e *extractor.Extractor, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		fetcher:    f,
		extractor:  e,
		cfg:        cfg,
		lastHashes: make(map[string]string),
	}
}

// CrawlDomain discovers pages from the seed and fetches up to the page
// budget. With syncMode set, each stored page is classified against the
// hashes of the previous crawl.
func (c *Crawler) CrawlDomain(ctx context.Context, domain string, syncMode bool) (*models.CrawlResult, error) {
	domain = NormalizeURL(domain)
	log.Info().Str("domain", domain).Bool("sync", syncMode).Msg("crawling domain")

	urls := c.discover(ctx, domain)
	result := &models.CrawlResult{Seed: domain, CrawledAt: time.Now()}

	var diff models.SyncDiff
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, ok := c.fetchPage(ctx, u)
		if !ok {
			continue
		}
		result.Pages = append(result.Pages, page)

		c.mu.Lock()
		prev, seen := c.lastHashes[u]
		c.lastHashes[u] = page.ContentHash
		c.mu.Unlock()

		if syncMode {
			switch {
			case !seen:
				diff.NewURLs = append(diff.NewURLs, u)
			case prev != page.ContentHash:
				diff.UpdatedURLs = append(diff.UpdatedURLs, u)
			}
		}

		c.sleep(ctx)
	}

	if syncMode {
		result.SyncDiff = &diff
	}
	log.Info().Str("domain", domain).Int("pages", len(result.Pages)).Msg("crawl finished")
	return result, nil
}

// CrawlURLs fetches an explicit URL list. No discovery or ranking runs;
// unusable URLs land in FailedURLs.
func (c *Crawler) CrawlURLs(ctx context.Context, urls []string) (*models.CrawlResult, error) {
	result := &models.CrawlResult{Seed: "multiple-urls", CrawledAt: time.Now()}

	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u := NormalizeURL(raw)
		result.URLs = append(result.URLs, u)

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, ok := c.fetchPage(ctx, u)
		if !ok {
			result.FailedURLs = append(result.FailedURLs, u)
			continue
		}
		result.Pages = append(result.Pages, page)
		c.sleep(ctx)
	}

	log.Info().Int("pages", len(result.Pages)).Int("failed", len(result.FailedURLs)).Msg("url list crawl finished")
	return result, nil
}

// fetchPage retrieves and extracts one URL, reporting whether the page
// is usable. Fetch failures and thin pages are skipped, never fatal.
func (c *Crawler) fetchPage(ctx context.Context, u string) (models.PageRecord, bool) {
	html, _ := c.fetcher.Fetch(ctx, u)
	if len(html) < 100 {
		log.Warn().Str("url", u).Msg("skipped: empty or near-empty html")
		return models.PageRecord{}, false
	}
	page := c.extractor.Extract(html, u)
	if page.WordCount <= minWordCount {
		log.Warn().Str("url", u).Int("words", page.WordCount).Msg("skipped: too little content")
		return models.PageRecord{}, false
	}
	log.Info().Str("url", u).Int("words", page.WordCount).Msg("crawled")
	return page, true
}

// discover collects candidate URLs from the seed page, ranked by
// keyword priority and capped at the page budget (seed included).
func (c *Crawler) discover(ctx context.Context, seed string) []string {
	urls := []string{seed}

	html, _ := c.fetcher.Fetch(ctx, seed)
	if html == "" {
		return urls
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return urls
	}
	base, err := url.Parse(seed)
	if err != nil {
		return urls
	}

	seen := map[string]bool{seed: true}
	var links []string
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		link := base.ResolveReference(ref).String()
		if seen[link] || !isValidURL(link, base) {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	// Keyword-matching links first, first-seen order preserved within
	// each group.
	var prioritized, rest []string
	for _, link := range links {
		if matchesKeyword(link) {
			prioritized = append(prioritized, link)
		} else {
			rest = append(rest, link)
		}
	}
	prioritized = append(prioritized, rest...)

	budget := c.cfg.MaxPages - 1
	if budget < 0 {
		budget = 0
	}
	if len(prioritized) > budget {
		prioritized = prioritized[:budget]
	}
	urls = append(urls, prioritized...)
	log.Info().Str("seed", seed).Int("urls", len(urls)).Msg("discovery complete")
	return urls
}

func (c *Crawler) sleep(ctx context.Context) {
	if c.cfg.CrawlDelay() <= 0 {
		return
	}
	select {
	case <-time.After(c.cfg.CrawlDelay()):
	case <-ctx.Done():
	}
}

func isValidURL(link string, base *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return false
	}
	lower := strings.ToLower(link)
	for _, pattern := range skipPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

func matchesKeyword(link string) bool {
	lower := strings.ToLower(link)
	for _, kw := range priorityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NormalizeURL prefixes bare host names with https://.
func NormalizeURL(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}
