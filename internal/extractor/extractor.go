package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"domain-intel/internal/models"
)

// Selectors tried in order when locating the main content container.
// The first match wins; full body text is the fallback.
var contentSelectors = []string{
	"main", `[role="main"]`, ".main-content", "#main-content",
	".content", "#content", "article", ".post", ".page-content",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extractor converts raw HTML into normalized PageRecords.
type Extractor struct {
	maxContentLength int
}

func New(maxContentLength int) *Extractor {
	if maxContentLength <= 0 {
		maxContentLength = 10000
	}
	return &Extractor{maxContentLength: maxContentLength}
}

// Extract builds a PageRecord from raw HTML. Unparseable HTML yields a
// record with empty text rather than an error; callers treat low word
// counts as unusable pages.
func (e *Extractor) Extract(html, url string) models.PageRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.PageRecord{URL: url, Title: "No Title", FetchedAt: time.Now()}
	}

	doc.Find("script,noscript,style,nav,footer,header").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No Title"
	}

	var content string
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			content = sel.Text()
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
	content = truncateRunes(content, e.maxContentLength)

	var headings []string
	doc.Find("h1,h2,h3").Each(func(i int, s *goquery.Selection) {
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			headings = append(headings, txt)
		}
	})

	return models.PageRecord{
		URL:         url,
		Title:       title,
		Text:        content,
		Headings:    headings,
		WordCount:   len(strings.Fields(content)),
		ContentHash: HashContent(content),
		FetchedAt:   time.Now(),
	}
}

// truncateRunes caps s at max characters, never splitting a rune.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	end := 0
	for i := 0; i < max; i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return s[:end]
}

// HashContent returns the change-detection digest of normalized text.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
