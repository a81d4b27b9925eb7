package models

import "time"

// PageRecord is one fetched and normalized web page. Immutable once
// built; ContentHash is used for change detection only.
type PageRecord struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Headings    []string  `json:"headings,omitempty"`
	WordCount   int       `json:"word_count"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// SyncDiff classifies pages found by a sync crawl. Unchanged pages
// appear in neither set.
type SyncDiff struct {
	NewURLs     []string `json:"new_urls"`
	UpdatedURLs []string `json:"updated_urls"`
}

// TotalChanges returns the number of new plus updated pages.
func (d *SyncDiff) TotalChanges() int {
	if d == nil {
		return 0
	}
	return len(d.NewURLs) + len(d.UpdatedURLs)
}

// CrawlResult is the output of one crawl invocation.
type CrawlResult struct {
	Seed       string       `json:"seed"`
	URLs       []string     `json:"urls,omitempty"`
	Pages      []PageRecord `json:"pages"`
	FailedURLs []string     `json:"failed_urls,omitempty"`
	CrawledAt  time.Time    `json:"crawled_at"`
	SyncDiff   *SyncDiff    `json:"sync_diff,omitempty"`
}

// TotalWords sums the word counts of all crawled pages.
func (r *CrawlResult) TotalWords() int {
	total := 0
	for _, p := range r.Pages {
		total += p.WordCount
	}
	return total
}

// ChunkMetadata carries the required provenance fields for a chunk plus
// an open extension map for anything pipeline-specific.
type ChunkMetadata struct {
	SourceID   string
	Title      string
	ChunkIndex int
	ChunkSize  int
	Extra      map[string]string
}

// Chunk is a bounded window of source text with retrieval metadata.
// ChunkIndex is unique and increasing within one source document.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}

// SearchMatch is one similarity-search hit.
type SearchMatch struct {
	Text     string
	Metadata ChunkMetadata
	Distance float32
}

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn half in a session's chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
