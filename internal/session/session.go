package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"domain-intel/internal/chunker"
	"domain-intel/internal/config"
	"domain-intel/internal/docparser"
	"domain-intel/internal/embedding"
	"domain-intel/internal/llm"
	"domain-intel/internal/models"
	"domain-intel/internal/vectorstore"
)

// Chat modes. Auto prefers the document namespace when it has content.
const (
	ModeAuto = "auto"
	ModeWeb  = "web"
	ModeDocs = "docs"
)

// DomainCrawler is the crawl capability a session needs. Tests
// substitute a stub for the real crawler.
type DomainCrawler interface {
	CrawlDomain(ctx context.Context, domain string, syncMode bool) (*models.CrawlResult, error)
	CrawlURLs(ctx context.Context, urls []string) (*models.CrawlResult, error)
}

// Deps bundles the shared collaborators every session uses.
type Deps struct {
	Store      vectorstore.Store
	Crawler    DomainCrawler
	Generator  llm.Generator
	WebChunker *chunker.Chunker
	DocChunker *chunker.Chunker
	Chat       config.ChatConfig
}

// Session owns two isolated namespaces (crawled web content and
// uploaded documents), a bounded chat history per namespace, and the
// crawl state needed to sync. All operations serialize on the session
// mutex; different sessions run concurrently.
type Session struct {
	id        string
	createdAt time.Time
	deps      *Deps

	mu            sync.Mutex
	name          string
	domain        string
	urlList       bool
	webHistory    []models.ChatMessage
	docHistory    []models.ChatMessage
	docFiles      []string
	docChunks     int
	lastProcessed time.Time
}

// AnalyzeResult is what an analyze or sync run reports back.
type AnalyzeResult struct {
	Summary    string           `json:"summary,omitempty"`
	Report     string           `json:"report"`
	Pages      int              `json:"pages"`
	FailedURLs []string         `json:"failed_urls,omitempty"`
	Sync       *models.SyncDiff `json:"sync,omitempty"`
}

// ChatAnswer carries the generated answer plus the source ids of the
// chunks it was grounded on.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
	Mode    string   `json:"mode"`
}

// DocumentInfo summarizes the upload side of a session.
type DocumentInfo struct {
	Files         []string  `json:"files"`
	Chunks        int       `json:"chunks"`
	LastProcessed time.Time `json:"last_processed"`
}

func newSession(id, name string, deps *Deps) *Session {
	return &Session{id: id, name: name, createdAt: time.Now(), deps: deps}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) webNamespace() string { return "session_web_" + s.id }
func (s *Session) docNamespace() string { return "session_doc_" + s.id }

// AnalyzeDomain crawls a domain and ingests its pages into the web
// namespace. A fresh run replaces the namespace and produces a summary;
// a sync run ingests only changed pages and reports the diff.
func (s *Session) AnalyzeDomain(ctx context.Context, domain string, syncMode bool) (*AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzeDomainLocked(ctx, domain, syncMode)
}

func (s *Session) analyzeDomainLocked(ctx context.Context, domain string, syncMode bool) (*AnalyzeResult, error) {
	result, err := s.deps.Crawler.CrawlDomain(ctx, domain, syncMode)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl %s: %w", domain, err)
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%w: no pages crawled from %s", ErrNoContent, domain)
	}

	pages := result.Pages
	if syncMode {
		pages = changedPages(result)
	} else {
		if err := s.deps.Store.Clear(ctx, s.webNamespace()); err != nil {
			return nil, err
		}
	}
	if err := s.ingest(ctx, s.webNamespace(), pages, s.deps.WebChunker); err != nil {
		return nil, err
	}

	s.domain = result.Seed
	s.urlList = false

	res := &AnalyzeResult{
		Report:     crawlReport(result),
		Pages:      len(result.Pages),
		FailedURLs: result.FailedURLs,
	}
	if syncMode {
		res.Sync = result.SyncDiff
		return res, nil
	}
	res.Summary = s.summarize(ctx, result, result.Seed)
	return res, nil
}

// AnalyzeURLs ingests an explicit list of pages. The resulting session
// cannot sync: there is no seed to re-discover from.
func (s *Session) AnalyzeURLs(ctx context.Context, urls []string) (*AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.deps.Crawler.CrawlURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl url list: %w", err)
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%w: none of the urls yielded content", ErrNoContent)
	}

	if err := s.deps.Store.Clear(ctx, s.webNamespace()); err != nil {
		return nil, err
	}
	if err := s.ingest(ctx, s.webNamespace(), result.Pages, s.deps.WebChunker); err != nil {
		return nil, err
	}

	s.domain = ""
	s.urlList = true

	return &AnalyzeResult{
		Summary:    s.summarize(ctx, result, "url list"),
		Report:     crawlReport(result),
		Pages:      len(result.Pages),
		FailedURLs: result.FailedURLs,
	}, nil
}

// Sync re-crawls the session's domain and ingests only the pages whose
// content hash changed since the last run.
func (s *Session) Sync(ctx context.Context) (*AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Gate and crawl stay under one critical section so a concurrent
	// AnalyzeURLs cannot flip the session mode between them.
	if s.urlList {
		return nil, fmt.Errorf("%w: session was built from a url list", ErrSyncUnsupported)
	}
	if s.domain == "" {
		return nil, fmt.Errorf("%w: no domain has been analyzed yet", ErrSyncUnsupported)
	}
	return s.analyzeDomainLocked(ctx, s.domain, true)
}

// UploadDocument extracts, chunks and stores one uploaded file in the
// document namespace.
func (s *Session) UploadDocument(ctx context.Context, name string, data []byte) (int, error) {
	text, err := docparser.ExtractText(data, name)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestDocument(ctx, name, text)
}

// UploadArchive validates a zip and ingests every supported member.
func (s *Session) UploadArchive(ctx context.Context, data []byte) (int, error) {
	docs, err := docparser.ExtractArchive(data)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("%w: archive contains no supported documents", ErrNoContent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, d := range docs {
		n, err := s.ingestDocument(ctx, d.Name, d.Text)
		if err != nil {
			return total, fmt.Errorf("failed to ingest %s: %w", d.Name, err)
		}
		total += n
	}
	return total, nil
}

func (s *Session) ingestDocument(ctx context.Context, name, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: %s extracted to empty text", ErrNoContent, name)
	}

	parts := s.deps.DocChunker.Chunk(text)
	chunks := make([]models.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = models.Chunk{
			Text: part,
			Metadata: models.ChunkMetadata{
				SourceID:   name,
				Title:      name,
				ChunkIndex: i,
				ChunkSize:  len(part),
			},
		}
	}
	if err := s.deps.Store.Upsert(ctx, s.docNamespace(), chunks); err != nil {
		return 0, err
	}

	if !contains(s.docFiles, name) {
		s.docFiles = append(s.docFiles, name)
	}
	s.docChunks += len(chunks)
	s.lastProcessed = time.Now()
	log.Info().Str("session", s.id).Str("file", name).Int("chunks", len(chunks)).Msg("document ingested")
	return len(chunks), nil
}

// Chat answers a query from the session's content. Mode selects the
// namespace; auto prefers documents when any are loaded. Retrieval
// failures degrade to an uncontexted answer; generation failures come
// back as a user-visible message, and neither is recorded in history.
func (s *Session) Chat(ctx context.Context, query, mode string) (*ChatAnswer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolveChatMode(ctx, mode)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return &ChatAnswer{
			Answer: "No content has been analyzed yet. Analyze a website or upload documents first, then ask again.",
			Mode:   ModeAuto,
		}, nil
	}

	namespace := s.webNamespace()
	history := &s.webHistory
	if resolved == ModeDocs {
		namespace = s.docNamespace()
		history = &s.docHistory
	}

	matches, err := s.deps.Store.Search(ctx, namespace, query, s.deps.Chat.ContextChunks)
	if err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			return nil, err
		}
		log.Warn().Err(err).Str("session", s.id).Msg("retrieval degraded, answering without context")
		matches = nil
	}

	answer, err := s.deps.Generator.Generate(ctx, query, *history, matches)
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("answer generation failed")
		return &ChatAnswer{
			Answer: "The answer could not be generated right now. Please try again.",
			Mode:   resolved,
		}, nil
	}

	*history = append(*history,
		models.ChatMessage{Role: models.RoleUser, Content: query},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer},
	)
	*history = trimHistory(*history, s.deps.Chat.MaxHistoryTurns)

	return &ChatAnswer{
		Answer:  answer,
		Sources: sourcesOf(matches),
		Mode:    resolved,
	}, nil
}

// resolveChatMode maps the requested mode to web or docs, or "" when
// the session has no content at all. Caller holds the session mutex.
func (s *Session) resolveChatMode(ctx context.Context, mode string) (string, error) {
	switch mode {
	case ModeWeb, ModeDocs:
		return mode, nil
	case ModeAuto, "":
	default:
		return "", fmt.Errorf("unknown chat mode: %s", mode)
	}

	docCount, err := s.deps.Store.Count(ctx, s.docNamespace())
	if err != nil {
		return "", err
	}
	if docCount > 0 {
		return ModeDocs, nil
	}
	webCount, err := s.deps.Store.Count(ctx, s.webNamespace())
	if err != nil {
		return "", err
	}
	if webCount > 0 {
		return ModeWeb, nil
	}
	return "", nil
}

// History returns a copy of the chat history for the given mode.
func (s *Session) History(mode string) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.webHistory
	if mode == ModeDocs {
		src = s.docHistory
	}
	out := make([]models.ChatMessage, len(src))
	copy(out, src)
	return out
}

// ClearHistory resets both chat histories. Vectors and crawl state are
// untouched, so the session keeps answering from the same content.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webHistory = nil
	s.docHistory = nil
}

// ClearDocuments drops the document namespace and its chat history.
func (s *Session) ClearDocuments(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Store.Clear(ctx, s.docNamespace()); err != nil {
		return err
	}
	s.docFiles = nil
	s.docChunks = 0
	s.docHistory = nil
	s.lastProcessed = time.Time{}
	return nil
}

// Documents reports what has been uploaded so far.
func (s *Session) Documents() DocumentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]string, len(s.docFiles))
	copy(files, s.docFiles)
	return DocumentInfo{Files: files, Chunks: s.docChunks, LastProcessed: s.lastProcessed}
}

// drop removes both namespaces. Used on session deletion; failures are
// logged, not fatal, so a half-broken store cannot wedge the registry.
func (s *Session) drop(ctx context.Context) {
	for _, ns := range []string{s.webNamespace(), s.docNamespace()} {
		if err := s.deps.Store.Drop(ctx, ns); err != nil {
			log.Warn().Err(err).Str("namespace", ns).Msg("failed to drop namespace")
		}
	}
}

// ingest chunks pages and stores them in one batch. Caller holds the
// session mutex.
func (s *Session) ingest(ctx context.Context, namespace string, pages []models.PageRecord, ch *chunker.Chunker) error {
	var chunks []models.Chunk
	for _, page := range pages {
		for i, part := range ch.Chunk(page.Text) {
			chunks = append(chunks, models.Chunk{
				Text: part,
				Metadata: models.ChunkMetadata{
					SourceID:   page.URL,
					Title:      page.Title,
					ChunkIndex: i,
					ChunkSize:  len(part),
					Extra:      map[string]string{"content_hash": page.ContentHash},
				},
			})
		}
	}
	return s.deps.Store.Upsert(ctx, namespace, chunks)
}

// summarize never fails the analyze that requested it. Caller holds
// the session mutex.
func (s *Session) summarize(ctx context.Context, result *models.CrawlResult, source string) string {
	summary, err := s.deps.Generator.Summarize(ctx, result.Pages, llm.SummaryInfo{
		Source:     source,
		TotalPages: len(result.Pages),
		CrawledAt:  result.CrawledAt.Format(time.RFC3339),
	})
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("summary generation failed")
		return "Analysis complete, but the summary could not be generated."
	}
	return summary
}

func changedPages(result *models.CrawlResult) []models.PageRecord {
	if result.SyncDiff == nil {
		return nil
	}
	changed := make(map[string]bool, result.SyncDiff.TotalChanges())
	for _, u := range result.SyncDiff.NewURLs {
		changed[u] = true
	}
	for _, u := range result.SyncDiff.UpdatedURLs {
		changed[u] = true
	}
	var pages []models.PageRecord
	for _, p := range result.Pages {
		if changed[p.URL] {
			pages = append(pages, p)
		}
	}
	return pages
}

func crawlReport(result *models.CrawlResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crawled %d pages", len(result.Pages))
	if result.Seed != "" {
		fmt.Fprintf(&b, " from %s", result.Seed)
	}
	total := result.TotalWords()
	avg := 0
	if len(result.Pages) > 0 {
		avg = total / len(result.Pages)
	}
	fmt.Fprintf(&b, ". Total words: %d, average per page: %d.", total, avg)
	if len(result.FailedURLs) > 0 {
		fmt.Fprintf(&b, " Failed urls: %d.", len(result.FailedURLs))
	}
	if diff := result.SyncDiff.TotalChanges(); diff > 0 {
		fmt.Fprintf(&b, " Changes since last run: %d new, %d updated.",
			len(result.SyncDiff.NewURLs), len(result.SyncDiff.UpdatedURLs))
	}
	return b.String()
}

// trimHistory keeps the newest maxTurns exchanges (two messages each).
func trimHistory(history []models.ChatMessage, maxTurns int) []models.ChatMessage {
	if maxTurns <= 0 {
		return history
	}
	limit := maxTurns * 2
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func sourcesOf(matches []models.SearchMatch) []string {
	var sources []string
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		id := m.Metadata.SourceID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sources = append(sources, id)
	}
	return sources
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
