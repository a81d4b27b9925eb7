package llm

import (
	"context"
	"fmt"

	"domain-intel/internal/models"
)

// Stub is a canned Generator for tests. It records the inputs of the
// last call so tests can assert on what the orchestrator passed in.
type Stub struct {
	Fail error

	LastQuery   string
	LastHistory []models.ChatMessage
	LastChunks  []models.SearchMatch
}

func (s *Stub) Generate(ctx context.Context, query string, history []models.ChatMessage, chunks []models.SearchMatch) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	s.LastQuery = query
	s.LastHistory = history
	s.LastChunks = chunks
	return fmt.Sprintf("answer to: %s (context: %d chunks)", query, len(chunks)), nil
}

func (s *Stub) Summarize(ctx context.Context, pages []models.PageRecord, info SummaryInfo) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	return fmt.Sprintf("summary of %d pages from %s", len(pages), info.Source), nil
}
