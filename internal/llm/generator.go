package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"domain-intel/internal/config"
	"domain-intel/internal/models"
)

// ErrGeneration marks answer-provider failures. The orchestrator turns
// these into a user-visible failure message; the session stays usable.
var ErrGeneration = errors.New("answer generation failed")

// SummaryInfo is the crawl metadata handed to Summarize.
type SummaryInfo struct {
	Source     string
	TotalPages int
	CrawledAt  string
}

// Generator produces natural-language answers from a query and
// retrieved context. Prompt wording is intentionally minimal; it is a
// capability boundary, not a product surface.
type Generator interface {
	Generate(ctx context.Context, query string, history []models.ChatMessage, chunks []models.SearchMatch) (string, error)
	Summarize(ctx context.Context, pages []models.PageRecord, info SummaryInfo) (string, error)
}

// Service calls an OpenAI-compatible or ollama chat endpoint via
// langchaingo. The client is built lazily, once, under lock.
type Service struct {
	cfg config.LLMConfig

	mu   sync.Mutex
	impl llms.Model
}

func NewService(cfg config.LLMConfig) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) client() (llms.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.impl != nil {
		return s.impl, nil
	}

	log.Info().Str("provider", s.cfg.Provider).Str("model", s.cfg.Model).Msg("initializing llm client")

	var impl llms.Model
	var err error
	switch s.cfg.Provider {
	case "ollama":
		impl, err = ollama.New(
			ollama.WithServerURL(s.cfg.BaseURL),
			ollama.WithModel(s.cfg.Model),
		)
	case "openai":
		impl, err = openai.New(
			openai.WithBaseURL(s.cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(s.cfg.Key, "Bearer ")),
			openai.WithModel(s.cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", s.cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	s.impl = impl
	return impl, nil
}

const chatSystemPrompt = "You are a website and document analysis assistant. " +
	"Answer strictly from the provided context. Cite the source URLs or file names you used. " +
	"If the context does not cover the question, say what the closest relevant information is."

const summarySystemPrompt = "You are a business intelligence analyst. " +
	"Produce a short plain-text report of the analyzed content: a two to three sentence summary, " +
	"the key themes, and the primary subject of the site or documents."

func (s *Service) Generate(ctx context.Context, query string, history []models.ChatMessage, chunks []models.SearchMatch) (string, error) {
	impl, err := s.client()
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, chatSystemPrompt),
	}
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
		contextText(chunks)+"\n\nQUESTION: "+query))

	resp, err := impl.GenerateContent(ctx, messages, llms.WithMaxTokens(800), llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}

func (s *Service) Summarize(ctx context.Context, pages []models.PageRecord, info SummaryInfo) (string, error) {
	impl, err := s.client()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CONTENT:\n")
	limit := len(pages)
	if limit > 10 {
		limit = 10
	}
	for i, p := range pages[:limit] {
		b.WriteString(fmt.Sprintf("\nSource [%d]: %s\nTitle: %s\nContent: %s\n", i+1, p.URL, p.Title, clip(p.Text, 800)))
	}
	b.WriteString(fmt.Sprintf("\nINFO:\n- Source: %s\n- Pages: %d\n- Date: %s\n", info.Source, info.TotalPages, info.CrawledAt))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, b.String()+"\nPlease generate the initial analysis report."),
	}

	resp, err := impl.GenerateContent(ctx, messages, llms.WithMaxTokens(1200), llms.WithTemperature(0.6))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}

func contextText(chunks []models.SearchMatch) string {
	if len(chunks) == 0 {
		return "CONTEXT: none available. Answer from general knowledge and say the analyzed content had no relevant information."
	}
	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	for i, c := range chunks {
		source := c.Metadata.SourceID
		if source == "" {
			source = "unknown source"
		}
		b.WriteString(fmt.Sprintf("\nSource [%d]: %s\nContent: %s\n", i+1, source, clip(c.Text, 800)))
	}
	return b.String()
}

// clip caps s at n characters on a rune boundary.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	end := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return s[:end] + "..."
}
