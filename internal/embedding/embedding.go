package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"domain-intel/internal/config"
)

// ErrUnavailable marks embedding failures that callers should treat as
// retrieval degradation, not a session-fatal error.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder converts text into fixed-length vectors. Deterministic for
// identical input text and model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service is the process-wide embedder. The underlying model client is
// built lazily on first use, once, under lock; after that it is safe
// for concurrent use across sessions.
type Service struct {
	cfg config.LLMConfig

	mu   sync.Mutex
	impl *embeddings.EmbedderImpl
}

func NewService(cfg config.LLMConfig) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) client() (*embeddings.EmbedderImpl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.impl != nil {
		return s.impl, nil
	}

	log.Info().Str("provider", s.cfg.Provider).Str("model", s.cfg.Model).Msg("initializing embedder")

	var client embeddings.EmbedderClient
	var err error
	switch s.cfg.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(s.cfg.BaseURL),
			ollama.WithModel(s.cfg.Model),
		)
	case "openai":
		client, err = openai.New(
			openai.WithBaseURL(s.cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(s.cfg.Key, "Bearer ")),
			openai.WithModel(s.cfg.Model),
			openai.WithEmbeddingModel(s.cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", s.cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.impl = impl
	return impl, nil
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	impl, err := s.client()
	if err != nil {
		return nil, err
	}
	vec, err := impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vec, nil
}

func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	impl, err := s.client()
	if err != nil {
		return nil, err
	}
	vecs, err := impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vecs, nil
}
