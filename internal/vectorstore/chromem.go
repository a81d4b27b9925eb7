package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"domain-intel/internal/embedding"
	"domain-intel/internal/models"
)

const compress = false

// ChromemStore keeps one persistent chromem-go collection per
// namespace. Collections survive restarts; opening the same path
// reattaches to existing data.
type ChromemStore struct {
	db       *chromem.DB
	embedder embedding.Embedder

	mu sync.Mutex
}

func NewChromemStore(path string, embedder embedding.Embedder) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	return &ChromemStore{db: db, embedder: embedder}, nil
}

// collection returns the namespace's collection, creating it on first
// use. The embedding func is never used by chromem here: all vectors
// are computed up front so one embedder serves every backend the same
// way.
func (s *ChromemStore) collection(namespace string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.db.GetOrCreateCollection(namespace, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection %s: %w", namespace, err)
	}
	return c, nil
}

func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding is precomputed; no embedding func available")
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	c, err := s.collection(namespace)
	if err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        ChunkID(chunk.Metadata.SourceID, chunk.Metadata.ChunkIndex),
			Content:   chunk.Text,
			Metadata:  encodeMetadata(chunk.Metadata),
			Embedding: vectors[i],
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("namespace", namespace).Int("chunks", len(docs)).Msg("upserted chunks")
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, namespace, query string, k int) ([]models.SearchMatch, error) {
	c, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	count := c.Count()
	if k > count {
		k = count
	}
	if k <= 0 {
		return []models.SearchMatch{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := c.QueryEmbedding(ctx, queryVec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.SearchMatch, len(results))
	for i, r := range results {
		matches[i] = models.SearchMatch{
			Text:     r.Content,
			Metadata: decodeMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}
	return matches, nil
}

func (s *ChromemStore) Count(ctx context.Context, namespace string) (int, error) {
	c, err := s.collection(namespace)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (s *ChromemStore) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", namespace, err)
	}
	if _, err := s.db.GetOrCreateCollection(namespace, nil, noEmbed); err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", namespace, err)
	}
	log.Info().Str("namespace", namespace).Msg("cleared collection")
	return nil
}

func (s *ChromemStore) Drop(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", namespace, err)
	}
	return nil
}
