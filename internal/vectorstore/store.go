package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"domain-intel/internal/config"
	"domain-intel/internal/embedding"
	"domain-intel/internal/models"
)

// Store is an embedding-backed chunk store partitioned into isolated
// namespaces (one per session pipeline). Implementations persist
// namespaces under deterministic names so a restarted process can
// reattach to existing data.
type Store interface {
	// Upsert embeds and stores chunks in the namespace. No-op on empty
	// input. Chunk IDs are deterministic, so re-processing the same
	// source overwrites in place instead of duplicating.
	Upsert(ctx context.Context, namespace string, chunks []models.Chunk) error

	// Search returns up to min(k, Count) nearest chunks. An empty
	// namespace or k <= 0 yields an empty result, not an error.
	Search(ctx context.Context, namespace, query string, k int) ([]models.SearchMatch, error)

	Count(ctx context.Context, namespace string) (int, error)

	// Clear drops and recreates the namespace, losing all vectors.
	Clear(ctx context.Context, namespace string) error

	// Drop removes the namespace entirely, for session teardown.
	// Dropping a namespace that does not exist is not an error.
	Drop(ctx context.Context, namespace string) error
}

// ChunkID builds the deterministic record id for one logical chunk.
// Position-stable: the same source and index always map to the same id.
func ChunkID(sourceID string, index int) string {
	sum := sha256.Sum256([]byte(sourceID + ":" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:])
}

// New selects a store backend from config.
func New(cfg config.VectorStoreConfig, embedder embedding.Embedder) (Store, error) {
	switch cfg.Backend {
	case "chromem":
		return NewChromemStore(cfg.Path, embedder)
	case "pgvector":
		return NewPgStore(cfg, embedder)
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s", cfg.Backend)
	}
}

// Metadata keys used by the flat per-record encoding.
const (
	metaSourceID   = "source_id"
	metaTitle      = "title"
	metaChunkIndex = "chunk_index"
	metaChunkSize  = "chunk_size"
)

func encodeMetadata(m models.ChunkMetadata) map[string]string {
	out := map[string]string{
		metaSourceID:   m.SourceID,
		metaTitle:      m.Title,
		metaChunkIndex: strconv.Itoa(m.ChunkIndex),
		metaChunkSize:  strconv.Itoa(m.ChunkSize),
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}

func decodeMetadata(m map[string]string) models.ChunkMetadata {
	out := models.ChunkMetadata{
		SourceID: m[metaSourceID],
		Title:    m[metaTitle],
	}
	out.ChunkIndex, _ = strconv.Atoi(m[metaChunkIndex])
	out.ChunkSize, _ = strconv.Atoi(m[metaChunkSize])
	for k, v := range m {
		switch k {
		case metaSourceID, metaTitle, metaChunkIndex, metaChunkSize:
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]string)
			}
			out.Extra[k] = v
		}
	}
	return out
}
