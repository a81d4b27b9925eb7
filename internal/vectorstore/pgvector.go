package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"domain-intel/internal/config"
	"domain-intel/internal/embedding"
	"domain-intel/internal/models"
)

const pgVectorSize = 768

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	Namespace  string    `bun:"namespace,pk"`
	ID         string    `bun:"id,pk"`
	Content    string    `bun:"content,notnull"`
	Embedding  []float32 `bun:"embedding,notnull,type:vector(768)"`
	SourceID   string    `bun:"source_id,notnull"`
	Title      string    `bun:"title"`
	ChunkIndex int       `bun:"chunk_index,notnull"`
	ChunkSize  int       `bun:"chunk_size"`
}

// PgStore is the Postgres/pgvector backend. Namespaces share one table
// and are isolated by the namespace column of the composite key.
type PgStore struct {
	db       *bun.DB
	embedder embedding.Embedder
}

func NewPgStore(cfg config.VectorStoreConfig, embedder embedding.Embedder) (*PgStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize chunks table: %w", err)
	}
	return &PgStore{db: db, embedder: embedder}, nil
}

func (s *PgStore) Upsert(ctx context.Context, namespace string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]chunkRow, len(chunks))
	for i, chunk := range chunks {
		rows[i] = chunkRow{
			Namespace:  namespace,
			ID:         ChunkID(chunk.Metadata.SourceID, chunk.Metadata.ChunkIndex),
			Content:    chunk.Text,
			Embedding:  vectors[i],
			SourceID:   chunk.Metadata.SourceID,
			Title:      chunk.Metadata.Title,
			ChunkIndex: chunk.Metadata.ChunkIndex,
			ChunkSize:  chunk.Metadata.ChunkSize,
		}
	}

	_, err = s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (namespace, id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Set("title = EXCLUDED.title").
		Set("chunk_size = EXCLUDED.chunk_size").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

func (s *PgStore) Search(ctx context.Context, namespace, query string, k int) ([]models.SearchMatch, error) {
	count, err := s.Count(ctx, namespace)
	if err != nil {
		return nil, err
	}
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

	var rows []chunkRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("namespace = ?", namespace).
		OrderExpr("embedding <-> ?", queryVec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.SearchMatch, len(rows))
	for i, row := range rows {
		matches[i] = models.SearchMatch{
			Text: row.Content,
			Metadata: models.ChunkMetadata{
				SourceID:   row.SourceID,
				Title:      row.Title,
				ChunkIndex: row.ChunkIndex,
				ChunkSize:  row.ChunkSize,
			},
		}
	}
	return matches, nil
}

func (s *PgStore) Count(ctx context.Context, namespace string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*chunkRow)(nil)).
		Where("namespace = ?", namespace).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *PgStore) Clear(ctx context.Context, namespace string) error {
	_, err := s.db.NewDelete().
		Model((*chunkRow)(nil)).
		Where("namespace = ?", namespace).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", namespace, err)
	}
	return nil
}

// Drop is identical to Clear for the relational backend: deleting the
// namespace's rows removes every trace of it.
func (s *PgStore) Drop(ctx context.Context, namespace string) error {
	return s.Clear(ctx, namespace)
}

// Close releases the database connection pool.
func (s *PgStore) Close() error {
	return s.db.Close()
}
