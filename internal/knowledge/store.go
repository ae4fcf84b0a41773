// Package knowledge implements the curated cybersecurity knowledge base:
// document chunks embedded with Gemini and stored in PostgreSQL with
// pgvector for similarity search.
package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bytesec/byte/internal/log"
)

// VectorDimension is the width of the embedding column. It must match the
// embedder's output dimensionality.
const VectorDimension = 768

// Embedder turns text into a vector. *gemini.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	insertDocumentSQL = `
		INSERT INTO kb_documents (source, content, embedding)
		VALUES ($1, $2, $3)`

	searchDocumentsSQL = `
		SELECT content
		FROM kb_documents
		ORDER BY embedding <=> $1
		LIMIT $2`

	countDocumentsSQL = `
		SELECT count(*) FROM kb_documents`
)

// Store persists and searches knowledge-base chunks.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   log.Logger
}

// NewStore creates a knowledge store.
func NewStore(pool *pgxpool.Pool, embedder Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}
}

// Add embeds one chunk and stores it.
func (s *Store) Add(ctx context.Context, source, content string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	if len(vec) != VectorDimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), VectorDimension)
	}

	_, err = s.pool.Exec(ctx, insertDocumentSQL, source, content, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Search returns the topK chunks nearest to the query by cosine distance.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 4
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, searchDocumentsSQL, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var passages []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		passages = append(passages, content)
	}
	return passages, rows.Err()
}

// Ingest chunks a document and stores every chunk. It returns the number of
// chunks written.
func (s *Store) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := chunkText(text, defaultChunkSize, defaultChunkOverlap)
	for i, chunk := range chunks {
		if err := s.Add(ctx, source, chunk); err != nil {
			return i, fmt.Errorf("chunk %d of %q: %w", i, source, err)
		}
	}

	s.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// Count returns how many chunks the knowledge base holds.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countDocumentsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
