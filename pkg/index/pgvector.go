package index

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/zavalabs/raft/internal/models"
)

type VectorIndexConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorIndex persists chunks and their embeddings in a pgvector table so
// large corpora can be indexed once and sampled across runs.
type VectorIndex struct {
	config VectorIndexConfig
	pool   *pgxpool.Pool
	count  int
}

func NewVectorIndex(ctx context.Context, config VectorIndexConfig) (*VectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vi := &VectorIndex{
		config: config,
		pool:   pool,
	}

	if err := vi.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vi, nil
}

func (vi *VectorIndex) initialize(ctx context.Context) error {
	_, err := vi.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, vi.config.TableName, vi.config.VectorDim)

	_, err = vi.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vi.config.TableName, vi.config.TableName)

	_, err = vi.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

func (vi *VectorIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	tx, err := vi.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vi.config.TableName)

	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.DocumentID,
			chunk.Index,
			sanitizeUTF8(chunk.Content),
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	vi.count += len(chunks)
	return nil
}

func (vi *VectorIndex) Len() int {
	return vi.count
}

func (vi *VectorIndex) Neighbors(ctx context.Context, embedding []float32, limit int, excludeID string) ([]models.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content
		FROM %s
		WHERE id <> $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		vi.config.TableName)

	rows, err := vi.pool.Query(ctx, query, excludeID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %v", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (vi *VectorIndex) Random(n int, excludeID string) []models.Chunk {
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content
		FROM %s
		WHERE id <> $1
		ORDER BY random()
		LIMIT $2`,
		vi.config.TableName)

	rows, err := vi.pool.Query(context.Background(), query, excludeID, n)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content); err != nil {
			return nil
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (vi *VectorIndex) Close() {
	if vi.pool != nil {
		vi.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
