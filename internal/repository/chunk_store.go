// Package repository persists session chunk embeddings in Postgres with
// pgvector, giving processed corpora durability across restarts.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkStore handles persistence of per-session chunk embeddings.
type ChunkStore struct {
	pool *pgxpool.Pool
}

func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// ReplaceChunks swaps a session's stored chunks for the given set in one
// transaction, so a failed write leaves the previous corpus intact.
func (r *ChunkStore) ReplaceChunks(ctx context.Context, sessionID string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_chunks WHERE session_id = $1`, sessionID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO session_chunks
				(session_id, chunk_index, source, page, content, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7)`,
			sessionID,
			i,
			c.Source,
			c.Page,
			c.Content,
			pgvector.NewVector(vectors[i]),
			now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Count returns the number of chunks stored for a session.
func (r *ChunkStore) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_chunks WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// DeleteSession removes every chunk stored for a session.
func (r *ChunkStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM session_chunks WHERE session_id = $1`, sessionID)
	return err
}

// scoredChunk is one nearest-neighbor row with its embedding.
type scoredChunk struct {
	chunk  domain.Chunk
	vector []float32
}

// nearest returns the limit chunks closest to the query by cosine
// distance, nearest first, embeddings included for re-ranking.
func (r *ChunkStore) nearest(ctx context.Context, sessionID string, query []float32, limit int) ([]scoredChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT source, page, content, embedding
		 FROM session_chunks
		 WHERE session_id = $1
		 ORDER BY embedding <=> $2, chunk_index
		 LIMIT $3`,
		sessionID, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoredChunk
	for rows.Next() {
		var (
			c   domain.Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.Source, &c.Page, &c.Content, &vec); err != nil {
			return nil, err
		}
		out = append(out, scoredChunk{chunk: c, vector: vec.Slice()})
	}
	return out, rows.Err()
}
