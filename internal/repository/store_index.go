package repository

import (
	"context"
	"fmt"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
)

// SessionIndex serves similarity search for one session out of the chunk
// store. It satisfies the same search contract as the in-memory index.
type SessionIndex struct {
	store     *ChunkStore
	sessionID string
	length    int
	dim       int
}

// Len returns the number of indexed chunks.
func (ix *SessionIndex) Len() int {
	return ix.length
}

// Search returns the k most relevant chunks for the query vector. The
// nearest-neighbor scan runs in Postgres; MMR re-ranking happens here
// over the fetched candidate pool.
func (ix *SessionIndex) Search(ctx context.Context, query []float32, k int, mode index.Mode) ([]domain.Chunk, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	index.Normalize(q)

	fetch := k
	if mode == index.ModeMMR {
		fetch = index.MMRFetchK
	}

	scored, err := ix.store.nearest(ctx, ix.sessionID, q, fetch)
	if err != nil {
		return nil, err
	}

	if mode == index.ModeMMR {
		vecs := make([][]float32, len(scored))
		for i, s := range scored {
			vecs[i] = s.vector
		}
		picks := index.MMR(q, vecs, k)
		out := make([]domain.Chunk, 0, len(picks))
		for _, p := range picks {
			out = append(out, scored[p].chunk)
		}
		return out, nil
	}

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]domain.Chunk, 0, k)
	for _, s := range scored[:k] {
		out = append(out, s.chunk)
	}
	return out, nil
}

// StoreBuilder builds indexes that are persisted to Postgres, so a
// processed corpus survives a restart. Embedding and validation reuse the
// in-memory builder; only serving goes through the store.
type StoreBuilder struct {
	builder   *index.Builder
	store     *ChunkStore
	sessionID string
}

// NewStoreBuilder creates a builder writing through to the chunk store.
func NewStoreBuilder(embedder index.Embedder, store *ChunkStore, sessionID string) *StoreBuilder {
	return &StoreBuilder{
		builder:   index.NewBuilder(embedder),
		store:     store,
		sessionID: sessionID,
	}
}

// Build embeds the chunks, persists them transactionally, and returns a
// store-backed searcher. A failed write produces no index and leaves any
// previously stored corpus untouched.
func (b *StoreBuilder) Build(ctx context.Context, chunks []domain.Chunk) (index.Searcher, error) {
	mem, err := b.builder.Build(ctx, chunks)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, mem.Len())
	for i := range vectors {
		vectors[i] = mem.VectorAt(i)
	}

	if err := b.store.ReplaceChunks(ctx, b.sessionID, chunks, vectors); err != nil {
		return nil, domain.NewIndexBuildFailure(err)
	}

	return &SessionIndex{
		store:     b.store,
		sessionID: b.sessionID,
		length:    mem.Len(),
		dim:       mem.Dim(),
	}, nil
}
