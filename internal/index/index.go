// Package index builds and searches the per-session embedding index.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dirchat/dirchat/internal/domain"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeSimilarity ranks purely by cosine similarity.
	ModeSimilarity Mode = "similarity"
	// ModeMMR re-ranks by max marginal relevance, trading relevance
	// against diversity among the returned chunks.
	ModeMMR Mode = "mmr"
)

const (
	// mmrLambda weights relevance vs. diversity in MMR scoring.
	mmrLambda = 0.5
	// MMRFetchK is the candidate pool size MMR re-ranks from.
	MMRFetchK = 20
)

// Embedder turns texts into embedding vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the read contract both the in-memory index and the
// Postgres-backed store satisfy.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, mode Mode) ([]domain.Chunk, error)
	Len() int
}

// Builder embeds chunks and produces immutable indexes. A build either
// fully succeeds or returns an error; no partial index is ever produced.
type Builder struct {
	embedder  Embedder
	batchSize int
}

// NewBuilder creates a builder embedding batchSize chunks per request.
func NewBuilder(embedder Embedder) *Builder {
	return &Builder{embedder: embedder, batchSize: 64}
}

// Build embeds every chunk and returns a searchable index. Chunks keep
// their input order regardless of batching.
func (b *Builder) Build(ctx context.Context, chunks []domain.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, domain.NewIndexBuildFailure(fmt.Errorf("no chunks to index"))
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		batch, err := b.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, domain.NewEmbeddingFailure(err)
		}
		if len(batch) != len(texts) {
			return nil, domain.NewIndexBuildFailure(
				fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(batch)))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, domain.NewIndexBuildFailure(
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim))
		}
		Normalize(v)
	}

	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)

	return &Index{chunks: stored, vectors: vectors, dim: dim}, nil
}

// Index is an in-memory embedding index. It is read-only after Build and
// safe for concurrent searches.
type Index struct {
	chunks  []domain.Chunk
	vectors [][]float32
	dim     int
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Dim returns the embedding dimension.
func (ix *Index) Dim() int {
	return ix.dim
}

// VectorAt returns the normalized embedding of the i-th chunk.
func (ix *Index) VectorAt(i int) []float32 {
	return ix.vectors[i]
}

// ChunkAt returns the i-th indexed chunk.
func (ix *Index) ChunkAt(i int) domain.Chunk {
	return ix.chunks[i]
}

// Search returns the k most relevant chunks for the query vector, most
// relevant first. Results are deterministic for a fixed index and query;
// ties keep insertion order.
func (ix *Index) Search(_ context.Context, query []float32, k int, mode Mode) ([]domain.Chunk, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	Normalize(q)

	switch mode {
	case ModeMMR:
		order := ix.mmr(q, k)
		return ix.collect(order), nil
	default:
		order := topIndexes(ix.vectors, q, k)
		return ix.collect(order), nil
	}
}

func (ix *Index) collect(order []int) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(order))
	for _, i := range order {
		out = append(out, ix.chunks[i])
	}
	return out
}

// mmr selects k chunks from the fetchK nearest candidates.
func (ix *Index) mmr(query []float32, k int) []int {
	candidates := topIndexes(ix.vectors, query, MMRFetchK)

	vecs := make([][]float32, len(candidates))
	for i, c := range candidates {
		vecs[i] = ix.vectors[c]
	}

	picks := MMR(query, vecs, k)
	out := make([]int, len(picks))
	for i, p := range picks {
		out[i] = candidates[p]
	}
	return out
}

// MMR greedily selects k of the candidate vectors, maximizing
// lambda*relevance - (1-lambda)*redundancy against what is already
// selected. Vectors must be normalized. The returned values are positions
// into candidates.
func MMR(query []float32, candidates [][]float32, k int) []int {
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float32, len(candidates))
	for i, v := range candidates {
		relevance[i] = Dot(v, query)
	}

	selected := make([]int, 0, k)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos := 0
		bestScore := float32(math.Inf(-1))
		for pos, cand := range remaining {
			score := mmrLambda * relevance[cand]
			if len(selected) > 0 {
				redundancy := float32(math.Inf(-1))
				for _, s := range selected {
					if sim := Dot(candidates[cand], candidates[s]); sim > redundancy {
						redundancy = sim
					}
				}
				score -= (1 - mmrLambda) * redundancy
			}
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}

// topIndexes returns the indexes of the k vectors with the highest dot
// product against the query, ties broken by insertion order.
func topIndexes(vectors [][]float32, query []float32, k int) []int {
	type scored struct {
		idx   int
		score float32
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{idx: i, score: Dot(v, query)}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].score > all[b].score
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].idx
	}
	return out
}

// Dot computes the dot product of two vectors; on normalized vectors this
// equals cosine similarity.
func Dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize scales v to unit length in place. Zero vectors are left as-is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
