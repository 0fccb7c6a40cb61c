// Package index stores corpus chunks for distractor sampling, either in
// process memory or in a pgvector-backed table.
package index

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/zavalabs/raft/internal/models"
)

// MemoryIndex keeps chunks and their embeddings in memory and answers
// nearest-neighbor queries by brute-force cosine distance. It is the default
// backend; the pgvector store is only needed for corpora that outgrow RAM.
type MemoryIndex struct {
	chunks []models.Chunk
	rng    *rand.Rand
}

func NewMemoryIndex(seed int64) *MemoryIndex {
	return &MemoryIndex{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (m *MemoryIndex) Add(_ context.Context, chunks []models.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *MemoryIndex) Len() int {
	return len(m.chunks)
}

// Neighbors returns the limit chunks closest to the query embedding,
// excluding the chunk identified by excludeID.
func (m *MemoryIndex) Neighbors(_ context.Context, embedding []float32, limit int, excludeID string) ([]models.Chunk, error) {
	type scored struct {
		chunk models.Chunk
		sim   float64
	}

	var candidates []scored
	for _, chunk := range m.chunks {
		if chunk.ID == excludeID || len(chunk.Embedding) == 0 {
			continue
		}
		sim, err := cosineSimilarity(embedding, chunk.Embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{chunk: chunk, sim: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	result := make([]models.Chunk, 0, limit)
	for _, c := range candidates[:limit] {
		result = append(result, c.chunk)
	}
	return result, nil
}

// Random returns up to n distinct chunks drawn uniformly, excluding the chunk
// identified by excludeID.
func (m *MemoryIndex) Random(n int, excludeID string) []models.Chunk {
	var pool []models.Chunk
	for _, chunk := range m.chunks {
		if chunk.ID != excludeID {
			pool = append(pool, chunk)
		}
	}

	m.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
