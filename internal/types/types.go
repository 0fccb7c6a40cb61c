package types

import (
	"context"

	"github.com/zavalabs/raft/internal/models"
)

// ChatModel is the single capability every completion-style role exposes,
// regardless of whether the deployment speaks the native or the gateway API.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EmbeddingModel turns texts into vectors for semantic distractor sampling.
type EmbeddingModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkIndex holds corpus chunks and answers nearest-neighbor queries used to
// pick distractors. Implementations must never return the excluded chunk.
type ChunkIndex interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Neighbors(ctx context.Context, embedding []float32, limit int, excludeID string) ([]models.Chunk, error)
	Random(n int, excludeID string) []models.Chunk
	Len() int
}

// Loader produces knowledge documents from some corpus source.
type Loader interface {
	Load(ctx context.Context) ([]models.Document, error)
}
