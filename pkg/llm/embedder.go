package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zavalabs/raft/internal/models"
)

// Embedder wraps the embedding deployment.
type Embedder struct {
	endpoint Endpoint
	llm      *openai.LLM
}

// NewEmbedder builds an Embedder from the embedding role's environment.
func NewEmbedder(getenv Getenv) (*Embedder, error) {
	endpoint, err := RoleEndpoint(models.RoleEmbedding, getenv)
	if err != nil {
		return nil, err
	}
	return NewEmbedderWithEndpoint(endpoint)
}

// NewEmbedderWithEndpoint builds an Embedder against an explicit endpoint.
func NewEmbedderWithEndpoint(endpoint Endpoint) (*Embedder, error) {
	llm, err := openai.New(endpoint.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder for %s: %w", endpoint.Prefix, err)
	}
	return &Embedder{endpoint: endpoint, llm: llm}, nil
}

// CreateEmbedding embeds each text, one vector per input.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return embeddings, nil
}

// FlattenEmbeddings concatenates a batch into a single vector, used when a
// single query string was embedded.
func (e *Embedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}
