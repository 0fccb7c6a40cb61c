package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/pkg/llm"
)

func TestFlattenEmbeddings(t *testing.T) {
	embedder, err := llm.NewEmbedderWithEndpoint(llm.Endpoint{
		Prefix:     "EMBEDDING",
		BaseURL:    "https://api.openai.com/v1",
		Deployment: "text-embedding-3-small",
		APIKey:     "test-key",
	})
	require.NoError(t, err)

	flat := embedder.FlattenEmbeddings([][]float32{{0.1, 0.2}, {0.3}})
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, flat)

	assert.Empty(t, embedder.FlattenEmbeddings(nil))
	assert.Empty(t, embedder.FlattenEmbeddings([][]float32{{}}))
}
