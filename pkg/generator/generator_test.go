package generator_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/generator"
	"github.com/zavalabs/raft/pkg/index"
)

// fakeTeacher scripts responses per prompt kind. Question prompts mention
// "Generate exactly", answer prompts mention "Context:".
type fakeTeacher struct {
	mu        sync.Mutex
	calls     int
	questions func(chunk string) string
	answers   func(question string) string
	failures  int
}

func (f *fakeTeacher) Complete(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.failures > 0 {
		f.failures--
		return "", fmt.Errorf("upstream overloaded")
	}

	if strings.Contains(user, "Generate exactly") {
		return f.questions(user), nil
	}
	question := user[strings.LastIndex(user, "Question: ")+len("Question: "):]
	return f.answers(question), nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			DocumentID: "doc",
			Index:      i,
			Content:    fmt.Sprintf("Product %d is rated for four seasons and weighs %d kilograms.", i, i+1),
		}
	}
	return chunks
}

func distinctQuestions(user string) string {
	// Derive questions from the product number embedded in the passage.
	var id int
	fmt.Sscanf(user[strings.Index(user, "Product "):], "Product %d", &id)
	return fmt.Sprintf("What is product %d rated for?\nHow much does product %d weigh?", id, id)
}

func TestGenerateProducesExamplesWithDistractors(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(q string) string { return "The context says so. Answer: four seasons." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Distractors:       2,
		Workers:           3,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(5))
	require.NoError(t, err)

	assert.Len(t, examples, 10)
	assert.Equal(t, 10, report.Accepted)
	assert.Zero(t, report.SkippedChunks)
	assert.Zero(t, report.Shortfall)

	for _, example := range examples {
		assert.NotEmpty(t, example.ID)
		assert.NotEmpty(t, example.OracleContext)
		assert.Contains(t, example.Answer, "Answer:")
		require.Len(t, example.Distractors, 2)
		for _, id := range example.DistractorIDs {
			assert.NotEqual(t, example.OracleID, id, "oracle must never appear as a distractor")
		}
	}
}

func TestGenerateDeduplicatesQuestionsAcrossChunks(t *testing.T) {
	// Every chunk yields the same question, in different case and spacing.
	// Within-chunk dedupe leaves one per chunk; the barrier keeps one total.
	teacher := &fakeTeacher{
		questions: func(string) string { return "WHAT IS THE  WARRANTY?\nwhat is the warranty?" },
		answers:   func(string) string { return "Answer: two years." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Workers:           2,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(3))
	require.NoError(t, err)

	assert.Len(t, examples, 1)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 5, report.Shortfall)
}

func TestGenerateRetriesThenSkips(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(string) string { return "Answer: fine." },
		failures:  3, // enough to exhaust all attempts for the first chunk
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Workers:           1,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(3))
	require.NoError(t, err)

	assert.Equal(t, 1, report.SkippedChunks)
	assert.Len(t, report.Warnings, 1)
	assert.Len(t, examples, 4)
	assert.Equal(t, 2, report.Shortfall)
}

func TestGenerateRetriesShortBatches(t *testing.T) {
	// The teacher never produces the requested two questions, so every
	// attempt is rejected and the shortfall is accepted only after the last.
	var questionCalls int
	var mu sync.Mutex
	teacher := &fakeTeacher{
		questions: func(string) string {
			mu.Lock()
			questionCalls++
			mu.Unlock()
			return "What is the rating?"
		},
		answers: func(string) string { return "Answer: four seasons." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Workers:           1,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(1))
	require.NoError(t, err)

	assert.Equal(t, 3, questionCalls, "a short batch must be regenerated until attempts run out")
	assert.Len(t, examples, 1)
	assert.Equal(t, 1, report.Shortfall)
}

func TestGenerateRetriesDuplicateBatches(t *testing.T) {
	// First attempt returns the same question twice; the retry succeeds.
	var questionCalls int
	var mu sync.Mutex
	teacher := &fakeTeacher{
		questions: func(user string) string {
			mu.Lock()
			questionCalls++
			calls := questionCalls
			mu.Unlock()
			if calls == 1 {
				return "What is the rating?\nWhat is  the rating?"
			}
			return distinctQuestions(user)
		},
		answers: func(string) string { return "Answer: ok." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Workers:           1,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(1))
	require.NoError(t, err)

	assert.Equal(t, 2, questionCalls)
	assert.Len(t, examples, 2)
	assert.Zero(t, report.Shortfall)
}

func TestGenerateHonorsThreshold(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(string) string { return "Answer: ok." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		QAThreshold:       3,
		Workers:           2,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	examples, report, err := g.Generate(context.Background(), testChunks(5))
	require.NoError(t, err)
	assert.Len(t, examples, 3)
	assert.Equal(t, 3, report.Accepted)
	assert.Zero(t, report.Shortfall)
}

func TestGenerateSemanticSampling(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(string) string { return "Answer: yes." },
	}
	g, err := generator.New(teacher, fakeEmbedder{}, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Distractors:       1,
		Workers:           2,
		RateLimit:         1000,
		Sampling:          generator.SamplingSemantic,
	})
	require.NoError(t, err)

	examples, _, err := g.Generate(context.Background(), testChunks(4))
	require.NoError(t, err)
	for _, example := range examples {
		require.Len(t, example.DistractorIDs, 1)
		assert.NotEqual(t, example.OracleID, example.DistractorIDs[0])
	}
}

func TestGenerateSemanticRequiresEmbedder(t *testing.T) {
	teacher := &fakeTeacher{}
	_, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		Sampling: generator.SamplingSemantic,
	})
	assert.Error(t, err)
}

func TestGenerateCancelledStopsDispatch(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(string) string { return "Answer: yes." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{
		QuestionsPerChunk: 2,
		Workers:           1,
		RateLimit:         1000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	examples, _, err := g.Generate(ctx, testChunks(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, examples, "nothing dispatched after cancellation")
}

func TestGenerateNoChunks(t *testing.T) {
	teacher := &fakeTeacher{
		questions: distinctQuestions,
		answers:   func(string) string { return "Answer: ok." },
	}
	g, err := generator.New(teacher, nil, index.NewMemoryIndex(1), generator.GeneratorConfig{})
	require.NoError(t, err)

	_, _, err = g.Generate(context.Background(), nil)
	assert.Error(t, err)
}
