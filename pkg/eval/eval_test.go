package eval_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/eval"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies func(user string) (string, error)
	calls   int
}

func (m *scriptedModel) Complete(_ context.Context, _, user string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.replies(user)
}

func evalExamples(n int) []models.SyntheticExample {
	examples := make([]models.SyntheticExample, n)
	for i := range examples {
		examples[i] = models.SyntheticExample{
			ID:            fmt.Sprintf("ex-%d", i),
			Question:      fmt.Sprintf("What is spec %d?", i),
			OracleContext: fmt.Sprintf("Spec %d is waterproof.", i),
			Distractors:   []string{"Unrelated text."},
			Answer:        fmt.Sprintf("Answer: spec %d is waterproof.", i),
		}
	}
	return examples
}

func TestCollectAnswersIncludesAllContexts(t *testing.T) {
	model := &scriptedModel{replies: func(user string) (string, error) {
		if !strings.Contains(user, "<DOCUMENT>") {
			return "", fmt.Errorf("missing documents")
		}
		return "Answer: waterproof.", nil
	}}

	e := eval.New(eval.EvalConfig{Workers: 3, RateLimit: 1000})
	answers, err := e.CollectAnswers(context.Background(), model, "student", evalExamples(6))
	require.NoError(t, err)
	require.Len(t, answers, 6)

	for _, answer := range answers {
		assert.NoError(t, answer.Err)
		assert.Equal(t, "student", answer.Model)
		assert.Equal(t, "Answer: waterproof.", answer.Text)
	}
	assert.Equal(t, 6, model.calls)
}

func TestCollectAnswersRecordsFailures(t *testing.T) {
	var n int
	var mu sync.Mutex
	model := &scriptedModel{replies: func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n == 2 {
			return "", fmt.Errorf("rate limited")
		}
		return "Answer: ok.", nil
	}}

	e := eval.New(eval.EvalConfig{Workers: 1, RateLimit: 1000})
	answers, err := e.CollectAnswers(context.Background(), model, "baseline", evalExamples(3))
	require.NoError(t, err, "one bad answer must not abort collection")

	var failed int
	for _, answer := range answers {
		if answer.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestCollectAnswersCancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &scriptedModel{replies: func(string) (string, error) {
		cancel() // the in-flight question still completes
		return "Answer: ok.", nil
	}}

	e := eval.New(eval.EvalConfig{Workers: 1, RateLimit: 1000})
	answers, err := e.CollectAnswers(ctx, model, "student", evalExamples(5))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, answers, "completed answers survive cancellation")
	assert.Less(t, len(answers), 5, "cancellation stops dispatching new questions")
	for _, answer := range answers {
		assert.NoError(t, answer.Err)
		assert.Equal(t, "Answer: ok.", answer.Text)
	}
}

func TestScoreCancelledKeepsCompletedVerdicts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	judge := &scriptedModel{replies: func(string) (string, error) {
		cancel() // the in-flight verdict still completes
		return `{"correctness": 4, "precision": 4}`, nil
	}}

	examples := evalExamples(4)
	answers := make([]eval.Answer, len(examples))
	for i := range answers {
		answers[i] = eval.Answer{ExampleID: fmt.Sprintf("ex-%d", i), Model: "student", Text: "a"}
	}

	e := eval.New(eval.EvalConfig{Workers: 1, RateLimit: 1000})
	results, err := e.Score(ctx, judge, examples, answers)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, results, "completed verdicts survive cancellation")
	assert.Less(t, len(results), 4, "cancellation stops dispatching new verdicts")
	for _, result := range results {
		assert.True(t, result.Parsed)
		assert.Equal(t, 4.0, result.Correctness)
	}
}

func TestScoreParsesVerdicts(t *testing.T) {
	judge := &scriptedModel{replies: func(user string) (string, error) {
		if strings.Contains(user, "spec 0") {
			return `{"correctness": 5, "precision": 4}`, nil
		}
		if strings.Contains(user, "spec 1") {
			return "Great answer! 10/10", nil // unparsable
		}
		return `The scores are {"correctness": 3, "precision": 3} as requested.`, nil
	}}

	examples := evalExamples(3)
	answers := []eval.Answer{
		{ExampleID: "ex-0", Model: "student", Text: "a"},
		{ExampleID: "ex-1", Model: "student", Text: "b"},
		{ExampleID: "ex-2", Model: "student", Text: "c"},
	}

	e := eval.New(eval.EvalConfig{Workers: 2, RateLimit: 1000})
	results, err := e.Score(context.Background(), judge, examples, answers)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]models.EvaluationResult)
	for _, result := range results {
		byID[result.ExampleID] = result
	}
	assert.True(t, byID["ex-0"].Parsed)
	assert.Equal(t, 5.0, byID["ex-0"].Correctness)
	assert.False(t, byID["ex-1"].Parsed)
	assert.NotEmpty(t, byID["ex-1"].RawVerdict)
	assert.True(t, byID["ex-2"].Parsed, "verdict embedded in prose should still parse")
}

func TestScoreSkipsFailedAnswers(t *testing.T) {
	judge := &scriptedModel{replies: func(string) (string, error) {
		return `{"correctness": 4, "precision": 4}`, nil
	}}

	examples := evalExamples(2)
	answers := []eval.Answer{
		{ExampleID: "ex-0", Model: "student", Text: "a"},
		{ExampleID: "ex-1", Model: "student", Err: fmt.Errorf("timeout")},
	}

	e := eval.New(eval.EvalConfig{Workers: 1, RateLimit: 1000})
	results, err := e.Score(context.Background(), judge, examples, answers)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, judge.calls)
}

func TestScoreRejectsOutOfRangeVerdicts(t *testing.T) {
	judge := &scriptedModel{replies: func(string) (string, error) {
		return `{"correctness": 9, "precision": 4}`, nil
	}}

	e := eval.New(eval.EvalConfig{Workers: 1, RateLimit: 1000})
	results, err := e.Score(context.Background(), judge, evalExamples(1),
		[]eval.Answer{{ExampleID: "ex-0", Model: "student", Text: "a"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Parsed)
}

func TestSummarizeExcludesUnparsed(t *testing.T) {
	results := []models.EvaluationResult{
		{Parsed: true, Correctness: 5, Precision: 4},
		{Parsed: true, Correctness: 3, Precision: 2},
		{Parsed: true, Correctness: 4, Precision: 3},
		{Parsed: false, RawVerdict: "gibberish"},
	}

	summary := eval.Summarize("student", results, 2)
	assert.Equal(t, 3, summary.Scored)
	assert.Equal(t, 1, summary.Unparsed)
	assert.Equal(t, 2, summary.Failed)
	assert.InDelta(t, 4.0, summary.MeanCorrectness, 1e-9)
	assert.InDelta(t, 4.0, summary.MedianCorrectness, 1e-9)
	assert.InDelta(t, 3.0, summary.MeanPrecision, 1e-9)
}

func TestImprovement(t *testing.T) {
	student := models.EvaluationSummary{MeanCorrectness: 4.2, MeanPrecision: 3.8}
	baseline := models.EvaluationSummary{MeanCorrectness: 3.1, MeanPrecision: 3.9}

	dc, dp := eval.Improvement(student, baseline)
	assert.InDelta(t, 1.1, dc, 1e-9)
	assert.InDelta(t, -0.1, dp, 1e-9)
}
