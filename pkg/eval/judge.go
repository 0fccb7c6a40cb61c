package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/internal/types"
)

const judgeSystemPrompt = "You are an impartial grader. Compare a candidate answer against a reference answer " +
	"and return ONLY a JSON object of the form {\"correctness\": N, \"precision\": N} where each N is an integer " +
	"from 1 to 5. Correctness measures factual agreement with the reference; precision measures how free the " +
	"candidate is of unsupported or irrelevant content. Return no other text."

type verdict struct {
	Correctness float64 `json:"correctness"`
	Precision   float64 `json:"precision"`
}

// Score asks the judge to grade every collected answer against its reference.
// Verdicts that cannot be parsed are kept with Parsed=false so the caller can
// report them without letting them skew the aggregates. On cancellation the
// verdicts already completed are returned alongside the context error.
func (e *Evaluator) Score(ctx context.Context, judge types.ChatModel, examples []models.SyntheticExample, answers []Answer) ([]models.EvaluationResult, error) {
	byID := make(map[string]models.SyntheticExample, len(examples))
	for _, example := range examples {
		byID[example.ID] = example
	}

	results := make([]models.EvaluationResult, 0, len(answers))
	indexed := make([]models.EvaluationResult, len(answers))
	skip := make([]bool, len(answers))

	// Cancellation stops dispatching new verdicts; in-flight ones finish on
	// the detached context and come back with the cancellation error.
	callCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(e.config.Workers)

	for i, answer := range answers {
		if answer.Err != nil || ctx.Err() != nil {
			skip[i] = true
			continue
		}
		example, ok := byID[answer.ExampleID]
		if !ok {
			skip[i] = true
			continue
		}

		i, answer := i, answer
		group.Go(func() error {
			if err := e.limiter.Wait(callCtx); err != nil {
				return err
			}

			user := fmt.Sprintf("Question:\n%s\n\nReference answer:\n%s\n\nCandidate answer:\n%s",
				example.Question, example.Answer, answer.Text)
			raw, err := judge.Complete(callCtx, judgeSystemPrompt, user)

			result := models.EvaluationResult{
				ExampleID: answer.ExampleID,
				Model:     answer.Model,
				Answer:    answer.Text,
			}
			if err != nil {
				result.RawVerdict = err.Error()
			} else if v, ok := parseVerdict(raw); ok {
				result.Correctness = v.Correctness
				result.Precision = v.Precision
				result.Parsed = true
			} else {
				result.RawVerdict = raw
				e.log.Warn("unparsable judge verdict", "example", answer.ExampleID, "model", answer.Model)
			}
			indexed[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i := range indexed {
		if !skip[i] {
			results = append(results, indexed[i])
		}
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// parseVerdict extracts the JSON object from the judge's reply and validates
// both scores are on the 1-5 scale.
func parseVerdict(raw string) (verdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return verdict{}, false
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return verdict{}, false
	}
	if v.Correctness < 1 || v.Correctness > 5 || v.Precision < 1 || v.Precision > 5 {
		return verdict{}, false
	}
	return v, true
}
