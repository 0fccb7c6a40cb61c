// Package eval answers the held-out evaluation set with candidate models and
// scores those answers with the judge model.
package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/internal/types"
	"github.com/zavalabs/raft/pkg/logger"
)

const answerSystemPrompt = "You are a helpful assistant that answers questions using the provided documents. " +
	"Cite the relevant document content in your reasoning and ignore documents that do not help."

type EvalConfig struct {
	Workers   int
	RateLimit float64
}

// Answer is one model's response to one evaluation example. Err records a
// collection failure; failed answers are counted, never judged.
type Answer struct {
	ExampleID string
	Model     string
	Text      string
	Err       error
}

type Evaluator struct {
	config  EvalConfig
	limiter *rate.Limiter
	log     *logger.Logger
}

func New(config EvalConfig) *Evaluator {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}
	return &Evaluator{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     logger.New("eval"),
	}
}

// CollectAnswers asks the model every evaluation question, presenting the
// same document context the student saw during training. Per-example failures
// are recorded in the answer, not returned.
func (e *Evaluator) CollectAnswers(ctx context.Context, model types.ChatModel, name string, examples []models.SyntheticExample) ([]Answer, error) {
	answers := make([]Answer, len(examples))

	// Cancellation stops dispatch; in-flight questions finish and their
	// answers are returned alongside the context error.
	callCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(e.config.Workers)

	dispatched := len(examples)
	for i, example := range examples {
		if ctx.Err() != nil {
			dispatched = i
			break
		}
		i, example := i, example
		group.Go(func() error {
			if err := e.limiter.Wait(callCtx); err != nil {
				return err
			}
			text, err := model.Complete(callCtx, answerSystemPrompt, answerPrompt(example))
			answers[i] = Answer{
				ExampleID: example.ID,
				Model:     name,
				Text:      strings.TrimSpace(text),
				Err:       err,
			}
			if err != nil {
				e.log.Warn("answer collection failed", "model", name, "example", example.ID, "error", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return answers[:dispatched], err
	}
	return answers, nil
}

func answerPrompt(example models.SyntheticExample) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<DOCUMENT>%s</DOCUMENT>\n", example.OracleContext)
	for _, distractor := range example.Distractors {
		fmt.Fprintf(&sb, "<DOCUMENT>%s</DOCUMENT>\n", distractor)
	}
	sb.WriteString("\n")
	sb.WriteString(example.Question)
	return sb.String()
}

// Summarize aggregates parsed verdicts for one model. Unparsed verdicts and
// failed answers are counted separately and never pull scores toward zero.
func Summarize(model string, results []models.EvaluationResult, failed int) models.EvaluationSummary {
	summary := models.EvaluationSummary{Model: model, Failed: failed}

	var correctness, precision []float64
	for _, result := range results {
		if !result.Parsed {
			summary.Unparsed++
			continue
		}
		correctness = append(correctness, result.Correctness)
		precision = append(precision, result.Precision)
	}

	summary.Scored = len(correctness)
	summary.MeanCorrectness = mean(correctness)
	summary.MedianCorrectness = median(correctness)
	summary.MeanPrecision = mean(precision)
	summary.MedianPrecision = median(precision)
	return summary
}

// Improvement reports the student's mean-score deltas over the baseline.
func Improvement(student, baseline models.EvaluationSummary) (correctness, precision float64) {
	return student.MeanCorrectness - baseline.MeanCorrectness,
		student.MeanPrecision - baseline.MeanPrecision
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
