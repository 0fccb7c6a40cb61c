package workflow

import (
	"context"
	"path/filepath"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/dataset"
	"github.com/zavalabs/raft/pkg/eval"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/state"
)

// EvalOptions selects which candidate models get evaluated.
type EvalOptions struct {
	SkipBaseline bool
	SkipStudent  bool
	WithTeacher  bool
}

// EvalOutput reports judge scores per candidate model.
type EvalOutput struct {
	Summaries   []models.EvaluationSummary
	ResultsPath string
}

// Evaluate answers the held-out set with the fine-tuned student, the baseline
// and optionally the teacher, then has the judge score everything.
func (r *Runner) Evaluate(ctx context.Context, opts EvalOptions) (*EvalOutput, error) {
	if err := r.require(models.StageDeployed, "eval"); err != nil {
		return nil, err
	}

	evalPath := r.State.Get(state.KeyEvalPath)
	if evalPath == "" {
		return nil, &models.ConfigurationError{Field: state.KeyEvalPath, Reason: "not set; run gen first"}
	}
	examples, err := dataset.ReadJSONL[models.SyntheticExample](evalPath)
	if err != nil {
		return nil, err
	}

	judge, err := llm.ForRole(models.RoleJudge, r.State.Getenv, 0, 0)
	if err != nil {
		return nil, err
	}

	var candidates []models.Role
	if !opts.SkipStudent {
		candidates = append(candidates, models.RoleStudent)
	}
	if _, ok := r.State.ModelRef(models.RoleBaseline); ok && !opts.SkipBaseline {
		candidates = append(candidates, models.RoleBaseline)
	}
	if r.Config.Eval.WithTeacher || opts.WithTeacher {
		candidates = append(candidates, models.RoleTeacher)
	}
	if len(candidates) == 0 {
		return nil, &models.ConfigurationError{Field: "eval", Reason: "every candidate model was skipped"}
	}

	evaluator := eval.New(eval.EvalConfig{
		Workers:   r.Config.Eval.Workers,
		RateLimit: r.Config.Limits.RateLimit,
	})

	out := &EvalOutput{
		ResultsPath: filepath.Join(filepath.Dir(evalPath), "eval_results.jsonl"),
	}
	var allResults []models.EvaluationResult

	// On cancellation the verdicts collected so far still get written, so a
	// long evaluation run is not thrown away with the stage.
	persistPartial := func(partial []models.EvaluationResult) {
		all := append(allResults, partial...)
		if len(all) == 0 {
			return
		}
		if writeErr := dataset.WriteJSONL(out.ResultsPath, all); writeErr == nil {
			r.log.Warn("evaluation cancelled, partial results saved",
				"results", len(all), "path", out.ResultsPath)
		}
	}

	for _, role := range candidates {
		engine, err := llm.ForRole(role, r.State.Getenv, 0, 0)
		if err != nil {
			return nil, err
		}

		name := string(role)
		answers, err := evaluator.CollectAnswers(ctx, engine, name, examples)
		if err != nil {
			if ctx.Err() != nil {
				persistPartial(nil)
			}
			return nil, err
		}
		var failed int
		for _, answer := range answers {
			if answer.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			r.warn("eval: %d answers from %s failed to collect", failed, name)
		}

		results, err := evaluator.Score(ctx, judge, examples, answers)
		if err != nil {
			if ctx.Err() != nil {
				persistPartial(results)
			}
			return nil, err
		}
		allResults = append(allResults, results...)

		summary := eval.Summarize(name, results, failed)
		if summary.Unparsed > 0 {
			r.warn("eval: %d judge verdicts for %s were unparsable", summary.Unparsed, name)
		}
		out.Summaries = append(out.Summaries, summary)
	}

	if err := dataset.WriteJSONL(out.ResultsPath, allResults); err != nil {
		return nil, err
	}

	r.State.MarkStage(models.StageEvaluated)
	if err := r.State.Save(); err != nil {
		return nil, err
	}
	return out, nil
}
