package workflow

import (
	"context"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/state"
)

// RunOptions carries the per-stage options the full chain needs. Stages in
// Skip are left out even when not yet completed; later stages then fail their
// prerequisite check unless the skipped stage completed on a previous run.
type RunOptions struct {
	Configure ConfigureOptions
	Finetune  FinetuneOptions
	Deploy    DeployOptions
	Eval      EvalOptions
	Skip      map[models.Stage]bool
}

// Run executes every stage that has not completed yet, in order, stopping at
// the first error. Completed stages are skipped, so an interrupted run picks
// up where it left off.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	steps := []struct {
		stage models.Stage
		fn    func() error
	}{
		{models.StageConfigured, func() error {
			_, err := r.Configure(ctx, opts.Configure)
			return err
		}},
		{models.StageChecked, func() error {
			_, err := r.Check(ctx)
			return err
		}},
		{models.StageGenerated, func() error {
			_, err := r.Generate(ctx)
			return err
		}},
		{models.StageFinetuned, func() error {
			_, err := r.Finetune(ctx, opts.Finetune)
			return err
		}},
		{models.StageDeployed, func() error {
			_, err := r.Deploy(ctx, opts.Deploy)
			return err
		}},
		{models.StageEvaluated, func() error {
			_, err := r.Evaluate(ctx, opts.Eval)
			return err
		}},
	}

	for _, step := range steps {
		if r.State.Stage().Reached(step.stage) || opts.Skip[step.stage] {
			continue
		}
		if r.OnStage != nil {
			r.OnStage(step.stage)
		}
		if err := step.fn(); err != nil {
			return err
		}
	}
	return nil
}

// StatusReport is the read-only view of the workflow the status command prints.
type StatusReport struct {
	Stage          models.Stage
	NextStage      models.Stage
	Region         string
	DatasetName    string
	Bindings       []models.ModelRef
	DatasetPath    string
	TrainPath      string
	ValidPath      string
	EvalPath       string
	JobID          string
	FineTunedModel string
}

// Status summarizes the state file without touching anything remote.
func (r *Runner) Status() StatusReport {
	report := StatusReport{
		Stage:          r.State.Stage(),
		NextStage:      r.State.Stage().Next(),
		Region:         r.State.Get(state.KeyRegion),
		DatasetName:    r.State.Get(state.KeyDatasetName),
		DatasetPath:    r.State.Get(state.KeyDatasetPath),
		TrainPath:      r.State.Get(state.KeyTrainPath),
		ValidPath:      r.State.Get(state.KeyValidPath),
		EvalPath:       r.State.Get(state.KeyEvalPath),
		JobID:          r.State.Get(state.KeyJobID),
		FineTunedModel: r.State.Get(state.KeyFineTunedModel),
	}
	for _, role := range r.State.BoundRoles() {
		if ref, ok := r.State.ModelRef(role); ok {
			report.Bindings = append(report.Bindings, ref)
		}
	}
	return report
}

// stageKeys lists the state keys each stage owns, so clean can roll a stage
// and everything after it back.
var stageKeys = map[models.Stage][]string{
	models.StageGenerated: {
		state.KeyDatasetPath, state.KeyTrainPath, state.KeyValidPath, state.KeyEvalPath,
	},
	models.StageFinetuned: {
		state.KeyJobID, state.KeyTrainingFileID, state.KeyValidFileID, state.KeyFineTunedModel,
	},
}

// Clean rolls the workflow back so everything after target reruns. Rolling
// past the deploy stage also rebinds the student endpoint to its original
// deployment.
func (r *Runner) Clean(target models.Stage) error {
	order := []models.Stage{
		models.StageGenerated,
		models.StageFinetuned,
		models.StageDeployed,
		models.StageEvaluated,
	}

	for _, stage := range order {
		if target.Reached(stage) {
			continue
		}
		for _, key := range stageKeys[stage] {
			r.State.Unset(key)
		}
		if stage == models.StageDeployed {
			if student, ok := r.State.ModelRef(models.RoleStudent); ok {
				r.rebindStudent(student.Deployment)
			}
		}
	}

	r.State.ResetStage(target)
	return r.State.Save()
}
