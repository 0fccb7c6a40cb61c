package workflow

import (
	"context"
	"time"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/dataset"
	"github.com/zavalabs/raft/pkg/finetune"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/state"
)

// FinetuneOptions tunes the finetune stage.
type FinetuneOptions struct {
	// DryRun estimates the training size and stops before any upload.
	DryRun bool
}

// FinetuneOutput reports what the finetune stage did.
type FinetuneOutput struct {
	Estimate finetune.TokenEstimate
	Job      models.FineTuneJob
	DryRun   bool
	Resumed  bool
}

// Finetune uploads the training files and drives a fine-tuning job to
// completion. A job ID left in the state by an interrupted run is resumed; a
// failed job is surfaced, never silently resubmitted.
func (r *Runner) Finetune(ctx context.Context, opts FinetuneOptions) (*FinetuneOutput, error) {
	if err := r.require(models.StageGenerated, "finetune"); err != nil {
		return nil, err
	}

	trainPath := r.State.Get(state.KeyTrainPath)
	validPath := r.State.Get(state.KeyValidPath)
	if trainPath == "" {
		return nil, &models.ConfigurationError{Field: state.KeyTrainPath, Reason: "not set; run gen first"}
	}

	records, err := dataset.ReadJSONL[dataset.ChatRecord](trainPath)
	if err != nil {
		return nil, err
	}
	estimate, err := finetune.EstimateTraining(records, r.Config.Finetune.Epochs)
	if err != nil {
		return nil, err
	}
	out := &FinetuneOutput{Estimate: estimate, DryRun: opts.DryRun}
	r.log.Info("training estimate", "records", estimate.Records, "total_tokens", estimate.TotalTokens)

	if opts.DryRun {
		return out, nil
	}

	endpoint, err := llm.RoleEndpoint(models.RoleStudent, r.State.Getenv)
	if err != nil {
		return nil, err
	}
	client, err := finetune.NewClient(endpoint)
	if err != nil {
		return nil, err
	}

	job, resumed, err := r.obtainJob(ctx, client, trainPath, validPath)
	if err != nil {
		return nil, err
	}
	out.Resumed = resumed

	waited, err := client.Wait(ctx, job.ID, finetune.WaitConfig{
		Interval: time.Duration(r.Config.Finetune.PollSeconds) * time.Second,
		MaxWait:  time.Duration(r.Config.Finetune.MaxWaitMins) * time.Minute,
		OnPoll: func(job models.FineTuneJob, elapsed time.Duration) {
			if r.OnProgress != nil {
				r.OnProgress("fine-tuning "+string(job.Status), -1, -1)
			}
		},
	})
	out.Job = waited
	if err != nil {
		// ErrStillRunning keeps the job ID in state so a later run resumes.
		return out, err
	}

	r.State.Set(state.KeyFineTunedModel, waited.FineTunedModel)
	r.State.MarkStage(models.StageFinetuned)
	if err := r.State.Save(); err != nil {
		return out, err
	}
	return out, nil
}

// obtainJob resumes the stored job when one exists, otherwise uploads the
// datasets and submits a fresh job, persisting IDs as soon as they exist.
func (r *Runner) obtainJob(ctx context.Context, client *finetune.Client, trainPath, validPath string) (models.FineTuneJob, bool, error) {
	if jobID := r.State.Get(state.KeyJobID); jobID != "" {
		job, err := client.Get(ctx, jobID)
		if err != nil {
			return models.FineTuneJob{}, false, err
		}
		if job.Status == models.JobFailed || job.Status == models.JobCancelled {
			return job, false, &models.FineTuneJobFailure{JobID: job.ID, Status: job.Status, Reason: job.FailureReason}
		}
		r.log.Info("resuming fine-tune job", "job_id", job.ID, "status", job.Status)
		return job, true, nil
	}

	trainingFileID, err := client.UploadDataset(ctx, trainPath, "train")
	if err != nil {
		return models.FineTuneJob{}, false, err
	}
	r.State.Set(state.KeyTrainingFileID, trainingFileID)

	var validFileID string
	if validPath != "" {
		validFileID, err = client.UploadDataset(ctx, validPath, "valid")
		if err != nil {
			return models.FineTuneJob{}, false, err
		}
		r.State.Set(state.KeyValidFileID, validFileID)
	}
	if err := r.State.Save(); err != nil {
		return models.FineTuneJob{}, false, err
	}

	baseModel := r.State.Get(state.KeyStudentBase)
	if baseModel == "" {
		return models.FineTuneJob{}, false, &models.ConfigurationError{Field: state.KeyStudentBase, Reason: "not set; run configure first"}
	}

	job, err := client.Submit(ctx, finetune.SubmitParams{
		BaseModel:        baseModel,
		TrainingFileID:   trainingFileID,
		ValidationFileID: validFileID,
		Epochs:           r.Config.Finetune.Epochs,
		Seed:             int64(r.Config.Finetune.Seed),
	})
	if err != nil {
		return models.FineTuneJob{}, false, err
	}

	r.State.Set(state.KeyJobID, job.ID)
	if err := r.State.Save(); err != nil {
		return job, false, err
	}
	return job, false, nil
}
