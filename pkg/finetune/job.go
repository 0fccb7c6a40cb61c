package finetune

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/zavalabs/raft/internal/models"
)

// SubmitParams describes the fine-tuning run to create.
type SubmitParams struct {
	BaseModel        string
	TrainingFileID   string
	ValidationFileID string
	Epochs           int
	Seed             int64
}

// Submit creates a new fine-tuning job. Callers that already hold a job ID
// should use Get instead; a failed job is never resubmitted implicitly.
func (c *Client) Submit(ctx context.Context, params SubmitParams) (models.FineTuneJob, error) {
	if params.BaseModel == "" {
		return models.FineTuneJob{}, fmt.Errorf("base model is required")
	}
	if params.TrainingFileID == "" {
		return models.FineTuneJob{}, fmt.Errorf("training file ID is required")
	}

	apiParams := openai.FineTuningJobNewParams{
		Model:        openai.FineTuningJobNewParamsModel(params.BaseModel),
		TrainingFile: params.TrainingFileID,
	}
	if params.ValidationFileID != "" {
		apiParams.ValidationFile = openai.String(params.ValidationFileID)
	}
	if params.Seed != 0 {
		apiParams.Seed = openai.Int(params.Seed)
	}
	if params.Epochs > 0 {
		apiParams.Hyperparameters = openai.FineTuningJobNewParamsHyperparameters{
			NEpochs: openai.FineTuningJobNewParamsHyperparametersNEpochsUnion{
				OfInt: openai.Int(int64(params.Epochs)),
			},
		}
	}

	job, err := c.api.FineTuning.Jobs.New(ctx, apiParams)
	if err != nil {
		return models.FineTuneJob{}, fmt.Errorf("failed to submit fine-tune job: %w", err)
	}

	c.log.Info("submitted fine-tune job", "job_id", job.ID, "base_model", params.BaseModel)
	return jobFromAPI(job), nil
}

// Get fetches the current state of a job.
func (c *Client) Get(ctx context.Context, jobID string) (models.FineTuneJob, error) {
	job, err := c.api.FineTuning.Jobs.Get(ctx, jobID)
	if err != nil {
		return models.FineTuneJob{}, fmt.Errorf("failed to fetch fine-tune job %s: %w", jobID, err)
	}
	return jobFromAPI(job), nil
}

// Cancel asks the provider to stop a running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if _, err := c.api.FineTuning.Jobs.Cancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel fine-tune job %s: %w", jobID, err)
	}
	c.log.Info("cancelled fine-tune job", "job_id", jobID)
	return nil
}
