package finetune

import (
	"context"
	"errors"
	"time"

	"github.com/zavalabs/raft/internal/models"
)

// ErrStillRunning is returned by Wait when the job has not reached a terminal
// state within the allowed window. The job keeps running remotely; a later
// run can resume polling from the stored job ID.
var ErrStillRunning = errors.New("fine-tune job still running")

// Decision is the outcome of inspecting a job snapshot.
type Decision int

const (
	KeepWaiting Decision = iota
	Done
	Fail
)

// PollOnce classifies a job snapshot. It is a pure transition so the polling
// policy can be tested without a provider.
func PollOnce(job models.FineTuneJob) Decision {
	switch job.Status {
	case models.JobSucceeded:
		return Done
	case models.JobFailed, models.JobCancelled:
		return Fail
	default:
		return KeepWaiting
	}
}

// WaitConfig bounds the polling loop.
type WaitConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
	// OnPoll is called after each snapshot, for progress display.
	OnPoll func(job models.FineTuneJob, elapsed time.Duration)
}

// Wait polls the job until it finishes or the window closes. A failed or
// cancelled job yields a FineTuneJobFailure with the provider's reason;
// exceeding MaxWait yields ErrStillRunning, which is a resumable condition,
// not a job failure.
func (c *Client) Wait(ctx context.Context, jobID string, config WaitConfig) (models.FineTuneJob, error) {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 2 * time.Hour
	}

	start := time.Now()
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		job, err := c.Get(ctx, jobID)
		if err != nil {
			return models.FineTuneJob{}, err
		}
		if config.OnPoll != nil {
			config.OnPoll(job, time.Since(start))
		}

		switch PollOnce(job) {
		case Done:
			return job, nil
		case Fail:
			return job, &models.FineTuneJobFailure{
				JobID:  job.ID,
				Status: job.Status,
				Reason: job.FailureReason,
			}
		}

		if time.Since(start)+config.Interval > config.MaxWait {
			return job, ErrStillRunning
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
