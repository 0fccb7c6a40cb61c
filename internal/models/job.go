package models

import "time"

// JobStatus is the lifecycle state of a remote fine-tuning job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job has finished, for better or worse.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// FineTuneJob mirrors the provider's view of a submitted training run.
type FineTuneJob struct {
	ID               string
	BaseModel        string
	TrainingFileID   string
	ValidationFileID string
	Status           JobStatus
	FineTunedModel   string
	FailureReason    string
	CreatedAt        time.Time
}
