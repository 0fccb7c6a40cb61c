package models

import "fmt"

// ConfigurationError means a required role binding is missing or the selected
// model/region combination is invalid. Fatal for the whole run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ConnectivityError means a bound endpoint is unreachable or unauthorized.
// Reported per role; other checks still run.
type ConnectivityError struct {
	Role Role
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s endpoint: %v", e.Role, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// FineTuneJobFailure carries the provider's failure reason verbatim. The
// submitter never retries a failed job.
type FineTuneJobFailure struct {
	JobID  string
	Status JobStatus
	Reason string
}

func (e *FineTuneJobFailure) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("fine-tune job %s ended with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("fine-tune job %s ended with status %s: %s", e.JobID, e.Status, e.Reason)
}
