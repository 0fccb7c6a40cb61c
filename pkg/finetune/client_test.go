package finetune_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/finetune"
	"github.com/zavalabs/raft/pkg/llm"
)

// fakeJobsAPI serves /fine_tuning/jobs/{id}, walking through a scripted
// status sequence and holding on the last entry.
type fakeJobsAPI struct {
	mu       sync.Mutex
	statuses []string
	gets     int
	cancels  int
}

func (f *fakeJobsAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fine_tuning/jobs/ftjob-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancels++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.jobBody("cancelled"))
	})
	mux.HandleFunc("/fine_tuning/jobs/ftjob-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		i := f.gets
		f.gets++
		f.mu.Unlock()
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.jobBody(f.statuses[i]))
	})
	return mux
}

func (f *fakeJobsAPI) jobBody(status string) map[string]any {
	body := map[string]any{
		"id":            "ftjob-1",
		"object":        "fine_tuning.job",
		"model":         "gpt-4o-mini",
		"status":        status,
		"created_at":    1,
		"training_file": "file-train",
	}
	if status == "succeeded" {
		body["fine_tuned_model"] = "ft:gpt-4o-mini:custom"
	}
	return body
}

func (f *fakeJobsAPI) counts() (gets, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.cancels
}

func newTestClient(t *testing.T, api *fakeJobsAPI) *finetune.Client {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	client, err := finetune.NewClient(llm.Endpoint{
		BaseURL:    server.URL,
		Deployment: "gpt-4o-mini",
		APIKey:     "test-key",
	})
	require.NoError(t, err)
	return client
}

func TestWaitPollsUntilSucceeded(t *testing.T) {
	api := &fakeJobsAPI{statuses: []string{"queued", "running", "succeeded"}}
	client := newTestClient(t, api)

	var polled []models.JobStatus
	job, err := client.Wait(context.Background(), "ftjob-1", finetune.WaitConfig{
		Interval: time.Millisecond,
		MaxWait:  time.Minute,
		OnPoll: func(job models.FineTuneJob, _ time.Duration) {
			polled = append(polled, job.Status)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobSucceeded, job.Status)
	assert.Equal(t, "ft:gpt-4o-mini:custom", job.FineTunedModel,
		"the artifact reference comes only with the succeeded snapshot")
	assert.Equal(t,
		[]models.JobStatus{models.JobQueued, models.JobRunning, models.JobSucceeded},
		polled)
}

func TestWaitTimeoutLeavesJobRunning(t *testing.T) {
	api := &fakeJobsAPI{statuses: []string{"running"}}
	client := newTestClient(t, api)

	job, err := client.Wait(context.Background(), "ftjob-1", finetune.WaitConfig{
		Interval: 5 * time.Millisecond,
		MaxWait:  12 * time.Millisecond,
	})
	assert.ErrorIs(t, err, finetune.ErrStillRunning)
	assert.Equal(t, models.JobRunning, job.Status)

	gets, cancels := api.counts()
	assert.GreaterOrEqual(t, gets, 1)
	assert.Zero(t, cancels, "hitting the wait window must not touch the remote job")
}

func TestWaitSurfacesProviderFailure(t *testing.T) {
	api := &fakeJobsAPI{statuses: []string{"failed"}}
	client := newTestClient(t, api)

	_, err := client.Wait(context.Background(), "ftjob-1", finetune.WaitConfig{
		Interval: time.Millisecond,
		MaxWait:  time.Minute,
	})
	var failure *models.FineTuneJobFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "ftjob-1", failure.JobID)
	assert.Equal(t, models.JobFailed, failure.Status)
}
