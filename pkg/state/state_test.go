package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/state"
)

func TestLoadMissingFileYieldsEmptyState(t *testing.T) {
	st, err := state.Load(filepath.Join(t.TempDir(), "state.env"))
	require.NoError(t, err)
	assert.Zero(t, st.Len())
	assert.Equal(t, models.StageNone, st.Stage())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.env")

	st, err := state.Load(path)
	require.NoError(t, err)
	st.Set(state.KeyDatasetName, "zava-articles")
	st.Set(state.KeyJobID, "ftjob-42")
	st.MarkStage(models.StageGenerated)
	require.NoError(t, st.Save())

	reloaded, err := state.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "zava-articles", reloaded.Get(state.KeyDatasetName))
	assert.Equal(t, "ftjob-42", reloaded.Get(state.KeyJobID))
	assert.Equal(t, models.StageGenerated, reloaded.Stage())
}

func TestSaveIsDeterministicallyOrdered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.env")

	st, err := state.Load(path)
	require.NoError(t, err)
	st.Set("ZEBRA", "1")
	st.Set("ALPHA", "2")
	require.NoError(t, st.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t,
		indexOf(string(data), "ALPHA="),
		indexOf(string(data), "ZEBRA="))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestMarkStageNeverMovesBackwards(t *testing.T) {
	st, err := state.Load(filepath.Join(t.TempDir(), "state.env"))
	require.NoError(t, err)

	st.MarkStage(models.StageFinetuned)
	st.MarkStage(models.StageChecked)
	assert.Equal(t, models.StageFinetuned, st.Stage())

	st.MarkStage(models.StageDeployed)
	assert.Equal(t, models.StageDeployed, st.Stage())
}

func TestResetStageMovesBackwards(t *testing.T) {
	st, err := state.Load(filepath.Join(t.TempDir(), "state.env"))
	require.NoError(t, err)

	st.MarkStage(models.StageEvaluated)
	st.ResetStage(models.StageChecked)
	assert.Equal(t, models.StageChecked, st.Stage())
}

func TestModelRefRoundTrip(t *testing.T) {
	st, err := state.Load(filepath.Join(t.TempDir(), "state.env"))
	require.NoError(t, err)

	st.SetModelRef(models.ModelRef{
		Role:       models.RoleStudent,
		Deployment: "gpt-4o-mini",
		Model:      "gpt-4o-mini",
		API:        "chat-completions",
		Platform:   "azure-openai",
		SKU:        "Standard",
	})

	ref, ok := st.ModelRef(models.RoleStudent)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", ref.Deployment)
	assert.Equal(t, "azure-openai", ref.Platform)
	assert.Equal(t, "Standard", ref.SKU)

	_, ok = st.ModelRef(models.RoleJudge)
	assert.False(t, ok)

	assert.Equal(t, []models.Role{models.RoleStudent}, st.BoundRoles())
}

func TestGetenvPrefersStateOverEnvironment(t *testing.T) {
	st, err := state.Load(filepath.Join(t.TempDir(), "state.env"))
	require.NoError(t, err)

	t.Setenv("RAFT_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", st.Getenv("RAFT_TEST_KEY"))

	st.Set("RAFT_TEST_KEY", "from-state")
	assert.Equal(t, "from-state", st.Getenv("RAFT_TEST_KEY"))
}

func TestPathHonorsOverride(t *testing.T) {
	t.Setenv("RAFT_STATE_FILE", "/tmp/custom-state.env")
	assert.Equal(t, "/tmp/custom-state.env", state.Path())

	t.Setenv("RAFT_STATE_FILE", "")
	assert.Equal(t, state.DefaultPath, state.Path())
}
