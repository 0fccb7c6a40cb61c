// Package state persists workflow progress between stages as a flat
// KEY=value file, so runs are resumable and every stage reads the previous
// stage's outputs from one place.
package state

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zavalabs/raft/internal/models"
)

// Well-known state keys.
const (
	KeyStage          = "WORKFLOW_STAGE"
	KeyRegion         = "AZURE_LOCATION"
	KeyDatasetName    = "DATASET_NAME"
	KeyDatasetPath    = "DATASET_PATH"
	KeyTrainPath      = "DATASET_TRAIN_PATH"
	KeyValidPath      = "DATASET_VALID_PATH"
	KeyEvalPath       = "DATASET_EVAL_PATH"
	KeyJobID          = "STUDENT_OPENAI_JOB_ID"
	KeyTrainingFileID = "STUDENT_OPENAI_TRAINING_FILE_ID"
	KeyValidFileID    = "STUDENT_OPENAI_VALIDATION_FILE_ID"
	KeyFineTunedModel = "FINE_TUNED_MODEL_NAME"
	KeyStudentBase    = "STUDENT_MODEL_BASE_NAME"
)

// DefaultPath is where the state file lives unless RAFT_STATE_FILE overrides it.
const DefaultPath = ".raft-state.env"

// Path returns the state file location.
func Path() string {
	if p := os.Getenv("RAFT_STATE_FILE"); p != "" {
		return p
	}
	return DefaultPath
}

// State is the persisted workflow state. It is mutated only by the stage
// currently executing and saved between stages.
type State struct {
	path string
	vals map[string]string
}

// Load reads the state file at path. A missing file yields an empty state.
func Load(path string) (*State, error) {
	s := &State{path: path, vals: make(map[string]string)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("error reading state file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		s.vals[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading state file: %w", err)
	}
	return s, nil
}

// Save writes the state back to its file, keys sorted for stable diffs.
func (s *State) Save() error {
	keys := make([]string, 0, len(s.vals))
	for k := range s.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, s.vals[k])
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("error writing state file: %w", err)
	}
	return nil
}

func (s *State) Get(key string) string { return s.vals[key] }

func (s *State) Lookup(key string) (string, bool) {
	v, ok := s.vals[key]
	return v, ok
}

func (s *State) Set(key, value string) { s.vals[key] = value }

func (s *State) Unset(key string) { delete(s.vals, key) }

func (s *State) Len() int { return len(s.vals) }

// Getenv resolves key from the state first, then the process environment.
// Model clients use this so provisioned values and user overrides compose.
func (s *State) Getenv(key string) string {
	if v, ok := s.vals[key]; ok && v != "" {
		return v
	}
	return os.Getenv(key)
}

// Stage returns the highest completed workflow stage.
func (s *State) Stage() models.Stage {
	return models.Stage(s.vals[KeyStage])
}

// MarkStage records stage completion, never moving backwards.
func (s *State) MarkStage(stage models.Stage) {
	if s.Stage().Reached(stage) {
		return
	}
	s.vals[KeyStage] = string(stage)
}

// ResetStage clears progress back past the given stage, used by clean.
func (s *State) ResetStage(stage models.Stage) {
	s.vals[KeyStage] = string(stage)
}

// SetModelRef records a role binding the way configure persists it.
func (s *State) SetModelRef(ref models.ModelRef) {
	s.Set(ref.Role.DeploymentVar(), ref.Deployment)
	s.Set(ref.Role.ModelVar(), ref.Model)
	s.Set(ref.Role.APIVar(), ref.API)
	if ref.Platform != "" {
		s.Set(ref.Role.PlatformVar(), ref.Platform)
	}
	if ref.SKU != "" {
		s.Set(ref.Role.SKUVar(), ref.SKU)
	}
}

// ModelRef reads a role binding back out of the state.
func (s *State) ModelRef(role models.Role) (models.ModelRef, bool) {
	deployment, ok := s.Lookup(role.DeploymentVar())
	if !ok || deployment == "" {
		return models.ModelRef{}, false
	}
	return models.ModelRef{
		Role:       role,
		Deployment: deployment,
		Model:      s.Get(role.ModelVar()),
		API:        s.Get(role.APIVar()),
		Platform:   s.Get(role.PlatformVar()),
		SKU:        s.Get(role.SKUVar()),
	}, true
}

// BoundRoles lists the roles with a deployment binding, in canonical order.
func (s *State) BoundRoles() []models.Role {
	var roles []models.Role
	for _, r := range models.AllRoles {
		if _, ok := s.ModelRef(r); ok {
			roles = append(roles, r)
		}
	}
	return roles
}
