// Package workflow chains the fine-tuning stages together: each stage
// validates its prerequisite, does its work, records its outputs in the state
// file, and marks itself complete so the next stage can pick up from there.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/check"
	"github.com/zavalabs/raft/pkg/config"
	"github.com/zavalabs/raft/pkg/logger"
	"github.com/zavalabs/raft/pkg/state"
)

// Runner executes workflow stages against one config and one state file.
type Runner struct {
	Config *config.Config
	State  *state.State

	// OnStage is called as each chained stage starts, for display.
	OnStage func(stage models.Stage)
	// OnProgress reports per-item progress inside a stage.
	OnProgress func(label string, done, total int)

	log      *logger.Logger
	warnings []string
}

func NewRunner(cfg *config.Config, st *state.State) *Runner {
	return &Runner{
		Config: cfg,
		State:  st,
		log:    logger.New("workflow"),
	}
}

// Warnings lists the non-fatal problems accumulated by completed stages.
func (r *Runner) Warnings() []string { return r.warnings }

func (r *Runner) warn(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, message)
	r.log.Warn(message)
}

// require enforces the stage chain: op may only run once prereq is reached.
func (r *Runner) require(prereq models.Stage, op string) error {
	current := r.State.Stage()
	if !current.Reached(prereq) {
		display := string(current)
		if display == "" {
			display = "UNCONFIGURED"
		}
		return &models.ConfigurationError{
			Field:  "workflow",
			Reason: fmt.Sprintf("%s requires stage %s, current stage is %s", op, prereq, display),
		}
	}
	return nil
}

// ConfigureOptions selects deployments for every role from the catalog.
type ConfigureOptions struct {
	CatalogPath     string
	Regions         []string
	Preferred       map[models.Role]string
	PreferredRegion string
}

// Configure resolves one deployment per role from the catalog, narrowing to a
// region that serves all of them, and persists the bindings.
func (r *Runner) Configure(ctx context.Context, opts ConfigureOptions) (*config.Selection, error) {
	catalog, err := config.LoadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, err
	}
	if errs := catalog.Validate(); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Error()
		}
		return nil, &models.ConfigurationError{Field: "catalog", Reason: strings.Join(messages, "; ")}
	}

	selection, err := catalog.Resolve(config.ResolveOptions{
		Regions:         opts.Regions,
		Preferred:       opts.Preferred,
		PreferredRegion: opts.PreferredRegion,
	})
	if err != nil {
		return nil, err
	}

	for _, role := range models.AllRoles {
		ref, ok := selection.Refs[role]
		if !ok {
			continue
		}
		r.State.SetModelRef(ref)
		// Endpoint resolution reads the deployment from the environment
		// namespace, so seed both credential styles with the selection.
		r.State.Set(ref.Role.Prefix()+"_AZURE_OPENAI_DEPLOYMENT", ref.Deployment)
		r.State.Set(ref.Role.Prefix()+"_OPENAI_DEPLOYMENT", ref.Deployment)
		r.log.Info("bound role", "role", role, "deployment", ref.Deployment, "platform", ref.Platform)
	}

	r.State.Set(state.KeyRegion, selection.Region)
	r.State.Set(state.KeyDatasetName, r.Config.Dataset.Name)
	if student, ok := selection.Refs[models.RoleStudent]; ok {
		r.State.Set(state.KeyStudentBase, student.Model)
	}

	r.State.MarkStage(models.StageConfigured)
	if err := r.State.Save(); err != nil {
		return nil, err
	}
	return selection, nil
}

// Check probes every bound role. All probes run even when one fails; the
// stage only advances when every endpoint is healthy.
func (r *Runner) Check(ctx context.Context) ([]check.Result, error) {
	if err := r.require(models.StageConfigured, "check"); err != nil {
		return nil, err
	}

	roles := r.State.BoundRoles()
	if len(roles) == 0 {
		return nil, &models.ConfigurationError{Field: "workflow", Reason: "no role bindings in state; run configure first"}
	}

	results := check.New(r.State.Getenv).Check(ctx, roles)
	if !check.AllHealthy(results) {
		for _, result := range results {
			if result.Err != nil {
				return results, result.Err
			}
		}
	}

	r.State.MarkStage(models.StageChecked)
	if err := r.State.Save(); err != nil {
		return results, err
	}
	return results, nil
}
