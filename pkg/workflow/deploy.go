package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/deploy"
	"github.com/zavalabs/raft/pkg/state"
)

// DeployOptions overrides how the fine-tuned model is deployed.
type DeployOptions struct {
	// Name overrides the derived deployment name.
	Name string
	// ModelName deploys a specific artifact instead of the one in state.
	ModelName string
	// Capacity overrides the configured SKU capacity.
	Capacity int
	// SkipWait returns after the PUT without polling provisioning state.
	SkipWait bool
}

// DeployOutput reports where the fine-tuned student ended up.
type DeployOutput struct {
	Deployment string
	Native     bool
	Reused     bool
}

// Deploy makes the fine-tuned model callable as the student. On the native
// platform the model is addressable directly, so the stage just rebinds the
// student endpoint; on the gateway platform a management-plane deployment is
// created (or reused) and polled to completion.
func (r *Runner) Deploy(ctx context.Context, opts DeployOptions) (*DeployOutput, error) {
	if err := r.require(models.StageFinetuned, "deploy"); err != nil {
		return nil, err
	}

	fineTuned := r.State.Get(state.KeyFineTunedModel)
	if opts.ModelName != "" {
		fineTuned = opts.ModelName
	}
	if fineTuned == "" {
		return nil, &models.ConfigurationError{Field: state.KeyFineTunedModel, Reason: "not set; run finetune first"}
	}

	student, ok := r.State.ModelRef(models.RoleStudent)
	if !ok {
		return nil, &models.ConfigurationError{Field: "student", Reason: "no student binding in state"}
	}

	if student.Platform != "azure-openai" {
		// Native platform: the fine-tuned model name is the deployment.
		r.rebindStudent(fineTuned)
		r.State.MarkStage(models.StageDeployed)
		if err := r.State.Save(); err != nil {
			return nil, err
		}
		r.log.Info("student rebound to fine-tuned model", "model", fineTuned)
		return &DeployOutput{Deployment: fineTuned, Native: true}, nil
	}

	client, err := deploy.NewClient(r.State.Getenv("AZURE_MANAGEMENT_TOKEN"))
	if err != nil {
		return nil, err
	}
	target, err := deploy.TargetFromEnv(r.State.Getenv)
	if err != nil {
		return nil, err
	}
	target.DeploymentName = fmt.Sprintf("%s-student-ft", r.Config.Dataset.Name)
	if opts.Name != "" {
		target.DeploymentName = opts.Name
	}
	target.ModelName = fineTuned
	target.SKU = student.SKU
	target.Capacity = r.Config.Deploy.Capacity
	if opts.Capacity > 0 {
		target.Capacity = opts.Capacity
	}

	created, err := client.Ensure(ctx, target)
	if err != nil {
		return nil, err
	}
	if !created.Terminal() && !opts.SkipWait {
		created, err = client.Wait(ctx, target,
			time.Duration(r.Config.Deploy.PollSeconds)*time.Second,
			func(d deploy.Deployment) {
				if r.OnProgress != nil {
					r.OnProgress("deploying "+d.ProvisioningState, -1, -1)
				}
			})
		if err != nil {
			return nil, err
		}
	}

	r.rebindStudent(target.DeploymentName)
	r.State.MarkStage(models.StageDeployed)
	if err := r.State.Save(); err != nil {
		return nil, err
	}
	return &DeployOutput{Deployment: target.DeploymentName, Reused: created.Reused}, nil
}

// rebindStudent points the student endpoint at the deployed fine-tuned model.
// The original binding stays in STUDENT_DEPLOYMENT_NAME so clean can revert.
func (r *Runner) rebindStudent(deployment string) {
	prefix := models.RoleStudent.Prefix()
	r.State.Set(prefix+"_AZURE_OPENAI_DEPLOYMENT", deployment)
	r.State.Set(prefix+"_OPENAI_DEPLOYMENT", deployment)
}
