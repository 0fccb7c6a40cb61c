package models

import "strings"

// Role tags a deployed model with its function in the workflow. Exactly one
// binding per role per run; the role determines which stage may invoke it.
type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleBaseline  Role = "baseline"
	RoleJudge     Role = "judge"
	RoleEmbedding Role = "embedding"
)

// AllRoles lists roles in selection order. Teacher and student come first so
// the platform-consistency rule narrows later choices.
var AllRoles = []Role{RoleTeacher, RoleStudent, RoleBaseline, RoleJudge, RoleEmbedding}

// ModelAPI names the inference surface a deployment exposes.
type ModelAPI string

const (
	APIChatCompletions ModelAPI = "chat-completions"
	APICompletions     ModelAPI = "completions"
	APIEmbeddings      ModelAPI = "embeddings"
)

// ModelRef points at one deployed model endpoint.
type ModelRef struct {
	Role       Role
	Deployment string
	Model      string
	API        string
	Platform   string
	SKU        string
}

// Prefix is the environment namespace for this role's credentials,
// e.g. TEACHER for TEACHER_OPENAI_API_KEY.
func (r Role) Prefix() string { return strings.ToUpper(string(r)) }

// State-file variable names for a role binding.
func (r Role) DeploymentVar() string { return r.Prefix() + "_DEPLOYMENT_NAME" }
func (r Role) ModelVar() string      { return r.Prefix() + "_MODEL_NAME" }
func (r Role) APIVar() string        { return r.Prefix() + "_MODEL_API" }
func (r Role) PlatformVar() string   { return r.Prefix() + "_PLATFORM" }
func (r Role) SKUVar() string        { return r.Prefix() + "_FINETUNING_SKU_NAME" }
