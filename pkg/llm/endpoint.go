package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zavalabs/raft/internal/models"
)

// Getenv resolves a credential variable. The CLI passes a lookup that layers
// the state file over the process environment.
type Getenv func(key string) string

// Endpoint is one role's resolved credentials. A role speaks either the
// native API (base URL + key) or the cloud-gateway API (resource endpoint +
// deployment + api-version); the two are mutually exclusive per prefix.
type Endpoint struct {
	Prefix        string
	BaseURL       string
	AzureEndpoint string
	Deployment    string
	APIKey        string
	APIVersion    string
}

// Gateway reports whether the endpoint uses the cloud-gateway credential style.
func (e Endpoint) Gateway() bool { return e.AzureEndpoint != "" }

// ResolveEndpoint reads the <PREFIX>_* variables for one role and decides
// which credential style applies.
func ResolveEndpoint(prefix string, getenv Getenv) (Endpoint, error) {
	e := Endpoint{Prefix: prefix}

	if base := getenv(prefix + "_OPENAI_BASE_URL"); base != "" {
		e.BaseURL = base
		e.Deployment = getenv(prefix + "_OPENAI_DEPLOYMENT")
		e.APIKey = getenv(prefix + "_OPENAI_API_KEY")
		if e.Deployment == "" {
			return e, &models.ConfigurationError{Field: prefix + "_OPENAI_DEPLOYMENT", Reason: "missing"}
		}
		if e.APIKey == "" {
			return e, &models.ConfigurationError{Field: prefix + "_OPENAI_API_KEY", Reason: "missing"}
		}
		return e, nil
	}

	if endpoint := getenv(prefix + "_AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		e.AzureEndpoint = endpoint
		e.Deployment = getenv(prefix + "_AZURE_OPENAI_DEPLOYMENT")
		e.APIVersion = getenv(prefix + "_OPENAI_API_VERSION")
		e.APIKey = getenv(prefix + "_AZURE_OPENAI_API_KEY")
		if e.Deployment == "" {
			return e, &models.ConfigurationError{Field: prefix + "_AZURE_OPENAI_DEPLOYMENT", Reason: "missing"}
		}
		if e.APIVersion == "" {
			return e, &models.ConfigurationError{Field: prefix + "_OPENAI_API_VERSION", Reason: "missing"}
		}
		if e.APIKey == "" {
			return e, &models.ConfigurationError{Field: prefix + "_AZURE_OPENAI_API_KEY", Reason: "missing"}
		}
		return e, nil
	}

	return e, &models.ConfigurationError{
		Field:  prefix,
		Reason: fmt.Sprintf("neither %s_OPENAI_BASE_URL nor %s_AZURE_OPENAI_ENDPOINT is set", prefix, prefix),
	}
}

// RoleEndpoint resolves the endpoint for a workflow role.
func RoleEndpoint(role models.Role, getenv Getenv) (Endpoint, error) {
	return ResolveEndpoint(role.Prefix(), getenv)
}

func (e Endpoint) options() []openai.Option {
	if e.Gateway() {
		return []openai.Option{
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(e.AzureEndpoint),
			openai.WithAPIVersion(e.APIVersion),
			openai.WithToken(e.APIKey),
			openai.WithModel(e.Deployment),
			openai.WithEmbeddingModel(e.Deployment),
		}
	}
	return []openai.Option{
		openai.WithBaseURL(e.BaseURL),
		openai.WithToken(e.APIKey),
		openai.WithModel(e.Deployment),
		openai.WithEmbeddingModel(e.Deployment),
	}
}
