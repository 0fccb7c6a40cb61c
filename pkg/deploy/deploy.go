// Package deploy creates model deployments through the management plane.
// Creation is idempotent: an existing deployment of the same model is reused
// rather than recreated.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/logger"
)

const (
	defaultBaseURL = "https://management.azure.com"
	apiVersion     = "2023-05-01"
)

// Target identifies the deployment to create and the model to put behind it.
type Target struct {
	SubscriptionID string
	ResourceGroup  string
	AccountName    string
	DeploymentName string
	ModelName      string
	ModelVersion   string
	SKU            string
	Capacity       int
}

// TargetFromEnv fills the management-plane coordinates from the environment.
func TargetFromEnv(getenv llm.Getenv) (Target, error) {
	target := Target{
		SubscriptionID: getenv("AZURE_SUBSCRIPTION_ID"),
		ResourceGroup:  getenv("AZURE_RESOURCE_GROUP"),
		AccountName:    getenv("AZURE_OPENAI_ACCOUNT"),
	}
	for field, value := range map[string]string{
		"AZURE_SUBSCRIPTION_ID": target.SubscriptionID,
		"AZURE_RESOURCE_GROUP":  target.ResourceGroup,
		"AZURE_OPENAI_ACCOUNT":  target.AccountName,
	} {
		if value == "" {
			return Target{}, &models.ConfigurationError{Field: field, Reason: "not set"}
		}
	}
	return target, nil
}

// Deployment is the management plane's view of a model deployment.
type Deployment struct {
	Name              string
	ModelName         string
	ModelVersion      string
	ProvisioningState string
	Reused            bool
}

// Succeeded reports whether provisioning finished successfully.
func (d Deployment) Succeeded() bool { return d.ProvisioningState == "Succeeded" }

// Terminal reports whether provisioning stopped moving.
func (d Deployment) Terminal() bool {
	switch d.ProvisioningState {
	case "Succeeded", "Failed", "Canceled":
		return true
	}
	return false
}

type Client struct {
	http    *http.Client
	token   string
	baseURL string
	log     *logger.Logger
}

// NewClient builds a management-plane client authenticated with a bearer
// token. Connections are pooled since polling reuses the same host.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, &models.ConfigurationError{Field: "AZURE_MANAGEMENT_TOKEN", Reason: "not set"}
	}
	return &Client{
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		token:   token,
		baseURL: defaultBaseURL,
		log:     logger.New("deploy"),
	}, nil
}

// WithBaseURL points the client at a different management endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type deploymentModel struct {
	Format  string `json:"format"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type deploymentSKU struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type deploymentProperties struct {
	Model             deploymentModel `json:"model"`
	ProvisioningState string          `json:"provisioningState,omitempty"`
}

type deploymentResource struct {
	Name       string               `json:"name,omitempty"`
	SKU        deploymentSKU        `json:"sku"`
	Properties deploymentProperties `json:"properties"`
}

// Ensure makes the deployment exist. If a deployment of the same name already
// serves the same model it is reused untouched; otherwise it is created or
// updated with a PUT, which the management plane treats as an upsert.
func (c *Client) Ensure(ctx context.Context, target Target) (Deployment, error) {
	existing, found, err := c.get(ctx, target)
	if err != nil {
		return Deployment{}, err
	}
	if found && existing.ModelName == target.ModelName && existing.Succeeded() {
		c.log.Info("reusing deployment", "name", target.DeploymentName, "model", target.ModelName)
		existing.Reused = true
		return existing, nil
	}

	sku := target.SKU
	if sku == "" {
		sku = "Standard"
	}
	capacity := target.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	body := deploymentResource{
		SKU: deploymentSKU{Name: sku, Capacity: capacity},
		Properties: deploymentProperties{
			Model: deploymentModel{
				Format:  "OpenAI",
				Name:    target.ModelName,
				Version: target.ModelVersion,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to encode deployment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resourceURL(target), bytes.NewReader(payload))
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Deployment{}, fmt.Errorf("management request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return Deployment{}, fmt.Errorf("deployment PUT returned %d: %s", resp.StatusCode, string(data))
	}

	deployment, err := decodeDeployment(resp.Body, target.DeploymentName)
	if err != nil {
		return Deployment{}, err
	}
	c.log.Info("deployment requested", "name", target.DeploymentName, "state", deployment.ProvisioningState)
	return deployment, nil
}

// Wait polls until provisioning reaches a terminal state.
func (c *Client) Wait(ctx context.Context, target Target, interval time.Duration, onPoll func(Deployment)) (Deployment, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deployment, found, err := c.get(ctx, target)
		if err != nil {
			return Deployment{}, err
		}
		if !found {
			return Deployment{}, fmt.Errorf("deployment %s disappeared while provisioning", target.DeploymentName)
		}
		if onPoll != nil {
			onPoll(deployment)
		}
		if deployment.Terminal() {
			if !deployment.Succeeded() {
				return deployment, fmt.Errorf("deployment %s ended in state %s", target.DeploymentName, deployment.ProvisioningState)
			}
			return deployment, nil
		}

		select {
		case <-ctx.Done():
			return deployment, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) get(ctx context.Context, target Target) (Deployment, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resourceURL(target), nil)
	if err != nil {
		return Deployment{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Deployment{}, false, fmt.Errorf("management request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Deployment{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return Deployment{}, false, fmt.Errorf("deployment GET returned %d: %s", resp.StatusCode, string(data))
	}

	deployment, err := decodeDeployment(resp.Body, target.DeploymentName)
	if err != nil {
		return Deployment{}, false, err
	}
	return deployment, true, nil
}

func (c *Client) resourceURL(target Target) string {
	return fmt.Sprintf(
		"%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.CognitiveServices/accounts/%s/deployments/%s?api-version=%s",
		c.baseURL, target.SubscriptionID, target.ResourceGroup, target.AccountName, target.DeploymentName, apiVersion)
}

func decodeDeployment(r io.Reader, name string) (Deployment, error) {
	var resource deploymentResource
	if err := json.NewDecoder(r).Decode(&resource); err != nil {
		return Deployment{}, fmt.Errorf("failed to decode deployment: %w", err)
	}
	if resource.Name == "" {
		resource.Name = name
	}
	return Deployment{
		Name:              resource.Name,
		ModelName:         resource.Properties.Model.Name,
		ModelVersion:      resource.Properties.Model.Version,
		ProvisioningState: resource.Properties.ProvisioningState,
	}, nil
}
