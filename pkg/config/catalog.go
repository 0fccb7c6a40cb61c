package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/zavalabs/raft/internal/models"
)

// Model describes the underlying model behind a deployment.
type Model struct {
	Name    string `yaml:"name"`
	API     string `yaml:"api"`
	Version string `yaml:"version"`
}

// Finetuning carries the training SKU a deployment supports, when any.
type Finetuning struct {
	SKU string `yaml:"sku"`
}

// Deployment is one entry of the model catalog: a deployable model with the
// roles it may serve and the regions it is available in.
type Deployment struct {
	Name       string      `yaml:"name"`
	Platform   string      `yaml:"platform"`
	Regions    []string    `yaml:"regions"`
	Roles      []string    `yaml:"roles"`
	Model      Model       `yaml:"model"`
	Finetuning *Finetuning `yaml:"finetuning,omitempty"`
}

// SupportedIn reports whether the deployment is available in at least one of
// the given regions.
func (d *Deployment) SupportedIn(regions map[string]struct{}) bool {
	for _, r := range d.Regions {
		if _, ok := regions[r]; ok {
			return true
		}
	}
	return false
}

// HasRole reports whether the deployment may serve the given role.
func (d *Deployment) HasRole(role models.Role) bool {
	for _, r := range d.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// Catalog is the deployment catalog, normally read from ai.yaml.
type Catalog struct {
	Deployments []Deployment `yaml:"deployments"`
}

// LoadCatalog reads the catalog from path, falling back to the usual
// locations when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		locations := []string{
			"ai.yaml",
			filepath.Join("infra", "ai.yaml"),
			filepath.Join("infra", "azd", "ai.yaml"),
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}
	if path == "" {
		return nil, &models.ConfigurationError{Field: "catalog", Reason: "ai.yaml not found"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("error parsing catalog file: %w", err)
	}
	return &catalog, nil
}

// Roles returns every role named by any deployment, sorted.
func (c *Catalog) Roles() []string {
	seen := make(map[string]struct{})
	for _, d := range c.Deployments {
		for _, r := range d.Roles {
			seen[r] = struct{}{}
		}
	}
	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// Regions returns the set of all regions named by any deployment.
func (c *Catalog) Regions() map[string]struct{} {
	regions := make(map[string]struct{})
	for _, d := range c.Deployments {
		for _, r := range d.Regions {
			regions[r] = struct{}{}
		}
	}
	return regions
}

// Descriptor finds a deployment by name.
func (c *Catalog) Descriptor(name string) (*Deployment, error) {
	for i := range c.Deployments {
		if c.Deployments[i].Name == name {
			return &c.Deployments[i], nil
		}
	}
	return nil, &models.ConfigurationError{Field: "deployment", Reason: fmt.Sprintf("%q not found in catalog", name)}
}

// DeploymentNames lists deployments usable for role within regions, keeping
// teacher/student selections on one platform (provider licensing requires the
// teaching workflow to stay within a single platform).
func (c *Catalog) DeploymentNames(regions map[string]struct{}, role models.Role, selectedPlatforms map[models.Role]string) []string {
	var names []string
	for _, d := range c.Deployments {
		if !d.HasRole(role) || !d.SupportedIn(regions) {
			continue
		}
		if !platformCompliant(&d, role, selectedPlatforms) {
			continue
		}
		names = append(names, d.Name)
	}
	return names
}

func platformCompliant(d *Deployment, role models.Role, selected map[models.Role]string) bool {
	if len(selected) == 0 || d.Platform == "" {
		return true
	}
	if role != models.RoleTeacher && role != models.RoleStudent {
		return true
	}
	for r, platform := range selected {
		if r == models.RoleTeacher || r == models.RoleStudent {
			return d.Platform == platform
		}
	}
	return true
}
