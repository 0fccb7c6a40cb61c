package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zavalabs/raft/internal/models"
)

// ResolveOptions constrains role resolution.
type ResolveOptions struct {
	// Regions restricts candidate regions; empty means all catalog regions.
	Regions []string
	// Preferred deployment name per role; ignored when not a valid candidate.
	Preferred map[models.Role]string
	// PreferredRegion is used when still available after narrowing.
	PreferredRegion string
}

// Selection is the resolved role→deployment binding set plus the common
// region every selected deployment supports.
type Selection struct {
	Refs   map[models.Role]models.ModelRef
	Region string
}

// Resolve walks the roles in order, picking one deployment per role. Each
// selection narrows the candidate region set to the intersection with the
// chosen deployment's regions, so the final region works for every binding.
func (c *Catalog) Resolve(opts ResolveOptions) (*Selection, error) {
	regions := c.Regions()
	if len(regions) == 0 {
		return nil, &models.ConfigurationError{Field: "catalog", Reason: "no deployments define any region"}
	}

	if len(opts.Regions) > 0 {
		restricted := make(map[string]struct{})
		for _, r := range opts.Regions {
			if _, ok := regions[r]; ok {
				restricted[r] = struct{}{}
			}
		}
		if len(restricted) == 0 {
			return nil, &models.ConfigurationError{
				Field:  "region",
				Reason: fmt.Sprintf("none of %s available; catalog offers %s", strings.Join(opts.Regions, ", "), strings.Join(sortedKeys(regions), ", ")),
			}
		}
		regions = restricted
	}

	catalogRoles := make(map[string]struct{})
	for _, r := range c.Roles() {
		catalogRoles[r] = struct{}{}
	}

	refs := make(map[models.Role]models.ModelRef)
	selectedPlatforms := make(map[models.Role]string)

	for _, role := range models.AllRoles {
		if _, ok := catalogRoles[string(role)]; !ok {
			continue
		}
		if len(regions) == 0 {
			return nil, &models.ConfigurationError{Field: string(role), Reason: "no regions left for role"}
		}

		names := c.DeploymentNames(regions, role, selectedPlatforms)
		if len(names) == 0 {
			return nil, &models.ConfigurationError{
				Field:  string(role),
				Reason: fmt.Sprintf("no deployment available in regions %s", strings.Join(sortedKeys(regions), ", ")),
			}
		}

		selected := names[0]
		if want, ok := opts.Preferred[role]; ok && want != "" {
			found := false
			for _, n := range names {
				if n == want {
					selected, found = n, true
					break
				}
			}
			if !found {
				return nil, &models.ConfigurationError{
					Field:  string(role),
					Reason: fmt.Sprintf("deployment %q unavailable for role in selected regions", want),
				}
			}
		}

		descriptor, err := c.Descriptor(selected)
		if err != nil {
			return nil, err
		}

		regions = intersect(regions, descriptor.Regions)

		if descriptor.Platform != "" && (role == models.RoleTeacher || role == models.RoleStudent) {
			selectedPlatforms[role] = descriptor.Platform
		}

		ref := models.ModelRef{
			Role:       role,
			Deployment: descriptor.Name,
			Model:      descriptor.Model.Name,
			API:        descriptor.Model.API,
			Platform:   descriptor.Platform,
		}
		if descriptor.Finetuning != nil {
			ref.SKU = descriptor.Finetuning.SKU
		}
		refs[role] = ref
	}

	if len(regions) == 0 {
		return nil, &models.ConfigurationError{Field: "region", Reason: "no common region for all selected deployments"}
	}

	available := sortedKeys(regions)
	region := available[0]
	if opts.PreferredRegion != "" {
		if _, ok := regions[opts.PreferredRegion]; ok {
			region = opts.PreferredRegion
		}
	}

	return &Selection{Refs: refs, Region: region}, nil
}

func intersect(set map[string]struct{}, keep []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, k := range keep {
		if _, ok := set[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
