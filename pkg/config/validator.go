package config

import (
	"fmt"
	"net/url"

	"github.com/zavalabs/raft/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var knownRoles = map[string]struct{}{
	"teacher": {}, "student": {}, "baseline": {}, "judge": {}, "embedding": {},
}

var knownAPIs = map[models.ModelAPI]struct{}{
	models.APIChatCompletions: {},
	models.APICompletions:     {},
	models.APIEmbeddings:      {},
}

// Validate checks the catalog for structural problems.
func (c *Catalog) Validate() []ValidationError {
	var errors []ValidationError

	if len(c.Deployments) == 0 {
		errors = append(errors, ValidationError{
			Field:   "deployments",
			Message: "catalog defines no deployments",
		})
		return errors
	}

	seen := make(map[string]struct{})
	for _, d := range c.Deployments {
		field := fmt.Sprintf("deployments.%s", d.Name)

		if d.Name == "" {
			errors = append(errors, ValidationError{
				Field:   "deployments",
				Message: "deployment is missing a name",
			})
			continue
		}
		if _, dup := seen[d.Name]; dup {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "duplicate deployment name",
			})
		}
		seen[d.Name] = struct{}{}

		if len(d.Regions) == 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".regions",
				Message: "at least one region is required",
			})
		}
		if len(d.Roles) == 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".roles",
				Message: "at least one role is required",
			})
		}
		for _, r := range d.Roles {
			if _, ok := knownRoles[r]; !ok {
				errors = append(errors, ValidationError{
					Field:   field + ".roles",
					Message: fmt.Sprintf("unknown role %q", r),
				})
			}
		}
		if d.Model.Name == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".model.name",
				Message: "model name is required",
			})
		}
		if d.Model.API == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".model.api",
				Message: "model api is required",
			})
		} else if _, ok := knownAPIs[models.ModelAPI(d.Model.API)]; !ok {
			errors = append(errors, ValidationError{
				Field:   field + ".model.api",
				Message: fmt.Sprintf("unknown model api %q", d.Model.API),
			})
		}
		if d.Finetuning != nil && d.Finetuning.SKU == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".finetuning.sku",
				Message: "finetuning sku name is required when finetuning is declared",
			})
		}
	}

	return errors
}

// Validate checks the workflow config for out-of-range parameters.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Dataset.Questions < 1 {
		errors = append(errors, ValidationError{
			Field:   "dataset.questions",
			Message: "questions per chunk must be positive",
		})
	}
	if c.Dataset.Distractors < 0 {
		errors = append(errors, ValidationError{
			Field:   "dataset.distractors",
			Message: "distractors cannot be negative",
		})
	}
	if c.Dataset.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "dataset.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Dataset.ChunkOverlap < 0 || c.Dataset.ChunkOverlap >= c.Dataset.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "dataset.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}
	if c.Dataset.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "dataset.workers",
			Message: "workers must be positive",
		})
	}
	if c.Dataset.TrainSplit <= 0 || c.Dataset.TrainSplit >= 1 {
		errors = append(errors, ValidationError{
			Field:   "dataset.train_split",
			Message: "train_split must be between 0 and 1",
		})
	}
	if c.Dataset.ValidSplit < 0 || c.Dataset.TrainSplit+c.Dataset.ValidSplit >= 1 {
		errors = append(errors, ValidationError{
			Field:   "dataset.valid_split",
			Message: "train_split plus valid_split must leave room for the eval split",
		})
	}
	if c.Dataset.Sampling != "random" && c.Dataset.Sampling != "semantic" {
		errors = append(errors, ValidationError{
			Field:   "dataset.sampling",
			Message: "sampling must be random or semantic",
		})
	}

	if c.Finetune.Epochs < 1 {
		errors = append(errors, ValidationError{
			Field:   "finetune.epochs",
			Message: "epochs must be positive",
		})
	}
	if c.Limits.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "limits.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}
	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	return errors
}
