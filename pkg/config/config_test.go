package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATASET_NAME", "")

	cfg, err := config.LoadConfig(writeFile(t, "raft.yaml", "dataset: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, "zava-articles", cfg.Dataset.Name)
	assert.Equal(t, 2, cfg.Dataset.Questions)
	assert.Equal(t, 3, cfg.Dataset.Distractors)
	assert.Equal(t, 512, cfg.Dataset.ChunkSize)
	assert.Equal(t, 64, cfg.Dataset.ChunkOverlap)
	assert.Equal(t, 0.8, cfg.Dataset.TrainSplit)
	assert.Equal(t, 0.1, cfg.Dataset.ValidSplit)
	assert.Equal(t, "random", cfg.Dataset.Sampling)
	assert.Equal(t, 3, cfg.Finetune.Epochs)
	assert.Equal(t, 105, cfg.Finetune.Seed)
	assert.Equal(t, 4, cfg.Deploy.Capacity)
	assert.Equal(t, 2.0, cfg.Limits.RateLimit)
	assert.Equal(t, "chunks", cfg.Database.TableName)
	assert.Equal(t, 1536, cfg.Database.VectorDim)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATASET_NAME", "")

	cfg, err := config.LoadConfig(writeFile(t, "raft.yaml", `
dataset:
  name: support-kb
  questions: 5
  sampling: semantic
finetune:
  epochs: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "support-kb", cfg.Dataset.Name)
	assert.Equal(t, 5, cfg.Dataset.Questions)
	assert.Equal(t, "semantic", cfg.Dataset.Sampling)
	assert.Equal(t, 1, cfg.Finetune.Epochs)
	// Untouched fields still get defaults.
	assert.Equal(t, 3, cfg.Dataset.Distractors)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/raft")
	t.Setenv("DATASET_NAME", "from-env")

	cfg, err := config.LoadConfig(writeFile(t, "raft.yaml", "dataset: {name: from-file}\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/raft", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Dataset.Name)
}

func TestConfigValidate(t *testing.T) {
	valid := func(t *testing.T) *config.Config {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("DATASET_NAME", "")
		cfg, err := config.LoadConfig(writeFile(t, "raft.yaml", "dataset: {}\n"))
		require.NoError(t, err)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.Empty(t, valid(t).Validate())
	})

	t.Run("overlap must stay below chunk size", func(t *testing.T) {
		cfg := valid(t)
		cfg.Dataset.ChunkOverlap = cfg.Dataset.ChunkSize
		errs := cfg.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Field, "chunk_overlap")
	})

	t.Run("splits must leave room for eval", func(t *testing.T) {
		cfg := valid(t)
		cfg.Dataset.TrainSplit = 0.9
		cfg.Dataset.ValidSplit = 0.1
		errs := cfg.Validate()
		require.NotEmpty(t, errs)
	})

	t.Run("unknown sampling strategy", func(t *testing.T) {
		cfg := valid(t)
		cfg.Dataset.Sampling = "stratified"
		errs := cfg.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Field, "sampling")
	})

	t.Run("collects multiple problems", func(t *testing.T) {
		cfg := valid(t)
		cfg.Dataset.Questions = 0
		cfg.Finetune.Epochs = 0
		cfg.Limits.RateLimit = 0
		assert.Len(t, cfg.Validate(), 3)
	})
}

const catalogYAML = `
deployments:
  - name: gpt-4o
    platform: azure-openai
    regions: [eastus2, swedencentral]
    roles: [teacher, judge]
    model: {name: gpt-4o, api: chat-completions, version: "2024-08-06"}
  - name: gpt-4o-mini
    platform: azure-openai
    regions: [eastus2]
    roles: [student, baseline]
    model: {name: gpt-4o-mini, api: chat-completions, version: "2024-07-18"}
    finetuning: {sku: Standard}
  - name: text-embedding-3-large
    platform: azure-openai
    regions: [eastus2, swedencentral]
    roles: [embedding]
    model: {name: text-embedding-3-large, api: embeddings, version: "1"}
`

func loadCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	catalog, err := config.LoadCatalog(writeFile(t, "ai.yaml", catalogYAML))
	require.NoError(t, err)
	require.Empty(t, catalog.Validate())
	return catalog
}

func TestCatalogValidate(t *testing.T) {
	t.Run("empty catalog", func(t *testing.T) {
		catalog := &config.Catalog{}
		errs := catalog.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "deployments", errs[0].Field)
	})

	t.Run("structural problems", func(t *testing.T) {
		catalog, err := config.LoadCatalog(writeFile(t, "ai.yaml", `
deployments:
  - name: broken
    regions: []
    roles: [pilot]
    model: {name: ""}
  - name: broken
    regions: [eastus2]
    roles: [teacher]
    model: {name: gpt-4o, api: chat-completions}
    finetuning: {sku: ""}
`))
		require.NoError(t, err)

		errs := catalog.Validate()
		fields := make([]string, 0, len(errs))
		for _, e := range errs {
			fields = append(fields, e.Field)
		}
		assert.Contains(t, fields, "deployments.broken.regions")
		assert.Contains(t, fields, "deployments.broken.roles")
		assert.Contains(t, fields, "deployments.broken.model.name")
		assert.Contains(t, fields, "deployments.broken.model.api")
		assert.Contains(t, fields, "deployments.broken.finetuning.sku")
		assert.Contains(t, fields, "deployments.broken") // duplicate name
	})

	t.Run("unknown model api", func(t *testing.T) {
		catalog, err := config.LoadCatalog(writeFile(t, "ai.yaml", `
deployments:
  - name: gpt-4o
    regions: [eastus2]
    roles: [teacher]
    model: {name: gpt-4o, api: responses}
`))
		require.NoError(t, err)

		errs := catalog.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "deployments.gpt-4o.model.api", errs[0].Field)
		assert.Contains(t, errs[0].Message, `"responses"`)
	})
}

func TestResolveNarrowsRegions(t *testing.T) {
	selection, err := loadCatalog(t).Resolve(config.ResolveOptions{})
	require.NoError(t, err)

	// The student is only in eastus2, so the common region narrows to it.
	assert.Equal(t, "eastus2", selection.Region)
	require.Len(t, selection.Refs, 5)

	student := selection.Refs[models.RoleStudent]
	assert.Equal(t, "gpt-4o-mini", student.Deployment)
	assert.Equal(t, "Standard", student.SKU)
	assert.Equal(t, "azure-openai", student.Platform)
}

func TestResolveRejectsUnavailableRegion(t *testing.T) {
	_, err := loadCatalog(t).Resolve(config.ResolveOptions{Regions: []string{"westeurope"}})
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "region", cfgErr.Field)
}

func TestResolveHonorsPreferredDeployment(t *testing.T) {
	catalog := loadCatalog(t)
	catalog.Deployments = append(catalog.Deployments, config.Deployment{
		Name:     "gpt-4o-judge",
		Platform: "azure-openai",
		Regions:  []string{"eastus2"},
		Roles:    []string{"judge"},
		Model:    config.Model{Name: "gpt-4o", API: "chat-completions"},
	})

	selection, err := catalog.Resolve(config.ResolveOptions{
		Preferred: map[models.Role]string{models.RoleJudge: "gpt-4o-judge"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-judge", selection.Refs[models.RoleJudge].Deployment)

	_, err = catalog.Resolve(config.ResolveOptions{
		Preferred: map[models.Role]string{models.RoleJudge: "nonexistent"},
	})
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "judge", cfgErr.Field)
}

func TestResolveHonorsPreferredRegion(t *testing.T) {
	catalog, err := config.LoadCatalog(writeFile(t, "ai.yaml", `
deployments:
  - name: gpt-4o
    regions: [eastus2, swedencentral]
    roles: [teacher, student, baseline, judge, embedding]
    model: {name: gpt-4o, api: chat-completions}
`))
	require.NoError(t, err)

	selection, err := catalog.Resolve(config.ResolveOptions{PreferredRegion: "swedencentral"})
	require.NoError(t, err)
	assert.Equal(t, "swedencentral", selection.Region)

	// An unavailable preference falls back to the first common region.
	selection, err = catalog.Resolve(config.ResolveOptions{PreferredRegion: "westus"})
	require.NoError(t, err)
	assert.Equal(t, "eastus2", selection.Region)
}

func TestResolveEnforcesPlatformConsistency(t *testing.T) {
	catalog, err := config.LoadCatalog(writeFile(t, "ai.yaml", `
deployments:
  - name: gpt-4o
    platform: azure-openai
    regions: [eastus2]
    roles: [teacher, judge, embedding, baseline]
    model: {name: gpt-4o, api: chat-completions}
  - name: llama-student
    platform: azure-ai
    regions: [eastus2]
    roles: [student]
    model: {name: llama-3-8b, api: chat-completions}
    finetuning: {sku: Standard}
`))
	require.NoError(t, err)
	require.Empty(t, catalog.Validate())

	// Teacher resolves first to azure-openai, which rules out the only
	// student candidate on a different platform.
	_, err = catalog.Resolve(config.ResolveOptions{})
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "student", cfgErr.Field)
}
