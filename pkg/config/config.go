package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable workflow parameters. Everything has a default so a
// bare `raft run` works against a configured environment.
type Config struct {
	Dataset struct {
		Name        string  `yaml:"name"`
		DocsPath    string  `yaml:"docs_path"`
		DocsURL     string  `yaml:"docs_url"`
		Questions   int     `yaml:"questions"`
		Distractors int     `yaml:"distractors"`
		ChunkSize   int     `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		Workers     int     `yaml:"workers"`
		QAThreshold int     `yaml:"qa_threshold"`
		TrainSplit  float64 `yaml:"train_split"`
		ValidSplit  float64 `yaml:"valid_split"`
		Sampling    string  `yaml:"sampling"`
	} `yaml:"dataset"`

	Finetune struct {
		Epochs      int `yaml:"epochs"`
		Seed        int `yaml:"seed"`
		MaxWaitMins int `yaml:"max_wait_minutes"`
		PollSeconds int `yaml:"poll_seconds"`
	} `yaml:"finetune"`

	Deploy struct {
		Capacity    int `yaml:"capacity"`
		PollSeconds int `yaml:"poll_seconds"`
	} `yaml:"deploy"`

	Eval struct {
		Workers     int  `yaml:"workers"`
		WithTeacher bool `yaml:"with_teacher"`
	} `yaml:"eval"`

	Limits struct {
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"limits"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`
}

// LoadConfig reads the workflow config file, trying default locations when
// path is empty, and falls back to defaults when none exists.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"raft.yaml",
			"raft.yml",
			filepath.Join(os.Getenv("HOME"), ".config/raft/config.yaml"),
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Dataset.Name == "" {
		config.Dataset.Name = "zava-articles"
	}
	if config.Dataset.DocsPath == "" {
		config.Dataset.DocsPath = filepath.Join("sample_data", "zava-articles")
	}
	if config.Dataset.Questions == 0 {
		config.Dataset.Questions = 2
	}
	if config.Dataset.Distractors == 0 {
		config.Dataset.Distractors = 3
	}
	if config.Dataset.ChunkSize == 0 {
		config.Dataset.ChunkSize = 512
	}
	if config.Dataset.ChunkOverlap == 0 {
		config.Dataset.ChunkOverlap = 64
	}
	if config.Dataset.Workers == 0 {
		config.Dataset.Workers = 2
	}
	if config.Dataset.TrainSplit == 0 {
		config.Dataset.TrainSplit = 0.8
	}
	if config.Dataset.ValidSplit == 0 {
		config.Dataset.ValidSplit = 0.1
	}
	if config.Dataset.Sampling == "" {
		config.Dataset.Sampling = "random"
	}

	if config.Finetune.Epochs == 0 {
		config.Finetune.Epochs = 3
	}
	if config.Finetune.Seed == 0 {
		config.Finetune.Seed = 105
	}
	if config.Finetune.PollSeconds == 0 {
		config.Finetune.PollSeconds = 10
	}

	if config.Deploy.Capacity == 0 {
		config.Deploy.Capacity = 4
	}
	if config.Deploy.PollSeconds == 0 {
		config.Deploy.PollSeconds = 5
	}

	if config.Eval.Workers == 0 {
		config.Eval.Workers = 2
	}

	if config.Limits.RateLimit == 0 {
		config.Limits.RateLimit = 2.0
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if name := os.Getenv("DATASET_NAME"); name != "" {
		config.Dataset.Name = name
	}
}
