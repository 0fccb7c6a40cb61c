// Package loader turns corpus sources into knowledge documents: a directory
// of text files for local corpora, or a crawled documentation site.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zavalabs/raft/internal/models"
)

// FSLoaderConfig configures the filesystem loader.
type FSLoaderConfig struct {
	Path       string
	Extensions []string
	OnProgress func(path string)
}

// FSLoader reads knowledge documents from a directory tree.
type FSLoader struct {
	config FSLoaderConfig
}

// NewFSLoader creates a loader rooted at path.
func NewFSLoader(config FSLoaderConfig) (*FSLoader, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("document path is required")
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".txt", ".md"}
	}
	return &FSLoader{config: config}, nil
}

// Load walks the tree and returns one Document per matching file.
func (l *FSLoader) Load(ctx context.Context) ([]models.Document, error) {
	info, err := os.Stat(l.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document path: %w", err)
	}

	var paths []string
	if !info.IsDir() {
		paths = []string{l.config.Path}
	} else {
		err = filepath.WalkDir(l.config.Path, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if l.allowed(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk document path: %w", err)
		}
	}

	var documents []models.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return documents, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		if l.config.OnProgress != nil {
			l.config.OnProgress(path)
		}

		documents = append(documents, models.Document{
			ID:      uuid.NewString(),
			Source:  path,
			Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Content: string(data),
			Metadata: map[string]interface{}{
				"time": time.Now(),
			},
		})
	}

	if len(documents) == 0 {
		return nil, fmt.Errorf("no documents found under %s", l.config.Path)
	}
	return documents, nil
}

func (l *FSLoader) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range l.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
