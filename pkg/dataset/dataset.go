// Package dataset persists synthetic examples as JSONL and prepares the
// train/validation/evaluation splits and the chat-format files consumed by
// fine-tuning.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/zavalabs/raft/internal/models"
)

// WriteJSONL writes one JSON object per line, creating parent directories.
func WriteJSONL[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadJSONL reads a JSONL file written by WriteJSONL.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var records []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// Splits holds the three partitions of a generated dataset.
type Splits struct {
	Train []models.SyntheticExample
	Valid []models.SyntheticExample
	Eval  []models.SyntheticExample
}

// Split shuffles examples with the given seed and partitions them by the
// train and validation fractions; the remainder becomes the evaluation set.
func Split(examples []models.SyntheticExample, trainFrac, validFrac float64, seed int64) (Splits, error) {
	if trainFrac <= 0 || validFrac < 0 || trainFrac+validFrac >= 1 {
		return Splits{}, fmt.Errorf("invalid split fractions: train=%.2f valid=%.2f", trainFrac, validFrac)
	}
	if len(examples) < 3 {
		return Splits{}, fmt.Errorf("need at least 3 examples to split, have %d", len(examples))
	}

	shuffled := make([]models.SyntheticExample, len(examples))
	copy(shuffled, examples)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	trainEnd := int(float64(len(shuffled)) * trainFrac)
	validEnd := trainEnd + int(float64(len(shuffled))*validFrac)
	if trainEnd == 0 {
		trainEnd = 1
	}
	if validEnd <= trainEnd {
		validEnd = trainEnd + 1
	}
	if validEnd >= len(shuffled) {
		validEnd = len(shuffled) - 1
	}

	return Splits{
		Train: shuffled[:trainEnd],
		Valid: shuffled[trainEnd:validEnd],
		Eval:  shuffled[validEnd:],
	}, nil
}

// WriteMeta writes the dataset descriptor next to the dataset files.
func WriteMeta(path string, meta models.DatasetMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset meta: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadMeta loads a dataset descriptor written by WriteMeta.
func ReadMeta(path string) (models.DatasetMeta, error) {
	var meta models.DatasetMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return meta, nil
}

// UniqueQuestions reports whether no two examples share a question, compared
// case-insensitively with internal whitespace collapsed.
func UniqueQuestions(examples []models.SyntheticExample) bool {
	seen := make(map[string]bool, len(examples))
	for _, example := range examples {
		key := normalizeQuestion(example.Question)
		if seen[key] {
			return false
		}
		seen[key] = true
	}
	return true
}
