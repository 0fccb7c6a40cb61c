// Package finetune uploads training files, submits fine-tuning jobs, and
// polls them to completion against either the native or the gateway API.
package finetune

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/logger"
)

// Client wraps the provider's file and fine-tuning APIs for the student role.
type Client struct {
	api openai.Client
	log *logger.Logger
}

// NewClient builds a client for the endpoint, choosing gateway or native
// authentication from the endpoint's credential style.
func NewClient(endpoint llm.Endpoint) (*Client, error) {
	var opts []option.RequestOption
	if endpoint.Gateway() {
		opts = append(opts,
			azure.WithEndpoint(endpoint.AzureEndpoint, endpoint.APIVersion),
			azure.WithAPIKey(endpoint.APIKey),
		)
	} else {
		if endpoint.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(endpoint.BaseURL))
		}
		opts = append(opts, option.WithAPIKey(endpoint.APIKey))
	}

	return &Client{
		api: openai.NewClient(opts...),
		log: logger.New("finetune"),
	}, nil
}

// UploadDataset uploads a training or validation file, reusing a previously
// uploaded file with identical content. The remote filename embeds a content
// hash so reuse survives across runs and machines.
func (c *Client) UploadDataset(ctx context.Context, path, kind string) (string, error) {
	hash, err := hashFile(path)
	if err != nil {
		return "", err
	}
	remoteName := fmt.Sprintf("raft_%s_%s%s", kind, hash[:16], filepath.Ext(path))

	existing, err := c.findFile(ctx, remoteName)
	if err != nil {
		return "", err
	}
	if existing != "" {
		c.log.Info("reusing uploaded file", "name", remoteName, "file_id", existing)
		return existing, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	uploaded, err := c.api.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(f, remoteName, "application/jsonl"),
		Purpose: openai.FilePurposeFineTune,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}

	c.log.Info("uploaded file", "name", remoteName, "file_id", uploaded.ID)
	return uploaded.ID, nil
}

func (c *Client) findFile(ctx context.Context, remoteName string) (string, error) {
	iter := c.api.Files.ListAutoPaging(ctx, openai.FileListParams{})
	for iter.Next() {
		file := iter.Current()
		if file.Filename == remoteName {
			return file.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list files: %w", err)
	}
	return "", nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func jobFromAPI(job *openai.FineTuningJob) models.FineTuneJob {
	out := models.FineTuneJob{
		ID:             job.ID,
		BaseModel:      job.Model,
		TrainingFileID: job.TrainingFile,
		Status:         mapStatus(job.Status),
		FineTunedModel: job.FineTunedModel,
	}
	if job.ValidationFile != "" {
		out.ValidationFileID = job.ValidationFile
	}
	if job.Error.Message != "" {
		out.FailureReason = job.Error.Message
	}
	return out
}

func mapStatus(status openai.FineTuningJobStatus) models.JobStatus {
	switch status {
	case openai.FineTuningJobStatusValidatingFiles, openai.FineTuningJobStatusQueued:
		return models.JobQueued
	case openai.FineTuningJobStatusRunning:
		return models.JobRunning
	case openai.FineTuningJobStatusSucceeded:
		return models.JobSucceeded
	case openai.FineTuningJobStatusFailed:
		return models.JobFailed
	case openai.FineTuningJobStatusCancelled:
		return models.JobCancelled
	default:
		return models.JobStatus(status)
	}
}
