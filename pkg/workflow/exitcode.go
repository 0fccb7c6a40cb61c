package workflow

import (
	"errors"
	"os"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/finetune"
)

// Process exit codes. Warnings mean the stage completed but produced partial
// results the operator should look at.
const (
	ExitOK       = 0
	ExitConfig   = 1
	ExitRemote   = 2
	ExitWarnings = 3
)

// ExitCode classifies an error into the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var configErr *models.ConfigurationError
	var pathErr *os.PathError
	if errors.As(err, &configErr) || errors.As(err, &pathErr) {
		return ExitConfig
	}

	if errors.Is(err, finetune.ErrStillRunning) {
		return ExitWarnings
	}

	return ExitRemote
}
