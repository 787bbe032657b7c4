package engine

import (
	"context"
	"fmt"

	"github.com/jordanhubbard/relay/internal/cli"
	"github.com/jordanhubbard/relay/internal/workdir"
	"github.com/jordanhubbard/relay/pkg/models"
)

// Executor runs one task to completion and returns its result.
type Executor interface {
	Execute(ctx context.Context, task *models.QueuedTask) (*models.CLIResult, error)
}

// CLIExecutor pairs the agent runner with per-task working directories:
// each execution gets a fresh directory that is removed when the agent
// exits, whatever the outcome.
type CLIExecutor struct {
	runner   *cli.Runner
	workdirs *workdir.Manager
}

// NewCLIExecutor builds the production executor.
func NewCLIExecutor(runner *cli.Runner, workdirs *workdir.Manager) *CLIExecutor {
	return &CLIExecutor{runner: runner, workdirs: workdirs}
}

func (e *CLIExecutor) Execute(ctx context.Context, task *models.QueuedTask) (*models.CLIResult, error) {
	dir, err := e.workdirs.Create(task.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to provision workdir for task %s: %w", task.TaskID, err)
	}
	defer e.workdirs.Remove(task.TaskID)

	return e.runner.Execute(ctx, task, dir)
}
