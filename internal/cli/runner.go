package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

// StreamSink receives sanitized output lines as the agent produces them.
// The websocket streaming handler and the activity log both implement it.
type StreamSink interface {
	WriteLine(taskID, stream, line string)
}

// NopSink discards all lines.
type NopSink struct{}

func (NopSink) WriteLine(string, string, string) {}

// Runner executes the external agent binary, one process per task, inside
// the task's working directory.
type Runner struct {
	cfg  config.AgentConfig
	sink StreamSink
}

// NewRunner builds a runner. A nil sink disables streaming.
func NewRunner(cfg config.AgentConfig, sink StreamSink) *Runner {
	if sink == nil {
		sink = NopSink{}
	}
	return &Runner{cfg: cfg, sink: sink}
}

// Execute runs the agent on the task's input message and waits for it to
// finish. The returned result is always non-nil; Success=false failures
// are normal outcomes (the poster reports them upstream), while a non-nil
// error marks failures of the runner itself.
func (r *Runner) Execute(ctx context.Context, task *models.QueuedTask, workdir string) (*models.CLIResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := []string{"-p", task.InputMessage, "--output-format", "stream-json", "--verbose"}
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if len(r.cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(r.cfg.AllowedTools, ","))
	}

	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)
	cmd.Dir = workdir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			// A missing binary is a deployment problem, not a task failure.
			log.Printf("[CLI] agent binary %q not found", r.cfg.Binary)
			return &models.CLIResult{
				Success:       false,
				BinaryMissing: true,
				Error:         fmt.Sprintf("agent binary %q not found in PATH", r.cfg.Binary),
				Duration:      time.Since(start),
			}, nil
		}
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	log.Printf("[CLI] task %s: started %s (pid %d)", task.TaskID, r.cfg.Binary, cmd.Process.Pid)

	// Both pipes are drained concurrently so the process can't block on a
	// full pipe buffer while we read the other stream.
	var wg sync.WaitGroup
	var outBuf, errBuf strings.Builder

	drain := func(name string, rd *bufio.Scanner, buf *strings.Builder) {
		defer wg.Done()
		for rd.Scan() {
			line := rd.Text()
			buf.WriteString(line)
			buf.WriteByte('\n')
			r.sink.WriteLine(task.TaskID, name, Sanitize(line))
		}
	}

	outScanner := bufio.NewScanner(stdout)
	outScanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	errScanner := bufio.NewScanner(stderr)
	errScanner.Buffer(make([]byte, 64*1024), 1024*1024)

	wg.Add(2)
	go drain("stdout", outScanner, &outBuf)
	go drain("stderr", errScanner, &errBuf)
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	rawOut := outBuf.String()
	costUSD, inTokens, outTokens := extractUsage(rawOut)

	result := &models.CLIResult{
		Output:       Sanitize(rawOut),
		CostUSD:      costUSD,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		Duration:     duration,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Error = "execution timed out"
		log.Printf("[CLI] task %s: killed after %v", task.TaskID, r.cfg.Timeout)
	case waitErr != nil:
		result.Error = strings.TrimSpace(Sanitize(errBuf.String()))
		if result.Error == "" {
			result.Error = waitErr.Error()
		}
		log.Printf("[CLI] task %s: agent failed: %v", task.TaskID, waitErr)
	default:
		result.Success = true
		log.Printf("[CLI] task %s: completed in %v (cost $%.4f)", task.TaskID, duration.Round(time.Millisecond), costUSD)
	}

	return result, nil
}
