package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureSink) WriteLine(taskID, stream, line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// writeScript drops an executable shell script to stand in for the agent
// binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testAgentConfig(binary string, timeout time.Duration) config.AgentConfig {
	return config.AgentConfig{Binary: binary, Timeout: timeout, WorkdirRoot: "unused"}
}

func TestExecuteSuccess(t *testing.T) {
	script := writeScript(t, `echo 'working on it'
echo '{"type":"result","total_cost_usd":0.05,"usage":{"input_tokens":100,"output_tokens":50}}'
`)
	sink := &captureSink{}
	r := NewRunner(testAgentConfig(script, 30*time.Second), sink)

	result, err := r.Execute(context.Background(), &models.QueuedTask{TaskID: "t1", InputMessage: "do it"}, t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "working on it")
	assert.InDelta(t, 0.05, result.CostUSD, 1e-9)
	assert.Equal(t, 100, result.InputTokens)
	assert.Equal(t, 50, result.OutputTokens)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.NotEmpty(t, sink.lines, "output lines must reach the sink")
}

func TestExecuteFailureCapturesStderr(t *testing.T) {
	script := writeScript(t, `echo 'partial output'
echo 'something went wrong' >&2
exit 3
`)
	r := NewRunner(testAgentConfig(script, 30*time.Second), nil)

	result, err := r.Execute(context.Background(), &models.QueuedTask{TaskID: "t1"}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "something went wrong")
	assert.Contains(t, result.Output, "partial output")
}

func TestExecuteTimeout(t *testing.T) {
	// exec replaces the shell so the kill signal reaches the sleeping
	// process itself and the pipes close promptly.
	script := writeScript(t, "exec sleep 10\n")
	r := NewRunner(testAgentConfig(script, 200*time.Millisecond), nil)

	start := time.Now()
	result, err := r.Execute(context.Background(), &models.QueuedTask{TaskID: "t1"}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "execution timed out", result.Error)
	assert.Less(t, time.Since(start), 5*time.Second, "the process must be killed, not waited out")
}

func TestExecuteBinaryMissing(t *testing.T) {
	r := NewRunner(testAgentConfig("relay-test-no-such-binary", time.Second), nil)

	result, err := r.Execute(context.Background(), &models.QueuedTask{TaskID: "t1"}, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.BinaryMissing)
	assert.Contains(t, result.Error, "not found")
}

func TestExecuteSanitizesOutput(t *testing.T) {
	script := writeScript(t, `echo 'using GITHUB_TOKEN=supersecret123 for auth'
`)
	sink := &captureSink{}
	r := NewRunner(testAgentConfig(script, 30*time.Second), sink)

	result, err := r.Execute(context.Background(), &models.QueuedTask{TaskID: "t1"}, t.TempDir())
	require.NoError(t, err)

	assert.NotContains(t, result.Output, "supersecret123")
	assert.Contains(t, result.Output, "***REDACTED***")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, line := range sink.lines {
		assert.NotContains(t, line, "supersecret123")
	}
}
