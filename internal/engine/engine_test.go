package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/pkg/models"
)

type recordingExecutor struct {
	mu       sync.Mutex
	executed []string
	delay    time.Duration
	result   *models.CLIResult
}

func (r *recordingExecutor) Execute(ctx context.Context, task *models.QueuedTask) (*models.CLIResult, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.executed = append(r.executed, task.TaskID)
	r.mu.Unlock()
	res := r.result
	if res == nil {
		res = &models.CLIResult{Success: true, Output: "done"}
	}
	return res, nil
}

type recordingPoster struct {
	mu     sync.Mutex
	posted []string
}

func (r *recordingPoster) PostResult(ctx context.Context, task *models.QueuedTask, result *models.CLIResult) error {
	r.mu.Lock()
	r.posted = append(r.posted, task.TaskID)
	r.mu.Unlock()
	return nil
}

func TestEngineProcessesQueuedTasks(t *testing.T) {
	q := queue.NewMemoryQueue()
	exec := &recordingExecutor{}
	post := &recordingPoster{}
	e := New(q, exec, post, nil, 2, 20*time.Millisecond)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, &models.QueuedTask{TaskID: id, Provider: models.ProviderGitHub, CreatedAt: time.Now()}))
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		post.mu.Lock()
		defer post.mu.Unlock()
		return len(post.posted) == 3
	}, 3*time.Second, 10*time.Millisecond)

	e.Shutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after shutdown")
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, exec.executed)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, post.posted)
}

func TestEngineShutdownWaitsForInFlight(t *testing.T) {
	q := queue.NewMemoryQueue()
	exec := &recordingExecutor{delay: 150 * time.Millisecond}
	post := &recordingPoster{}
	e := New(q, exec, post, nil, 1, 20*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &models.QueuedTask{TaskID: "slow", CreatedAt: time.Now()}))

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Let the worker pick up the task, then request shutdown mid-flight.
	time.Sleep(50 * time.Millisecond)
	e.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}

	post.mu.Lock()
	defer post.mu.Unlock()
	assert.Equal(t, []string{"slow"}, post.posted, "in-flight task must finish and post during shutdown")
}

func TestEngineDoesNotPostWhenBinaryMissing(t *testing.T) {
	q := queue.NewMemoryQueue()
	exec := &recordingExecutor{result: &models.CLIResult{Success: false, BinaryMissing: true, Error: "not found"}}
	post := &recordingPoster{}
	e := New(q, exec, post, nil, 1, 20*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &models.QueuedTask{TaskID: "t", CreatedAt: time.Now()}))

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.executed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	e.Shutdown()
	<-done

	post.mu.Lock()
	defer post.mu.Unlock()
	assert.Empty(t, post.posted, "a missing binary is an operator alert, not a posted comment")
}

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
}

func (c *countingObserver) TaskStarted(*models.QueuedTask) { c.started.Add(1) }

func (c *countingObserver) TaskFinished(*models.QueuedTask, *models.CLIResult) {
	c.finished.Add(1)
}

func TestEngineNotifiesObserver(t *testing.T) {
	q := queue.NewMemoryQueue()
	obs := &countingObserver{}
	e := New(q, &recordingExecutor{}, &recordingPoster{}, obs, 1, 20*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &models.QueuedTask{TaskID: "t", CreatedAt: time.Now()}))

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return obs.finished.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	e.Shutdown()
	<-done

	assert.Equal(t, int32(1), obs.started.Load())
	assert.Equal(t, int32(1), obs.finished.Load())
}
