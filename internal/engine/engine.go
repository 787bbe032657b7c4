// Package engine drives the worker pool: dequeue, execute, post, repeat.
package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jordanhubbard/relay/internal/metrics"
	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/pkg/models"
)

// ResultPoster delivers a finished task's result to its source.
type ResultPoster interface {
	PostResult(ctx context.Context, task *models.QueuedTask, result *models.CLIResult) error
}

// Observer is notified of task lifecycle transitions. The event bus and
// the activity log both hang off this.
type Observer interface {
	TaskStarted(task *models.QueuedTask)
	TaskFinished(task *models.QueuedTask, result *models.CLIResult)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) TaskStarted(*models.QueuedTask)                     {}
func (NopObserver) TaskFinished(*models.QueuedTask, *models.CLIResult) {}

// Engine owns the dequeue loop. A weighted semaphore caps concurrent
// executions at the configured worker count; the dispatcher goroutine
// blocks on Dequeue and hands each task to a fresh goroutine holding a
// semaphore slot.
type Engine struct {
	queue          queue.TaskQueue
	executor       Executor
	poster         ResultPoster
	observer       Observer
	sem            *semaphore.Weighted
	numWorkers     int64
	dequeueTimeout time.Duration

	stopping atomic.Bool
}

// New builds an engine. A nil observer disables notifications.
func New(q queue.TaskQueue, executor Executor, poster ResultPoster, observer Observer, numWorkers int, dequeueTimeout time.Duration) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		queue:          q,
		executor:       executor,
		poster:         poster,
		observer:       observer,
		sem:            semaphore.NewWeighted(int64(numWorkers)),
		numWorkers:     int64(numWorkers),
		dequeueTimeout: dequeueTimeout,
	}
}

// Run blocks until Shutdown is called (or ctx is cancelled), then waits for
// in-flight executions to finish. The shutdown flag is only checked between
// dequeues, so a running agent is never interrupted by a graceful stop.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[Engine] starting with %d workers", e.numWorkers)

	for {
		if e.stopping.Load() || ctx.Err() != nil {
			break
		}

		task, err := e.queue.Dequeue(ctx, e.dequeueTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				break
			}
			log.Printf("[Engine] dequeue failed: %v", err)
			continue
		}
		if task == nil {
			// Timeout; loop around to re-check the shutdown flag.
			continue
		}

		if err := e.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a free worker. The task
			// was already dequeued; run it anyway rather than lose it.
			e.handle(task)
			break
		}

		go func() {
			defer e.sem.Release(1)
			e.handle(task)
		}()
	}

	// Draining the full semaphore waits for every in-flight execution.
	if err := e.sem.Acquire(context.Background(), e.numWorkers); err != nil {
		return err
	}
	e.sem.Release(e.numWorkers)

	log.Printf("[Engine] stopped")
	return nil
}

// Shutdown asks the engine to stop after in-flight tasks complete.
func (e *Engine) Shutdown() {
	e.stopping.Store(true)
	log.Printf("[Engine] shutdown requested")
}

// handle executes one task and posts its result. It runs under a
// background context so graceful shutdown never kills a paid-for agent
// run.
func (e *Engine) handle(task *models.QueuedTask) {
	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	log.Printf("[Engine] task %s: executing (%s, priority %s)", task.TaskID, task.Provider, task.Priority)
	e.observer.TaskStarted(task)

	ctx := context.Background()
	result, err := e.executor.Execute(ctx, task)
	if err != nil {
		log.Printf("[Engine] task %s: executor error: %v", task.TaskID, err)
		result = &models.CLIResult{Success: false, Error: err.Error()}
	}

	status := "success"
	switch {
	case result.BinaryMissing:
		status = "binary_missing"
	case !result.Success:
		status = "failure"
	}
	metrics.TasksCompleted.WithLabelValues(string(task.Provider), status).Inc()
	metrics.TaskDuration.WithLabelValues(string(task.Provider)).Observe(result.Duration.Seconds())
	if result.CostUSD > 0 {
		metrics.TaskCostUSD.WithLabelValues(string(task.Provider)).Add(result.CostUSD)
	}

	// A missing binary is an operator problem; posting "the agent is not
	// installed" to end users helps nobody.
	if result.BinaryMissing {
		log.Printf("[Engine] task %s: agent binary missing, result not posted", task.TaskID)
		e.observer.TaskFinished(task, result)
		return
	}

	if err := e.poster.PostResult(ctx, task, result); err != nil {
		// Terminal: the task is not re-queued on post failure.
		log.Printf("[Engine] task %s: result lost, post failed: %v", task.TaskID, err)
	}

	e.observer.TaskFinished(task, result)
}
