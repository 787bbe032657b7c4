// Package queue provides the priority task queue feeding the worker engine.
// Two backends exist: an in-process heap for dev and tests, and a Redis
// sorted set for durable multi-process deployments.
package queue

import (
	"context"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// TaskQueue is the contract between the ingress router (producer) and the
// worker engine (consumer).
//
// Ordering: strictly by priority (lower value first), FIFO within a
// priority level. Delivery is at-most-once: a dequeued task is gone from
// the queue even if the worker crashes.
type TaskQueue interface {
	// Enqueue adds a task. The task's TaskID and CreatedAt must already be
	// assigned; the queue never mutates the task.
	Enqueue(ctx context.Context, task *models.QueuedTask) error

	// Dequeue blocks until a task is available or timeout elapses. A nil
	// task with a nil error means the timeout expired, which is the
	// engine's cue to check its shutdown flag.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.QueuedTask, error)

	// Size reports the number of waiting tasks.
	Size(ctx context.Context) (int, error)

	// Close releases backend resources. Blocked Dequeue calls return.
	Close() error
}
