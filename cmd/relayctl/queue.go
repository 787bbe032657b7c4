package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/pkg/models"
)

func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manipulate the task queue",
	}
	cmd.AddCommand(newQueueStatusCommand())
	cmd.AddCommand(newQueueEnqueueCommand())
	return cmd
}

func newQueueStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/queue")
		},
	}
}

// newQueueEnqueueCommand injects a task directly into a Redis-backed queue,
// bypassing webhook intake. Dev and incident tooling only.
func newQueueEnqueueCommand() *cobra.Command {
	var (
		redisURL string
		key      string
		provider string
		message  string
		priority int
		metadata map[string]string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a task directly into a Redis-backed queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseProvider(provider)
			if err != nil {
				return err
			}
			if message == "" {
				return fmt.Errorf("--message is required")
			}

			q, err := queue.NewRedisQueue(redisURL, key)
			if err != nil {
				return err
			}
			defer q.Close()

			task := &models.QueuedTask{
				TaskID:         uuid.NewString(),
				Provider:       p,
				EventType:      "manual",
				InputMessage:   message,
				SourceMetadata: metadata,
				Priority:       models.Priority(priority),
				CreatedAt:      time.Now().UTC(),
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := q.Enqueue(ctx, task); err != nil {
				return err
			}

			fmt.Printf("enqueued task %s (priority %s)\n", task.TaskID, task.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "Redis URL of the queue")
	cmd.Flags().StringVar(&key, "key", "relay:tasks", "Queue key")
	cmd.Flags().StringVar(&provider, "provider", "github", "Provider the task belongs to")
	cmd.Flags().StringVar(&message, "message", "", "Input message for the agent")
	cmd.Flags().IntVar(&priority, "priority", 2, "Priority (0 critical .. 3 low)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Source metadata key=value pairs")
	return cmd
}

func newTaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "activity <task-id>",
		Short: "Show the lifecycle history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/tasks/" + args[0] + "/activity")
		},
	})
	return cmd
}
