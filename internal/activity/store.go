// Package activity persists task lifecycle transitions to Postgres for
// operational audit. It answers "what happened to task X" after the
// process is gone; aggregate analytics are out of scope.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/jordanhubbard/relay/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_activity (
	id          BIGSERIAL PRIMARY KEY,
	task_id     TEXT        NOT NULL,
	provider    TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	detail      TEXT        NOT NULL DEFAULT '',
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS task_activity_task_id_idx ON task_activity (task_id);
`

// Store writes lifecycle rows. All writes are best-effort: a database
// outage is logged and the task proceeds.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure activity schema: %w", err)
	}

	log.Printf("[Activity] connected to postgres")
	return &Store{db: db}, nil
}

func (s *Store) record(taskID string, provider models.Provider, status, detail string, costUSD float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_activity (task_id, provider, status, detail, cost_usd) VALUES ($1, $2, $3, $4, $5)`,
		taskID, provider, status, detail, costUSD)
	if err != nil {
		log.Printf("[Activity] failed to record %s for task %s: %v", status, taskID, err)
	}
}

// TaskQueued records the enqueue transition.
func (s *Store) TaskQueued(task *models.QueuedTask) {
	s.record(task.TaskID, task.Provider, "queued", task.EventType, 0)
}

// TaskStarted implements engine.Observer.
func (s *Store) TaskStarted(task *models.QueuedTask) {
	s.record(task.TaskID, task.Provider, "running", "", 0)
}

// TaskFinished implements engine.Observer.
func (s *Store) TaskFinished(task *models.QueuedTask, result *models.CLIResult) {
	status := "completed"
	if !result.Success {
		status = "failed"
	}
	s.record(task.TaskID, task.Provider, status, result.Error, result.CostUSD)
}

// History returns the lifecycle rows for one task, oldest first.
func (s *Store) History(ctx context.Context, taskID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, detail, cost_usd, occurred_at FROM task_activity WHERE task_id = $1 ORDER BY occurred_at`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Status, &r.Detail, &r.CostUSD, &r.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Row is one lifecycle transition.
type Row struct {
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	CostUSD    float64   `json:"cost_usd,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
