// Package eventbus publishes task lifecycle events to NATS JetStream for
// external observers. Publishing is strictly fire-and-forget: the task
// pipeline never blocks or fails because an observer is down.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/relay/pkg/models"
)

// Bus wraps a JetStream connection publishing under <stream>.task.*
// subjects.
type Bus struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// Event is the wire shape of one lifecycle notification.
type Event struct {
	Type      string          `json:"type"`
	TaskID    string          `json:"task_id"`
	Provider  models.Provider `json:"provider"`
	Priority  string          `json:"priority"`
	Success   bool            `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
	CostUSD   float64         `json:"cost_usd,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Connect dials NATS and ensures the stream exists.
func Connect(url, stream string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[EventBus] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("[EventBus] reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	subject := strings.ToLower(stream)
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject + ".>"},
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}

	log.Printf("[EventBus] connected, stream=%s", stream)
	return &Bus{nc: nc, js: js, subject: subject}, nil
}

// publish sends one event asynchronously.
func (b *Bus) publish(kind string, ev Event) {
	ev.Type = kind
	ev.Timestamp = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EventBus] failed to encode %s event: %v", kind, err)
		return
	}

	if _, err := b.js.PublishAsync(b.subject+".task."+kind, data); err != nil {
		log.Printf("[EventBus] failed to publish %s event: %v", kind, err)
	}
}

// TaskQueued announces a freshly enqueued task.
func (b *Bus) TaskQueued(task *models.QueuedTask) {
	b.publish("queued", Event{TaskID: task.TaskID, Provider: task.Provider, Priority: task.Priority.String()})
}

// TaskStarted implements engine.Observer.
func (b *Bus) TaskStarted(task *models.QueuedTask) {
	b.publish("started", Event{TaskID: task.TaskID, Provider: task.Provider, Priority: task.Priority.String()})
}

// TaskFinished implements engine.Observer.
func (b *Bus) TaskFinished(task *models.QueuedTask, result *models.CLIResult) {
	b.publish("finished", Event{
		TaskID:   task.TaskID,
		Provider: task.Provider,
		Priority: task.Priority.String(),
		Success:  result.Success,
		Error:    result.Error,
		CostUSD:  result.CostUSD,
	})
}

// Close drains pending publishes and closes the connection.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}
