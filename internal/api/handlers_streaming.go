package api

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OutputLine is one sanitized line of agent output pushed to stream
// subscribers.
type OutputLine struct {
	TaskID string `json:"task_id"`
	Stream string `json:"stream"`
	Line   string `json:"line"`
}

// StreamHub fans agent output lines out to websocket subscribers, keyed by
// task id. It implements the runner's StreamSink; a task with no
// subscribers costs one map lookup per line.
type StreamHub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]bool // task id -> subscribers

	upgrader websocket.Upgrader
}

type subscriber struct {
	ch chan OutputLine
}

// NewStreamHub returns an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		subs: make(map[string]map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Webhook ingress has no browser origin to defend; streams are
			// read-only output.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WriteLine implements cli.StreamSink. Slow subscribers drop lines rather
// than stall the agent's output drain.
func (h *StreamHub) WriteLine(taskID, stream, line string) {
	h.mu.RLock()
	subs := h.subs[taskID]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	msg := OutputLine{TaskID: taskID, Stream: stream, Line: line}
	for sub := range subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *StreamHub) subscribe(taskID string) *subscriber {
	sub := &subscriber{ch: make(chan OutputLine, 256)}
	h.mu.Lock()
	if h.subs[taskID] == nil {
		h.subs[taskID] = make(map[*subscriber]bool)
	}
	h.subs[taskID][sub] = true
	h.mu.Unlock()
	return sub
}

func (h *StreamHub) unsubscribe(taskID string, sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[taskID], sub)
	if len(h.subs[taskID]) == 0 {
		delete(h.subs, taskID)
	}
	h.mu.Unlock()
}

// handleStream upgrades GET /api/v1/stream/{taskID} to a websocket and
// pushes output lines until the client disconnects.
func (h *StreamHub) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/stream/")
	if taskID == "" {
		http.Error(w, "missing task id", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Stream] upgrade failed for task %s: %v", taskID, err)
		return
	}

	sub := h.subscribe(taskID)
	defer func() {
		h.unsubscribe(taskID, sub)
		conn.Close()
	}()

	log.Printf("[Stream] subscriber attached to task %s", taskID)

	// Reads are discarded; their only purpose is detecting disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case line := <-sub.ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
