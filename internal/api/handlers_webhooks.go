package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/relay/internal/metrics"
	"github.com/jordanhubbard/relay/internal/webhook"
	"github.com/jordanhubbard/relay/pkg/models"
)

const maxWebhookBody = 5 << 20 // 5 MiB

// forwardedHeaders are the only request headers the provider pipelines
// consume. The map keys keep this exact casing; lookups in handlers use
// the same strings.
var forwardedHeaders = []string{
	"X-GitHub-Event",
	"X-Hub-Signature-256",
	"X-Hub-Signature",
	"X-Slack-Signature",
	"X-Slack-Request-Timestamp",
	"Sentry-Hook-Signature",
}

// handleWebhook processes POST /api/v1/webhooks/{provider}.
//
// Responses: 200 accepted (with task_id) or ignored, 401 bad signature,
// 400 malformed payload, 404 unknown provider.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/webhooks/")
	provider, err := models.ParseProvider(name)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	handler := s.currentRegistry().Get(provider)
	if handler == nil {
		s.respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	headers := make(map[string]string, len(forwardedHeaders))
	for _, k := range forwardedHeaders {
		if v := r.Header.Get(k); v != "" {
			headers[k] = v
		}
	}

	if err := handler.ValidateSignature(body, headers); err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(provider), "invalid_signature").Inc()
		log.Printf("[API] %v", err)
		s.respondError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	// Slack sends a one-time URL verification handshake on endpoint setup;
	// it is answered here and never reaches the pipeline.
	if provider == models.ProviderSlack {
		if challenge := slackChallenge(body); challenge != "" {
			s.respondJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
			return
		}
	}

	env, err := handler.Parse(body, headers)
	if err != nil {
		var parseErr *webhook.ParseError
		if errors.As(err, &parseErr) {
			metrics.WebhooksReceived.WithLabelValues(string(provider), "parse_error").Inc()
			s.respondError(w, http.StatusBadRequest, parseErr.Reason)
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ok, reason := handler.ShouldProcess(r.Context(), env)
	if !ok {
		metrics.WebhooksReceived.WithLabelValues(string(provider), "ignored").Inc()
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
		return
	}

	req, err := handler.CreateTaskRequest(env)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(string(provider), "parse_error").Inc()
		s.respondError(w, http.StatusBadRequest, "failed to build task from event")
		return
	}

	task := &models.QueuedTask{
		TaskID:         uuid.NewString(),
		Provider:       req.Provider,
		EventType:      req.EventType,
		InstallationID: req.InstallationID,
		OrganizationID: req.OrganizationID,
		InputMessage:   req.InputMessage,
		SourceMetadata: req.SourceMetadata,
		Priority:       req.Priority,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		log.Printf("[API] failed to enqueue task for %s: %v", provider, err)
		s.respondError(w, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	metrics.WebhooksReceived.WithLabelValues(string(provider), "accepted").Inc()
	metrics.TasksEnqueued.WithLabelValues(string(provider), task.Priority.String()).Inc()
	if n, err := s.queue.Size(r.Context()); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
	if s.onQueued != nil {
		s.onQueued(task)
	}
	if s.activity != nil {
		s.activity.TaskQueued(task)
	}

	log.Printf("[API] task %s queued (%s %s, priority %s)", task.TaskID, provider, task.EventType, task.Priority)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "accepted", "task_id": task.TaskID})
}

func slackChallenge(body []byte) string {
	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.Type == "url_verification" {
		return probe.Challenge
	}
	return ""
}
