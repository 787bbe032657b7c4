package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/internal/ledger"
	"github.com/jordanhubbard/relay/internal/queue"
	"github.com/jordanhubbard/relay/internal/webhook"
	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

const githubSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *queue.MemoryQueue, ledger.PostedContentLedger) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Webhooks.Secrets = map[string]string{"github": githubSecret}

	posted := ledger.NewMemoryLedger(time.Hour)
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { q.Close() })

	registry := webhook.NewRegistry(&cfg.Webhooks, posted)
	srv := NewServer(cfg.Server, registry, q, nil, NewStreamHub())
	return srv, q, posted
}

func signGitHub(body []byte) string {
	mac := hmac.New(sha256.New, []byte(githubSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, handler http.Handler, provider string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func githubBody() []byte {
	return []byte(`{
		"action": "created",
		"repository": {"full_name": "acme/widgets"},
		"issue": {"number": 3},
		"comment": {"id": 101, "body": "@agent fix the race in the queue"},
		"sender": {"login": "alice", "type": "User"},
		"installation": {"id": 9}
	}`)
}

func TestWebhookAcceptedCreatesOneTask(t *testing.T) {
	srv, q, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	body := githubBody()
	rec := postWebhook(t, handler, "github", body, map[string]string{
		"X-GitHub-Event":      "issue_comment",
		"X-Hub-Signature-256": signGitHub(body),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.NotEmpty(t, resp["task_id"])

	task, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, resp["task_id"], task.TaskID)
	assert.Equal(t, models.ProviderGitHub, task.Provider)
	assert.Equal(t, models.PriorityCritical, task.Priority)
	assert.Contains(t, task.InputMessage, "race in the queue")

	// Exactly one task.
	n, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	srv, q, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	rec := postWebhook(t, handler, "github", githubBody(), map[string]string{
		"X-GitHub-Event":      "issue_comment",
		"X-Hub-Signature-256": "sha256=" + "00000000000000000000000000000000000000000000000000000000deadbeef",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	n, _ := q.Size(context.Background())
	assert.Equal(t, 0, n, "rejected webhooks must not enqueue")
}

func TestWebhookMalformedPayload(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	body := []byte("this is not json")
	rec := postWebhook(t, handler, "github", body, map[string]string{
		"X-GitHub-Event":      "issue_comment",
		"X-Hub-Signature-256": signGitHub(body),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownProvider(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	rec := postWebhook(t, handler, "bitbucket", []byte("{}"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookIgnoredEvent(t *testing.T) {
	srv, q, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	body := []byte(`{
		"action": "created",
		"repository": {"full_name": "acme/widgets"},
		"issue": {"number": 3},
		"comment": {"id": 102, "body": "nice work everyone"},
		"sender": {"login": "alice", "type": "User"}
	}`)
	rec := postWebhook(t, handler, "github", body, map[string]string{
		"X-GitHub-Event":      "issue_comment",
		"X-Hub-Signature-256": signGitHub(body),
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])
	assert.NotEmpty(t, resp["reason"])

	n, _ := q.Size(context.Background())
	assert.Equal(t, 0, n)
}

func TestWebhookEchoSuppression(t *testing.T) {
	srv, q, posted := newTestServer(t)
	handler := srv.SetupRoutes()

	// Simulate our own earlier post of comment 101.
	require.NoError(t, posted.Record(context.Background(), models.ProviderGitHub, "101"))

	body := githubBody()
	rec := postWebhook(t, handler, "github", body, map[string]string{
		"X-GitHub-Event":      "issue_comment",
		"X-Hub-Signature-256": signGitHub(body),
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp["status"])

	n, _ := q.Size(context.Background())
	assert.Equal(t, 0, n)
}

func TestSlackURLVerificationChallenge(t *testing.T) {
	srv, q, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	// Slack secret is unset in this fixture, so validation is disabled and
	// the challenge is answered directly.
	body := []byte(`{"type":"url_verification","challenge":"abc123xyz"}`)
	rec := postWebhook(t, handler, "slack", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123xyz", resp["challenge"])

	n, _ := q.Size(context.Background())
	assert.Equal(t, 0, n, "challenges are never enqueued")
}

func TestHealthAndQueueEndpoints(t *testing.T) {
	srv, q, _ := newTestServer(t)
	handler := srv.SetupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, q.Enqueue(context.Background(), &models.QueuedTask{TaskID: "x", CreatedAt: time.Now()}))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var depth map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	assert.Equal(t, 1, depth["depth"])
}
