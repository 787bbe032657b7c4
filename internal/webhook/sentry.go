package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// SentryHandler processes issue alert webhooks. Unlike the comment-driven
// providers there is no human command here; an alert at or above the
// severity floor becomes an analyze task on its own.
type SentryHandler struct {
	validator SignatureValidator
	deps      handlerDeps
}

// severityRank orders Sentry levels. Alerts below "error" are ignored.
var severityRank = map[string]int{
	"debug":   0,
	"info":    1,
	"warning": 2,
	"error":   3,
	"fatal":   4,
}

// NewSentryHandler builds the Sentry pipeline with the given client secret.
func NewSentryHandler(secret string, deps handlerDeps) *SentryHandler {
	return &SentryHandler{
		validator: NewSignatureValidator(models.ProviderSentry, secret, 0),
		deps:      deps,
	}
}

func (h *SentryHandler) Provider() models.Provider { return models.ProviderSentry }

func (h *SentryHandler) ValidateSignature(body []byte, headers map[string]string) error {
	return h.validator.ValidateSignature(body, headers)
}

func (h *SentryHandler) Parse(body []byte, headers map[string]string) (*models.WebhookEnvelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Provider: models.ProviderSentry, Reason: "body is not valid JSON"}
	}

	action := digString(payload, "action")
	issue := asMap(dig(payload, "data", "issue"))
	if issue == nil {
		return nil, &ParseError{Provider: models.ProviderSentry, Reason: "missing data.issue"}
	}

	meta := map[string]string{
		"action":   action,
		"issue_id": digString(issue, "id"),
		"title":    digString(issue, "title"),
		"culprit":  digString(issue, "culprit"),
		"level":    digString(issue, "level"),
		"project":  digString(issue, "project", "slug"),
		"url":      digString(issue, "permalink"),
	}

	return &models.WebhookEnvelope{
		Provider:   models.ProviderSentry,
		EventType:  "issue_alert",
		RawPayload: payload,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	}, nil
}

func (h *SentryHandler) ShouldProcess(ctx context.Context, env *models.WebhookEnvelope) (bool, string) {
	switch env.Metadata["action"] {
	case "created", "triggered":
	default:
		return false, fmt.Sprintf("action %s not handled", env.Metadata["action"])
	}

	rank, ok := severityRank[env.Metadata["level"]]
	if !ok || rank < severityRank["error"] {
		return false, fmt.Sprintf("severity %q below threshold", env.Metadata["level"])
	}

	return true, ""
}

func (h *SentryHandler) CreateTaskRequest(env *models.WebhookEnvelope) (*models.TaskCreationRequest, error) {
	input := fmt.Sprintf("Command: analyze\nSentry issue: %s\nLevel: %s\nCulprit: %s\nLink: %s",
		env.Metadata["title"], env.Metadata["level"], env.Metadata["culprit"], env.Metadata["url"])

	priority := models.PriorityNormal
	if env.Metadata["level"] == "fatal" {
		priority = models.PriorityHigh
	}

	return &models.TaskCreationRequest{
		Provider:     models.ProviderSentry,
		EventType:    env.EventType,
		InputMessage: input,
		Priority:     priority,
		SourceMetadata: map[string]string{
			"issue_id": env.Metadata["issue_id"],
			"project":  env.Metadata["project"],
			"level":    env.Metadata["level"],
			"command":  "analyze",
		},
	}, nil
}
