package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// JiraHandler processes comment_created webhook events. Jira does not mark
// bot accounts, so filtering relies on the deny list and the posted-content
// ledger alone.
type JiraHandler struct {
	validator SignatureValidator
	deps      handlerDeps
}

// NewJiraHandler builds the Jira pipeline with the given webhook secret.
func NewJiraHandler(secret string, deps handlerDeps) *JiraHandler {
	return &JiraHandler{
		validator: NewSignatureValidator(models.ProviderJira, secret, 0),
		deps:      deps,
	}
}

func (h *JiraHandler) Provider() models.Provider { return models.ProviderJira }

func (h *JiraHandler) ValidateSignature(body []byte, headers map[string]string) error {
	return h.validator.ValidateSignature(body, headers)
}

func (h *JiraHandler) Parse(body []byte, headers map[string]string) (*models.WebhookEnvelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Provider: models.ProviderJira, Reason: "body is not valid JSON"}
	}

	eventType := digString(payload, "webhookEvent")
	if eventType == "" {
		return nil, &ParseError{Provider: models.ProviderJira, Reason: "missing webhookEvent field"}
	}

	issueKey := digString(payload, "issue", "key")
	if issueKey == "" {
		return nil, &ParseError{Provider: models.ProviderJira, Reason: "missing issue.key"}
	}

	meta := map[string]string{
		"issue_key":     issueKey,
		"issue_summary": digString(payload, "issue", "fields", "summary"),
		"project":       digString(payload, "issue", "fields", "project", "key"),
		"comment_id":    digString(payload, "comment", "id"),
		"comment_body":  digString(payload, "comment", "body"),
		"author":        digString(payload, "comment", "author", "displayName"),
		"author_id":     digString(payload, "comment", "author", "accountId"),
	}

	return &models.WebhookEnvelope{
		Provider:   models.ProviderJira,
		EventType:  eventType,
		RawPayload: payload,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	}, nil
}

func (h *JiraHandler) ShouldProcess(ctx context.Context, env *models.WebhookEnvelope) (bool, string) {
	if env.EventType != "comment_created" {
		return false, fmt.Sprintf("event type %s not handled", env.EventType)
	}

	if h.deps.bots.IsDenied(env.Metadata["author"]) {
		return false, "author is on the deny list"
	}

	if id := env.Metadata["comment_id"]; id != "" {
		posted, err := h.deps.posted.Contains(ctx, models.ProviderJira, id)
		if err != nil {
			log.Printf("[Webhook] ledger check failed for jira comment %s: %v", id, err)
		} else if posted {
			return false, "comment was posted by this system"
		}
	}

	if h.deps.matcher.Extract(env.Metadata["comment_body"]) == nil {
		return false, "no command in comment"
	}

	return true, ""
}

func (h *JiraHandler) CreateTaskRequest(env *models.WebhookEnvelope) (*models.TaskCreationRequest, error) {
	cmd := h.deps.matcher.Extract(env.Metadata["comment_body"])
	if cmd == nil {
		return nil, &ParseError{Provider: models.ProviderJira, Reason: "comment carries no command"}
	}

	input := fmt.Sprintf("Command: %s\nTicket: %s (%s)\nRequest: %s",
		cmd.Name, env.Metadata["issue_key"], env.Metadata["issue_summary"], cmd.Content)

	return &models.TaskCreationRequest{
		Provider:     models.ProviderJira,
		EventType:    env.EventType,
		InputMessage: input,
		Priority:     cmd.Priority,
		SourceMetadata: map[string]string{
			"issue_key":  env.Metadata["issue_key"],
			"comment_id": env.Metadata["comment_id"],
			"author":     env.Metadata["author"],
			"command":    cmd.Name,
		},
	}, nil
}
