package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// GitHubHandler processes issue and pull request comment events. A task is
// created when a non-bot user addresses the trigger prefix with an allowed
// command in a freshly created comment.
type GitHubHandler struct {
	validator SignatureValidator
	deps      handlerDeps
}

// NewGitHubHandler builds the GitHub pipeline with the given webhook secret.
func NewGitHubHandler(secret string, deps handlerDeps) *GitHubHandler {
	return &GitHubHandler{
		validator: NewSignatureValidator(models.ProviderGitHub, secret, 0),
		deps:      deps,
	}
}

func (h *GitHubHandler) Provider() models.Provider { return models.ProviderGitHub }

func (h *GitHubHandler) ValidateSignature(body []byte, headers map[string]string) error {
	return h.validator.ValidateSignature(body, headers)
}

// Parse builds the envelope from the raw payload and the X-GitHub-Event
// header. Field extraction goes through the coerce helpers so a hostile
// payload degrades to empty strings instead of a panic.
func (h *GitHubHandler) Parse(body []byte, headers map[string]string) (*models.WebhookEnvelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Provider: models.ProviderGitHub, Reason: "body is not valid JSON"}
	}

	eventType := headers["X-GitHub-Event"]
	if eventType == "" {
		return nil, &ParseError{Provider: models.ProviderGitHub, Reason: "missing X-GitHub-Event header"}
	}

	repo := digString(payload, "repository", "full_name")
	if repo == "" {
		return nil, &ParseError{Provider: models.ProviderGitHub, Reason: "missing repository.full_name"}
	}

	meta := map[string]string{
		"repo":         repo,
		"action":       digString(payload, "action"),
		"sender":       digString(payload, "sender", "login"),
		"sender_type":  digString(payload, "sender", "type"),
		"comment_id":   digString(payload, "comment", "id"),
		"comment_body": digString(payload, "comment", "body"),
	}

	// issue_comment carries the number under issue;
	// pull_request_review_comment carries it under pull_request.
	if n := digString(payload, "issue", "number"); n != "" {
		meta["issue_number"] = n
	} else if n := digString(payload, "pull_request", "number"); n != "" {
		meta["issue_number"] = n
	}

	return &models.WebhookEnvelope{
		Provider:       models.ProviderGitHub,
		EventType:      eventType,
		InstallationID: digString(payload, "installation", "id"),
		OrganizationID: digString(payload, "organization", "login"),
		RawPayload:     payload,
		Timestamp:      time.Now().UTC(),
		Metadata:       meta,
	}, nil
}

// ShouldProcess filters to newly created comments from human senders that
// carry a valid command and were not posted by us.
func (h *GitHubHandler) ShouldProcess(ctx context.Context, env *models.WebhookEnvelope) (bool, string) {
	switch env.EventType {
	case "issue_comment", "pull_request_review_comment":
	default:
		return false, fmt.Sprintf("event type %s not handled", env.EventType)
	}

	if action := env.Metadata["action"]; action != "created" {
		return false, fmt.Sprintf("action %s not handled", action)
	}

	if h.deps.bots.IsBotSender(env.Metadata["sender"], env.Metadata["sender_type"]) {
		return false, "sender is a bot"
	}

	if id := env.Metadata["comment_id"]; id != "" {
		posted, err := h.deps.posted.Contains(ctx, models.ProviderGitHub, id)
		if err != nil {
			log.Printf("[Webhook] ledger check failed for github comment %s: %v", id, err)
		} else if posted {
			return false, "comment was posted by this system"
		}
	}

	if h.deps.matcher.Extract(env.Metadata["comment_body"]) == nil {
		return false, "no command in comment"
	}

	return true, ""
}

// CreateTaskRequest turns the comment into a task. The input message is the
// command content plus enough source context for the agent to act on.
func (h *GitHubHandler) CreateTaskRequest(env *models.WebhookEnvelope) (*models.TaskCreationRequest, error) {
	cmd := h.deps.matcher.Extract(env.Metadata["comment_body"])
	if cmd == nil {
		return nil, &ParseError{Provider: models.ProviderGitHub, Reason: "comment carries no command"}
	}

	input := fmt.Sprintf("Command: %s\nRepository: %s\nIssue: #%s\nRequest: %s",
		cmd.Name, env.Metadata["repo"], env.Metadata["issue_number"], cmd.Content)

	return &models.TaskCreationRequest{
		Provider:       models.ProviderGitHub,
		EventType:      env.EventType,
		InstallationID: env.InstallationID,
		OrganizationID: env.OrganizationID,
		InputMessage:   input,
		Priority:       cmd.Priority,
		SourceMetadata: map[string]string{
			"repo":         env.Metadata["repo"],
			"issue_number": env.Metadata["issue_number"],
			"comment_id":   env.Metadata["comment_id"],
			"sender":       env.Metadata["sender"],
			"command":      cmd.Name,
		},
	}, nil
}
