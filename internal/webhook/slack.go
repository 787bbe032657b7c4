package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// SlackHandler processes Events API callbacks, primarily app_mention and
// message events. URL-verification challenges are answered by the ingress
// before any handler runs; by the time Parse sees a payload it is a real
// event callback.
type SlackHandler struct {
	validator SignatureValidator
	deps      handlerDeps
}

// NewSlackHandler builds the Slack pipeline with the given signing secret
// and replay window.
func NewSlackHandler(secret string, replayWindow time.Duration, deps handlerDeps) *SlackHandler {
	return &SlackHandler{
		validator: NewSignatureValidator(models.ProviderSlack, secret, replayWindow),
		deps:      deps,
	}
}

func (h *SlackHandler) Provider() models.Provider { return models.ProviderSlack }

func (h *SlackHandler) ValidateSignature(body []byte, headers map[string]string) error {
	return h.validator.ValidateSignature(body, headers)
}

func (h *SlackHandler) Parse(body []byte, headers map[string]string) (*models.WebhookEnvelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{Provider: models.ProviderSlack, Reason: "body is not valid JSON"}
	}

	outerType := digString(payload, "type")
	if outerType != "event_callback" {
		return nil, &ParseError{Provider: models.ProviderSlack, Reason: fmt.Sprintf("unexpected payload type %q", outerType)}
	}

	event := asMap(dig(payload, "event"))
	if event == nil {
		return nil, &ParseError{Provider: models.ProviderSlack, Reason: "missing event object"}
	}

	meta := map[string]string{
		"channel":   digString(event, "channel"),
		"user":      digString(event, "user"),
		"bot_id":    digString(event, "bot_id"),
		"text":      digString(event, "text"),
		"ts":        digString(event, "ts"),
		"thread_ts": digString(event, "thread_ts"),
		"team":      digString(payload, "team_id"),
	}

	return &models.WebhookEnvelope{
		Provider:       models.ProviderSlack,
		EventType:      digString(event, "type"),
		OrganizationID: meta["team"],
		RawPayload:     payload,
		Timestamp:      time.Now().UTC(),
		Metadata:       meta,
	}, nil
}

func (h *SlackHandler) ShouldProcess(ctx context.Context, env *models.WebhookEnvelope) (bool, string) {
	switch env.EventType {
	case "app_mention", "message":
	default:
		return false, fmt.Sprintf("event type %s not handled", env.EventType)
	}

	// Messages carrying a bot_id come from an app, ours included.
	if env.Metadata["bot_id"] != "" {
		return false, "message sent by a bot"
	}

	if ts := env.Metadata["ts"]; ts != "" {
		posted, err := h.deps.posted.Contains(ctx, models.ProviderSlack, ts)
		if err != nil {
			log.Printf("[Webhook] ledger check failed for slack message %s: %v", ts, err)
		} else if posted {
			return false, "message was posted by this system"
		}
	}

	if h.deps.matcher.Extract(h.normalizeText(env.Metadata["text"])) == nil {
		return false, "no command in message"
	}

	return true, ""
}

// normalizeText rewrites a leading Slack mention token ("<@U123ABC>") into
// the trigger prefix, so "<@U123ABC> review ..." matches the same way
// "@agent review ..." does. Text without a leading mention passes through.
func (h *SlackHandler) normalizeText(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<@") {
		if end := strings.Index(trimmed, ">"); end > 0 {
			return h.deps.matcher.Prefix() + trimmed[end+1:]
		}
	}
	return trimmed
}

func (h *SlackHandler) CreateTaskRequest(env *models.WebhookEnvelope) (*models.TaskCreationRequest, error) {
	cmd := h.deps.matcher.Extract(h.normalizeText(env.Metadata["text"]))
	if cmd == nil {
		return nil, &ParseError{Provider: models.ProviderSlack, Reason: "message carries no command"}
	}

	input := fmt.Sprintf("Command: %s\nChannel: %s\nRequest: %s",
		cmd.Name, env.Metadata["channel"], cmd.Content)

	meta := map[string]string{
		"channel": env.Metadata["channel"],
		"user":    env.Metadata["user"],
		"command": cmd.Name,
	}
	// Replies land in the thread the request came from.
	if env.Metadata["thread_ts"] != "" {
		meta["thread_ts"] = env.Metadata["thread_ts"]
	} else {
		meta["thread_ts"] = env.Metadata["ts"]
	}

	return &models.TaskCreationRequest{
		Provider:       models.ProviderSlack,
		EventType:      env.EventType,
		OrganizationID: env.OrganizationID,
		InputMessage:   input,
		Priority:       cmd.Priority,
		SourceMetadata: meta,
	}, nil
}
