package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordanhubbard/relay/internal/tokens"
	"github.com/jordanhubbard/relay/pkg/models"
)

// SlackConnector posts messages with chat.postMessage, threading replies
// under the message that created the task.
type SlackConnector struct {
	baseURL string
	tokens  tokens.Source
}

func NewSlackConnector(baseURL string, src tokens.Source) *SlackConnector {
	return &SlackConnector{baseURL: strings.TrimRight(baseURL, "/"), tokens: src}
}

func (c *SlackConnector) Provider() models.Provider { return models.ProviderSlack }

func (c *SlackConnector) PostResult(ctx context.Context, task *models.QueuedTask, body string) (string, error) {
	channel := task.SourceMetadata["channel"]
	if channel == "" {
		return "", fmt.Errorf("task %s has no slack channel metadata", task.TaskID)
	}

	token, err := c.tokens.Token(ctx, models.ProviderSlack, task.InstallationID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve slack token: %w", err)
	}

	payload := map[string]string{
		"channel": channel,
		"text":    body,
	}
	if ts := task.SourceMetadata["thread_ts"]; ts != "" {
		payload["thread_ts"] = ts
	}

	var out struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	if err := postJSON(ctx, models.ProviderSlack, c.baseURL+"/chat.postMessage", headers, payload, &out); err != nil {
		return "", err
	}

	// Slack reports API-level failures inside a 200 response.
	if !out.OK {
		return "", fmt.Errorf("slack chat.postMessage failed: %s", out.Error)
	}
	return out.TS, nil
}
