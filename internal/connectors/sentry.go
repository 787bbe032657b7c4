package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordanhubbard/relay/internal/tokens"
	"github.com/jordanhubbard/relay/pkg/models"
)

// SentryConnector attaches the analysis as a note on the issue that fired
// the alert.
type SentryConnector struct {
	baseURL string
	tokens  tokens.Source
}

func NewSentryConnector(baseURL string, src tokens.Source) *SentryConnector {
	return &SentryConnector{baseURL: strings.TrimRight(baseURL, "/"), tokens: src}
}

func (c *SentryConnector) Provider() models.Provider { return models.ProviderSentry }

func (c *SentryConnector) PostResult(ctx context.Context, task *models.QueuedTask, body string) (string, error) {
	issueID := task.SourceMetadata["issue_id"]
	if issueID == "" {
		return "", fmt.Errorf("task %s has no sentry issue metadata", task.TaskID)
	}

	token, err := c.tokens.Token(ctx, models.ProviderSentry, task.InstallationID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve sentry token: %w", err)
	}

	url := fmt.Sprintf("%s/api/0/issues/%s/comments/", c.baseURL, issueID)
	headers := map[string]string{"Authorization": "Bearer " + token}

	var out struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, models.ProviderSentry, url, headers, map[string]string{"text": body}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
