package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordanhubbard/relay/internal/tokens"
	"github.com/jordanhubbard/relay/pkg/models"
)

// JiraConnector posts issue comments through the REST v2 API.
type JiraConnector struct {
	baseURL string
	tokens  tokens.Source
}

func NewJiraConnector(baseURL string, src tokens.Source) *JiraConnector {
	return &JiraConnector{baseURL: strings.TrimRight(baseURL, "/"), tokens: src}
}

func (c *JiraConnector) Provider() models.Provider { return models.ProviderJira }

func (c *JiraConnector) PostResult(ctx context.Context, task *models.QueuedTask, body string) (string, error) {
	issueKey := task.SourceMetadata["issue_key"]
	if issueKey == "" {
		return "", fmt.Errorf("task %s has no jira issue metadata", task.TaskID)
	}

	token, err := c.tokens.Token(ctx, models.ProviderJira, task.InstallationID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve jira token: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.baseURL, issueKey)
	headers := map[string]string{"Authorization": "Basic " + token}

	var out struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, models.ProviderJira, url, headers, map[string]string{"body": body}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
