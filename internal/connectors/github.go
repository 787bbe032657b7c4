package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordanhubbard/relay/internal/tokens"
	"github.com/jordanhubbard/relay/pkg/models"
)

// GitHubConnector posts issue comments.
type GitHubConnector struct {
	baseURL string
	tokens  tokens.Source
}

// NewGitHubConnector builds a connector against baseURL (the real API or a
// test server).
func NewGitHubConnector(baseURL string, src tokens.Source) *GitHubConnector {
	return &GitHubConnector{baseURL: strings.TrimRight(baseURL, "/"), tokens: src}
}

func (c *GitHubConnector) Provider() models.Provider { return models.ProviderGitHub }

func (c *GitHubConnector) PostResult(ctx context.Context, task *models.QueuedTask, body string) (string, error) {
	repo := task.SourceMetadata["repo"]
	number := task.SourceMetadata["issue_number"]
	if repo == "" || number == "" {
		return "", fmt.Errorf("task %s has no github repo/issue metadata", task.TaskID)
	}

	token, err := c.tokens.Token(ctx, models.ProviderGitHub, task.InstallationID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve github token: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", c.baseURL, repo, number)
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/vnd.github+json",
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := postJSON(ctx, models.ProviderGitHub, url, headers, map[string]string{"body": body}, &out); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", out.ID), nil
}
