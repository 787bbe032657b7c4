package models

import (
	"fmt"
	"time"
)

// Provider identifies an external event source.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderJira   Provider = "jira"
	ProviderSlack  Provider = "slack"
	ProviderSentry Provider = "sentry"
)

// ParseProvider validates a provider name from an untrusted source (URL path,
// CLI flag) and returns the typed value.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGitHub, ProviderJira, ProviderSlack, ProviderSentry:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Priority orders tasks in the queue. Lower values are served first.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// WebhookEnvelope is the canonical, provider-agnostic form of an inbound
// webhook event. Parsers construct it once at the ingress boundary; nothing
// downstream touches the raw payload again except through Metadata.
type WebhookEnvelope struct {
	Provider       Provider               `json:"provider"`
	EventType      string                 `json:"event_type"`
	InstallationID string                 `json:"installation_id"`
	OrganizationID string                 `json:"organization_id"`
	RawPayload     map[string]interface{} `json:"raw_payload"`
	Timestamp      time.Time              `json:"timestamp"`

	// Metadata carries provider-specific routing hints: repo/owner,
	// issue/PR number, comment id, channel/thread, ticket key.
	Metadata map[string]string `json:"metadata"`
}

// TaskCreationRequest is the intent to create work, before queue assignment.
type TaskCreationRequest struct {
	Provider       Provider          `json:"provider"`
	EventType      string            `json:"event_type"`
	InstallationID string            `json:"installation_id"`
	OrganizationID string            `json:"organization_id"`
	InputMessage   string            `json:"input_message"`
	SourceMetadata map[string]string `json:"source_metadata"`
	Priority       Priority          `json:"priority"`
}

// QueuedTask is the durable unit of work. TaskID is assigned exactly once at
// enqueue time and never reused; the queue entry is never mutated after that.
type QueuedTask struct {
	TaskID         string            `json:"task_id"`
	Provider       Provider          `json:"provider"`
	EventType      string            `json:"event_type"`
	InstallationID string            `json:"installation_id"`
	OrganizationID string            `json:"organization_id"`
	InputMessage   string            `json:"input_message"`
	SourceMetadata map[string]string `json:"source_metadata"`
	Priority       Priority          `json:"priority"`
	CreatedAt      time.Time         `json:"created_at"`
}

// CLIResult is the outcome of one external agent invocation. Cost and token
// counts reflect whatever the agent consumed, even on failure.
type CLIResult struct {
	Success      bool    `json:"success"`
	Output       string  `json:"output"`
	Error        string  `json:"error,omitempty"`
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`

	// BinaryMissing marks the "agent binary not found" failure, which is a
	// deployment problem rather than a task failure and is surfaced as an
	// operational alert instead of a posted result.
	BinaryMissing bool `json:"binary_missing,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}
