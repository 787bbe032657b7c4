package webhook

import (
	"context"
	"fmt"
	"log"

	"github.com/jordanhubbard/relay/internal/ledger"
	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

// ParseError marks a payload the provider handler could not make sense of.
// The ingress maps it to 400.
type ParseError struct {
	Provider models.Provider
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s payload: %s", e.Provider, e.Reason)
}

// Handler is the per-provider webhook pipeline. The ingress router drives
// the four steps in order and stops at the first negative answer:
// ValidateSignature -> Parse -> ShouldProcess -> CreateTaskRequest.
type Handler interface {
	Provider() models.Provider

	// ValidateSignature verifies the raw request against the provider's
	// HMAC scheme.
	ValidateSignature(body []byte, headers map[string]string) error

	// Parse converts the raw body into the canonical envelope. It never
	// decides whether the event is actionable, only whether it is
	// well-formed.
	Parse(body []byte, headers map[string]string) (*models.WebhookEnvelope, error)

	// ShouldProcess decides whether the event warrants a task. A false
	// return carries a short human-readable reason for the access log;
	// it is not an error and yields 200 with status "ignored".
	ShouldProcess(ctx context.Context, env *models.WebhookEnvelope) (bool, string)

	// CreateTaskRequest builds the task intent from an event that passed
	// ShouldProcess.
	CreateTaskRequest(env *models.WebhookEnvelope) (*models.TaskCreationRequest, error)
}

// Registry holds the configured provider handlers.
type Registry struct {
	handlers map[models.Provider]Handler
}

// NewRegistry builds the full handler set from config. All four providers
// are always registered; providers the operator has not configured a
// secret for run with validation disabled (logged by the validator
// constructor).
func NewRegistry(cfg *config.WebhooksConfig, posted ledger.PostedContentLedger) *Registry {
	bots := NewBotDetector(cfg.DeniedSenders)
	matcher := NewCommandMatcher(cfg.TriggerPrefix, cfg.Commands)

	deps := handlerDeps{bots: bots, matcher: matcher, posted: posted}

	r := &Registry{handlers: make(map[models.Provider]Handler)}
	r.register(NewGitHubHandler(cfg.Secrets["github"], deps))
	r.register(NewJiraHandler(cfg.Secrets["jira"], deps))
	r.register(NewSlackHandler(cfg.Secrets["slack"], cfg.SlackReplayWindow, deps))
	r.register(NewSentryHandler(cfg.Secrets["sentry"], deps))
	return r
}

func (r *Registry) register(h Handler) {
	r.handlers[h.Provider()] = h
	log.Printf("[Webhook] registered handler for %s", h.Provider())
}

// Get returns the handler for provider, or nil when none is registered.
func (r *Registry) Get(provider models.Provider) Handler {
	return r.handlers[provider]
}

// ValidationDisabled reports the providers running without signature
// checks, for the startup warning and the exported gauge.
func (r *Registry) ValidationDisabled(secrets map[string]string) []models.Provider {
	var out []models.Provider
	for p := range r.handlers {
		if secrets[string(p)] == "" {
			out = append(out, p)
		}
	}
	return out
}

// handlerDeps bundles the collaborators shared by every provider handler.
type handlerDeps struct {
	bots    *BotDetector
	matcher *CommandMatcher
	posted  ledger.PostedContentLedger
}
