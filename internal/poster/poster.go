// Package poster delivers agent results back to the provider the task came
// from, with retries and a per-provider circuit breaker between us and
// their APIs.
package poster

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jordanhubbard/relay/internal/connectors"
	"github.com/jordanhubbard/relay/internal/ledger"
	"github.com/jordanhubbard/relay/internal/metrics"
	"github.com/jordanhubbard/relay/internal/resilience"
	"github.com/jordanhubbard/relay/pkg/models"
)

// Poster formats and posts one result per executed task. Posting failures
// are terminal for the task: it is never re-queued, because re-running the
// agent costs real money while the result is already logged here.
type Poster struct {
	connectors map[models.Provider]connectors.Connector
	posted     ledger.PostedContentLedger
	breakers   map[models.Provider]*resilience.CircuitBreaker
	retry      resilience.RetryPolicy
}

// New builds a poster over the given connectors.
func New(conns []connectors.Connector, posted ledger.PostedContentLedger) *Poster {
	p := &Poster{
		connectors: make(map[models.Provider]connectors.Connector, len(conns)),
		posted:     posted,
		breakers:   make(map[models.Provider]*resilience.CircuitBreaker, len(conns)),
		retry:      resilience.DefaultRetryPolicy(),
	}
	for _, c := range conns {
		provider := c.Provider()
		p.connectors[provider] = c

		settings := resilience.DefaultBreakerSettings()
		settings.OnStateChange = func(name string, from, to resilience.BreakerState) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		}
		p.breakers[provider] = resilience.NewCircuitBreaker("post_"+string(provider), settings)
	}
	return p
}

// PostResult formats the result and posts it to the task's source. The
// created content id is recorded in the posted-content ledger so the echo
// webhook for our own comment is dropped at ingress.
func (p *Poster) PostResult(ctx context.Context, task *models.QueuedTask, result *models.CLIResult) error {
	conn, ok := p.connectors[task.Provider]
	if !ok {
		return fmt.Errorf("no connector for provider %s", task.Provider)
	}

	body := FormatResult(task, result)

	var contentID string
	err := p.breakers[task.Provider].Call(func() error {
		return resilience.Retry(ctx, "post_"+string(task.Provider), p.retry, connectors.IsRetryable, func() error {
			id, err := conn.PostResult(ctx, task, body)
			if err != nil {
				return err
			}
			contentID = id
			return nil
		})
	})
	if err != nil {
		metrics.ResultsPosted.WithLabelValues(string(task.Provider), "failed").Inc()
		log.Printf("[Poster] task %s: failed to post result: %v", task.TaskID, err)
		return err
	}

	metrics.ResultsPosted.WithLabelValues(string(task.Provider), "posted").Inc()

	if contentID != "" {
		if err := p.posted.Record(ctx, task.Provider, contentID); err != nil {
			// The post succeeded; a ledger miss only risks one ignored echo.
			log.Printf("[Poster] task %s: failed to record posted content %s: %v", task.TaskID, contentID, err)
		}
	}

	log.Printf("[Poster] task %s: posted result to %s (content %s)", task.TaskID, task.Provider, contentID)
	return nil
}

// FormatResult renders the message posted back to the provider. GitHub and
// Jira get the full markdown report; Slack gets a compact version of the
// same content.
func FormatResult(task *models.QueuedTask, result *models.CLIResult) string {
	var b strings.Builder

	b.WriteString("## Agent Result\n\n")

	if result.Success {
		b.WriteString(truncate(result.Output, 60000))
	} else {
		b.WriteString("The task failed.\n\n")
		if result.Error != "" {
			b.WriteString("```\n")
			b.WriteString(truncate(result.Error, 4000))
			b.WriteString("\n```\n")
		}
	}

	var footer []string
	if result.CostUSD > 0 {
		footer = append(footer, fmt.Sprintf("cost $%.4f", result.CostUSD))
	}
	if result.Duration > 0 {
		footer = append(footer, fmt.Sprintf("took %v", result.Duration.Round(time.Second)))
	}
	if len(footer) > 0 {
		b.WriteString("\n\n---\n_")
		b.WriteString(strings.Join(footer, ", "))
		b.WriteString("_\n")
	}

	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n\n[output truncated]"
}
