package poster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/internal/connectors"
	"github.com/jordanhubbard/relay/internal/ledger"
	"github.com/jordanhubbard/relay/internal/resilience"
	"github.com/jordanhubbard/relay/pkg/models"
)

type fakeConnector struct {
	provider  models.Provider
	contentID string
	err       error
	calls     int
	lastBody  string
}

func (f *fakeConnector) Provider() models.Provider { return f.provider }

func (f *fakeConnector) PostResult(ctx context.Context, task *models.QueuedTask, body string) (string, error) {
	f.calls++
	f.lastBody = body
	if f.err != nil {
		return "", f.err
	}
	return f.contentID, nil
}

func fastRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2.0}
}

func testTask() *models.QueuedTask {
	return &models.QueuedTask{
		TaskID:   "task-1",
		Provider: models.ProviderGitHub,
		SourceMetadata: map[string]string{
			"repo":         "acme/widgets",
			"issue_number": "17",
		},
	}
}

func TestPostResultRecordsLedgerEntry(t *testing.T) {
	conn := &fakeConnector{provider: models.ProviderGitHub, contentID: "424242"}
	posted := ledger.NewMemoryLedger(time.Hour)
	p := New([]connectors.Connector{conn}, posted)
	p.retry = fastRetry()

	result := &models.CLIResult{Success: true, Output: "all fixed", CostUSD: 0.12}
	require.NoError(t, p.PostResult(context.Background(), testTask(), result))

	assert.Equal(t, 1, conn.calls)
	assert.Contains(t, conn.lastBody, "## Agent Result")
	assert.Contains(t, conn.lastBody, "all fixed")
	assert.Contains(t, conn.lastBody, "$0.1200")

	ok, err := posted.Contains(context.Background(), models.ProviderGitHub, "424242")
	require.NoError(t, err)
	assert.True(t, ok, "posted content id must land in the ledger")
}

func TestPostResultFailureDoesNotRecordLedger(t *testing.T) {
	conn := &fakeConnector{provider: models.ProviderGitHub, err: errors.New("api down")}
	posted := ledger.NewMemoryLedger(time.Hour)
	p := New([]connectors.Connector{conn}, posted)
	p.retry = fastRetry()

	err := p.PostResult(context.Background(), testTask(), &models.CLIResult{Success: true, Output: "x"})
	require.Error(t, err)
	assert.Equal(t, 2, conn.calls, "a transient failure retries before giving up")
}

func TestPostResultNonRetryableFailsFast(t *testing.T) {
	conn := &fakeConnector{
		provider: models.ProviderGitHub,
		err:      &connectors.APIError{Provider: models.ProviderGitHub, StatusCode: 404},
	}
	p := New([]connectors.Connector{conn}, ledger.NewMemoryLedger(time.Hour))
	p.retry = fastRetry()

	require.Error(t, p.PostResult(context.Background(), testTask(), &models.CLIResult{Success: true}))
	assert.Equal(t, 1, conn.calls, "a 404 must not be retried")
}

func TestPostResultUnknownProvider(t *testing.T) {
	p := New(nil, ledger.NewMemoryLedger(time.Hour))
	err := p.PostResult(context.Background(), testTask(), &models.CLIResult{})
	assert.Error(t, err)
}

func TestFormatResultFailure(t *testing.T) {
	body := FormatResult(testTask(), &models.CLIResult{Success: false, Error: "execution timed out"})

	assert.Contains(t, body, "## Agent Result")
	assert.Contains(t, body, "The task failed")
	assert.Contains(t, body, "execution timed out")
}
