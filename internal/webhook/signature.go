package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// SignatureError explains a rejected webhook. The ingress maps it to 401
// without echoing details back to the caller.
type SignatureError struct {
	Provider models.Provider
	Reason   string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s signature rejected: %s", e.Provider, e.Reason)
}

// SignatureValidator verifies the HMAC scheme of one provider. headers
// carries the raw request headers the scheme needs; body is the exact raw
// request body the signature was computed over.
type SignatureValidator interface {
	ValidateSignature(body []byte, headers map[string]string) error
}

// hmacHex computes the lowercase hex HMAC-SHA256 of msg under secret.
func hmacHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalConstantTime compares two hex digests without leaking timing.
func equalConstantTime(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// disabledValidator passes every request. It is installed only when the
// operator left a provider's secret empty, and that choice is logged
// loudly at registration time.
type disabledValidator struct{}

func (disabledValidator) ValidateSignature([]byte, map[string]string) error { return nil }

// githubValidator checks X-Hub-Signature-256: "sha256=<hex>" over the raw
// body.
type githubValidator struct {
	secret string
}

func (v *githubValidator) ValidateSignature(body []byte, headers map[string]string) error {
	header := headers["X-Hub-Signature-256"]
	if header == "" {
		return &SignatureError{Provider: models.ProviderGitHub, Reason: "missing X-Hub-Signature-256 header"}
	}
	if !strings.HasPrefix(header, "sha256=") {
		return &SignatureError{Provider: models.ProviderGitHub, Reason: "malformed signature header"}
	}
	expected := "sha256=" + hmacHex(v.secret, body)
	if !equalConstantTime(header, expected) {
		return &SignatureError{Provider: models.ProviderGitHub, Reason: "signature mismatch"}
	}
	return nil
}

// slackValidator checks X-Slack-Signature: "v0=<hex>" over
// "v0:{timestamp}:{body}", rejecting requests whose timestamp falls
// outside the replay window.
type slackValidator struct {
	secret       string
	replayWindow time.Duration
	now          func() time.Time
}

func (v *slackValidator) ValidateSignature(body []byte, headers map[string]string) error {
	header := headers["X-Slack-Signature"]
	tsHeader := headers["X-Slack-Request-Timestamp"]
	if header == "" || tsHeader == "" {
		return &SignatureError{Provider: models.ProviderSlack, Reason: "missing signature headers"}
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return &SignatureError{Provider: models.ProviderSlack, Reason: "malformed request timestamp"}
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.replayWindow {
		return &SignatureError{Provider: models.ProviderSlack, Reason: "request timestamp outside replay window"}
	}

	base := fmt.Sprintf("v0:%s:%s", tsHeader, body)
	expected := "v0=" + hmacHex(v.secret, []byte(base))
	if !equalConstantTime(header, expected) {
		return &SignatureError{Provider: models.ProviderSlack, Reason: "signature mismatch"}
	}
	return nil
}

// plainHexValidator checks a bare hex HMAC-SHA256 digest in a single
// header. Jira and Sentry both use this shape.
type plainHexValidator struct {
	provider models.Provider
	header   string
	secret   string
}

func (v *plainHexValidator) ValidateSignature(body []byte, headers map[string]string) error {
	header := headers[v.header]
	if header == "" {
		return &SignatureError{Provider: v.provider, Reason: fmt.Sprintf("missing %s header", v.header)}
	}
	if !equalConstantTime(header, hmacHex(v.secret, body)) {
		return &SignatureError{Provider: v.provider, Reason: "signature mismatch"}
	}
	return nil
}

// NewSignatureValidator builds the validator for a provider. An empty
// secret disables validation for that provider, a deliberate operator
// escape hatch for local development.
func NewSignatureValidator(provider models.Provider, secret string, slackReplayWindow time.Duration) SignatureValidator {
	if secret == "" {
		log.Printf("[Webhook] WARNING: no secret configured for %s, signature validation DISABLED", provider)
		return disabledValidator{}
	}

	switch provider {
	case models.ProviderGitHub:
		return &githubValidator{secret: secret}
	case models.ProviderSlack:
		return &slackValidator{secret: secret, replayWindow: slackReplayWindow, now: time.Now}
	case models.ProviderJira:
		return &plainHexValidator{provider: models.ProviderJira, header: "X-Hub-Signature", secret: secret}
	case models.ProviderSentry:
		return &plainHexValidator{provider: models.ProviderSentry, header: "Sentry-Hook-Signature", secret: secret}
	}

	// Unknown providers never reach here; ParseProvider guards the path.
	return disabledValidator{}
}
