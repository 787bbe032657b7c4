package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

func TestStaticTokenWins(t *testing.T) {
	svc, err := NewService(config.TokensConfig{
		Static: map[string]string{"github": "static-token"},
	}, "https://api.github.com")
	require.NoError(t, err)

	tok, err := svc.Token(context.Background(), models.ProviderGitHub, "123")
	require.NoError(t, err)
	assert.Equal(t, "static-token", tok)
}

func TestNoSourceConfigured(t *testing.T) {
	svc, err := NewService(config.TokensConfig{}, "https://api.github.com")
	require.NoError(t, err)

	_, err = svc.Token(context.Background(), models.ProviderJira, "")
	assert.Error(t, err)
}

func TestRemoteTokenService(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "slack", r.URL.Query().Get("provider"))
		assert.Equal(t, "inst-9", r.URL.Query().Get("installation_id"))
		w.Write([]byte(`{"token":"remote-token"}`))
	}))
	defer ts.Close()

	svc, err := NewService(config.TokensConfig{ServiceURL: ts.URL}, "https://api.github.com")
	require.NoError(t, err)

	tok, err := svc.Token(context.Background(), models.ProviderSlack, "inst-9")
	require.NoError(t, err)
	assert.Equal(t, "remote-token", tok)
}

func TestRemoteTokenServiceFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	svc, err := NewService(config.TokensConfig{ServiceURL: ts.URL}, "https://api.github.com")
	require.NoError(t, err)

	_, err = svc.Token(context.Background(), models.ProviderSlack, "inst-9")
	assert.Error(t, err)
}

func TestInvalidAppKeyRejectedAtStartup(t *testing.T) {
	_, err := NewService(config.TokensConfig{
		GitHubAppID:      "12345",
		GitHubPrivateKey: "not a pem key",
	}, "https://api.github.com")
	assert.Error(t, err)
}
