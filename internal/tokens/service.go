// Package tokens resolves the credentials used for outbound provider
// calls. Static tokens cover dev and single-tenant installs; GitHub App
// installations get short-lived tokens minted on demand.
package tokens

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

// Source resolves an API token for outbound calls to a provider on behalf
// of an installation.
type Source interface {
	Token(ctx context.Context, provider models.Provider, installationID string) (string, error)
}

// Service resolves tokens in order: static config, GitHub App minting,
// remote token service. The first source that applies wins.
type Service struct {
	cfg        config.TokensConfig
	httpClient *http.Client
	baseURL    string // GitHub API base, overridable in tests

	appKey *rsa.PrivateKey

	mu    sync.Mutex
	cache map[string]cachedToken // installation id -> token
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewService builds the token service. An invalid GitHub App key is a
// startup error rather than a per-task surprise.
func NewService(cfg config.TokensConfig, githubBaseURL string) (*Service, error) {
	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(githubBaseURL, "/"),
		cache:      make(map[string]cachedToken),
	}

	if cfg.GitHubAppID != "" && cfg.GitHubPrivateKey != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.GitHubPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("invalid github app private key: %w", err)
		}
		s.appKey = key
		log.Printf("[Tokens] github app %s installation minting enabled", cfg.GitHubAppID)
	}

	return s, nil
}

// Token resolves a credential for the provider/installation pair.
func (s *Service) Token(ctx context.Context, provider models.Provider, installationID string) (string, error) {
	if t := s.cfg.Static[string(provider)]; t != "" {
		return t, nil
	}

	if provider == models.ProviderGitHub && s.appKey != nil && installationID != "" {
		return s.installationToken(ctx, installationID)
	}

	if s.cfg.ServiceURL != "" {
		return s.remoteToken(ctx, provider, installationID)
	}

	return "", fmt.Errorf("no token source configured for provider %s", provider)
}

// installationToken exchanges an app JWT for an installation access token,
// caching it until shortly before expiry.
func (s *Service) installationToken(ctx context.Context, installationID string) (string, error) {
	s.mu.Lock()
	if c, ok := s.cache[installationID]; ok && time.Now().Before(c.expiresAt) {
		s.mu.Unlock()
		return c.token, nil
	}
	s.mu.Unlock()

	appJWT, err := s.mintAppJWT()
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%s/access_tokens", s.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("installation token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("installation token request returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode installation token response: %w", err)
	}

	s.mu.Lock()
	s.cache[installationID] = cachedToken{token: out.Token, expiresAt: out.ExpiresAt.Add(-time.Minute)}
	s.mu.Unlock()

	return out.Token, nil
}

// mintAppJWT signs the short-lived app-level JWT GitHub requires for the
// installation token exchange. iat is backdated 60s to absorb clock skew.
func (s *Service) mintAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.GitHubAppID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.appKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign app jwt: %w", err)
	}
	return signed, nil
}

// remoteToken asks the external token service.
func (s *Service) remoteToken(ctx context.Context, provider models.Provider, installationID string) (string, error) {
	endpoint := fmt.Sprintf("%s/token?provider=%s&installation_id=%s",
		strings.TrimRight(s.cfg.ServiceURL, "/"), provider, url.QueryEscape(installationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token service returned %d for %s", resp.StatusCode, provider)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode token service response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("token service returned empty token for %s", provider)
	}
	return out.Token, nil
}
