package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenLifetime is how long an issued access token is treated as
// valid. The CRM issues tokens for one hour.
const tokenLifetime = time.Hour

// tokenEarlyRefresh renews tokens this long before expiry so in-flight
// requests never carry a token about to lapse.
const tokenEarlyRefresh = 5 * time.Minute

// TokenConfig holds the OAuth refresh-token credentials.
type TokenConfig struct {
	// TokenURL is the OAuth token endpoint, e.g.
	// "https://accounts.zoho.com/oauth/v2/token".
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// tokenSource exchanges a long-lived refresh token for short-lived
// access tokens, caching each until shortly before expiry.
type tokenSource struct {
	config TokenConfig
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func newTokenSource(cfg TokenConfig, client *http.Client, logger *slog.Logger) (*tokenSource, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL cannot be empty")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("OAuth credentials cannot be empty")
	}
	return &tokenSource{
		config: cfg,
		client: client,
		logger: logger.With("component", "crm_token_source"),
	}, nil
}

// Token returns a valid access token, refreshing it if the cached one
// is missing or close to expiry.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && time.Now().Before(t.expiresAt.Add(-tokenEarlyRefresh)) {
		return t.accessToken, nil
	}
	return t.refresh(ctx)
}

// Invalidate drops the cached token so the next Token call refreshes.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = ""
}

// refresh performs the refresh-token grant. Callers must hold t.mu.
func (t *tokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("refresh_token", t.config.RefreshToken)
	form.Set("client_id", t.config.ClientID)
	form.Set("client_secret", t.config.ClientSecret)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	// The CRM answers 200 with an error field for bad credentials.
	if payload.Error != "" {
		return "", fmt.Errorf("token refresh rejected: %s", payload.Error)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	t.accessToken = payload.AccessToken
	t.expiresAt = time.Now().Add(tokenLifetime)
	t.logger.Debug("CRM access token refreshed")
	return t.accessToken, nil
}
