// Package token implements the token manager (C2): refresh/access token
// lifetime, rotation, and revoked-token recovery. It owns a small HTTP
// caller of its own (rather than depending on internal/transport) because
// the generic transport calls back into a Manager, through its
// AccessTokenSource interface, for bearer tokens.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opena2a/aim-sdk-go/internal/metrics"
)

const (
	expiryBuffer   = 60 * time.Second
	defaultExpiry  = time.Hour
	refreshPath    = "/api/v1/auth/refresh"
	recoverPath    = "/api/v1/auth/sdk/recover"
	revokePath     = "/api/v1/auth/revoke"
)

// State is the subset of AgentCredentials the token manager reads and
// mutates. Kept as its own struct (not domain.AgentCredentials directly)
// so this package has no dependency on internal/domain; Manager's caller
// is responsible for syncing State back into its own credential record
// and persisting it.
type State struct {
	ServerURL    string
	RefreshToken string
	AccessToken  string
	SDKTokenID   string
}

// Manager owns refresh/access token lifetime for one agent and guarantees
// at most one refresh is in flight at a time.
type Manager struct {
	mu     sync.Mutex
	state  State
	expiry time.Time

	httpClient *http.Client
	logger     *log.Logger

	// onRotate is invoked with the updated state whenever a refresh or
	// recovery rotates the refresh token, so the caller can persist it.
	onRotate func(State)
}

// NewManager builds a Manager seeded with the given state.
func NewManager(state State, onRotate func(State), logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(nopWriter{}, "", 0)
	}
	m := &Manager{
		state:      state,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		onRotate:   onRotate,
	}
	if state.AccessToken != "" {
		m.expiry = expiryFromToken(state.AccessToken, logger)
	}
	return m
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// GetAccessToken returns a token valid for at least the 60-second buffer,
// refreshing first if needed. At most one refresh is in flight per Manager
// at a time; concurrent callers serialize on mu.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.AccessToken != "" && time.Now().Add(expiryBuffer).Before(m.expiry) {
		return m.state.AccessToken, nil
	}
	return m.refreshLocked(ctx)
}

// Refresh forces a refresh regardless of the cached token's freshness.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	if m.state.RefreshToken == "" {
		return "", fmt.Errorf("token: no refresh token available")
	}

	resp, status, err := m.post(ctx, refreshPath, map[string]string{"refresh_token": m.state.RefreshToken})
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("token: refresh request failed: %w", err)
	}

	if status != http.StatusOK {
		errMsg := extractErrorMessage(resp)
		if strings.Contains(strings.ToLower(errMsg), "revoked") || strings.Contains(strings.ToLower(errMsg), "invalid") {
			return m.recoverLocked(ctx)
		}
		metrics.TokenRefreshesTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("token: refresh failed with status %d: %s", status, errMsg)
	}
	metrics.TokenRefreshesTotal.WithLabelValues("refreshed").Inc()

	accessToken, _ := resp["access_token"].(string)
	m.state.AccessToken = accessToken

	if newRefresh, ok := resp["refresh_token"].(string); ok && newRefresh != "" && newRefresh != m.state.RefreshToken {
		m.state.RefreshToken = newRefresh
		if jti := extractJTI(newRefresh); jti != "" {
			m.state.SDKTokenID = jti
		}
		m.notifyRotation()
	}

	m.expiry = expiryFromToken(accessToken, m.logger)
	return accessToken, nil
}

// recoverLocked attempts one recovery using the old refresh token. On
// success, credentials are rotated and persisted transparently; on
// failure, it returns an error carrying remediation guidance - the SDK never auto-downloads a new SDK, it only
// tells the embedding application to.
func (m *Manager) recoverLocked(ctx context.Context) (string, error) {
	m.logger.Printf("token: refresh token revoked, attempting automatic recovery")

	resp, status, err := m.post(ctx, recoverPath, map[string]string{"old_refresh_token": m.state.RefreshToken})
	if err != nil || status != http.StatusOK {
		metrics.TokenRefreshesTotal.WithLabelValues("recovery_failed").Inc()
		m.logger.Printf("token: automatic recovery failed; a fresh SDK download is required")
		return "", fmt.Errorf("token: refresh token revoked and recovery failed, download a fresh SDK")
	}
	metrics.TokenRefreshesTotal.WithLabelValues("recovered").Inc()

	accessToken, _ := resp["access_token"].(string)
	newRefresh, _ := resp["refresh_token"].(string)

	m.state.AccessToken = accessToken
	if newRefresh != "" {
		m.state.RefreshToken = newRefresh
		if jti := extractJTI(newRefresh); jti != "" {
			m.state.SDKTokenID = jti
		}
	}
	m.expiry = expiryFromToken(accessToken, m.logger)
	m.notifyRotation()

	m.logger.Printf("token: recovered automatically, credentials updated")
	return accessToken, nil
}

// Revoke makes a best-effort call to /auth/revoke then always clears the
// in-memory state; the caller is responsible for deleting local
// credentials regardless of the call's outcome.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.RefreshToken != "" {
		if _, _, err := m.post(ctx, revokePath, map[string]string{"refresh_token": m.state.RefreshToken}); err != nil {
			m.logger.Printf("token: revoke call failed (continuing to clear local state): %v", err)
		}
	}
	m.state = State{ServerURL: m.state.ServerURL}
	m.expiry = time.Time{}
	return nil
}

func (m *Manager) notifyRotation() {
	if m.onRotate != nil {
		m.onRotate(m.state)
	}
}

func (m *Manager) post(ctx context.Context, path string, body interface{}) (map[string]interface{}, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	url := strings.TrimRight(m.state.ServerURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return decoded, resp.StatusCode, nil
}

func extractErrorMessage(resp map[string]interface{}) string {
	if resp == nil {
		return ""
	}
	if msg, ok := resp["error"].(string); ok {
		return msg
	}
	return ""
}

// expiryFromToken decodes the unverified exp claim from a JWT-shaped
// access token. This SDK is never the token issuer, so it never verifies
// a signature here - only the server-side verifier does that.
func expiryFromToken(token string, logger *log.Logger) time.Time {
	if token == "" {
		return time.Now().Add(defaultExpiry)
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		logger.Printf("token: could not decode access token expiry, defaulting to 1h: %v", err)
		return time.Now().Add(defaultExpiry)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(defaultExpiry)
	}
	return exp.Time
}

// extractJTI decodes the unverified jti claim from a JWT-shaped token,
// used to track the server-side SDK token identifier across rotation.
func extractJTI(token string) string {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	jti, _ := claims["jti"].(string)
	return jti
}

// State returns a copy of the manager's current credential state, for
// persistence by the caller.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
