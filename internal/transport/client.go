// Package transport provides the shared authenticated HTTP client used by
// every component that talks to the control plane: header priority
// (bearer > API key > Ed25519 envelope), a raw-body send path that
// guarantees the transmitted bytes match exactly what was signed, and
// retry-with-backoff on transient failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/opena2a/aim-sdk-go/internal/signing"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	sdkUserAgent      = "aim-sdk-go/1.0.0"
)

// AccessTokenSource supplies a bearer token for OAuth-mode requests. It is
// an interface (rather than *token.Manager directly) so this package
// never imports internal/token, avoiding a dependency cycle (the token
// manager's own refresh/recover calls deliberately bypass this package).
type AccessTokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Signer supplies Ed25519 envelope signing for requests made with no
// bearer token and no API key.
type Signer interface {
	SignEnvelope(agentID, method, path string, body interface{}) (signing.Envelope, []byte, error)
}

// Client is the shared authenticated HTTP client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger

	AgentID    string
	APIKey     string
	SDKTokenID string

	TokenSource AccessTokenSource
	Signer      Signer

	MaxRetries int
}

// NewClient builds a Client against baseURL. Auth fields are populated by
// the caller (the registration orchestrator / verifier) since they're
// resolved per-mode, not at construction time.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(nopWriter{}, "", 0)
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Logger:     logger,
		MaxRetries: defaultMaxRetries,
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Response is the decoded result of a request, plus the raw status code
// so callers can branch on 404/5xx distinctly from success. 401/403 never
// arrive as a Response; Do returns them as *ErrHTTPStatus.
type Response struct {
	StatusCode int
	Body       map[string]interface{}
}

// ErrHTTPStatus is returned, unwrapped and without retry, when the server
// responds 401 or 403. Every other status is returned as a Response.
type ErrHTTPStatus struct {
	StatusCode int
	Body       map[string]interface{}
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("transport: unexpected status %d", e.StatusCode)
}

// Do issues an authenticated request. body, if non-nil, is pre-serialized
// with signing.EnvelopeBodyJSON when Ed25519 envelope auth is used, so the
// bytes actually sent are byte-identical to the bytes that were signed.
// When a bearer token or API key is used, body is serialized once with
// encoding/json, which is fine since those modes carry no body signature.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	return c.doWithRetry(ctx, method, path, body, 0)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body interface{}, attempt int) (*Response, error) {
	req, bodyForSigning, err := c.buildRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if err := c.attachAuth(req, method, path, bodyForSigning); err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if attempt < c.MaxRetries {
			c.backoff(attempt)
			return c.doWithRetry(ctx, method, path, body, attempt+1)
		}
		return nil, fmt.Errorf("transport: request failed after %d attempts: %w", attempt+1, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	dec := json.NewDecoder(resp.Body)
	_ = dec.Decode(&decoded)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ErrHTTPStatus{StatusCode: resp.StatusCode, Body: decoded}
	case resp.StatusCode >= 500 && attempt < c.MaxRetries:
		c.backoff(attempt)
		return c.doWithRetry(ctx, method, path, body, attempt+1)
	}

	return &Response{StatusCode: resp.StatusCode, Body: decoded}, nil
}

func (c *Client) backoff(attempt int) {
	d := time.Duration(1<<uint(attempt)) * time.Second
	time.Sleep(d)
}

func (c *Client) buildRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, []byte, error) {
	url := c.BaseURL + path

	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", sdkUserAgent)
	if c.SDKTokenID != "" {
		req.Header.Set("X-SDK-Token", c.SDKTokenID)
	}
	return req, bodyBytes, nil
}

// attachAuth picks exactly one auth mechanism in priority order: bearer,
// then API key, then the Ed25519 envelope quartet. When the envelope is
// used, it re-signs and replaces the request body with the exact
// canonical bytes that were signed.
func (c *Client) attachAuth(req *http.Request, method, path string, body []byte) error {
	if c.TokenSource != nil {
		token, err := c.TokenSource.GetAccessToken(req.Context())
		if err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		}
	}

	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
		return nil
	}

	if c.Signer != nil {
		var bodyVal interface{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &bodyVal); err != nil {
				return fmt.Errorf("transport: decode body for envelope signing: %w", err)
			}
		}
		env, rawBody, err := c.Signer.SignEnvelope(c.AgentID, method, path, bodyVal)
		if err != nil {
			return fmt.Errorf("transport: sign envelope: %w", err)
		}
		req.Header.Set("X-Agent-ID", env.AgentID)
		req.Header.Set("X-Signature", env.Signature)
		req.Header.Set("X-Timestamp", env.Timestamp)
		req.Header.Set("X-Public-Key", env.PublicKey)
		if rawBody != nil {
			req.Body = io.NopCloser(bytes.NewReader(rawBody))
			req.ContentLength = int64(len(rawBody))
		}
		return nil
	}

	return nil
}
