// Package aim is the public surface of the AIM Go SDK: a one-call
// Register that returns a Client carrying a verifiable Ed25519 identity,
// and the Action Verifier primitives/wrappers (VerifyAction,
// PerformAction, TrackAction, RequireApproval) that tie user functions to
// the control plane's signed-request/policy-decision/audit pipeline.
package aim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/opena2a/aim-sdk-go/internal/config"
	"github.com/opena2a/aim-sdk-go/internal/detectors"
	"github.com/opena2a/aim-sdk-go/internal/domain"
	"github.com/opena2a/aim-sdk-go/internal/signing"
	"github.com/opena2a/aim-sdk-go/internal/storage"
	"github.com/opena2a/aim-sdk-go/internal/token"
	"github.com/opena2a/aim-sdk-go/internal/transport"
)

const sdkVersion = "aim-sdk-go@1.0.0"

const (
	pathRegisterOAuth  = "/api/v1/agents"
	pathRegisterAPIKey = "/api/v1/public/agents/register"
	pathDetectionFmt   = "/api/v1/detection/agents/%s/report"
)

// Client is the configured result of Register: a verifiable agent
// identity plus the action-verification state machine (C5) bound to it.
type Client struct {
	AgentID   string
	name      string
	serverURL string

	keyPair *signing.KeyPair
	store   *storage.Store

	transport    *transport.Client
	tokenManager *token.Manager
	apiKey       string

	logger     *log.Logger
	failClosed bool
	tracker    *detectors.RuntimeTracker
}

// Register is the single entry point for C4: load an existing identity
// for name if one is stored (unless WithForceNew is given), otherwise
// detect capabilities/MCP servers, generate an Ed25519 keypair, register
// with the control plane in the resolved auth mode, and persist the
// result.
func Register(name, aimURL string, opts ...Option) (*Client, error) {
	cfg := defaultRegisterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.New(io.Discard, "", 0)
	}

	if name == "" {
		return nil, &ConfigurationError{Message: "agent name is required"}
	}
	if aimURL == "" {
		return nil, &ConfigurationError{Message: "aim_url is required"}
	}
	aimURL = strings.TrimRight(aimURL, "/")

	store, err := storage.NewStore(storage.WithLogger(cfg.logger))
	if err != nil {
		return nil, &ConfigurationError{Message: "identity store unavailable", Cause: err}
	}

	if !cfg.forceNew {
		if client, ok, err := loadExisting(store, name, cfg); err != nil {
			return nil, err
		} else if ok {
			return client, nil
		}
	}

	mode, err := resolveAuthMode(cfg)
	if err != nil {
		return nil, err
	}

	var capabilities []string
	var mcpEvents []domain.DetectionEvent
	if cfg.autoDetect {
		capDetector := detectors.NewCapabilityDetector()
		capabilities = capDetector.DetectAll(cfg.sourceFiles...)
		mcpEvents = detectors.NewMCPDetector(sdkVersion).DetectAll()
	}
	if len(cfg.capabilities) > 0 {
		capabilities = cfg.capabilities
	}
	mcpServers := cfg.mcpServers
	if len(mcpServers) == 0 {
		for _, e := range mcpEvents {
			mcpServers = append(mcpServers, e.MCPServer)
		}
	}

	protocol := detectors.NewProtocolDetector().Detect(cfg.protocol)
	if cfg.metadata == nil {
		cfg.metadata = map[string]interface{}{}
	}
	cfg.metadata["protocol"] = string(protocol)

	keyPair, err := signing.GenerateKeyPair()
	if err != nil {
		return nil, &ConfigurationError{Message: "key generation failed", Cause: err}
	}

	creds, tokenState, err := register(aimURL, mode, name, cfg, keyPair, capabilities, mcpServers)
	if err != nil {
		return nil, err
	}
	creds.ServerURL = aimURL
	creds.RegisteredAt = domain.Now()

	if creds.PublicKey != "" && creds.PublicKey != keyPair.PublicKeyBase64() {
		return nil, &ConfigurationError{Message: "server-returned public key does not match the locally generated key pair"}
	}
	if creds.PublicKey == "" {
		creds.PublicKey = keyPair.PublicKeyBase64()
	}
	creds.PrivateKey = keyPair.PrivateKeyBase64()

	if err := persistCredential(store, name, creds); err != nil {
		cfg.logger.Printf("aim: failed to persist credentials: %v", err)
		return nil, &ConfigurationError{Message: "failed to persist credentials", Cause: err}
	}

	client := buildClient(name, creds, keyPair, store, tokenState, mode, cfg)

	if len(mcpEvents) > 0 && client.AgentID != "" {
		path := fmt.Sprintf(pathDetectionFmt, client.AgentID)
		if _, err := client.transport.Do(context.Background(), "POST", path, map[string]interface{}{"detections": mcpEvents}); err != nil {
			cfg.logger.Printf("aim: best-effort detection report failed: %v", err)
		}
	}

	return client, nil
}

// Load reconstructs a Client purely from previously persisted
// credentials, never contacting the control plane. It fails if no
// credentials exist for name.
func Load(name string, opts ...Option) (*Client, error) {
	cfg := defaultRegisterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.New(io.Discard, "", 0)
	}

	store, err := storage.NewStore(storage.WithLogger(cfg.logger))
	if err != nil {
		return nil, &ConfigurationError{Message: "identity store unavailable", Cause: err}
	}
	client, ok, err := loadExisting(store, name, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("no stored credentials for agent %q", name)}
	}
	return client, nil
}

// AutoRegisterOrLoad mirrors the Python SDK's environment-driven
// auto-init path: it reads AIM_AGENT_NAME/AIM_URL/AIM_AUTO_REGISTER/
// AIM_STRICT_MODE from the process environment (via internal/config,
// optionally sourced from a .env file) and either loads an existing
// identity or registers a new one. It returns a ConfigurationError if no
// agent name is configured, and Load's error if nothing is stored and
// auto-registration is disabled. AIM_STRICT_MODE maps to WithFailClosed.
func AutoRegisterOrLoad(opts ...Option) (*Client, error) {
	defaults := config.Load()
	if defaults.AgentName == "" {
		return nil, &ConfigurationError{Message: "AIM_AGENT_NAME is not set"}
	}

	if defaults.StrictMode {
		opts = append([]Option{WithFailClosed()}, opts...)
	}

	client, err := Load(defaults.AgentName, opts...)
	if err == nil {
		return client, nil
	}
	if !defaults.AutoRegister {
		return nil, err
	}
	return Register(defaults.AgentName, defaults.AIMURL, opts...)
}

type authMode int

const (
	authModeNone authMode = iota
	authModeAPIKey
	authModeOAuth
)

// resolveAuthMode implements spec.md §4.4's precedence, per DESIGN.md's
// Open Question #2 resolution: an explicit API key with no embedded SDK
// credentials forces API-key mode; embedded SDK credentials otherwise
// take priority over a bare API key.
func resolveAuthMode(cfg registerConfig) (authMode, error) {
	embedded := loadEmbeddedCredentials()
	switch {
	case cfg.apiKey != "" && embedded == nil:
		return authModeAPIKey, nil
	case embedded != nil:
		return authModeOAuth, nil
	case cfg.apiKey != "":
		return authModeAPIKey, nil
	default:
		return authModeNone, &ConfigurationError{Message: "no API key supplied and no embedded SDK credentials found"}
	}
}

// loadEmbeddedCredentials looks for the alternate single-agent
// credentials shape an SDK download bundle ships, at the home credentials
// path (~/.aim/credentials.json) only; the Identity Store's other
// discovery locations are not searched. Absence is not an error: most callers
// run in API-key mode and never have one.
func loadEmbeddedCredentials() *domain.EmbeddedCredentials {
	path, err := storage.HomeCredentialsPath()
	if err != nil {
		return nil
	}
	s, err := storage.NewStore(storage.WithCredentialsPath(path))
	if err != nil {
		return nil
	}
	var embedded domain.EmbeddedCredentials
	if err := s.Load(&embedded); err != nil {
		return nil
	}
	if embedded.AIMURL == "" || embedded.RefreshToken == "" {
		return nil
	}
	return &embedded
}

func loadExisting(store *storage.Store, name string, cfg registerConfig) (*Client, bool, error) {
	var all domain.CredentialStore
	if err := store.Load(&all); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		if errors.Is(err, storage.ErrCorruptCredentials) {
			return nil, false, &CorruptCredentialsError{Cause: err}
		}
		return nil, false, &ConfigurationError{Message: "failed to read identity store", Cause: err}
	}
	creds, ok := all[name]
	if !ok {
		return nil, false, nil
	}

	keyPair, err := signing.KeyPairFromBase64(creds.PublicKey, creds.PrivateKey)
	if err != nil {
		return nil, false, &ConfigurationError{Message: "stored key pair is invalid", Cause: err}
	}

	mode := authModeAPIKey
	if creds.RefreshToken != "" {
		mode = authModeOAuth
	}

	client := buildClient(name, creds, keyPair, store, token.State{
		ServerURL:    creds.ServerURL,
		RefreshToken: creds.RefreshToken,
		AccessToken:  creds.AccessToken,
		SDKTokenID:   creds.SDKTokenID,
	}, mode, cfg)
	return client, true, nil
}

func buildClient(name string, creds domain.AgentCredentials, keyPair *signing.KeyPair, store *storage.Store, tokenState token.State, mode authMode, cfg registerConfig) *Client {
	client := &Client{
		AgentID:    creds.AgentID,
		name:       name,
		serverURL:  creds.ServerURL,
		keyPair:    keyPair,
		store:      store,
		logger:     cfg.logger,
		failClosed: cfg.failClosed,
		tracker:    detectors.DefaultTracker(),
	}

	if mode == authModeOAuth {
		client.tokenManager = token.NewManager(tokenState, func(s token.State) {
			client.onTokenRotate(s)
		}, cfg.logger)
	} else {
		client.apiKey = cfg.apiKey
	}

	tc := transport.NewClient(creds.ServerURL, cfg.logger)
	tc.AgentID = creds.AgentID
	tc.APIKey = client.apiKey
	tc.SDKTokenID = creds.SDKTokenID
	tc.Signer = keyPair
	if client.tokenManager != nil {
		tc.TokenSource = client.tokenManager
	}
	client.transport = tc

	return client
}

// onTokenRotate persists a rotated refresh/access token back into the
// credential store, keeping the Token Manager's in-memory state and the
// on-disk record in sync without the caller having to intervene.
func (c *Client) onTokenRotate(s token.State) {
	var all domain.CredentialStore
	if err := c.store.Load(&all); err != nil {
		all = domain.CredentialStore{}
	}
	creds := all[c.name]
	creds.RefreshToken = s.RefreshToken
	creds.AccessToken = s.AccessToken
	creds.SDKTokenID = s.SDKTokenID
	all[c.name] = creds
	if err := c.store.Save(all); err != nil {
		c.logger.Printf("aim: failed to persist rotated token: %v", err)
	}
}

// Revoke makes a best-effort call to invalidate this agent's refresh
// token on the control plane, then always removes the locally persisted
// credentials - even if the revoke call failed, per spec'd token
// lifecycle: a client that asked to be revoked must not keep a usable
// local identity around.
func (c *Client) Revoke(ctx context.Context) error {
	if c.tokenManager != nil {
		if err := c.tokenManager.Revoke(ctx); err != nil {
			c.logger.Printf("aim: best-effort token revoke failed: %v", err)
		}
	}

	var all domain.CredentialStore
	if err := c.store.Load(&all); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return c.store.Delete()
	}
	delete(all, c.name)
	if len(all) == 0 {
		return c.store.Delete()
	}
	return c.store.Save(all)
}

func persistCredential(store *storage.Store, name string, creds domain.AgentCredentials) error {
	var all domain.CredentialStore
	if err := store.Load(&all); err != nil {
		all = domain.CredentialStore{}
	}
	all[name] = creds
	return store.Save(all)
}

// register performs the mode-specific HTTP registration call and returns
// the resulting credential record (sans private key, which the caller
// fills in) plus the OAuth token state to seed the Token Manager with.
func register(aimURL string, mode authMode, name string, cfg registerConfig, keyPair *signing.KeyPair, capabilities, mcpServers []string) (domain.AgentCredentials, token.State, error) {
	body := map[string]interface{}{
		"name":         name,
		"display_name": orDefault(cfg.displayName, name),
		"description":  cfg.description,
		"type":         cfg.agentType,
		"metadata":     cfg.metadata,
		"capabilities": capabilities,
		"talks_to":     mcpServers,
		"public_key":   keyPair.PublicKeyBase64(),
	}

	tc := transport.NewClient(aimURL, cfg.logger)
	var tokenState token.State
	var path string

	switch mode {
	case authModeOAuth:
		embedded := loadEmbeddedCredentials()
		if embedded == nil {
			return domain.AgentCredentials{}, token.State{}, &ConfigurationError{Message: "OAuth mode selected but no embedded SDK credentials are available"}
		}
		tokenState = token.State{
			ServerURL:    aimURL,
			RefreshToken: embedded.RefreshToken,
			AccessToken:  embedded.AccessToken,
			SDKTokenID:   embedded.SDKTokenID,
		}
		manager := token.NewManager(tokenState, func(s token.State) { tokenState = s }, cfg.logger)
		tc.TokenSource = manager
		tc.SDKTokenID = tokenState.SDKTokenID
		path = pathRegisterOAuth
	case authModeAPIKey:
		tc.APIKey = cfg.apiKey
		path = pathRegisterAPIKey
	default:
		return domain.AgentCredentials{}, token.State{}, &ConfigurationError{Message: "no usable auth mode resolved"}
	}

	resp, err := tc.Do(context.Background(), "POST", path, body)
	if err != nil {
		if httpErr, ok := asHTTPStatusError(err); ok {
			return domain.AgentCredentials{}, token.State{}, &AuthenticationError{Message: "registration rejected", Cause: httpErr}
		}
		return domain.AgentCredentials{}, token.State{}, &VerificationError{Message: "registration request failed", Cause: err}
	}
	if resp.StatusCode >= 300 {
		return domain.AgentCredentials{}, token.State{}, &ConfigurationError{Message: fmt.Sprintf("registration failed with status %d", resp.StatusCode)}
	}

	creds := domain.AgentCredentials{
		AgentID:   stringField(resp.Body, "agent_id", "id"),
		PublicKey: stringField(resp.Body, "public_key"),
		Status:    stringField(resp.Body, "status"),
	}
	if ts, ok := resp.Body["trust_score"].(float64); ok {
		creds.TrustScore = ts
	}
	if mode == authModeOAuth {
		creds.RefreshToken = tokenState.RefreshToken
		creds.AccessToken = tokenState.AccessToken
		creds.SDKTokenID = tokenState.SDKTokenID
	}

	return creds, tokenState, nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func stringField(body map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := body[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func asHTTPStatusError(err error) (*transport.ErrHTTPStatus, bool) {
	var httpErr *transport.ErrHTTPStatus
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
