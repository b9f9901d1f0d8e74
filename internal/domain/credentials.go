// Package domain holds the client-side data model shared by every other
// internal package: credentials, verification requests/decisions, and
// detection reporting shapes.
package domain

import "time"

// AgentCredentials is the per-agent record persisted by the identity store.
// Exactly one of these exists per named agent on a given host.
type AgentCredentials struct {
	AgentID      string `json:"agent_id"`
	PublicKey    string `json:"public_key"`
	PrivateKey   string `json:"private_key,omitempty"`
	ServerURL    string `json:"server_url"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	SDKTokenID   string `json:"sdk_token_id,omitempty"`
	Status       string `json:"status,omitempty"`
	TrustScore   float64 `json:"trust_score,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

// CredentialStore is the full on-disk document: agent name -> credentials.
// A single-agent embedded-SDK-download shape is handled separately by the
// storage package since it has no outer name key.
type CredentialStore map[string]AgentCredentials

// EmbeddedCredentials is the alternate single-agent shape shipped inside an
// SDK download bundle, keyed by field rather than by agent name.
type EmbeddedCredentials struct {
	AIMURL       string `json:"aim_url"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token,omitempty"`
	SDKTokenID   string `json:"sdk_token_id"`
}

// Now returns the current instant formatted the way every timestamp in this
// module is formatted on the wire: ISO-8601 UTC with a trailing "Z".
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999999Z")
}
