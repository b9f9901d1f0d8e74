package aim

import (
	"context"
	"fmt"

	"github.com/opena2a/aim-sdk-go/internal/domain"
)

const (
	pathAgentFmt          = "/api/v1/agents/%s"
	pathAgentsList        = "/api/v1/agents"
	pathCapabilityGrant   = "/api/v1/sdk-api/agents/%s/capabilities"
	pathMCPServersFmt     = "/api/v1/sdk-api/agents/%s/mcp-servers"
	pathMCPConnectionsFmt = "/api/v1/sdk-api/agents/%s/mcp-connections"
	pathMCPAttestFmt      = "/api/v1/mcp-servers/%s/attest"
)

// AgentDetails is the decoded shape of a GetAgentDetails/ListAgents
// response entry, carrying the fields the control plane reports back
// about a registered agent beyond what the Identity Store persists
// locally.
type AgentDetails struct {
	AgentID     string                 `json:"agent_id"`
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name,omitempty"`
	Status      string                 `json:"status,omitempty"`
	TrustScore  float64                `json:"trust_score,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// GetAgentDetails fetches the control plane's current record for this
// agent, signed with the same Ed25519/bearer auth as every other call.
func (c *Client) GetAgentDetails(ctx context.Context) (*AgentDetails, error) {
	path := fmt.Sprintf(pathAgentFmt, c.AgentID)
	resp, err := c.transport.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, wrapAgentError(err)
	}
	return decodeAgentDetails(resp.Body), nil
}

// ListAgents returns a page of the agents visible to this identity's
// credentials (the control plane scopes the result to the caller's
// organization). When page and pageSize are both zero no query is sent
// and the server applies its own defaults; otherwise both are sent as
// given, a zero included.
func (c *Client) ListAgents(ctx context.Context, page, pageSize int) ([]AgentDetails, error) {
	path := pathAgentsList
	if page > 0 || pageSize > 0 {
		path = fmt.Sprintf("%s?page=%d&page_size=%d", pathAgentsList, page, pageSize)
	}
	resp, err := c.transport.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, wrapAgentError(err)
	}
	raw, _ := resp.Body["agents"].([]interface{})
	agents := make([]AgentDetails, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			agents = append(agents, *decodeAgentDetails(m))
		}
	}
	return agents, nil
}

// UpdateAgent patches mutable fields on this agent's record. fields uses
// the same keys the registration body does (display_name, description,
// metadata, ...); unset keys are left untouched server-side.
func (c *Client) UpdateAgent(ctx context.Context, fields map[string]interface{}) (*AgentDetails, error) {
	path := fmt.Sprintf(pathAgentFmt, c.AgentID)
	resp, err := c.transport.Do(ctx, "PUT", path, fields)
	if err != nil {
		return nil, wrapAgentError(err)
	}
	return decodeAgentDetails(resp.Body), nil
}

// DeleteAgent soft-deletes another agent's registration on the control
// plane. Deleting the currently authenticated agent is refused: this
// client's own identity backs every signed call it makes, so removing it
// out from under itself would strand the session - use Revoke for that
// lifecycle instead.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return &ConfigurationError{Message: "agent_id is required"}
	}
	if agentID == c.AgentID {
		return &ConfigurationError{Message: "cannot delete the currently authenticated agent"}
	}
	path := fmt.Sprintf(pathAgentFmt, agentID)
	_, err := c.transport.Do(ctx, "DELETE", path, nil)
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

// ReportSDKIntegration emits a sdk_integration-method DetectionEvent so
// the control plane's detection view shows this SDK as installed, even
// when the process never talks to an MCP server directly.
func (c *Client) ReportSDKIntegration(ctx context.Context) error {
	event := domain.DetectionEvent{
		MCPServer:       "aim-sdk-go",
		DetectionMethod: domain.DetectionSDKIntegration,
		Confidence:      100,
		SDKVersion:      sdkVersion,
		Timestamp:       domain.Now(),
	}
	path := fmt.Sprintf(pathDetectionFmt, c.AgentID)
	_, err := c.transport.Do(ctx, "POST", path, map[string]interface{}{"detections": []domain.DetectionEvent{event}})
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

// ReportCapabilities declares each capability in report through the
// idempotent per-capability grant endpoint, carrying the structured
// environment/frameworks scope alongside the name. Re-reporting a
// capability the agent already holds is a no-op server-side, so the
// granted count tracks distinct capabilities rather than attempts.
func (c *Client) ReportCapabilities(ctx context.Context, report domain.CapabilityReport) error {
	path := fmt.Sprintf(pathCapabilityGrant, c.AgentID)
	for name, scope := range report {
		body := map[string]interface{}{
			"capability":      name,
			"environment":     scope.Environment,
			"frameworks":      scope.Frameworks,
			"detectionMethod": scope.DetectionMethod,
		}
		if _, err := c.transport.Do(ctx, "POST", path, body); err != nil {
			return wrapAgentError(err)
		}
	}
	return nil
}

// RequestCapability grants a single capability to this agent, idempotent
// server-side if the capability is already present.
func (c *Client) RequestCapability(ctx context.Context, capability string) error {
	path := fmt.Sprintf(pathCapabilityGrant, c.AgentID)
	_, err := c.transport.Do(ctx, "POST", path, map[string]interface{}{"capability": capability})
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

// RegisterMCP attaches an MCP server to this agent's talks-to list,
// outside the detection pass run at Register time - useful when an MCP
// connection is established well after registration.
func (c *Client) RegisterMCP(ctx context.Context, mcpServer string, details map[string]interface{}) error {
	path := fmt.Sprintf(pathMCPServersFmt, c.AgentID)
	body := map[string]interface{}{
		"mcpServer":       mcpServer,
		"detectionMethod": domain.DetectionManual,
		"confidence":      100,
		"details":         details,
		"sdkVersion":      sdkVersion,
		"timestamp":       domain.Now(),
	}
	_, err := c.transport.Do(ctx, "POST", path, body)
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

// ReportMCPConnections flushes the process-wide runtime call tracker to
// the control plane as per-server connection records: call counts,
// first/last call timestamps, and the set of tools seen. Call it
// periodically or at shutdown; an empty tracker sends nothing.
func (c *Client) ReportMCPConnections(ctx context.Context) error {
	events := c.tracker.Detections(sdkVersion)
	if len(events) == 0 {
		return nil
	}
	path := fmt.Sprintf(pathMCPConnectionsFmt, c.AgentID)
	_, err := c.transport.Do(ctx, "POST", path, map[string]interface{}{"connections": events})
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

// AttestMCPServer submits a signed attestation for an MCP server this
// agent has vetted. The attestation payload is canonicalized and signed
// with the agent's own key; the signature travels in the body, the same
// alphabetical-key JSON contract the verification endpoint uses.
func (c *Client) AttestMCPServer(ctx context.Context, mcpServerID string, attestation map[string]interface{}) error {
	payload := map[string]interface{}{
		"agent_id":      c.AgentID,
		"mcp_server_id": mcpServerID,
		"timestamp":     domain.Now(),
	}
	for k, v := range attestation {
		payload[k] = v
	}

	sig, err := c.keyPair.SignActionPayload(payload)
	if err != nil {
		return &VerificationError{Message: "failed to sign attestation", Cause: err}
	}
	payload["signature"] = sig
	payload["public_key"] = c.keyPair.PublicKeyBase64()

	path := fmt.Sprintf(pathMCPAttestFmt, mcpServerID)
	_, err = c.transport.Do(ctx, "POST", path, payload)
	if err != nil {
		return wrapAgentError(err)
	}
	return nil
}

func decodeAgentDetails(body map[string]interface{}) *AgentDetails {
	details := &AgentDetails{
		AgentID:     stringField(body, "agent_id", "id"),
		Name:        stringField(body, "name"),
		DisplayName: stringField(body, "display_name"),
		Status:      stringField(body, "status"),
	}
	if ts, ok := body["trust_score"].(float64); ok {
		details.TrustScore = ts
	}
	if md, ok := body["metadata"].(map[string]interface{}); ok {
		details.Metadata = md
	}
	return details
}

func wrapAgentError(err error) error {
	if httpErr, ok := asHTTPStatusError(err); ok {
		return &AuthenticationError{Message: "agent request rejected", Cause: httpErr}
	}
	return &VerificationError{Message: "agent request failed", Cause: err}
}
