package detectors

import (
	"os"
	"runtime/debug"
	"strings"
)

// Protocol is a classified agent communication protocol.
type Protocol string

const (
	ProtocolMCP   Protocol = "mcp"
	ProtocolA2A   Protocol = "a2a"
	ProtocolOAuth Protocol = "oauth"
	ProtocolSAML  Protocol = "saml"
	ProtocolDID   Protocol = "did"
	ProtocolACP   Protocol = "acp"
)

// protocolEnvIndicators lists, per protocol, the exact environment
// variable names whose presence selects that protocol; names are matched
// whole, not as prefixes.
var protocolEnvIndicators = map[Protocol][]string{
	ProtocolMCP:   {"MCP_SERVER_MODE", "MCP_SERVER_NAME", "MCP_TRANSPORT"},
	ProtocolA2A:   {"A2A_AGENT_MODE", "AGENT_TO_AGENT", "A2A_ENDPOINT"},
	ProtocolOAuth: {"OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_TOKEN_URL", "OAUTH_PROVIDER"},
	ProtocolSAML:  {"SAML_IDP_URL", "SAML_ENTITY_ID", "SAML_CERT", "SAML_SSO_URL"},
	ProtocolDID:   {"DID_METHOD", "DID_RESOLVER", "DECENTRALIZED_ID"},
	ProtocolACP:   {"ACP_AGENT_ID", "ACP_PROTOCOL_VERSION"},
}

// protocolImportIndicators are dependency-path substrings that weakly
// suggest a protocol, the Go analogue of the Python detector's
// sys.modules scan.
var protocolImportIndicators = map[Protocol][]string{
	ProtocolMCP: {"modelcontextprotocol", "/mcp"},
	ProtocolA2A: {"opena2a", "a2a"},
}

// ProtocolDetector classifies the agent's communication protocol.
type ProtocolDetector struct{}

// NewProtocolDetector builds a ProtocolDetector.
func NewProtocolDetector() *ProtocolDetector {
	return &ProtocolDetector{}
}

// Detect classifies the protocol by precedence: explicit override >
// environment variables > imported-module heuristics > default "mcp".
func (d *ProtocolDetector) Detect(explicit string) Protocol {
	if explicit != "" {
		return Protocol(strings.ToLower(explicit))
	}
	if p, ok := d.detectFromEnv(); ok {
		return p
	}
	if p, ok := d.detectFromImports(); ok {
		return p
	}
	return ProtocolMCP
}

func (d *ProtocolDetector) detectFromEnv() (Protocol, bool) {
	for _, p := range []Protocol{ProtocolMCP, ProtocolA2A, ProtocolOAuth, ProtocolSAML, ProtocolDID, ProtocolACP} {
		for _, indicator := range protocolEnvIndicators[p] {
			if _, present := os.LookupEnv(indicator); present {
				return p, true
			}
		}
	}
	return "", false
}

func (d *ProtocolDetector) detectFromImports() (Protocol, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}

	for _, p := range []Protocol{ProtocolMCP, ProtocolA2A} {
		for _, indicator := range protocolImportIndicators[p] {
			for _, dep := range info.Deps {
				if strings.Contains(strings.ToLower(dep.Path), indicator) {
					return p, true
				}
			}
		}
	}
	return "", false
}

// Confidence scores the detected protocol per spec.md §4.6: explicit
// declarations are handled by the caller (100%); this scores the
// environment/import signal strength for a protocol Detect already
// settled on, capped at 100.
func (d *ProtocolDetector) Confidence(p Protocol) float64 {
	confidence := 50.0

	envMatches := 0
	for _, indicator := range protocolEnvIndicators[p] {
		if _, present := os.LookupEnv(indicator); present {
			envMatches++
		}
	}
	if envMatches > 0 {
		confidence = 90.0 + float64(envMatches-1)*2
	}

	if info, ok := debug.ReadBuildInfo(); ok && confidence < 70 {
		importMatches := 0
		for _, indicator := range protocolImportIndicators[p] {
			for _, dep := range info.Deps {
				if strings.Contains(strings.ToLower(dep.Path), indicator) {
					importMatches++
				}
			}
		}
		if importMatches > 0 {
			confidence = 60.0 + float64(importMatches-1)*5
		}
	}

	if confidence > 100 {
		confidence = 100
	}
	return confidence
}
