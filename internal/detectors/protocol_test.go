package detectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProtocolExplicitOverrideWins(t *testing.T) {
	d := NewProtocolDetector()
	assert.Equal(t, Protocol("saml"), d.Detect("SAML"))
}

func TestDetectProtocolEnvPrecedesDefault(t *testing.T) {
	t.Setenv("OAUTH_CLIENT_ID", "abc")
	d := NewProtocolDetector()
	assert.Equal(t, ProtocolOAuth, d.Detect(""))
}

func TestDetectProtocolDefaultsToMCP(t *testing.T) {
	d := NewProtocolDetector()
	assert.Equal(t, ProtocolMCP, d.Detect(""))
}

func TestConfidenceCappedAt100(t *testing.T) {
	t.Setenv("SAML_IDP_URL", "x")
	t.Setenv("SAML_ENTITY_ID", "y")
	t.Setenv("SAML_CERT", "z")
	t.Setenv("SAML_SSO_URL", "w")
	d := NewProtocolDetector()
	assert.LessOrEqual(t, d.Confidence(ProtocolSAML), 100.0)
}
