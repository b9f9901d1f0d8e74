package aim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestResolveAuthModeAPIKeyOnly(t *testing.T) {
	withTempHome(t)
	mode, err := resolveAuthMode(registerConfig{apiKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, authModeAPIKey, mode)
}

func TestResolveAuthModeNoCredentialsIsConfigurationError(t *testing.T) {
	withTempHome(t)
	_, err := resolveAuthMode(registerConfig{})
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRegisterWithAPIKeyPersistsCredentials(t *testing.T) {
	withTempHome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathRegisterAPIKey, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"agent_id":"agent-123","status":"active","trust_score":1}`))
	}))
	defer srv.Close()

	client, err := Register("my-agent", srv.URL,
		WithAPIKey("test-key"),
		WithoutAutoDetect(),
	)
	require.NoError(t, err)
	assert.Equal(t, "agent-123", client.AgentID)
	assert.NotNil(t, client.keyPair)

	loaded, err := Load("my-agent")
	require.NoError(t, err)
	assert.Equal(t, "agent-123", loaded.AgentID)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	withTempHome(t)
	_, err := Register("", "http://example.invalid", WithAPIKey("k"))
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRegisterRejectsServerPublicKeyMismatch(t *testing.T) {
	withTempHome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agent_id":"agent-123","public_key":"not-the-clients-key","status":"active"}`))
	}))
	defer srv.Close()

	_, err := Register("my-agent", srv.URL, WithAPIKey("test-key"), WithoutAutoDetect())
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadExistingShortCircuitsRegistration(t *testing.T) {
	withTempHome(t)

	registerCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registerCalls++
		w.Write([]byte(`{"agent_id":"agent-123","status":"active"}`))
	}))
	defer srv.Close()

	first, err := Register("my-agent", srv.URL, WithAPIKey("test-key"), WithoutAutoDetect())
	require.NoError(t, err)
	require.Equal(t, 1, registerCalls)

	second, err := Register("my-agent", srv.URL, WithAPIKey("test-key"), WithoutAutoDetect())
	require.NoError(t, err)
	assert.Equal(t, 1, registerCalls, "second Register call must not re-hit the control plane")
	assert.Equal(t, first.AgentID, second.AgentID)
}

func TestLoadFailsWhenNoCredentialsStored(t *testing.T) {
	withTempHome(t)
	_, err := Load("never-registered")
	require.Error(t, err)
}

func TestAutoRegisterOrLoadRegistersWhenNothingStored(t *testing.T) {
	withTempHome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agent_id":"agent-env","status":"active"}`))
	}))
	defer srv.Close()

	t.Setenv("AIM_AGENT_NAME", "env-agent")
	t.Setenv("AIM_URL", srv.URL)
	t.Setenv("AIM_AUTO_REGISTER", "true")

	client, err := AutoRegisterOrLoad(WithAPIKey("test-key"), WithoutAutoDetect())
	require.NoError(t, err)
	assert.Equal(t, "agent-env", client.AgentID)
}

func TestAutoRegisterOrLoadFailsWithoutAgentName(t *testing.T) {
	withTempHome(t)
	t.Setenv("AIM_AGENT_NAME", "")
	_, err := AutoRegisterOrLoad(WithAPIKey("test-key"))
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRevokeRemovesLocalCredentials(t *testing.T) {
	withTempHome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agent_id":"agent-123","status":"active"}`))
	}))
	defer srv.Close()

	client, err := Register("my-agent", srv.URL, WithAPIKey("test-key"), WithoutAutoDetect())
	require.NoError(t, err)

	require.NoError(t, client.Revoke(context.Background()))

	_, err = Load("my-agent")
	require.Error(t, err, "revoked agent must not be loadable from the store")
}

func TestLoadExistingSurfacesCorruptCredentials(t *testing.T) {
	home := withTempHome(t)

	encryptedPath := filepath.Join(home, ".aim", "credentials.json.encrypted")
	require.NoError(t, os.MkdirAll(filepath.Dir(encryptedPath), 0o755))
	require.NoError(t, os.WriteFile(encryptedPath, []byte("not valid sealed ciphertext"), 0o600))

	_, err := Load("anything")
	require.Error(t, err)
	var corrupt *CorruptCredentialsError
	require.ErrorAs(t, err, &corrupt)
}
