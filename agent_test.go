package aim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opena2a/aim-sdk-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAgentDetailsDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/agent-1", r.URL.Path)
		w.Write([]byte(`{"agent_id":"agent-1","name":"n","status":"active","trust_score":0.9}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	details, err := c.GetAgentDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent-1", details.AgentID)
	assert.Equal(t, 0.9, details.TrustScore)
}

func TestListAgentsDecodesCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agents":[{"agent_id":"a1","name":"one"},{"agent_id":"a2","name":"two"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	agents, err := c.ListAgents(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "a1", agents[0].AgentID)
}

func TestListAgentsSendsPaginationParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"agents":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListAgents(context.Background(), 2, 50)
	require.NoError(t, err)
	assert.Equal(t, "page=2&page_size=50", gotQuery)
}

func TestDeleteAgentTargetsGivenAgent(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.DeleteAgent(context.Background(), "agent-2"))
	assert.Equal(t, "/api/v1/agents/agent-2", gotPath)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestDeleteAgentRefusesSelfDeletion(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	err := c.DeleteAgent(context.Background(), "agent-1")
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDeleteAgentReturnsAuthenticationErrorOn403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not allowed"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.DeleteAgent(context.Background(), "agent-2")
	require.Error(t, err)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestReportSDKIntegrationSendsDetectionEvent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.ReportSDKIntegration(context.Background()))
	assert.Equal(t, "/api/v1/detection/agents/agent-1/report", gotPath)
}

func TestReportCapabilitiesPostsEachGrant(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	report := domain.CapabilityReport{
		"read_files":     {Environment: "prod"},
		"make_api_calls": {Environment: "prod"},
	}
	require.NoError(t, c.ReportCapabilities(context.Background(), report))
	require.Len(t, paths, 2)
	assert.Equal(t, "/api/v1/sdk-api/agents/agent-1/capabilities", paths[0])
}

func TestRegisterMCPAttachesServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.RegisterMCP(context.Background(), "filesystem", nil))
	assert.Equal(t, "/api/v1/sdk-api/agents/agent-1/mcp-servers", gotPath)
}

func TestReportMCPConnectionsFlushesTracker(t *testing.T) {
	var gotPath string
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	// Empty tracker sends nothing.
	require.NoError(t, c.ReportMCPConnections(context.Background()))
	assert.Equal(t, 0, calls)

	c.TrackMCPCall("filesystem", "read_file")
	c.TrackMCPCall("filesystem", "list_dir")
	require.NoError(t, c.ReportMCPConnections(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "/api/v1/sdk-api/agents/agent-1/mcp-connections", gotPath)
}

func TestAttestMCPServerSignsPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mcp-servers/mcp-9/attest", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.AttestMCPServer(context.Background(), "mcp-9", map[string]interface{}{"result": "trusted"}))
	assert.NotEmpty(t, got["signature"])
	assert.NotEmpty(t, got["public_key"])
	assert.Equal(t, "trusted", got["result"])
	assert.Equal(t, "agent-1", got["agent_id"])
}
