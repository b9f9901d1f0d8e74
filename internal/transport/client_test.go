package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opena2a/aim-sdk-go/internal/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSigner struct{}

func (stubSigner) SignEnvelope(agentID, method, path string, body interface{}) (signing.Envelope, []byte, error) {
	rawBody, err := signing.EnvelopeBodyJSON(body)
	if err != nil {
		return signing.Envelope{}, nil, err
	}
	return signing.Envelope{
		AgentID:   agentID,
		Signature: "sig",
		Timestamp: "1700000000",
		PublicKey: "pub",
	}, rawBody, nil
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

type fakeTokenSource struct {
	token string
	err   error
}

func (f fakeTokenSource) GetAccessToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

func TestDoPrefersBearerOverAPIKey(t *testing.T) {
	var gotAuth, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.APIKey = "api-key-1"
	c.TokenSource = fakeTokenSource{token: "bearer-1"}

	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer bearer-1", gotAuth)
	assert.Empty(t, gotAPIKey)
}

func TestDoFallsBackToAPIKeyWithoutBearer(t *testing.T) {
	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.APIKey = "api-key-1"

	_, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "api-key-1", gotAPIKey)
}

func TestDoReturns401AsHTTPStatusErrWithoutRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	assert.Error(t, err)
	var httpErr *ErrHTTPStatus
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.MaxRetries = 3
	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestEnvelopeSigningSendsExactSignedBytes(t *testing.T) {
	var receivedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = readAll(r)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.AgentID = "agent-1"
	c.Signer = stubSigner{}

	_, err := c.Do(context.Background(), http.MethodPost, "/verify", map[string]interface{}{"z": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"z":1}`, string(receivedBody))
}

func TestNormalizeContextKeysConvertsCamelCase(t *testing.T) {
	in := map[string]interface{}{
		"functionName": "do_thing",
		"nested": map[string]interface{}{
			"argsCount": float64(2),
		},
	}
	out := NormalizeContextKeys(in).(map[string]interface{})
	assert.Contains(t, out, "function_name")
	nested := out["nested"].(map[string]interface{})
	assert.Contains(t, nested, "args_count")
}
