package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	path := filepath.Join(dir, credentialsDirName, credentialsFileName)

	s, err := NewStore(WithCredentialsPath(path))
	require.NoError(t, err)
	return s
}

type testCredentials struct {
	AgentID   string `json:"agent_id"`
	PublicKey string `json:"public_key"`
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)

	in := testCredentials{AgentID: "agent-1", PublicKey: "pub"}
	require.NoError(t, s.Save(in))

	var out testCredentials
	require.NoError(t, s.Load(&out))
	assert.Equal(t, in, out)
}

func TestSaveLeavesNoPlaintextFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testCredentials{AgentID: "agent-1"}))

	_, err := os.Stat(s.credentialsPath)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(s.encryptedPath)
	assert.NoError(t, err)
}

func TestLoadMigratesLegacyPlaintext(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(s.credentialsPath), sealedDirMode))
	require.NoError(t, os.WriteFile(s.credentialsPath, []byte(`{"agent_id":"legacy","public_key":"p"}`), 0o600))

	var out testCredentials
	require.NoError(t, s.Load(&out))
	assert.Equal(t, "legacy", out.AgentID)

	_, err := os.Stat(s.credentialsPath)
	assert.True(t, os.IsNotExist(err), "plaintext file should be removed after migration")

	_, err = os.Stat(s.encryptedPath)
	assert.NoError(t, err, "encrypted file should exist after migration")
}

func TestLoadCorruptCiphertextReturnsCorruptCredentials(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testCredentials{AgentID: "agent-1"}))

	require.NoError(t, os.WriteFile(s.encryptedPath, []byte("not valid ciphertext at all, too short"), 0o600))

	var out testCredentials
	err := s.Load(&out)
	assert.ErrorIs(t, err, ErrCorruptCredentials)
}

func TestExistsAndDelete(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Exists())

	require.NoError(t, s.Save(testCredentials{AgentID: "agent-1"}))
	assert.True(t, s.Exists())

	require.NoError(t, s.Delete())
	assert.False(t, s.Exists())
}
