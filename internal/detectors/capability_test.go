package detectors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempSource(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "caller.go")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDetectFromSourceMapsKnownActionType(t *testing.T) {
	src := `package caller

func run(agent *Agent) {
	agent.PerformAction("read_file", "report.csv", nil, 30, func() (interface{}, error) {
		return nil, nil
	})
}
`
	path := writeTempSource(t, src)
	caps := NewCapabilityDetector().DetectFromSource(path)
	assert.Equal(t, []string{"read_files"}, caps)
}

func TestDetectFromSourceFallsBackToLiteralActionType(t *testing.T) {
	src := `package caller

func run(agent *Agent) {
	agent.PerformAction("custom_thing", "x", nil, 30, nil)
}
`
	path := writeTempSource(t, src)
	caps := NewCapabilityDetector().DetectFromSource(path)
	assert.Equal(t, []string{"custom_thing"}, caps)
}

func TestDetectFromSourceIgnoresNonPerformActionCalls(t *testing.T) {
	src := `package caller

func run(agent *Agent) {
	agent.DoSomethingElse("read_file")
}
`
	path := writeTempSource(t, src)
	caps := NewCapabilityDetector().DetectFromSource(path)
	assert.Empty(t, caps)
}

func TestDetectFromSourceReturnsNilForUnreadableFile(t *testing.T) {
	caps := NewCapabilityDetector().DetectFromSource(filepath.Join(t.TempDir(), "missing.go"))
	assert.Nil(t, caps)
}

func TestDetectFromSourceReturnsNilForEmptyPath(t *testing.T) {
	assert.Nil(t, NewCapabilityDetector().DetectFromSource(""))
}

func TestDetectFromConfigReadsHomeCapabilitiesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".aim"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".aim", "capabilities.json"),
		[]byte(`{"capabilities": ["access_database", "make_api_calls"]}`),
		0o644,
	))

	caps := NewCapabilityDetector().DetectFromConfig()
	assert.ElementsMatch(t, []string{"access_database", "make_api_calls"}, caps)
}

func TestDetectFromConfigReturnsNilWhenAbsent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.Nil(t, NewCapabilityDetector().DetectFromConfig())
}

func TestDetectAllDedupesAndSorts(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".aim"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".aim", "capabilities.json"),
		[]byte(`{"capabilities": ["write_files", "read_files"]}`),
		0o644,
	))

	src := `package caller

func run(agent *Agent) {
	agent.PerformAction("read_file", "x", nil, 30, nil)
}
`
	path := writeTempSource(t, src)

	caps := NewCapabilityDetector().DetectAll(path)
	assert.Equal(t, []string{"read_files", "write_files"}, caps)
}
