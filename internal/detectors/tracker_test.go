package detectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeTrackerAggregatesCallsAndTools(t *testing.T) {
	tr := NewRuntimeTracker()
	tr.Track("filesystem", "read_file")
	tr.Track("filesystem", "write_file")
	tr.Track("filesystem", "read_file")

	events := tr.Detections("aim-sdk-go@1.0.0")
	require.Len(t, events, 1)
	assert.Equal(t, "filesystem", events[0].MCPServer)
	assert.EqualValues(t, 100, events[0].Confidence)
	assert.Equal(t, 3, events[0].Details["call_count"])
	assert.ElementsMatch(t, []string{"read_file", "write_file"}, events[0].Details["tools_used"])
}

func TestDefaultTrackerIsSingleton(t *testing.T) {
	assert.Same(t, DefaultTracker(), DefaultTracker())
}
