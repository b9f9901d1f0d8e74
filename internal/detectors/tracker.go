package detectors

import (
	"sync"

	"github.com/opena2a/aim-sdk-go/internal/domain"
)

// callStats is the per-server aggregate the runtime tracker accumulates.
type callStats struct {
	firstCall string
	lastCall  string
	callCount int
	toolsUsed map[string]struct{}
}

// RuntimeTracker is the process-wide, mutex-guarded MCP call tracker
// (spec.md §3 RuntimeCallTracker). The process-wide instance returned by
// DefaultTracker is created lazily and lives for the process lifetime,
// matching the Python SDK's module-level `_mcp_call_tracker` dict;
// NewRuntimeTracker builds additional standalone instances.
type RuntimeTracker struct {
	mu    sync.Mutex
	stats map[string]*callStats
}

var (
	defaultTracker     *RuntimeTracker
	defaultTrackerOnce sync.Once
)

// DefaultTracker returns the package-scoped singleton RuntimeTracker.
func DefaultTracker() *RuntimeTracker {
	defaultTrackerOnce.Do(func() {
		defaultTracker = NewRuntimeTracker()
	})
	return defaultTracker
}

// NewRuntimeTracker builds a standalone tracker, useful for tests that
// want isolation from the process-wide singleton.
func NewRuntimeTracker() *RuntimeTracker {
	return &RuntimeTracker{stats: make(map[string]*callStats)}
}

// Track records one call to mcpServer, optionally naming the tool
// invoked. Safe for concurrent use.
func (t *RuntimeTracker) Track(mcpServer, tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[mcpServer]
	if !ok {
		s = &callStats{firstCall: domain.Now(), toolsUsed: make(map[string]struct{})}
		t.stats[mcpServer] = s
	}
	s.callCount++
	s.lastCall = domain.Now()
	if tool != "" {
		s.toolsUsed[tool] = struct{}{}
	}
}

// Detections returns a 100%-confidence DetectionEvent per tracked MCP
// server, carrying the aggregated call count and the set of tools seen.
func (t *RuntimeTracker) Detections(sdkVersion string) []domain.DetectionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := make([]domain.DetectionEvent, 0, len(t.stats))
	for server, s := range t.stats {
		tools := make([]string, 0, len(s.toolsUsed))
		for tool := range s.toolsUsed {
			tools = append(tools, tool)
		}
		events = append(events, domain.DetectionEvent{
			MCPServer:       server,
			DetectionMethod: domain.DetectionSDKRuntime,
			Confidence:      100,
			Details: map[string]interface{}{
				"call_count": s.callCount,
				"first_call": s.firstCall,
				"last_call":  s.lastCall,
				"tools_used": tools,
			},
			SDKVersion: sdkVersion,
			Timestamp:  domain.Now(),
		})
	}
	return events
}
