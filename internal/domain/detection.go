package domain

// DetectionMethod records how a DetectionEvent was produced.
type DetectionMethod string

const (
	DetectionManual         DetectionMethod = "manual"
	DetectionClaudeConfig   DetectionMethod = "claude_config"
	DetectionSDKImport      DetectionMethod = "sdk_import"
	DetectionSDKRuntime     DetectionMethod = "sdk_runtime"
	DetectionSDKIntegration DetectionMethod = "sdk_integration"
)

// DetectionEvent reports a discovered upstream MCP server or SDK
// integration point.
type DetectionEvent struct {
	MCPServer       string                 `json:"mcpServer"`
	DetectionMethod DetectionMethod        `json:"detectionMethod"`
	Confidence      float64                `json:"confidence"`
	Details         map[string]interface{} `json:"details,omitempty"`
	SDKVersion      string                 `json:"sdkVersion"`
	Timestamp       string                 `json:"timestamp"`
}

// CapabilityScope is the structured detail attached to one detected or
// declared capability.
type CapabilityScope struct {
	Environment     string          `json:"environment,omitempty"`
	Frameworks      []string        `json:"frameworks,omitempty"`
	DetectionMethod DetectionMethod `json:"detectionMethod,omitempty"`
}

// CapabilityReport maps a capability name (e.g. "read_files",
// "make_api_calls") to its detection scope. Reporting the same capability
// twice is idempotent server-side; the client makes no effort to dedupe
// beyond what a Go map already guarantees.
type CapabilityReport map[string]CapabilityScope
