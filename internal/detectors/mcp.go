package detectors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/opena2a/aim-sdk-go/internal/domain"
)

// mcpPackagePatterns are naming conventions that mark a dependency as an
// MCP server/client package, mirroring the Python detector's known-package
// list plus its generic naming-pattern fallback.
var mcpPackagePatterns = []string{
	"modelcontextprotocol",
	"mcp-server-",
	"mcp_server_",
	"/mcp/",
}

// MCPDetector auto-detects upstream MCP servers the host process talks to.
type MCPDetector struct {
	SDKVersion string
}

// NewMCPDetector builds an MCPDetector. sdkVersion is stamped onto every
// emitted DetectionEvent.
func NewMCPDetector(sdkVersion string) *MCPDetector {
	return &MCPDetector{SDKVersion: sdkVersion}
}

// DetectAll runs the Claude-desktop-config and module-graph detectors and
// returns their combined, deduplicated events.
func (d *MCPDetector) DetectAll() []domain.DetectionEvent {
	events := append(d.DetectFromClaudeConfig(), d.DetectFromImports()...)
	return dedupeEvents(events)
}

// DetectFromClaudeConfig reads the host agent's Claude-desktop
// configuration file, if present at one of the known OS-specific paths,
// and emits a 100%-confidence event per configured MCP server.
func (d *MCPDetector) DetectFromClaudeConfig() []domain.DetectionEvent {
	path := claudeConfigPath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg struct {
		MCPServers map[string]struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}

	events := make([]domain.DetectionEvent, 0, len(cfg.MCPServers))
	for name, server := range cfg.MCPServers {
		events = append(events, domain.DetectionEvent{
			MCPServer:       name,
			DetectionMethod: domain.DetectionClaudeConfig,
			Confidence:      100,
			Details: map[string]interface{}{
				"configPath": path,
				"command":    server.Command,
				"args":       server.Args,
			},
			SDKVersion: d.SDKVersion,
			Timestamp:  domain.Now(),
		})
	}
	return events
}

// claudeConfigPath returns the first existing OS-specific Claude-desktop
// config path, or "" if none is found.
func claudeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	candidates := []string{filepath.Join(home, ".claude", "claude_desktop_config.json")}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			candidates = append(candidates, filepath.Join(appData, "Claude", "claude_desktop_config.json"))
		}
	}
	if runtime.GOOS == "darwin" {
		candidates = append(candidates, filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// DetectFromImports inspects the running binary's module graph for
// dependencies matching known MCP naming patterns, emitting a
// 90%-confidence event per match.
func (d *MCPDetector) DetectFromImports() []domain.DetectionEvent {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	seen := map[string]struct{}{}
	var events []domain.DetectionEvent
	check := func(path string) {
		if _, already := seen[path]; already {
			return
		}
		if !isMCPPackage(path) {
			return
		}
		seen[path] = struct{}{}
		events = append(events, domain.DetectionEvent{
			MCPServer:       path,
			DetectionMethod: domain.DetectionSDKImport,
			Confidence:      90,
			Details: map[string]interface{}{
				"packageName":     path,
				"detectionSource": "module_graph_scan",
			},
			SDKVersion: d.SDKVersion,
			Timestamp:  domain.Now(),
		})
	}

	for _, dep := range info.Deps {
		check(dep.Path)
	}
	return events
}

func isMCPPackage(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range mcpPackagePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func dedupeEvents(events []domain.DetectionEvent) []domain.DetectionEvent {
	seen := map[string]struct{}{}
	out := make([]domain.DetectionEvent, 0, len(events))
	for _, e := range events {
		key := e.MCPServer + "|" + string(e.DetectionMethod)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
