// Package detectors implements the Detectors component (C6): capability
// detection from the running binary's module graph, from
// @client.PerformAction-style call sites in the caller's own source, and
// from an explicit config file; MCP server detection from Claude-desktop
// config and module-graph patterns; a process-wide runtime MCP call
// tracker; and communication-protocol classification.
package detectors

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
)

// importToCapability is the Go analogue of the Python SDK's
// sys.modules-keyed table: instead of scanning loaded interpreter
// modules, a compiled Go binary exposes its static dependency list via
// debug.ReadBuildInfo, so the table is keyed by import path prefix
// rather than a top-level package name. The capability set on the right
// is the authoritative subset spec.md §4.6 names.
var importToCapability = map[string]string{
	"net/http":                       "make_api_calls",
	"net/smtp":                       "send_email",
	"database/sql":                   "access_database",
	"github.com/lib/pq":              "access_database",
	"github.com/jmoiron/sqlx":        "access_database",
	"go.mongodb.org/mongo-driver":    "access_database",
	"gorm.io/gorm":                   "access_database",
	"os/exec":                        "execute_code",
	"github.com/aws/aws-sdk-go":      "access_cloud_services",
	"github.com/aws/aws-sdk-go-v2":   "access_cloud_services",
	"cloud.google.com/go":            "access_cloud_services",
	"github.com/Azure/azure-sdk-for-go": "access_cloud_services",
	"github.com/PuerkitoBio/goquery": "web_scraping",
	"github.com/gocolly/colly":       "web_scraping",
	"github.com/playwright-community/playwright-go": "web_automation",
	"github.com/chromedp/chromedp":   "web_automation",
	"os":                             "read_files",
	"io/ioutil":                      "read_files",
	"path/filepath":                  "read_files",
	"encoding/json":                  "read_files",
	"gopkg.in/yaml.v3":               "read_files",
	"encoding/csv":                   "read_files",
}

// actionToCapability maps the first literal argument of a PerformAction
// call site to the capability it implies, falling back to the action
// type itself when no mapping exists.
var actionToCapability = map[string]string{
	"read_database":    "access_database",
	"write_database":   "access_database",
	"query_database":   "access_database",
	"send_email":       "send_email",
	"read_email":       "read_email",
	"read_file":        "read_files",
	"write_file":       "write_files",
	"delete_file":      "write_files",
	"execute_command":  "execute_code",
	"run_code":         "execute_code",
	"make_request":     "make_api_calls",
	"call_api":         "make_api_calls",
	"web_search":       "web_scraping",
	"browse_web":       "web_automation",
}

// CapabilityDetector auto-detects capabilities for the embedding process.
type CapabilityDetector struct{}

// NewCapabilityDetector builds a CapabilityDetector.
func NewCapabilityDetector() *CapabilityDetector {
	return &CapabilityDetector{}
}

// DetectAll runs every capability detection method and returns the
// deduplicated, sorted union.
func (d *CapabilityDetector) DetectAll(sourceFiles ...string) []string {
	caps := make(map[string]struct{})

	for _, c := range d.DetectFromImports() {
		caps[c] = struct{}{}
	}
	for _, c := range d.DetectFromConfig() {
		caps[c] = struct{}{}
	}
	for _, file := range sourceFiles {
		for _, c := range d.DetectFromSource(file) {
			caps[c] = struct{}{}
		}
	}

	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DetectFromImports inspects the running binary's embedded module graph
// (debug.ReadBuildInfo) and maps known dependency paths to capabilities.
// Unknown packages are ignored, matching spec.md §4.6's "unknown packages
// are ignored" rule. Only module paths appear in the build info, so the
// standard-library entries of importToCapability (net/http, net/smtp,
// database/sql, os/exec, os, encoding/json, ...) never match here.
func (d *CapabilityDetector) DetectFromImports() []string {
	caps := make(map[string]struct{})

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	check := func(path string) {
		for prefix, capability := range importToCapability {
			if path == prefix || hasPathPrefix(path, prefix) {
				caps[capability] = struct{}{}
			}
		}
	}

	check(info.Main.Path)
	for _, dep := range info.Deps {
		check(dep.Path)
	}

	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	return out
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) <= len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

// DetectFromConfig reads ~/.aim/capabilities.json, shaped
// {"capabilities": [...]}, overriding/augmenting automatic detection.
func (d *CapabilityDetector) DetectFromConfig() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".aim", "capabilities.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return cfg.Capabilities
}

// DetectFromSource parses a single Go source file looking for call
// expressions of the shape `x.PerformAction("action_type", ...)` - the Go
// analogue of the Python detector's AST scan for
// `@agent.perform_action(...)` decorators - and maps the literal action
// type argument through actionToCapability.
func (d *CapabilityDetector) DetectFromSource(path string) []string {
	caps := make(map[string]struct{})
	if path == "" {
		return nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "PerformAction" {
			return true
		}
		actionType := literalActionType(call)
		if actionType == "" {
			return true
		}
		if capability, found := actionToCapability[actionType]; found {
			caps[capability] = struct{}{}
		} else {
			caps[actionType] = struct{}{}
		}
		return true
	})

	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	return out
}

func literalActionType(call *ast.CallExpr) string {
	if len(call.Args) == 0 {
		return ""
	}
	if lit, ok := call.Args[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
		if unquoted, err := strconv.Unquote(lit.Value); err == nil {
			return unquoted
		}
	}
	return ""
}
