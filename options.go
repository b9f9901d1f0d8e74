package aim

import "log"

// registerConfig collects the optional inputs to Register, assembled via
// functional options following the teacher's option-struct conventions
// for multi-field constructors.
type registerConfig struct {
	apiKey       string
	forceNew     bool
	displayName  string
	description  string
	agentType    string
	metadata     map[string]interface{}
	capabilities []string
	mcpServers   []string
	autoDetect   bool
	failClosed   bool
	logger       *log.Logger
	sourceFiles  []string
	protocol     string
}

func defaultRegisterConfig() registerConfig {
	return registerConfig{
		agentType:  "custom",
		autoDetect: true,
	}
}

// Option configures a Register call.
type Option func(*registerConfig)

// WithAPIKey selects API-key auth mode, passing key as the
// X-AIM-API-Key credential.
func WithAPIKey(key string) Option {
	return func(c *registerConfig) { c.apiKey = key }
}

// WithForceNew skips the load-existing short-circuit and always
// registers a fresh agent identity, even if credentials for this name
// already exist.
func WithForceNew() Option {
	return func(c *registerConfig) { c.forceNew = true }
}

// WithDisplayName sets the human-facing name sent at registration.
func WithDisplayName(name string) Option {
	return func(c *registerConfig) { c.displayName = name }
}

// WithDescription sets the registration description field.
func WithDescription(description string) Option {
	return func(c *registerConfig) { c.description = description }
}

// WithAgentType overrides the default "custom" agent type.
func WithAgentType(agentType string) Option {
	return func(c *registerConfig) { c.agentType = agentType }
}

// WithMetadata attaches free-form registration metadata.
func WithMetadata(metadata map[string]interface{}) Option {
	return func(c *registerConfig) { c.metadata = metadata }
}

// WithCapabilities supplies an explicit capability list. A non-empty list
// replaces the automatically detected capabilities entirely; detected
// capabilities are not merged into it.
func WithCapabilities(capabilities []string) Option {
	return func(c *registerConfig) { c.capabilities = capabilities }
}

// WithMCPServers supplies an explicit talks-to list. A non-empty list
// replaces the talks-to list derived from MCP detection; detected MCP
// events are still reported after registration.
func WithMCPServers(servers []string) Option {
	return func(c *registerConfig) { c.mcpServers = servers }
}

// WithoutAutoDetect disables the capability/MCP detector pass (on by
// default per spec.md §4.4 step 3).
func WithoutAutoDetect() Option {
	return func(c *registerConfig) { c.autoDetect = false }
}

// WithFailClosed switches verify_action's control-plane-outage behavior
// from the default "return synthetic pending" to failing the call
// outright, per spec.md §9's "production profile may prefer to fail
// closed" note.
func WithFailClosed() Option {
	return func(c *registerConfig) { c.failClosed = true }
}

// WithLogger injects a *log.Logger for best-effort/degraded-mode
// diagnostics. Defaults to a discarding logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *registerConfig) { c.logger = logger }
}

// WithSourceFiles names Go source files to scan for PerformAction call
// sites during capability detection (the Go analogue of the Python
// detector's caller-stack-walk; Go has no runtime call stack to a
// source file, so the caller names its own files explicitly).
func WithSourceFiles(files ...string) Option {
	return func(c *registerConfig) { c.sourceFiles = files }
}

// WithProtocol forces communication-protocol classification to the
// given value instead of running detection.
func WithProtocol(protocol string) Option {
	return func(c *registerConfig) { c.protocol = protocol }
}
