package aim

import "github.com/opena2a/aim-sdk-go/internal/detectors"

// TrackMCPCall records one MCP tool invocation against the process-wide
// runtime tracker. Call this from an MCP client wrapper each time a tool
// call completes; ReportMCPConnections turns accumulated calls into
// detection events and sends them to the control plane.
func (c *Client) TrackMCPCall(mcpServer, tool string) {
	c.tracker.Track(mcpServer, tool)
}

// DetectProtocol classifies which agent communication protocol this
// process is most likely speaking, honoring an explicit override if
// given (see WithProtocol).
func DetectProtocol(explicit string) detectors.Protocol {
	return detectors.NewProtocolDetector().Detect(explicit)
}
