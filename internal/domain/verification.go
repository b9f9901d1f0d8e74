package domain

// VerificationStatus is the terminal or intermediate state of a
// VerificationRequest as adjudicated by the control plane.
type VerificationStatus string

const (
	VerificationApproved VerificationStatus = "approved"
	VerificationDenied   VerificationStatus = "denied"
	VerificationPending  VerificationStatus = "pending"
)

// VerificationRequest is the signed payload submitted to request
// permission to perform one action. Context is a free-form mapping from
// string to any JSON-representable value, preserved shape-for-shape on
// the wire.
//
// Struct field order here is not significant: the signing engine's
// canonical-JSON form (sorted by JSON key, Signature/PublicKey excluded)
// is produced by round-tripping through a map, not by relying on
// declaration order.
type VerificationRequest struct {
	AgentID   string                 `json:"agent_id"`
	ActionType string                `json:"action_type"`
	Context   map[string]interface{} `json:"context"`
	Resource  string                 `json:"resource,omitempty"`
	Timestamp string                 `json:"timestamp"`

	// Signature and PublicKey are appended to the wire payload but are
	// never part of the signed bytes.
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// VerificationDecision is the result of a VerificationRequest, as returned
// either directly by the submit call or by the poll loop.
type VerificationDecision struct {
	VerificationID string             `json:"verification_id"`
	Status         VerificationStatus `json:"status"`
	Verified       bool               `json:"verified"`
	ApprovedBy     string             `json:"approved_by,omitempty"`
	DenialReason   string             `json:"denial_reason,omitempty"`
	ExpiresAt      string             `json:"expires_at,omitempty"`

	// Error is set on a synthetic pending decision manufactured client-side
	// after a 404/5xx/network failure; it is never populated by the server.
	Error string `json:"error,omitempty"`
}

// ActionResult is what a wrapped function call (TrackAction/RequireApproval)
// returns in place of a raised error, so that user code stays the single
// source of truth for success.
type ActionResult struct {
	Value     interface{} `json:"value,omitempty"`
	Error     bool        `json:"error"`
	ErrorType string      `json:"error_type,omitempty"`
	Status    string      `json:"status,omitempty"`
	Action    string      `json:"action,omitempty"`
}
