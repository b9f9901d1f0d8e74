package aim

import "fmt"

// ConfigurationError signals missing or invalid inputs, a key mismatch,
// or missing secure storage primitives - fatal at the call site, the
// caller must fix it before retrying.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("aim: configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("aim: configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// AuthenticationError signals a 401/403 from the server, or a revoked
// token that automatic recovery could not repair. It is raised to the
// caller and never retried.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("aim: authentication error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("aim: authentication error: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// ActionDeniedError signals the server returned a `denied` verification
// decision.
type ActionDeniedError struct {
	Reason string
}

func (e *ActionDeniedError) Error() string {
	return fmt.Sprintf("aim: action denied: %s", e.Reason)
}

// VerificationError signals a poll timeout, repeated transport failure,
// or an unexpected server status during verification.
type VerificationError struct {
	Message string
	Cause   error
}

func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("aim: verification error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("aim: verification error: %s", e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Cause }

// CorruptCredentialsError signals that a sealed credential file exists
// but could not be decrypted. Remediation is re-registration.
type CorruptCredentialsError struct {
	Cause error
}

func (e *CorruptCredentialsError) Error() string {
	return fmt.Sprintf("aim: credentials are corrupt, re-register this agent: %v", e.Cause)
}

func (e *CorruptCredentialsError) Unwrap() error { return e.Cause }
