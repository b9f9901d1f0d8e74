package aim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opena2a/aim-sdk-go/internal/domain"
	"github.com/opena2a/aim-sdk-go/internal/metrics"
	"github.com/opena2a/aim-sdk-go/internal/transport"
)

const (
	pathVerifications      = "/api/v1/sdk-api/verifications"
	pathVerificationFmt    = "/api/v1/sdk-api/verifications/%s"
	pathVerificationResult = "/api/v1/sdk-api/verifications/%s/result"
	pollInitialInterval    = 2 * time.Second
	pollMaxInterval        = 10 * time.Second
	pollBackoffMultiplier  = 1.5
)

// VerifyAction constructs and signs a VerificationRequest, submits it,
// and interprets the response per spec.md §4.5: approved decisions
// return immediately; denied decisions raise ActionDeniedError; pending
// decisions enter the poll loop; 401/403 raise AuthenticationError
// immediately; 404/5xx/network failure return a synthetic pending
// decision instead of raising, unless WithFailClosed was set at
// registration.
func (c *Client) VerifyAction(ctx context.Context, actionType, resource string, actionContext map[string]interface{}, timeoutSeconds int) (*domain.VerificationDecision, error) {
	if actionContext == nil {
		actionContext = map[string]interface{}{}
	}
	// Context keys are normalized to snake_case before signing so a
	// camelCase-keyed map from an embedding application produces the same
	// signed bytes the server's canonical form expects.
	actionContext = transport.NormalizeContextKeys(actionContext).(map[string]interface{})

	req := domain.VerificationRequest{
		AgentID:    c.AgentID,
		ActionType: actionType,
		Context:    actionContext,
		Resource:   resource,
		Timestamp:  domain.Now(),
	}

	sig, err := c.keyPair.SignActionPayload(unsignedVerificationRequest(req))
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues("error").Inc()
		return nil, &VerificationError{Message: "failed to sign verification request", Cause: err}
	}
	req.Signature = sig
	req.PublicKey = c.keyPair.PublicKeyBase64()

	resp, err := c.transport.Do(ctx, "POST", pathVerifications, req)
	if err != nil {
		if httpErr, ok := asHTTPStatusError(err); ok {
			metrics.VerificationsTotal.WithLabelValues("auth_error").Inc()
			return nil, &AuthenticationError{Message: "verification submission rejected", Cause: httpErr}
		}
		return c.degradedPending(actionType, err)
	}

	if resp.StatusCode == 404 || resp.StatusCode >= 500 {
		return c.degradedPending(actionType, fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	verificationID := stringField(resp.Body, "id", "verification_id")
	status := stringField(resp.Body, "status")

	switch domain.VerificationStatus(status) {
	case domain.VerificationApproved:
		metrics.VerificationsTotal.WithLabelValues("approved").Inc()
		return &domain.VerificationDecision{
			VerificationID: verificationID,
			Status:         domain.VerificationApproved,
			Verified:       true,
			ApprovedBy:     stringField(resp.Body, "approved_by"),
			ExpiresAt:      stringField(resp.Body, "expires_at"),
		}, nil

	case domain.VerificationDenied:
		metrics.VerificationsTotal.WithLabelValues("denied").Inc()
		reason := stringField(resp.Body, "denial_reason")
		if reason == "" {
			reason = "action denied by policy"
		}
		return nil, &ActionDeniedError{Reason: reason}

	case domain.VerificationPending:
		return c.waitForApproval(ctx, verificationID, timeoutSeconds)

	default:
		metrics.VerificationsTotal.WithLabelValues("unexpected_status").Inc()
		return nil, &VerificationError{Message: fmt.Sprintf("unexpected verification status %q", status)}
	}
}

// degradedPending manufactures a synthetic pending decision after a
// 404/5xx/network failure, unless the client was registered with
// WithFailClosed, in which case the failure is surfaced instead. The
// server never assigned a verification_id for a request it never saw, so
// one is minted client-side (prefixed to make the distinction obvious in
// logs/dashboards) purely as a stable key for LogActionResult/ActionResult
// callers that key off VerificationID.
func (c *Client) degradedPending(actionType string, cause error) (*domain.VerificationDecision, error) {
	metrics.VerificationsTotal.WithLabelValues("degraded_pending").Inc()
	c.logger.Printf("aim: verify_action for %q degraded to synthetic pending: %v", actionType, cause)
	if c.failClosed {
		return nil, &VerificationError{Message: "control plane unreachable", Cause: cause}
	}
	return &domain.VerificationDecision{
		VerificationID: "local-" + uuid.NewString(),
		Status:         domain.VerificationPending,
		Verified:       false,
		Error:          cause.Error(),
	}, nil
}

// waitForApproval polls GET /verifications/{id} on exponential backoff
// (2s initial, x1.5 per iteration, capped at 10s) until a terminal
// decision or timeoutSeconds elapses. Unlike VerifyAction, transient
// errors here are logged and polling continues rather than producing a
// synthetic decision - this asymmetry is preserved from spec.md §9's
// Open Question 3.
func (c *Client) waitForApproval(ctx context.Context, verificationID string, timeoutSeconds int) (*domain.VerificationDecision, error) {
	start := time.Now()
	deadline := start.Add(time.Duration(timeoutSeconds) * time.Second)
	interval := pollInitialInterval

	path := fmt.Sprintf(pathVerificationFmt, verificationID)

	for time.Now().Before(deadline) {
		resp, err := c.transport.Do(ctx, "GET", path, nil)
		if err != nil {
			if httpErr, ok := asHTTPStatusError(err); ok {
				return nil, &AuthenticationError{Message: "verification poll rejected", Cause: httpErr}
			}
			c.logger.Printf("aim: verification poll transient error, retrying: %v", err)
			sleepOrDone(ctx, interval)
			interval = nextInterval(interval)
			continue
		}

		status := stringField(resp.Body, "status")
		switch domain.VerificationStatus(status) {
		case domain.VerificationApproved:
			metrics.PollDuration.Observe(time.Since(start).Seconds())
			metrics.VerificationsTotal.WithLabelValues("approved").Inc()
			return &domain.VerificationDecision{
				VerificationID: verificationID,
				Status:         domain.VerificationApproved,
				Verified:       true,
				ApprovedBy:     stringField(resp.Body, "approved_by"),
				ExpiresAt:      stringField(resp.Body, "expires_at"),
			}, nil
		case domain.VerificationDenied:
			metrics.PollDuration.Observe(time.Since(start).Seconds())
			metrics.VerificationsTotal.WithLabelValues("denied").Inc()
			reason := stringField(resp.Body, "denial_reason")
			if reason == "" {
				reason = "action denied"
			}
			return nil, &ActionDeniedError{Reason: reason}
		}

		sleepOrDone(ctx, interval)
		interval = nextInterval(interval)
	}

	metrics.PollDuration.Observe(time.Since(start).Seconds())
	metrics.VerificationsTotal.WithLabelValues("timeout").Inc()
	return nil, &VerificationError{Message: fmt.Sprintf("verification timeout after %d seconds", timeoutSeconds)}
}

func nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * pollBackoffMultiplier)
	if next > pollMaxInterval {
		return pollMaxInterval
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// LogActionResult reports the post-execution outcome of a verified
// action. Errors here are swallowed per spec.md §4.5/§7: logging must
// never mask the caller's actual result.
func (c *Client) LogActionResult(ctx context.Context, verificationID string, success bool, summary, errMessage string) {
	if verificationID == "" {
		return
	}
	path := fmt.Sprintf(pathVerificationResult, verificationID)
	result := "success"
	if !success {
		result = "failure"
	}
	body := map[string]interface{}{
		"result":         result,
		"result_summary": summary,
		"error_message":  errMessage,
		"timestamp":      domain.Now(),
	}
	if _, err := c.transport.Do(ctx, "POST", path, body); err != nil {
		c.logger.Printf("aim: log_action_result failed (swallowed): %v", err)
	}
}

// PerformAction is the lower-level primitive track_action/require_approval
// are built on: it verifies, executes fn only on a verified decision, and
// logs the outcome - mirroring the original SDK's perform_action
// decorator (spec.md §4.5 names only the risk-level wrappers; the
// original SDK's explicit-action-type layer is kept as a supplement per
// SPEC_FULL.md §3.2).
func (c *Client) PerformAction(ctx context.Context, actionType, resource string, actionContext map[string]interface{}, timeoutSeconds int, fn func() (interface{}, error)) (interface{}, error) {
	decision, err := c.VerifyAction(ctx, actionType, resource, actionContext, timeoutSeconds)
	if err != nil {
		return nil, err
	}
	if !decision.Verified {
		return nil, &ActionDeniedError{Reason: decision.Error}
	}

	result, execErr := fn()
	if execErr != nil {
		c.LogActionResult(ctx, decision.VerificationID, false, "", execErr.Error())
		return nil, execErr
	}
	c.LogActionResult(ctx, decision.VerificationID, true, fmt.Sprintf("action %q completed successfully", actionType), "")
	return result, nil
}

// unsignedVerificationRequest strips Signature/PublicKey before signing,
// matching KeyPair.SignActionPayload's contract that those fields must be
// absent from the payload being signed.
func unsignedVerificationRequest(req domain.VerificationRequest) interface{} {
	return struct {
		AgentID    string                 `json:"agent_id"`
		ActionType string                 `json:"action_type"`
		Context    map[string]interface{} `json:"context"`
		Resource   string                 `json:"resource,omitempty"`
		Timestamp  string                 `json:"timestamp"`
	}{
		AgentID:    req.AgentID,
		ActionType: req.ActionType,
		Context:    req.Context,
		Resource:   req.Resource,
		Timestamp:  req.Timestamp,
	}
}
