package aim

import (
	"context"
	"reflect"
	"runtime"
	"strings"

	"github.com/opena2a/aim-sdk-go/internal/domain"
)

const (
	riskLevelLow      = "low"
	riskLevelMedium   = "medium"
	riskLevelHigh     = "high"
	riskLevelCritical = "critical"

	defaultTrackTimeoutSeconds    = 30
	defaultApprovalTimeoutSeconds = 3600
)

// TrackAction wraps fn with a verification check appropriate for a
// low/medium risk action: a quick verify (default 30s timeout) that
// still fails closed on a denied decision, but never blocks long enough
// to feel like a manual approval gate. riskLevel must be "low" or
// "medium"; any other value returns an ActionResult with Error=true
// rather than silently accepting it.
func (c *Client) TrackAction(ctx context.Context, actionType, resource, riskLevel string, actionContext map[string]interface{}, fn func() (interface{}, error)) domain.ActionResult {
	if riskLevel != riskLevelLow && riskLevel != riskLevelMedium {
		return domain.ActionResult{
			Error:     true,
			ErrorType: "ConfigurationError",
			Status:    "rejected",
			Action:    actionType,
		}
	}
	return c.performActionResult(ctx, actionType, resource, wrapperContext(actionContext, riskLevel, fn), defaultTrackTimeoutSeconds, fn)
}

// RequireApproval wraps fn with a verification check appropriate for a
// high/critical risk action: an extended timeout (default 1 hour) since
// the decision may require a human in the loop, and a log line marking
// the action as paused pending approval. riskLevel must be "high" or
// "critical".
func (c *Client) RequireApproval(ctx context.Context, actionType, resource, riskLevel string, actionContext map[string]interface{}, fn func() (interface{}, error)) domain.ActionResult {
	if riskLevel != riskLevelHigh && riskLevel != riskLevelCritical {
		return domain.ActionResult{
			Error:     true,
			ErrorType: "ConfigurationError",
			Status:    "rejected",
			Action:    actionType,
		}
	}
	c.logger.Printf("aim: action %q (%s) paused pending approval", actionType, riskLevel)
	return c.performActionResult(ctx, actionType, resource, wrapperContext(actionContext, riskLevel, fn), defaultApprovalTimeoutSeconds, fn)
}

// wrapperContext builds the audit-trail context a wrapped call submits
// with its verification: the advisory risk_level plus function_name and
// module resolved from fn's symbol name. fn is a nullary closure, so its
// captured arguments are not runtime-inspectable; the caller-supplied
// actionContext is the args/kwargs equivalent and is merged in as-is.
// The caller's map is not mutated.
func wrapperContext(actionContext map[string]interface{}, riskLevel string, fn func() (interface{}, error)) map[string]interface{} {
	merged := make(map[string]interface{}, len(actionContext)+3)
	for k, v := range actionContext {
		merged[k] = v
	}
	merged["risk_level"] = riskLevel

	if pc := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); pc != nil {
		symbol := pc.Name()
		if i := strings.LastIndex(symbol, "."); i >= 0 {
			merged["module"] = symbol[:i]
			merged["function_name"] = symbol[i+1:]
		} else if symbol != "" {
			merged["function_name"] = symbol
		}
	}
	return merged
}

// performActionResult adapts PerformAction's (value, error) return into
// the ActionResult shape TrackAction/RequireApproval hand back to
// callers, so a denied or failed action never propagates as a Go error
// the caller must remember to check with errors.As.
func (c *Client) performActionResult(ctx context.Context, actionType, resource string, actionContext map[string]interface{}, timeoutSeconds int, fn func() (interface{}, error)) domain.ActionResult {
	value, err := c.PerformAction(ctx, actionType, resource, actionContext, timeoutSeconds, fn)
	if err != nil {
		return domain.ActionResult{
			Error:     true,
			ErrorType: errorTypeName(err),
			Status:    statusForError(err),
			Action:    actionType,
		}
	}
	return domain.ActionResult{
		Value:  value,
		Error:  false,
		Status: "completed",
		Action: actionType,
	}
}

// errorTypeName matches spec.md S4's literal error_type value for a
// denied decision ("ActionDenied", not the Go error type name).
func errorTypeName(err error) string {
	switch err.(type) {
	case *ActionDeniedError:
		return "ActionDenied"
	case *AuthenticationError:
		return "AuthenticationError"
	case *VerificationError:
		return "VerificationError"
	case *ConfigurationError:
		return "ConfigurationError"
	default:
		return "Error"
	}
}

// statusForError mirrors spec.md S4: a denied decision's ActionResult
// carries status "denied", distinct from the generic "failed" used for
// every other wrapped-call failure.
func statusForError(err error) string {
	if _, ok := err.(*ActionDeniedError); ok {
		return "denied"
	}
	return "failed"
}
