// Package runerr implements the closed error taxonomy of spec.md §7: a fixed
// set of error kinds the runner raises, each carrying enough context for a
// caller to distinguish fatal from non-fatal outcomes without string
// matching.
package runerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy. New kinds are never added silently;
// every caller-visible error produced by this module carries exactly one.
type Kind int

const (
	// KindBudgetExhausted: maxSteps or whole-run token cap exceeded. Fatal.
	KindBudgetExhausted Kind = iota
	// KindGuardrailRejected: an input or output guardrail reported passed=false. Fatal.
	KindGuardrailRejected
	// KindToolFailure: a tool's execute threw, or schema validation failed. Non-fatal.
	KindToolFailure
	// KindUnknownTransferTarget: a transfer marker named an agent outside the
	// current agent's sub-agent list. Non-fatal, the signal is dropped.
	KindUnknownTransferTarget
	// KindNeedsApproval: an approval policy requires consent that is not yet recorded. Non-fatal pause.
	KindNeedsApproval
	// KindModelFailure: the model endpoint raised. Fatal.
	KindModelFailure
	// KindOutputSchemaParse: the final assistant text failed to parse against the agent's output schema. Fatal.
	KindOutputSchemaParse
	// KindCancelled: an external cancellation signal fired. Fatal unless approvals are pending.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindBudgetExhausted:
		return "budget_exhausted"
	case KindGuardrailRejected:
		return "guardrail_rejected"
	case KindToolFailure:
		return "tool_failure"
	case KindUnknownTransferTarget:
		return "unknown_transfer_target"
	case KindNeedsApproval:
		return "needs_approval"
	case KindModelFailure:
		return "model_failure"
	case KindOutputSchemaParse:
		return "output_schema_parse"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind abort the run immediately
// (spec.md §7 propagation rule), as opposed to being recoverable/pausing.
func (k Kind) Fatal() bool {
	switch k {
	case KindToolFailure, KindUnknownTransferTarget, KindNeedsApproval:
		return false
	default:
		return true
	}
}

// Error is the concrete error type this package produces.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Agent, Tool, CallID are populated when relevant to the kind, to let
	// callers render a precise diagnostic without parsing Message.
	Agent  string
	Tool   string
	CallID string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is by comparing Kind; two *Error values with the same
// Kind are considered equal regardless of Message/Cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, returning
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
