package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an expected domain failure so handlers can map it to a
// status code and render an actionable message without string matching.
type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindUnresolvable       Kind = "unresolvable"
)

// Precondition reason codes, so "transition refused" tells the caller which
// guard was not met.
const (
	ReasonStatusMismatch   = "status_mismatch"
	ReasonVoteShortfall    = "vote_shortfall"
	ReasonFundingShortfall = "funding_shortfall"
)

// Error is a kinded domain error. These are routine outcomes, not faults:
// services return them for every eligibility or guard rejection.
type Error struct {
	Kind    Kind
	Message string
	// Reason is set for KindPreconditionFailed.
	Reason string
	// CanAutoRefill is set for KindInsufficientFunds: true when an enabled
	// auto-refill policy with a saved payment method could close the gap.
	CanAutoRefill bool
	Details       map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func PreconditionFailed(reason, msg string, details map[string]interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: msg, Reason: reason, Details: details}
}

func InsufficientFunds(msg string, canAutoRefill bool, details map[string]interface{}) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: msg, CanAutoRefill: canAutoRefill, Details: details}
}

func Unresolvable(msg string) *Error {
	return &Error{Kind: KindUnresolvable, Message: msg}
}

// As unwraps err into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps a kind to its response status. Unresolvable maps to 422:
// it is only ever surfaced to the webhook processor, never to end users.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindPreconditionFailed:
		return fiber.StatusUnprocessableEntity
	case KindInsufficientFunds:
		return fiber.StatusPaymentRequired
	case KindUnresolvable:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// ResponseDetails builds the details object for the standard error envelope,
// carrying reason codes and the auto-refill hint alongside caller details.
func (e *Error) ResponseDetails() map[string]interface{} {
	details := map[string]interface{}{}
	for k, v := range e.Details {
		details[k] = v
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}
	if e.Kind == KindInsufficientFunds {
		details["can_auto_refill"] = e.CanAutoRefill
	}
	return details
}
