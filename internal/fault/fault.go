// Package fault defines the error taxonomy shared by the marketplace core.
// Every operation reports failures as a stable machine-readable kind plus a
// human message; handlers translate kinds into HTTP statuses.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	NotFound            Kind = "not_found"
	Forbidden           Kind = "forbidden"
	InvalidTransition   Kind = "invalid_transition"
	ServiceUnavailable  Kind = "service_unavailable"
	RequestExpired      Kind = "request_expired"
	ReplayedTransaction Kind = "replayed_transaction"
	VerificationFailed  Kind = "verification_failed"
	AlreadyProcessed    Kind = "already_processed"
	// Internal marks infrastructure faults (store or RPC transport down).
	// These are system problems, not protocol outcomes, and map to 500.
	Internal Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an infrastructure error with the Internal kind, keeping the
// underlying message for the logs.
func Wrap(context string, err error) *Error {
	return &Error{Kind: Internal, Message: context + ": " + err.Error()}
}

// KindOf extracts the kind from err. Untyped errors are infrastructure
// faults.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Message returns the human-readable part of err.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// HTTPStatus maps an error kind onto the wire status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidInput, ServiceUnavailable, VerificationFailed:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidTransition, ReplayedTransaction, AlreadyProcessed:
		return http.StatusConflict
	case RequestExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
