// Package fault defines the detection error taxonomy. Every failure that
// crosses a component boundary is tagged with a Kind so callers branch on
// the variant instead of probing messages.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class.
type Kind string

const (
	// KindNotCandidatePage marks the expected short-circuit for URLs off the
	// supported hosts. Not a failure.
	KindNotCandidatePage Kind = "not_candidate_page"
	// KindPageNotReady means the stability wait ran out without finding a
	// known anchor. Non-fatal; detection proceeds anyway.
	KindPageNotReady Kind = "page_not_ready"
	// KindNoIdentifierFound means no numeric app ID could be located.
	KindNoIdentifierFound Kind = "no_identifier_found"
	// KindNoTitleFound means all title strategies were exhausted.
	KindNoTitleFound Kind = "no_title_found"
	// KindInjectionPointNotFound means no anchor selector matched.
	KindInjectionPointNotFound Kind = "injection_point_not_found"
	// KindBackendRequestFailed covers transport or collaborator errors.
	KindBackendRequestFailed Kind = "backend_request_failed"
	// KindUnknown is the catch-all for anything unanticipated.
	KindUnknown Kind = "unknown"
)

// Error is the tagged detection error. Recoverable is true for every kind in
// this subsystem except where a caller decides otherwise; worst case is
// "widget does not appear".
type Error struct {
	Kind        Kind
	Message     string
	UserMessage string
	Recoverable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storewatch: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("storewatch: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, UserMessage: userMessage(kind), Recoverable: true}
}

// Wrap tags an underlying error with a kind.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, UserMessage: userMessage(kind), Recoverable: true, Err: err}
}

// NotCandidatePage reports the fast-reject short circuit for url.
func NotCandidatePage(url string) *Error {
	return New(KindNotCandidatePage, "not a supported store or community page: "+url)
}

// PageNotReady reports an exhausted stability wait.
func PageNotReady(url string) *Error {
	return New(KindPageNotReady, "no known anchor appeared before deadline: "+url)
}

// NoIdentifier reports a missing numeric app ID.
func NoIdentifier(url string) *Error {
	return New(KindNoIdentifierFound, "no app identifier found on "+url)
}

// NoTitle reports an exhausted title strategy chain.
func NoTitle(url string) *Error {
	return New(KindNoTitleFound, "all title strategies exhausted on "+url)
}

// NoInjectionPoint reports that no anchor selector matched.
func NoInjectionPoint() *Error {
	return New(KindInjectionPointNotFound, "no anchor selector matched")
}

// Backend tags a collaborator request failure.
func Backend(err error) *Error {
	return Wrap(KindBackendRequestFailed, "backend request failed", err)
}

// Unknown tags an unanticipated error.
func Unknown(err error) *Error {
	return Wrap(KindUnknown, "unexpected error", err)
}

// KindOf extracts the Kind from err, or KindUnknown if err carries no tag.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func userMessage(kind Kind) string {
	switch kind {
	case KindBackendRequestFailed:
		return "Could not reach the completion data service"
	case KindNoIdentifierFound, KindNoTitleFound:
		return "Could not identify the game on this page"
	case KindInjectionPointNotFound:
		return "No place to show completion data on this page"
	default:
		return "Something went wrong"
	}
}
