package types

import "fmt"

// ErrKind buckets everything that can go wrong on a chat turn.
type ErrKind int

const (
	// ErrToken means the token endpoint was unreachable or rejected us.
	ErrToken ErrKind = iota
	// ErrTransport covers network failures on the stream or the agent channel.
	ErrTransport
	// ErrProtocol covers payloads that failed to parse as expected.
	ErrProtocol
	// ErrUserInitiated is not a failure, it shares the cleanup path.
	ErrUserInitiated
)

// User-facing notes appended to a message when a turn fails. Keyed by the
// observed HTTP status class, with a generic fallback.
const (
	NoteNetwork     = "Network connection issue. Please check your internet connection and try again."
	NoteAuthFailed  = "Authentication failed. Please refresh and try again."
	NoteForbidden   = "Access denied. You may not have permission to access this service."
	NoteServer      = "Server error. The service is temporarily unavailable. Please try again later."
	NoteUnavailable = "Service temporarily unavailable. Please try again in a few moments."
	NoteFallback    = "Unable to fetch response. Please try again."
)

// ChatError wraps a failure with its kind and, for HTTP failures, the
// observed status code.
type ChatError struct {
	Kind   ErrKind
	Status int
	Err    error
}

func (e *ChatError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat request failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("chat request failed: %v", e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

// UserNote maps the error to the copy shown to the user.
func (e *ChatError) UserNote() string {
	switch {
	case e.Status == 401:
		return NoteAuthFailed
	case e.Status == 403:
		return NoteForbidden
	case e.Status == 503:
		return NoteUnavailable
	case e.Status >= 500:
		return NoteServer
	case e.Status == 0 && e.Kind == ErrTransport:
		return NoteNetwork
	default:
		return NoteFallback
	}
}

// NewTransportError classifies a failed request by status. A status of 0
// means the request never completed (connectivity).
func NewTransportError(status int, err error) *ChatError {
	return &ChatError{Kind: ErrTransport, Status: status, Err: err}
}
