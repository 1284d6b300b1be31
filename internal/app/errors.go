package app

import (
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	// ErrMediaUnavailable means camera, microphone or screen capture could not be obtained.
	ErrMediaUnavailable = core.ErrMediaUnavailable

	ErrUnknownParticipant = errors.New("unknown participant")
	ErrUnexpectedAnswer   = errors.New("unexpected answer")
	ErrStaleCandidate     = errors.New("stale candidate")
	ErrTransportFailure   = errors.New("transport failure")
	ErrSessionClosed      = errors.New("session closed")
	ErrLoopStopped        = errors.New("event loop stopped")
	ErrInvalidTransition  = errors.New("invalid negotiation transition")

	ErrScreenShareCancelled = errors.New("screen share cancelled")
)

// SessionError wraps a failure of one operation on one participant's session.
type SessionError struct {
	Op          string
	Participant domain.ParticipantID
	Err         error
	Details     string
}

func (e *SessionError) Error() string {
	msg := e.Op
	if e.Participant != "" {
		msg += " " + string(e.Participant)
	}
	msg += ": " + e.Err.Error()
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *SessionError) Unwrap() error { return e.Err }

func sessionErr(op string, id domain.ParticipantID, err error) error {
	return &SessionError{Op: op, Participant: id, Err: err}
}

// transportErr marks err as a transport failure while keeping it inspectable.
func transportErr(op string, id domain.ParticipantID, err error) error {
	return &SessionError{Op: op, Participant: id, Err: fmt.Errorf("%w: %w", ErrTransportFailure, err)}
}
