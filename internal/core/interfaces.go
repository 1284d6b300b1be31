package core

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_surface.go -package=mocks

import (
	"errors"

	"github.com/dkeye/Meet/internal/domain"
)

// ErrMediaUnavailable means camera, microphone or screen capture could not be obtained.
var ErrMediaUnavailable = errors.New("media unavailable")

// Renderer is the surface that shows participants to the user.
type Renderer interface {
	Render(id domain.ParticipantID, stream Stream, displayName string, isLocal bool)
	RemoveRender(id domain.ParticipantID)
}

// Navigator hands control back to the host once we leave.
type Navigator interface {
	Redirect(url string)
}

// Alerter reports user-facing failures.
type Alerter interface {
	Alert(err error)
}
