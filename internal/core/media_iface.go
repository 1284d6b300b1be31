package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one transport session with exactly one remote participant.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources. Safe to call twice.
	Close() error
	// AddLocalTrack attaches a local track. A video track becomes the
	// outgoing video slot used by ReplaceVideoTrack.
	AddLocalTrack(LocalTrack) error
	// ReplaceVideoTrack swaps the outgoing video without renegotiation.
	// A nil track stops sending video on the slot.
	ReplaceVideoTrack(LocalTrack) error
	// CreateOffer builds an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer builds an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack fires once per remote stream; later tracks of the same stream
	// are added to the stream it already delivered.
	OnTrack(func(*RemoteStream))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
}

// MediaConnector builds transport sessions from the meeting's ICE configuration.
type MediaConnector interface {
	Connect(id domain.ParticipantID) (MediaConnection, error)
}

// LocalTrack is one local audio or video component.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	// Stop ends the track for good; OnEnded callbacks fire once.
	Stop()
	Ended() bool
	OnEnded(func())
	// TrackLocal is what gets attached to a peer connection.
	TrackLocal() webrtc.TrackLocal
}

// Stream is anything a render surface can display.
type Stream interface {
	StreamID() string
}

// MediaSource exposes zero-or-one audio and zero-or-one video track.
type MediaSource interface {
	Stream
	Audio() LocalTrack
	Video() LocalTrack
	Tracks() []LocalTrack
	Stop()
}

type Constraints struct {
	Audio bool
	Video bool
}

// MediaDevices acquires local capture. Both calls may block.
type MediaDevices interface {
	Acquire(ctx context.Context, c Constraints) (MediaSource, error)
	AcquireScreenCapture(ctx context.Context, c Constraints) (MediaSource, error)
}
