package app

import (
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateStable
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s NegotiationState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Closed is reachable from everywhere and is handled separately.
var transitions = map[NegotiationState][]NegotiationState{
	StateNew:           {StateOfferSent, StateOfferReceived},
	StateOfferSent:     {StateStable},
	StateOfferReceived: {StateAnswerSent},
	StateAnswerSent:    {StateStable},
	StateStable:        {StateStable},
}

// PeerSession is the negotiation state for one remote participant.
// Only the loop goroutine touches it.
type PeerSession struct {
	ParticipantID domain.ParticipantID
	Role          Role

	state NegotiationState
	conn  core.MediaConnection

	// remote candidates waiting for the remote description
	queue     []webrtc.ICECandidateInit
	remoteSet bool

	// local candidates gathered before our offer/answer went out
	pendingLocal []webrtc.ICECandidateInit
	localSent    bool

	localTracks  []core.LocalTrack
	video        core.LocalTrack
	remoteStream *core.RemoteStream
}

func newPeerSession(id domain.ParticipantID, role Role) *PeerSession {
	return &PeerSession{ParticipantID: id, Role: role, state: StateNew}
}

func (s *PeerSession) State() NegotiationState { return s.state }

func (s *PeerSession) Closed() bool { return s.state == StateClosed }

// RemoteDescriptionSet reports whether remote candidates are applied right away.
func (s *PeerSession) RemoteDescriptionSet() bool { return s.remoteSet }

// QueuedCandidates is the number of remote candidates still buffered.
func (s *PeerSession) QueuedCandidates() int { return len(s.queue) }

// LocalTracks are the tracks currently sent, with the outgoing video slot
// reflecting any replacement.
func (s *PeerSession) LocalTracks() []core.LocalTrack {
	out := make([]core.LocalTrack, 0, len(s.localTracks))
	for _, t := range s.localTracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			continue
		}
		out = append(out, t)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

// OutgoingVideo is the track in the video slot, nil if nothing is sent.
func (s *PeerSession) OutgoingVideo() core.LocalTrack { return s.video }

func (s *PeerSession) RemoteStream() *core.RemoteStream { return s.remoteStream }

func (s *PeerSession) transition(to NegotiationState) error {
	if s.state == StateClosed {
		return sessionErr("transition", s.ParticipantID, ErrSessionClosed)
	}
	if to == StateClosed {
		s.state = to
		return nil
	}
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return &SessionError{
		Op:          "transition",
		Participant: s.ParticipantID,
		Err:         ErrInvalidTransition,
		Details:     s.state.String() + " -> " + to.String(),
	}
}

// SessionInfo is a read-only view used by the control surface.
type SessionInfo struct {
	ParticipantID    domain.ParticipantID `json:"participantId"`
	Role             string               `json:"role"`
	State            NegotiationState     `json:"state"`
	QueuedCandidates int                  `json:"queuedCandidates"`
	RemoteStream     string               `json:"remoteStream,omitempty"`
}

func (s *PeerSession) Info() SessionInfo {
	info := SessionInfo{
		ParticipantID:    s.ParticipantID,
		Role:             s.Role.String(),
		State:            s.state,
		QueuedCandidates: len(s.queue),
	}
	if s.remoteStream != nil {
		info.RemoteStream = s.remoteStream.StreamID()
	}
	return info
}
