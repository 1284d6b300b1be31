package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	// names the meeting server uses when it relays presence
	typeUserJoined = "user-joined"
	typeUserLeft   = "user-left"
)

var (
	ErrMissingPayload = errors.New("missing payload")
	ErrBadPayload     = errors.New("bad payload")
)

// Envelope is the one message shape carried over the signaling channel.
// Inbound frames may use either camelCase or snake_case identity fields and
// may carry a candidate under sdp or candidate.
type Envelope struct {
	Type           string          `json:"type"`
	UserID         string          `json:"userId,omitempty"`
	UserName       string          `json:"userName,omitempty"`
	LegacyUserID   string          `json:"user_id,omitempty"`
	LegacyUserName string          `json:"user_name,omitempty"`
	SDP            json.RawMessage `json:"sdp,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
	TargetUserID   string          `json:"targetUserId,omitempty"`
	From           string          `json:"from,omitempty"`
}

func DecodeEnvelope(f core.Frame) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (e Envelope) Encode() (core.Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return b, nil
}

// Kind is the canonical message type.
func (e Envelope) Kind() string {
	switch e.Type {
	case typeUserJoined:
		return TypeJoin
	case typeUserLeft:
		return TypeLeave
	default:
		return e.Type
	}
}

// Sender resolves who the message is about: from, then userId, then user_id.
func (e Envelope) Sender() domain.ParticipantID {
	switch {
	case e.From != "":
		return domain.ParticipantID(e.From)
	case e.UserID != "":
		return domain.ParticipantID(e.UserID)
	default:
		return domain.ParticipantID(e.LegacyUserID)
	}
}

func (e Envelope) Name() string {
	if e.UserName != "" {
		return e.UserName
	}
	return e.LegacyUserName
}

// SessionDescription reads the sdp payload, either a {type, sdp} object or a
// bare SDP string, and checks it is of the wanted type.
func (e Envelope) SessionDescription(want webrtc.SDPType) (webrtc.SessionDescription, error) {
	if absent(e.SDP) {
		return webrtc.SessionDescription{}, fmt.Errorf("%s: %w", e.Kind(), ErrMissingPayload)
	}
	var body struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if e.SDP[0] == '"' {
		if err := json.Unmarshal(e.SDP, &body.SDP); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("%s: %w: %v", e.Kind(), ErrBadPayload, err)
		}
	} else if err := json.Unmarshal(e.SDP, &body); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%s: %w: %v", e.Kind(), ErrBadPayload, err)
	}
	if body.Type != "" && webrtc.NewSDPType(body.Type) != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%s: %w: description type %q", e.Kind(), ErrBadPayload, body.Type)
	}
	if body.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%s: %w", e.Kind(), ErrMissingPayload)
	}
	return webrtc.SessionDescription{Type: want, SDP: body.SDP}, nil
}

// ICECandidate reads the candidate from candidate, falling back to sdp.
func (e Envelope) ICECandidate() (webrtc.ICECandidateInit, error) {
	raw := e.Candidate
	if absent(raw) {
		raw = e.SDP
	}
	if absent(raw) {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%s: %w", e.Kind(), ErrMissingPayload)
	}
	var c webrtc.ICECandidateInit
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &c.Candidate); err != nil {
			return webrtc.ICECandidateInit{}, fmt.Errorf("%s: %w: %v", e.Kind(), ErrBadPayload, err)
		}
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%s: %w: %v", e.Kind(), ErrBadPayload, err)
	}
	return c, nil
}

func absent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// JoinEnvelope announces the local participant to the whole meeting.
func JoinEnvelope(id domain.Identity) Envelope {
	return Envelope{
		Type:     TypeJoin,
		UserID:   string(id.LocalUserID),
		UserName: id.LocalUserName,
	}
}

func DescriptionEnvelope(target domain.ParticipantID, sd webrtc.SessionDescription) (Envelope, error) {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{Type: sd.Type.String(), SDP: sd.SDP})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: sd.Type.String(), SDP: payload, TargetUserID: string(target)}, nil
}

// CandidateEnvelope carries the candidate under both sdp and candidate so
// relays that only forward one of them still deliver it.
func CandidateEnvelope(target domain.ParticipantID, c webrtc.ICECandidateInit) (Envelope, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeICECandidate, SDP: payload, Candidate: payload, TargetUserID: string(target)}, nil
}
