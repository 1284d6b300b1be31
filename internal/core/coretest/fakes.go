// Package coretest holds in-memory stand-ins for the core transport and
// capture interfaces.
package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemote = errors.New("remote description not set")

// Conn is a scripted core.MediaConnection. Fields are meant to be set from
// Connector.Prepare, before the connection is shared.
type Conn struct {
	ID domain.ParticipantID
	// Gate, when set, holds CreateOffer and CreateAnswer until it is closed.
	Gate      chan struct{}
	OfferErr  error
	RemoteErr error

	mu         sync.Mutex
	started    bool
	closeCount int
	tracks     []core.LocalTrack
	slot       core.LocalTrack
	hasSlot    bool
	remote     *webrtc.SessionDescription
	applied    []webrtc.ICECandidateInit
	early      int
	replaceErr error

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*core.RemoteStream)
	onState func(webrtc.PeerConnectionState)
}

func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return nil
}

func (c *Conn) AddLocalTrack(t core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	if t.Kind() == webrtc.RTPCodecTypeVideo && !c.hasSlot {
		c.slot, c.hasSlot = t, true
	}
	return nil
}

func (c *Conn) ReplaceVideoTrack(t core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaceErr != nil {
		return c.replaceErr
	}
	if !c.hasSlot {
		return errors.New("no video slot")
	}
	c.slot = t
	return nil
}

func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	if c.Gate != nil {
		<-c.Gate
	}
	if c.OfferErr != nil {
		return webrtc.SessionDescription{}, c.OfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + string(c.ID)}, nil
}

func (c *Conn) CreateAnswer() (webrtc.SessionDescription, error) {
	if c.Gate != nil {
		<-c.Gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemote
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + string(c.ID)}, nil
}

func (c *Conn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RemoteErr != nil {
		return c.RemoteErr
	}
	c.remote = &sd
	return nil
}

// AddICECandidate refuses candidates that arrive before the remote
// description and counts them in Early.
func (c *Conn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		c.early++
		return ErrNoRemote
	}
	c.applied = append(c.applied, ci)
	return nil
}

func (c *Conn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Conn) OnTrack(fn func(*core.RemoteStream)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Conn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Conn) EmitCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	fn(ci)
}

func (c *Conn) EmitTrack(stream *core.RemoteStream) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	fn(stream)
}

func (c *Conn) EmitState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *Conn) SetReplaceErr(err error) {
	c.mu.Lock()
	c.replaceErr = err
	c.mu.Unlock()
}

func (c *Conn) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *Conn) Early() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.early
}

// Applied lists applied remote candidates in order.
func (c *Conn) Applied() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.applied))
	for _, ci := range c.applied {
		out = append(out, ci.Candidate)
	}
	return out
}

func (c *Conn) VideoSlot() core.LocalTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// Connector hands out Conns and remembers them in creation order.
type Connector struct {
	Prepare func(*Conn)
	Err     error

	mu    sync.Mutex
	conns []*Conn
}

func (f *Connector) Connect(id domain.ParticipantID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c := &Conn{ID: id}
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *Connector) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Last is the most recent Conn built for id, or nil.
func (f *Connector) Last(id domain.ParticipantID) *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.conns) - 1; i >= 0; i-- {
		if f.conns[i].ID == id {
			return f.conns[i]
		}
	}
	return nil
}

// Track is a core.LocalTrack without media behind it.
type Track struct {
	id   string
	kind webrtc.RTPCodecType

	mu      sync.Mutex
	enabled bool
	ended   bool
	onEnded []func()
}

func NewTrack(id string, kind webrtc.RTPCodecType) *Track {
	return &Track{id: id, kind: kind, enabled: true}
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *Track) TrackLocal() webrtc.TrackLocal { return nil }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ended {
		t.enabled = on
	}
}

func (t *Track) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	subs := t.onEnded
	t.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// NewCamera is a local source with one microphone and one camera track.
func NewCamera() (core.MediaSource, *Track, *Track) {
	mic := NewTrack("mic", webrtc.RTPCodecTypeAudio)
	cam := NewTrack("cam", webrtc.RTPCodecTypeVideo)
	return core.NewMediaSource("local", mic, cam), mic, cam
}

// Devices serves a fixed local source and fresh screen captures.
type Devices struct {
	Local      core.MediaSource
	AcquireErr error
	ScreenErr  error

	// ScreenGate, when set, holds AcquireScreenCapture until it is closed.
	ScreenGate chan struct{}

	mu      sync.Mutex
	screens []core.MediaSource
}

func (d *Devices) Acquire(ctx context.Context, c core.Constraints) (core.MediaSource, error) {
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	return d.Local, nil
}

func (d *Devices) AcquireScreenCapture(ctx context.Context, c core.Constraints) (core.MediaSource, error) {
	if d.ScreenGate != nil {
		<-d.ScreenGate
	}
	if d.ScreenErr != nil {
		return nil, d.ScreenErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := "screen-" + string(rune('a'+len(d.screens)))
	src := core.NewMediaSource(id, nil, NewTrack(id, webrtc.RTPCodecTypeVideo))
	d.screens = append(d.screens, src)
	return src, nil
}

// Screens lists every capture handed out so far.
func (d *Devices) Screens() []core.MediaSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.MediaSource(nil), d.screens...)
}
