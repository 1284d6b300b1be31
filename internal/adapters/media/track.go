package media

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateEnded
)

// Track is a local capture component backed by a static RTP track.
// It implements core.LocalTrack.
type Track struct {
	track *webrtc.TrackLocalStaticRTP
	kind  webrtc.RTPCodecType
	state atomic.Int32 // Zero by default (TrackStateLive)
	addr  *net.UDPAddr

	mu      sync.Mutex
	onEnded []func()
	stop    func()
}

func NewTrack(track *webrtc.TrackLocalStaticRTP, kind webrtc.RTPCodecType, stop func()) *Track {
	return &Track{track: track, kind: kind, stop: stop}
}

func (t *Track) ID() string                    { return t.track.ID() }
func (t *Track) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.track }

// LocalAddr is the ingest socket address, nil for tracks without one.
func (t *Track) LocalAddr() *net.UDPAddr { return t.addr }

func (t *Track) GetState() TrackState {
	return TrackState(t.state.Load())
}

func (t *Track) Enabled() bool { return t.GetState() == TrackStateLive }

func (t *Track) Ended() bool { return t.GetState() == TrackStateEnded }

// SetEnabled flips between live and muted. Ended tracks stay ended.
func (t *Track) SetEnabled(on bool) {
	from, to := TrackStateMuted, TrackStateLive
	if !on {
		from, to = TrackStateLive, TrackStateMuted
	}
	t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	if t.Ended() {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// Stop ends the track and releases the ingest behind it.
func (t *Track) Stop() { t.end() }

func (t *Track) end() {
	t.mu.Lock()
	if TrackState(t.state.Swap(int32(TrackStateEnded))) == TrackStateEnded {
		t.mu.Unlock()
		return
	}
	subs := t.onEnded
	t.onEnded = nil
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, fn := range subs {
		fn()
	}
}
