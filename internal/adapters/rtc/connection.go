package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoVideoSender = errors.New("no outgoing video slot")
	ErrClosed        = errors.New("connection closed")
)

// WebRTCConnection implements core.MediaConnection on a pion PeerConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	id     domain.ParticipantID
	cancel context.CancelFunc
	closed atomic.Bool

	mu          sync.Mutex
	videoSender *webrtc.RTPSender
	streams     map[string]*core.RemoteStream

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*core.RemoteStream)
	onState func(webrtc.PeerConnectionState)
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, id domain.ParticipantID) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc:      pc,
		id:      id,
		streams: make(map[string]*core.RemoteStream),
	}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("participant", string(c.id)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("participant", string(c.id)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("participant", string(c.id)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")

		c.mu.Lock()
		stream, ok := c.streams[track.StreamID()]
		if !ok {
			stream = core.NewRemoteStream(track.StreamID())
			c.streams[track.StreamID()] = stream
		}
		c.mu.Unlock()

		stream.AddTrack(track)
		if !ok && c.onTrack != nil {
			c.onTrack(stream)
		}
	})

	return nil
}

func (c *WebRTCConnection) AddLocalTrack(t core.LocalTrack) error {
	sender, err := c.pc.AddTrack(t.TrackLocal())
	if err != nil {
		return err
	}
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		c.mu.Lock()
		if c.videoSender == nil {
			c.videoSender = sender
		}
		c.mu.Unlock()
	}
	// RTCP has to be drained for the interceptors to see NACK/PLI.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) ReplaceVideoTrack(t core.LocalTrack) error {
	c.mu.Lock()
	sender := c.videoSender
	c.mu.Unlock()
	if sender == nil {
		return ErrNoVideoSender
	}
	if t == nil {
		return sender.ReplaceTrack(nil)
	}
	return sender.ReplaceTrack(t.TrackLocal())
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("participant", string(c.id)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("participant", string(c.id)).Msg("closed")
	return nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets application-level callback for remote streams.
func (c *WebRTCConnection) OnTrack(fn func(*core.RemoteStream)) { c.onTrack = fn }

func (c *WebRTCConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.onState = fn
}
