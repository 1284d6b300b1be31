package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Coordinator is built from.
type Deps struct {
	Identity  domain.Identity
	ExitURL   string
	Connector core.MediaConnector
	Devices   core.MediaDevices
	Dialer    core.SignalDialer
	Renderer  core.Renderer
	Navigator core.Navigator
	Alerter   core.Alerter
	Policy    app.Policy
}

// Coordinator wires roster, sessions, routing and media for one meeting and
// drives startup and leave.
type Coordinator struct {
	identity domain.Identity
	exitURL  string

	devices   core.MediaDevices
	dialer    core.SignalDialer
	renderer  core.Renderer
	navigator core.Navigator
	alerter   core.Alerter

	loop   *app.Loop
	roster *app.RosterStore
	peers  *app.PeerSessionManager
	router *app.Router
	media  *app.MediaController

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	leaving   atomic.Bool
	leaveOnce sync.Once
	leaveErr  error
	left      chan struct{}
}

func New(ctx context.Context, d Deps) *Coordinator {
	ctx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		identity:  d.Identity,
		exitURL:   d.ExitURL,
		devices:   d.Devices,
		dialer:    d.Dialer,
		renderer:  d.Renderer,
		navigator: d.Navigator,
		alerter:   d.Alerter,
		loop:      app.NewLoop(),
		ctx:       ctx,
		cancel:    cancel,
		left:      make(chan struct{}),
	}
	c.peers = app.NewPeerSessionManager(ctx, c.loop, d.Connector, app.SessionCallbacks{
		OnRemoteTrackReady: func(id domain.ParticipantID, stream *core.RemoteStream) {
			c.router.OnRemoteTrackReady(id, stream)
		},
		OnLocalCandidate: func(id domain.ParticipantID, ci webrtc.ICECandidateInit) {
			c.router.OnLocalCandidate(id, ci)
		},
		OnConnectionStateChange: c.onConnectionState,
	})
	c.roster = app.NewRosterStore(d.Identity, c.peers)
	c.router = app.NewRouter(d.Identity, c.roster, c.peers, d.Renderer, c.loop, d.Policy)
	c.media = app.NewMediaController(ctx, c.loop, d.Devices, c.peers, d.Alerter)
	go c.loop.Run(ctx)
	return c
}

// Start acquires local media, shows the local participant, opens signaling
// and announces us. A media failure is reported to the user and halts startup.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}
	logger := log.With().Str("module", "app.orch").Str("meeting", string(c.identity.MeetingID)).Logger()

	src, err := c.devices.Acquire(ctx, core.Constraints{Audio: true, Video: true})
	if err != nil {
		if !errors.Is(err, app.ErrMediaUnavailable) {
			err = fmt.Errorf("%w: %w", app.ErrMediaUnavailable, err)
		}
		logger.Error().Err(err).Msg("local media unavailable")
		c.alerter.Alert(err)
		c.abort()
		return err
	}

	err = c.loop.Call(func() {
		c.peers.SetLocalTracks(src.Tracks())
		c.media.SetLocal(src)
		c.renderer.Render(c.identity.LocalUserID, src, c.identity.LocalUserName, true)
		c.router.SendJoin()
	})
	if err != nil {
		src.Stop()
		c.abort()
		return err
	}

	conn, err := c.dialer.Dial(ctx, c.onFrame, c.onSignalClosed)
	if err != nil {
		err = fmt.Errorf("open signaling: %w", err)
		logger.Error().Err(err).Msg("signaling unavailable")
		c.alerter.Alert(err)
		c.loop.Exec(c.media.Stop)
		c.abort()
		return err
	}
	if err := c.loop.Call(func() { c.router.Bind(conn) }); err != nil {
		conn.Close()
		return err
	}

	logger.Info().Str("participant", string(c.identity.LocalUserID)).Msg("joined meeting")
	return nil
}

// Left is closed once the leave sequence has finished.
func (c *Coordinator) Left() <-chan struct{} { return c.left }

func (c *Coordinator) onFrame(f core.Frame) {
	c.loop.Post(func() { c.router.HandleFrame(f) })
}

func (c *Coordinator) onSignalClosed(err error) {
	if c.leaving.Load() {
		return
	}
	log.Warn().
		Str("module", "app.orch").
		Str("meeting", string(c.identity.MeetingID)).
		Err(err).
		Msg("signaling channel closed")
	go c.Leave()
}

func (c *Coordinator) onConnectionState(id domain.ParticipantID, state webrtc.PeerConnectionState) {
	log.Debug().
		Str("module", "app.orch").
		Str("participant", string(id)).
		Str("state", state.String()).
		Msg("transport state")
}

// abort tears down what Start built without navigating away.
func (c *Coordinator) abort() {
	c.leaving.Store(true)
	c.loop.Stop()
	c.cancel()
	c.peers.Wait()
	c.media.Wait()
}
