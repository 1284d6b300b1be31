package app

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const retryDelay = 50 * time.Millisecond

type outFrame struct {
	env   Envelope
	frame core.Frame
}

// Router turns inbound envelopes into roster and session operations and
// sends the resulting offers, answers and candidates. Loop goroutine only.
type Router struct {
	identity domain.Identity
	roster   *RosterStore
	peers    *PeerSessionManager
	render   core.Renderer
	loop     core.Poster
	policy   Policy

	conn     core.SignalConnection
	outbox   []outFrame
	retrying bool
	closed   bool
}

func NewRouter(identity domain.Identity, roster *RosterStore, peers *PeerSessionManager, render core.Renderer, loop core.Poster, policy Policy) *Router {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Router{
		identity: identity,
		roster:   roster,
		peers:    peers,
		render:   render,
		loop:     loop,
		policy:   policy,
	}
}

// Bind sets the channel outbound frames go to. Frames produced earlier are sent now.
func (r *Router) Bind(conn core.SignalConnection) {
	r.conn = conn
	r.flush()
}

// Close drops pending frames and closes the channel.
func (r *Router) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.outbox = nil
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *Router) SendJoin() {
	r.send(JoinEnvelope(r.identity))
}

// Pending is the number of outbound frames not yet accepted by the channel.
func (r *Router) Pending() int { return len(r.outbox) }

func (r *Router) HandleFrame(f core.Frame) {
	if r.closed {
		return
	}
	env, err := DecodeEnvelope(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Msg("bad json")
		return
	}

	kind := env.Kind()
	switch kind {
	case TypeJoin, TypeLeave, TypeOffer, TypeAnswer, TypeICECandidate:
	default:
		log.Warn().Str("module", "app.router").Str("type", env.Type).Msg("unknown signal")
		return
	}

	sender := env.Sender()
	if err := sender.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("type", kind).Msg("signal without valid sender")
		return
	}
	// The server echoes group broadcasts back to us.
	if sender == r.identity.LocalUserID {
		return
	}
	if env.TargetUserID != "" && domain.ParticipantID(env.TargetUserID) != r.identity.LocalUserID {
		log.Debug().Str("module", "app.router").Str("type", kind).Str("target", env.TargetUserID).Msg("signal for another participant")
		return
	}

	switch kind {
	case TypeJoin:
		r.handleJoin(sender, env)
	case TypeLeave:
		r.handleLeave(sender)
	case TypeOffer:
		r.handleOffer(sender, env)
	case TypeAnswer:
		r.handleAnswer(sender, env)
	case TypeICECandidate:
		r.handleCandidate(sender, env)
	}
}

func (r *Router) handleJoin(id domain.ParticipantID, env Envelope) {
	r.roster.AddOrUpdate(id, env.Name())
	if rec, _ := r.roster.Get(id); rec.Session != nil && !rec.Session.Closed() {
		log.Info().Str("module", "app.router").Str("participant", string(id)).Msg("duplicate join")
		return
	}

	sess, err := r.peers.CreateAsInitiator(id, r.negotiated)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("cannot offer")
		return
	}
	if err := r.roster.AttachSession(id, sess); err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("attach session")
	}
}

func (r *Router) handleLeave(id domain.ParticipantID) {
	rec, ok := r.roster.Get(id)
	if !ok {
		log.Debug().Str("module", "app.router").Str("participant", string(id)).Msg("leave for unknown participant")
		return
	}
	r.roster.Remove(id)
	if rec.Rendered {
		r.render.RemoveRender(id)
	}
}

func (r *Router) handleOffer(id domain.ParticipantID, env Envelope) {
	offer, err := env.SessionDescription(webrtc.SDPTypeOffer)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("bad offer payload")
		return
	}

	r.roster.AddOrUpdate(id, env.Name())
	// A replaced session brings its own stream.
	if r.roster.ClearRendered(id) {
		r.render.RemoveRender(id)
	}

	sess, err := r.peers.CreateAsResponder(id, offer, r.negotiated)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("cannot answer")
		return
	}
	if err := r.roster.AttachSession(id, sess); err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("attach session")
	}
}

func (r *Router) handleAnswer(id domain.ParticipantID, env Envelope) {
	answer, err := env.SessionDescription(webrtc.SDPTypeAnswer)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("bad answer payload")
		return
	}
	if err := r.peers.ApplyAnswer(id, answer); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("answer dropped")
		return
	}
	log.Info().Str("module", "app.router").Str("participant", string(id)).Msg("session stable")
}

func (r *Router) handleCandidate(id domain.ParticipantID, env Envelope) {
	c, err := env.ICECandidate()
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("bad candidate payload")
		return
	}
	if err := r.peers.EnqueueOrApplyCandidate(id, c); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("candidate dropped")
	}
}

// negotiated sends the local description once a session produced it.
func (r *Router) negotiated(sess *PeerSession, sd webrtc.SessionDescription, err error) {
	id := sess.ParticipantID
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("negotiation failed")
		r.roster.DetachSession(id, sess)
		return
	}
	env, err := DescriptionEnvelope(id, sd)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("encode description")
		return
	}
	r.send(env)
}

// OnLocalCandidate forwards a gathered candidate to its participant.
func (r *Router) OnLocalCandidate(id domain.ParticipantID, c webrtc.ICECandidateInit) {
	env, err := CandidateEnvelope(id, c)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("participant", string(id)).Msg("encode candidate")
		return
	}
	r.send(env)
}

// OnRemoteTrackReady renders a remote participant the first time a stream arrives.
func (r *Router) OnRemoteTrackReady(id domain.ParticipantID, stream *core.RemoteStream) {
	rec, ok := r.roster.Get(id)
	if !ok {
		return
	}
	if !r.roster.MarkRendered(id) {
		log.Debug().Str("module", "app.router").Str("participant", string(id)).Msg("already rendered")
		return
	}
	r.render.Render(id, stream, rec.DisplayName, false)
}

func (r *Router) send(env Envelope) {
	if r.closed {
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode envelope")
		return
	}
	r.outbox = append(r.outbox, outFrame{env: env, frame: frame})
	r.flush()
}

func (r *Router) flush() {
	if r.conn == nil || r.closed {
		return
	}
	for len(r.outbox) > 0 {
		next := r.outbox[0]
		err := r.conn.TrySend(next.frame)
		if err == nil {
			r.outbox = r.outbox[1:]
			continue
		}
		switch r.policy.OnBackPressure(next.env, len(r.outbox)) {
		case DropFrame:
			log.Warn().Err(err).Str("module", "app.router").Str("type", next.env.Type).Str("target", next.env.TargetUserID).Msg("frame dropped")
			r.outbox = r.outbox[1:]
			continue
		case RetryFrame:
			r.scheduleRetry()
		case NoAction:
		}
		return
	}
}

func (r *Router) scheduleRetry() {
	if r.retrying {
		return
	}
	r.retrying = true
	time.AfterFunc(retryDelay, func() {
		r.loop.Post(func() {
			r.retrying = false
			r.flush()
		})
	})
}
