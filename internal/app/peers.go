package app

import (
	"context"
	"errors"
	"sort"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// NegotiationDone receives the local description produced for sess, on the loop.
type NegotiationDone func(sess *PeerSession, sd webrtc.SessionDescription, err error)

type SessionCallbacks struct {
	OnRemoteTrackReady func(id domain.ParticipantID, stream *core.RemoteStream)
	OnLocalCandidate   func(id domain.ParticipantID, c webrtc.ICECandidateInit)
	// OnConnectionStateChange is informational; it never closes a session.
	OnConnectionStateChange func(id domain.ParticipantID, state webrtc.PeerConnectionState)
}

// PeerSessionManager owns one PeerSession per remote participant.
// Every method must be called on the loop goroutine.
type PeerSessionManager struct {
	ctx       context.Context
	loop      core.Poster
	connector core.MediaConnector
	cb        SessionCallbacks

	sessions map[domain.ParticipantID]*PeerSession
	local    []core.LocalTrack
	video    core.LocalTrack

	wg conc.WaitGroup
}

func NewPeerSessionManager(ctx context.Context, loop core.Poster, connector core.MediaConnector, cb SessionCallbacks) *PeerSessionManager {
	return &PeerSessionManager{
		ctx:       ctx,
		loop:      loop,
		connector: connector,
		cb:        cb,
		sessions:  make(map[domain.ParticipantID]*PeerSession),
	}
}

// SetLocalTracks records the tracks attached to every session created from now on.
// The first video track becomes the outgoing video.
func (m *PeerSessionManager) SetLocalTracks(tracks []core.LocalTrack) {
	m.local = append([]core.LocalTrack(nil), tracks...)
	m.video = nil
	for _, t := range m.local {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			m.video = t
			break
		}
	}
}

func (m *PeerSessionManager) outgoing() ([]core.LocalTrack, core.LocalTrack) {
	tracks := make([]core.LocalTrack, 0, len(m.local)+1)
	for _, t := range m.local {
		if t.Kind() != webrtc.RTPCodecTypeVideo {
			tracks = append(tracks, t)
		}
	}
	if m.video != nil {
		tracks = append(tracks, m.video)
	}
	return tracks, m.video
}

// CreateAsInitiator registers a new session for id and builds an offer for it
// in the background. done runs on the loop once the offer is the local description.
func (m *PeerSessionManager) CreateAsInitiator(id domain.ParticipantID, done NegotiationDone) (*PeerSession, error) {
	tracks, video := m.outgoing()
	if len(tracks) == 0 {
		return nil, sessionErr("create-offer", id, ErrMediaUnavailable)
	}

	sess := m.register(id, Initiator)
	sess.localTracks, sess.video = tracks, video

	m.wg.Go(func() {
		conn, err := m.build(sess, tracks)
		var offer webrtc.SessionDescription
		if err == nil {
			offer, err = conn.CreateOffer()
		}
		m.post(conn, func() { m.offerReady(sess, conn, offer, err, done) })
	})
	return sess, nil
}

// CreateAsResponder registers a session for id in OfferReceived and answers
// offer in the background. done runs on the loop with the answer.
func (m *PeerSessionManager) CreateAsResponder(id domain.ParticipantID, offer webrtc.SessionDescription, done NegotiationDone) (*PeerSession, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, &SessionError{Op: "create-answer", Participant: id, Err: ErrInvalidTransition, Details: "not an offer: " + offer.Type.String()}
	}
	tracks, video := m.outgoing()

	sess := m.register(id, Responder)
	_ = sess.transition(StateOfferReceived)
	sess.localTracks, sess.video = tracks, video

	m.wg.Go(func() {
		conn, err := m.build(sess, tracks)
		var answer webrtc.SessionDescription
		if err == nil {
			if err = conn.SetRemoteDescription(offer); err == nil {
				answer, err = conn.CreateAnswer()
			}
		}
		m.post(conn, func() { m.answerReady(sess, conn, answer, err, done) })
	})
	return sess, nil
}

// ApplyAnswer completes an initiator negotiation.
func (m *PeerSessionManager) ApplyAnswer(id domain.ParticipantID, answer webrtc.SessionDescription) error {
	sess := m.sessions[id]
	if sess == nil {
		return sessionErr("apply-answer", id, ErrUnexpectedAnswer)
	}
	if sess.state != StateOfferSent {
		return &SessionError{Op: "apply-answer", Participant: id, Err: ErrUnexpectedAnswer, Details: "state " + sess.state.String()}
	}
	// A rejected answer leaves the session waiting in OfferSent; closing it
	// is up to the roster.
	if err := sess.conn.SetRemoteDescription(answer); err != nil {
		return transportErr("apply-answer", id, err)
	}
	sess.remoteSet = true
	m.drain(sess)
	return sess.transition(StateStable)
}

// EnqueueOrApplyCandidate applies c once the remote description is set and
// buffers it until then.
func (m *PeerSessionManager) EnqueueOrApplyCandidate(id domain.ParticipantID, c webrtc.ICECandidateInit) error {
	sess := m.sessions[id]
	if sess == nil {
		return sessionErr("candidate", id, ErrStaleCandidate)
	}
	if !sess.remoteSet {
		sess.queue = append(sess.queue, c)
		return nil
	}
	if err := sess.conn.AddICECandidate(c); err != nil {
		return transportErr("candidate", id, err)
	}
	return nil
}

// ReplaceOutgoingVideoTrack swaps the video slot of every active session in place.
// Sessions still negotiating pick the track up when they complete.
func (m *PeerSessionManager) ReplaceOutgoingVideoTrack(t core.LocalTrack) error {
	m.video = t
	var errs []error
	for id, sess := range m.sessions {
		if sess.conn == nil || sess.Closed() || sess.video == t {
			continue
		}
		if err := sess.conn.ReplaceVideoTrack(t); err != nil {
			log.Warn().Err(err).Str("module", "app.peers").Str("participant", string(id)).Msg("replace video failed")
			errs = append(errs, sessionErr("replace-video", id, err))
			continue
		}
		sess.video = t
	}
	return errors.Join(errs...)
}

// Close tears down the session for id. Unknown ids are a no-op.
func (m *PeerSessionManager) Close(id domain.ParticipantID) error {
	sess := m.sessions[id]
	if sess == nil {
		return nil
	}
	return m.closeSession(sess)
}

func (m *PeerSessionManager) CloseAll() error {
	var errs []error
	for _, sess := range m.sessions {
		if err := m.closeSession(sess); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *PeerSessionManager) Session(id domain.ParticipantID) (*PeerSession, bool) {
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *PeerSessionManager) Len() int { return len(m.sessions) }

func (m *PeerSessionManager) Sessions() []SessionInfo {
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Wait blocks until background negotiation work has returned.
// Call it only after the loop stopped accepting new work.
func (m *PeerSessionManager) Wait() {
	if r := m.wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "app.peers").Str("panic", r.String()).Msg("negotiation worker panicked")
	}
}

func (m *PeerSessionManager) register(id domain.ParticipantID, role Role) *PeerSession {
	if old := m.sessions[id]; old != nil {
		log.Info().
			Str("module", "app.peers").
			Str("participant", string(id)).
			Str("old_state", old.state.String()).
			Msg("replacing existing session")
		_ = m.closeSession(old)
	}
	sess := newPeerSession(id, role)
	m.sessions[id] = sess
	log.Info().Str("module", "app.peers").Str("participant", string(id)).Str("role", role.String()).Msg("session created")
	return sess
}

func (m *PeerSessionManager) current(sess *PeerSession) bool {
	return m.sessions[sess.ParticipantID] == sess && !sess.Closed()
}

func (m *PeerSessionManager) closeSession(sess *PeerSession) error {
	if sess.Closed() {
		return nil
	}
	_ = sess.transition(StateClosed)
	if m.sessions[sess.ParticipantID] == sess {
		delete(m.sessions, sess.ParticipantID)
	}
	sess.queue, sess.pendingLocal = nil, nil
	log.Info().Str("module", "app.peers").Str("participant", string(sess.ParticipantID)).Msg("session closed")
	if sess.conn == nil {
		return nil
	}
	if err := sess.conn.Close(); err != nil {
		return sessionErr("close", sess.ParticipantID, err)
	}
	return nil
}

// build runs off the loop: transport construction and track attachment.
func (m *PeerSessionManager) build(sess *PeerSession, tracks []core.LocalTrack) (core.MediaConnection, error) {
	conn, err := m.connector.Connect(sess.ParticipantID)
	if err != nil {
		return nil, err
	}
	m.bind(sess, conn)
	if err := conn.Start(m.ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	for _, t := range tracks {
		if err := conn.AddLocalTrack(t); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// post hands a continuation to the loop; when the loop is gone the
// connection built for it is released here.
func (m *PeerSessionManager) post(conn core.MediaConnection, task func()) {
	if !m.loop.Post(task) && conn != nil {
		_ = conn.Close()
	}
}

// bind forwards transport events to the loop. Events of a session that is no
// longer registered are dropped there.
func (m *PeerSessionManager) bind(sess *PeerSession, conn core.MediaConnection) {
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.loop.Post(func() { m.localCandidate(sess, c) })
	})
	conn.OnTrack(func(stream *core.RemoteStream) {
		m.loop.Post(func() { m.remoteTrack(sess, stream) })
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.loop.Post(func() { m.connectionState(sess, state) })
	})
}

func (m *PeerSessionManager) offerReady(sess *PeerSession, conn core.MediaConnection, offer webrtc.SessionDescription, err error, done NegotiationDone) {
	id := sess.ParticipantID
	if !m.current(sess) {
		log.Debug().Str("module", "app.peers").Str("participant", string(id)).Msg("offer for a superseded session dropped")
		closeConn(conn)
		return
	}
	if err != nil {
		closeConn(conn)
		_ = m.closeSession(sess)
		done(sess, webrtc.SessionDescription{}, transportErr("create-offer", id, err))
		return
	}
	sess.conn = conn
	_ = sess.transition(StateOfferSent)
	m.reconcileVideo(sess)
	done(sess, offer, nil)
	m.flushLocal(sess)
}

func (m *PeerSessionManager) answerReady(sess *PeerSession, conn core.MediaConnection, answer webrtc.SessionDescription, err error, done NegotiationDone) {
	id := sess.ParticipantID
	if !m.current(sess) {
		log.Debug().Str("module", "app.peers").Str("participant", string(id)).Msg("answer for a superseded session dropped")
		closeConn(conn)
		return
	}
	if err != nil {
		closeConn(conn)
		_ = m.closeSession(sess)
		done(sess, webrtc.SessionDescription{}, transportErr("create-answer", id, err))
		return
	}
	sess.conn = conn
	sess.remoteSet = true
	m.drain(sess)
	_ = sess.transition(StateAnswerSent)
	m.reconcileVideo(sess)
	done(sess, answer, nil)
	m.flushLocal(sess)
}

// drain applies buffered remote candidates in arrival order, once each.
func (m *PeerSessionManager) drain(sess *PeerSession) {
	queued := sess.queue
	sess.queue = nil
	for _, c := range queued {
		if err := sess.conn.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "app.peers").Str("participant", string(sess.ParticipantID)).Msg("queued candidate rejected")
		}
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "app.peers").Str("participant", string(sess.ParticipantID)).Int("count", len(queued)).Msg("drained candidates")
	}
}

func (m *PeerSessionManager) reconcileVideo(sess *PeerSession) {
	if sess.video == m.video {
		return
	}
	if err := sess.conn.ReplaceVideoTrack(m.video); err != nil {
		log.Warn().Err(err).Str("module", "app.peers").Str("participant", string(sess.ParticipantID)).Msg("video reconcile failed")
		return
	}
	sess.video = m.video
}

func (m *PeerSessionManager) flushLocal(sess *PeerSession) {
	if !m.current(sess) {
		return
	}
	sess.localSent = true
	pending := sess.pendingLocal
	sess.pendingLocal = nil
	for _, c := range pending {
		m.emitCandidate(sess.ParticipantID, c)
	}
}

func (m *PeerSessionManager) localCandidate(sess *PeerSession, c webrtc.ICECandidateInit) {
	if !m.current(sess) {
		return
	}
	if !sess.localSent {
		sess.pendingLocal = append(sess.pendingLocal, c)
		return
	}
	m.emitCandidate(sess.ParticipantID, c)
}

func (m *PeerSessionManager) emitCandidate(id domain.ParticipantID, c webrtc.ICECandidateInit) {
	if m.cb.OnLocalCandidate != nil {
		m.cb.OnLocalCandidate(id, c)
	}
}

func (m *PeerSessionManager) remoteTrack(sess *PeerSession, stream *core.RemoteStream) {
	if !m.current(sess) {
		return
	}
	sess.remoteStream = stream
	if m.cb.OnRemoteTrackReady != nil {
		m.cb.OnRemoteTrackReady(sess.ParticipantID, stream)
	}
}

func (m *PeerSessionManager) connectionState(sess *PeerSession, state webrtc.PeerConnectionState) {
	if !m.current(sess) {
		return
	}
	id := sess.ParticipantID
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if sess.state == StateAnswerSent {
			_ = sess.transition(StateStable)
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		log.Warn().
			Err(transportErr("connection", id, errors.New(state.String()))).
			Str("module", "app.peers").
			Str("participant", string(id)).
			Msg("transport reported failure")
	}
	if m.cb.OnConnectionStateChange != nil {
		m.cb.OnConnectionStateChange(id, state)
	}
}

func closeConn(conn core.MediaConnection) {
	if conn != nil {
		_ = conn.Close()
	}
}
