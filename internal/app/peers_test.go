package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/core/coretest"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type negotiation struct {
	sess *PeerSession
	sd   webrtc.SessionDescription
	err  error
}

type peersFixture struct {
	loop      *testLoop
	connector *coretest.Connector
	peers     *PeerSessionManager
	cam       *coretest.Track
	results   []negotiation
	local     map[domain.ParticipantID][]string
	rendered  map[domain.ParticipantID]*core.RemoteStream
}

func newPeersFixture(t *testing.T) *peersFixture {
	t.Helper()
	f := &peersFixture{
		loop:      newTestLoop(),
		connector: &coretest.Connector{},
		local:     map[domain.ParticipantID][]string{},
		rendered:  map[domain.ParticipantID]*core.RemoteStream{},
	}
	f.peers = NewPeerSessionManager(context.Background(), f.loop, f.connector, SessionCallbacks{
		OnLocalCandidate: func(id domain.ParticipantID, c webrtc.ICECandidateInit) {
			f.local[id] = append(f.local[id], c.Candidate)
		},
		OnRemoteTrackReady: func(id domain.ParticipantID, s *core.RemoteStream) {
			f.rendered[id] = s
		},
	})
	src, _, cam := coretest.NewCamera()
	f.cam = cam
	f.peers.SetLocalTracks(src.Tracks())
	return f
}

func (f *peersFixture) done(sess *PeerSession, sd webrtc.SessionDescription, err error) {
	f.results = append(f.results, negotiation{sess: sess, sd: sd, err: err})
}

func (f *peersFixture) offerTo(t *testing.T, id domain.ParticipantID) *PeerSession {
	t.Helper()
	sess, err := f.peers.CreateAsInitiator(id, f.done)
	require.NoError(t, err)
	f.loop.runUntil(t, func() bool { return sess.State() != StateNew })
	require.Equal(t, StateOfferSent, sess.State())
	return sess
}

func (f *peersFixture) answerTo(t *testing.T, id domain.ParticipantID) *PeerSession {
	t.Helper()
	sess, err := f.peers.CreateAsResponder(id, remoteOffer(), f.done)
	require.NoError(t, err)
	f.loop.runUntil(t, func() bool { return sess.State() != StateOfferReceived })
	require.Equal(t, StateAnswerSent, sess.State())
	return sess
}

func remoteOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
}

func remoteAnswer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
}

func TestInitiatorReachesStable(t *testing.T) {
	f := newPeersFixture(t)

	sess := f.offerTo(t, "b1")
	require.Len(t, f.results, 1)
	assert.NoError(t, f.results[0].err)
	assert.Equal(t, webrtc.SDPTypeOffer, f.results[0].sd.Type)
	assert.Equal(t, Initiator, sess.Role)
	assert.Len(t, sess.LocalTracks(), 2)

	require.NoError(t, f.peers.ApplyAnswer("b1", remoteAnswer()))
	assert.Equal(t, StateStable, sess.State())
}

func TestInitiatorWithoutTracks(t *testing.T) {
	f := newPeersFixture(t)
	f.peers.SetLocalTracks(nil)

	_, err := f.peers.CreateAsInitiator("b1", f.done)
	assert.ErrorIs(t, err, ErrMediaUnavailable)
	assert.Equal(t, 0, f.peers.Len())
}

func TestResponderStableOnConnected(t *testing.T) {
	f := newPeersFixture(t)

	sess := f.answerTo(t, "b1")
	require.Len(t, f.results, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, f.results[0].sd.Type)

	conn := f.connector.Last("b1")
	conn.EmitState(webrtc.PeerConnectionStateConnecting)
	f.loop.settle()
	assert.Equal(t, StateAnswerSent, sess.State())

	conn.EmitState(webrtc.PeerConnectionStateConnected)
	f.loop.runUntil(t, func() bool { return sess.State() == StateStable })
}

func TestUnexpectedAnswer(t *testing.T) {
	f := newPeersFixture(t)

	err := f.peers.ApplyAnswer("ghost", remoteAnswer())
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)

	sess := f.answerTo(t, "b1")
	err = f.peers.ApplyAnswer("b1", remoteAnswer())
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)
	assert.Equal(t, StateAnswerSent, sess.State(), "stale answer leaves the session alone")

	f.offerTo(t, "c1")
	require.NoError(t, f.peers.ApplyAnswer("c1", remoteAnswer()))
	assert.ErrorIs(t, f.peers.ApplyAnswer("c1", remoteAnswer()), ErrUnexpectedAnswer, "duplicate answer")
}

func TestRejectedAnswerKeepsSessionWaiting(t *testing.T) {
	f := newPeersFixture(t)
	f.connector.Prepare = func(c *coretest.Conn) {
		if c.ID == "b1" {
			c.RemoteErr = errors.New("malformed sdp")
		}
	}
	bad := f.offerTo(t, "b1")
	good := f.offerTo(t, "c1")

	err := f.peers.ApplyAnswer("b1", remoteAnswer())
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.False(t, bad.Closed())
	assert.Equal(t, StateOfferSent, bad.State())
	assert.Zero(t, f.connector.Last("b1").Closes())
	assert.Equal(t, 2, f.peers.Len())

	require.NoError(t, f.peers.ApplyAnswer("c1", remoteAnswer()))
	assert.Equal(t, StateStable, good.State())
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	f := newPeersFixture(t)
	sess := f.offerTo(t, "b1")

	for _, c := range []string{"c1", "c2", "c3"} {
		require.NoError(t, f.peers.EnqueueOrApplyCandidate("b1", candidate(c)))
	}
	assert.Equal(t, 3, sess.QueuedCandidates())
	conn := f.connector.Last("b1")
	assert.Empty(t, conn.Applied())

	require.NoError(t, f.peers.ApplyAnswer("b1", remoteAnswer()))
	assert.Equal(t, []string{"c1", "c2", "c3"}, conn.Applied())
	assert.Zero(t, sess.QueuedCandidates())

	require.NoError(t, f.peers.EnqueueOrApplyCandidate("b1", candidate("c4")))
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, conn.Applied())
	assert.Zero(t, conn.Early())
}

func TestCandidatesBeforeAnswerIsBuilt(t *testing.T) {
	f := newPeersFixture(t)
	gate := make(chan struct{})
	f.connector.Prepare = func(c *coretest.Conn) { c.Gate = gate }

	sess, err := f.peers.CreateAsResponder("b1", remoteOffer(), f.done)
	require.NoError(t, err)
	assert.Equal(t, StateOfferReceived, sess.State())

	for _, c := range []string{"c1", "c2"} {
		require.NoError(t, f.peers.EnqueueOrApplyCandidate("b1", candidate(c)))
	}
	close(gate)
	f.loop.runUntil(t, func() bool { return sess.State() == StateAnswerSent })

	conn := f.connector.Last("b1")
	assert.Equal(t, []string{"c1", "c2"}, conn.Applied())
	assert.Zero(t, conn.Early())
}

func TestStaleCandidate(t *testing.T) {
	f := newPeersFixture(t)
	err := f.peers.EnqueueOrApplyCandidate("ghost", candidate("c1"))
	assert.ErrorIs(t, err, ErrStaleCandidate)
}

func TestLocalCandidatesWaitForDescription(t *testing.T) {
	f := newPeersFixture(t)
	gate := make(chan struct{})
	f.connector.Prepare = func(c *coretest.Conn) { c.Gate = gate }

	sess, err := f.peers.CreateAsInitiator("b1", f.done)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c := f.connector.Last("b1")
		return c != nil && c.Started()
	}, 2*time.Second, 5*time.Millisecond)
	conn := f.connector.Last("b1")

	conn.EmitCandidate(candidate("l1"))
	conn.EmitCandidate(candidate("l2"))
	f.loop.settle()
	assert.Empty(t, f.local["b1"], "nothing goes out before the offer")

	close(gate)
	f.loop.runUntil(t, func() bool { return sess.State() == StateOfferSent })
	assert.Equal(t, []string{"l1", "l2"}, f.local["b1"])

	conn.EmitCandidate(candidate("l3"))
	f.loop.runUntil(t, func() bool { return len(f.local["b1"]) == 3 })
}

func TestReplacingSessionClosesOld(t *testing.T) {
	f := newPeersFixture(t)
	first := f.offerTo(t, "b1")
	firstConn := f.connector.Last("b1")

	second := f.answerTo(t, "b1")
	assert.True(t, first.Closed())
	assert.Equal(t, 1, firstConn.Closes())
	got, ok := f.peers.Session("b1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, f.peers.Len())
}

func TestSupersededNegotiationReleasesTransport(t *testing.T) {
	f := newPeersFixture(t)
	gate := make(chan struct{})
	f.connector.Prepare = func(c *coretest.Conn) { c.Gate = gate }

	sess, err := f.peers.CreateAsResponder("b1", remoteOffer(), f.done)
	require.NoError(t, err)
	require.NoError(t, f.peers.Close("b1"))
	require.NoError(t, f.peers.Close("b1"), "close is idempotent")

	close(gate)
	f.loop.runUntil(t, func() bool {
		c := f.connector.Last("b1")
		return c != nil && c.Closes() == 1
	})
	f.loop.settle()
	assert.Equal(t, StateClosed, sess.State())
	assert.Empty(t, f.results, "no answer for a closed session")
	assert.Equal(t, 0, f.peers.Len())
}

func TestNegotiationFailureIsReported(t *testing.T) {
	f := newPeersFixture(t)
	f.connector.Prepare = func(c *coretest.Conn) { c.OfferErr = errors.New("no codecs") }

	sess, err := f.peers.CreateAsInitiator("b1", f.done)
	require.NoError(t, err)
	f.loop.runUntil(t, func() bool { return len(f.results) == 1 })

	assert.ErrorIs(t, f.results[0].err, ErrTransportFailure)
	assert.True(t, sess.Closed())
	assert.Equal(t, 1, f.connector.Last("b1").Closes())
	assert.Equal(t, 0, f.peers.Len())
}

func TestConnectFailureIsReported(t *testing.T) {
	f := newPeersFixture(t)
	f.connector.Err = errors.New("no ice agent")

	_, err := f.peers.CreateAsResponder("b1", remoteOffer(), f.done)
	require.NoError(t, err)
	f.loop.runUntil(t, func() bool { return len(f.results) == 1 })
	assert.ErrorIs(t, f.results[0].err, ErrTransportFailure)
}

func TestReplaceOutgoingVideo(t *testing.T) {
	f := newPeersFixture(t)
	f.offerTo(t, "b1")
	f.answerTo(t, "c1")
	f.connector.Last("c1").SetReplaceErr(errors.New("sender gone"))

	screen := coretest.NewTrack("screen", webrtc.RTPCodecTypeVideo)
	err := f.peers.ReplaceOutgoingVideoTrack(screen)
	assert.Error(t, err, "one failing session is reported")

	assert.Same(t, screen, f.connector.Last("b1").VideoSlot())
	b1, _ := f.peers.Session("b1")
	assert.Same(t, screen, b1.OutgoingVideo())
	c1, _ := f.peers.Session("c1")
	assert.Same(t, f.cam, c1.OutgoingVideo(), "failed session keeps its track")
	assert.Equal(t, StateOfferSent, b1.State(), "no renegotiation")
}

func TestInFlightSessionPicksUpReplacedVideo(t *testing.T) {
	f := newPeersFixture(t)
	gate := make(chan struct{})
	f.connector.Prepare = func(c *coretest.Conn) { c.Gate = gate }

	sess, err := f.peers.CreateAsInitiator("b1", f.done)
	require.NoError(t, err)

	screen := coretest.NewTrack("screen", webrtc.RTPCodecTypeVideo)
	require.NoError(t, f.peers.ReplaceOutgoingVideoTrack(screen))
	close(gate)
	f.loop.runUntil(t, func() bool { return sess.State() == StateOfferSent })

	assert.Same(t, screen, sess.OutgoingVideo())
	assert.Same(t, screen, f.connector.Last("b1").VideoSlot())
}

func TestRemoteTrackOnlyForCurrentSession(t *testing.T) {
	f := newPeersFixture(t)
	f.offerTo(t, "b1")
	old := f.connector.Last("b1")
	f.answerTo(t, "b1")

	old.EmitTrack(core.NewRemoteStream("stale"))
	f.loop.settle()
	assert.Empty(t, f.rendered)

	f.connector.Last("b1").EmitTrack(core.NewRemoteStream("fresh"))
	f.loop.runUntil(t, func() bool { return f.rendered["b1"] != nil })
	assert.Equal(t, "fresh", f.rendered["b1"].StreamID())
}

func TestTransportFailureDoesNotClose(t *testing.T) {
	f := newPeersFixture(t)
	sess := f.answerTo(t, "b1")
	f.connector.Last("b1").EmitState(webrtc.PeerConnectionStateFailed)
	f.loop.settle()
	assert.False(t, sess.Closed())
	assert.Equal(t, 1, f.peers.Len())
}

func TestCloseAll(t *testing.T) {
	f := newPeersFixture(t)
	a := f.offerTo(t, "b1")
	b := f.answerTo(t, "c1")

	require.NoError(t, f.peers.CloseAll())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, f.peers.Len())
	assert.Equal(t, 1, f.connector.Last("b1").Closes())
	assert.Equal(t, 1, f.connector.Last("c1").Closes())
	f.peers.Wait()
}

func TestSessionsView(t *testing.T) {
	f := newPeersFixture(t)
	f.answerTo(t, "c1")
	f.offerTo(t, "b1")

	infos := f.peers.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, domain.ParticipantID("b1"), infos[0].ParticipantID)
	assert.Equal(t, StateOfferSent, infos[0].State)
	assert.Equal(t, "responder", infos[1].Role)
}
