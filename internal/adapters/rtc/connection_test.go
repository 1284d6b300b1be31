package rtc_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTrack struct {
	t       *webrtc.TrackLocalStaticRTP
	enabled bool
}

func newStaticTrack(t *testing.T, kind webrtc.RTPCodecType, id string) *staticTrack {
	t.Helper()
	mime := webrtc.MimeTypeVP8
	if kind == webrtc.RTPCodecTypeAudio {
		mime = webrtc.MimeTypeOpus
	}
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, id, "stream-"+id)
	require.NoError(t, err)
	return &staticTrack{t: tr, enabled: true}
}

func (s *staticTrack) ID() string                    { return s.t.ID() }
func (s *staticTrack) Kind() webrtc.RTPCodecType     { return s.t.Kind() }
func (s *staticTrack) Enabled() bool                 { return s.enabled }
func (s *staticTrack) SetEnabled(on bool)            { s.enabled = on }
func (s *staticTrack) Stop()                         {}
func (s *staticTrack) Ended() bool                   { return false }
func (s *staticTrack) OnEnded(func())                {}
func (s *staticTrack) TrackLocal() webrtc.TrackLocal { return s.t }

var _ core.LocalTrack = (*staticTrack)(nil)

func newConn(t *testing.T, id string) core.MediaConnection {
	t.Helper()
	connector, err := rtc.NewConnector(webrtc.Configuration{})
	require.NoError(t, err)
	conn, err := connector.Connect(domain.ParticipantID(id))
	require.NoError(t, err)
	require.NoError(t, conn.Start(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOfferAnswerExchange(t *testing.T) {
	a := newConn(t, "b1")
	b := newConn(t, "a1")

	require.NoError(t, a.AddLocalTrack(newStaticTrack(t, webrtc.RTPCodecTypeAudio, "a-audio")))
	require.NoError(t, a.AddLocalTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "a-video")))
	require.NoError(t, b.AddLocalTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "b-video")))

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "m=video")

	require.NoError(t, b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, a.SetRemoteDescription(answer))
}

func TestAnswerWithoutOfferFails(t *testing.T) {
	b := newConn(t, "a1")
	_, err := b.CreateAnswer()
	assert.Error(t, err)
}

func TestReplaceVideoTrack(t *testing.T) {
	conn := newConn(t, "b1")

	err := conn.ReplaceVideoTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "screen"))
	assert.ErrorIs(t, err, rtc.ErrNoVideoSender)

	require.NoError(t, conn.AddLocalTrack(newStaticTrack(t, webrtc.RTPCodecTypeAudio, "mic")))
	err = conn.ReplaceVideoTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "screen"))
	assert.ErrorIs(t, err, rtc.ErrNoVideoSender, "audio sender is not a video slot")

	require.NoError(t, conn.AddLocalTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "camera")))
	assert.NoError(t, conn.ReplaceVideoTrack(newStaticTrack(t, webrtc.RTPCodecTypeVideo, "screen")))
	assert.NoError(t, conn.ReplaceVideoTrack(nil))
}

func TestCloseIsIdempotent(t *testing.T) {
	connector, err := rtc.NewConnector(rtc.DefaultWebRTCConfig())
	require.NoError(t, err)
	conn, err := connector.Connect("b1")
	require.NoError(t, err)
	require.NoError(t, conn.Start(context.Background()))

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Start(context.Background()), rtc.ErrClosed)
}

func TestContextCancelClosesConnection(t *testing.T) {
	connector, err := rtc.NewConnector(webrtc.Configuration{})
	require.NoError(t, err)
	conn, err := connector.Connect("b1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, conn.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		_, err := conn.CreateOffer()
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}
