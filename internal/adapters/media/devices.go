package media

import (
	"context"
	"fmt"
	"net"

	"github.com/dkeye/Meet/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	AudioAddr  string
	VideoAddr  string
	ScreenAddr string
	VideoCodec string
	MTU        int
}

// Devices turns local RTP ingest sockets into capture sources. An external
// encoder (gstreamer, ffmpeg) pushes RTP to each address.
type Devices struct {
	opts Options
}

func NewDevices(opts Options) *Devices {
	if opts.VideoCodec == "" {
		opts.VideoCodec = webrtc.MimeTypeVP8
	}
	if opts.MTU <= 0 {
		opts.MTU = 1400
	}
	return &Devices{opts: opts}
}

func (d *Devices) Acquire(ctx context.Context, c core.Constraints) (core.MediaSource, error) {
	streamID := "meet-" + uuid.NewString()
	var audio, video *Track
	var err error

	if c.Audio {
		audio, err = d.open(ctx, d.opts.AudioAddr, webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus, streamID)
		if err != nil {
			return nil, err
		}
	}
	if c.Video {
		video, err = d.open(ctx, d.opts.VideoAddr, webrtc.RTPCodecTypeVideo, d.opts.VideoCodec, streamID)
		if err != nil {
			if audio != nil {
				audio.Stop()
			}
			return nil, err
		}
	}
	return core.NewMediaSource(streamID, asLocal(audio), asLocal(video)), nil
}

func (d *Devices) AcquireScreenCapture(ctx context.Context, c core.Constraints) (core.MediaSource, error) {
	if !c.Video {
		return nil, fmt.Errorf("screen capture without video: %w", core.ErrMediaUnavailable)
	}
	streamID := "screen-" + uuid.NewString()
	// Same codec as the camera so the sender slot accepts it without renegotiation.
	video, err := d.open(ctx, d.opts.ScreenAddr, webrtc.RTPCodecTypeVideo, d.opts.VideoCodec, streamID)
	if err != nil {
		return nil, err
	}
	return core.NewMediaSource(streamID, nil, video), nil
}

func (d *Devices) open(ctx context.Context, addr string, kind webrtc.RTPCodecType, mime, streamID string) (*Track, error) {
	if addr == "" {
		return nil, fmt.Errorf("no %s device configured: %w", kind, core.ErrMediaUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", kind, err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s device %s: %v: %w", kind, addr, err, core.ErrMediaUnavailable)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("open %s device %s: %v: %w", kind, addr, err, core.ErrMediaUnavailable)
	}

	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: mime},
		kind.String()+"-"+uuid.NewString(), streamID,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	// The pump outlives the acquire request; only Stop ends it.
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := NewTrack(rtpTrack, kind, func() {
		cancel()
		_ = conn.Close()
	})
	t.addr, _ = conn.LocalAddr().(*net.UDPAddr)

	logger := log.With().
		Str("module", "media").
		Str("kind", kind.String()).
		Str("addr", conn.LocalAddr().String()).
		Str("track_id", rtpTrack.ID()).
		Logger()
	logger.Info().Msg("device opened")

	go pump(pumpCtx, conn, t, d.opts.MTU, &logger)
	return t, nil
}

// asLocal keeps a nil *Track from turning into a non-nil interface.
func asLocal(t *Track) core.LocalTrack {
	if t == nil {
		return nil
	}
	return t
}
