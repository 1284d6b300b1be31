package media

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// pump reads RTP packets from an ingest socket and forwards them to the track.
// Muted tracks keep draining the socket but write nothing.
// Any read or write failure ends the track.
func pump(ctx context.Context, conn *net.UDPConn, t *Track, mtu int, logger *zerolog.Logger) {
	defer t.end()
	defer conn.Close()

	buf := make([]byte, mtu)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("pump ctx done")
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				logger.Error().Err(err).Msg("ingest read error, ending track")
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		switch t.GetState() {
		case TrackStateEnded:
			return
		case TrackStateMuted:
		case TrackStateLive:
			if err := t.track.WriteRTP(&pkt); err != nil {
				logger.Error().Err(err).Msg("track write RTP error, ending track")
				return
			}
		}
	}
}
