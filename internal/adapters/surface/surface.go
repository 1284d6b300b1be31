// Package surface implements the render, navigation and alert collaborators
// for a headless client: everything is logged, remote media is drained.
package surface

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type tile struct {
	name    string
	isLocal bool
	cancel  context.CancelFunc
}

// Console keeps one tile per rendered participant and reads the RTP of
// remote streams so the transport keeps flowing.
type Console struct {
	ctx    context.Context
	logger zerolog.Logger

	mu    sync.Mutex
	tiles map[domain.ParticipantID]*tile
	wg    conc.WaitGroup
}

func NewConsole(ctx context.Context) *Console {
	return &Console{
		ctx:    ctx,
		logger: log.With().Str("module", "surface").Logger(),
		tiles:  make(map[domain.ParticipantID]*tile),
	}
}

func (c *Console) Render(id domain.ParticipantID, stream core.Stream, displayName string, isLocal bool) {
	ctx, cancel := context.WithCancel(c.ctx)

	c.mu.Lock()
	if old, ok := c.tiles[id]; ok {
		old.cancel()
	}
	c.tiles[id] = &tile{name: displayName, isLocal: isLocal, cancel: cancel}
	c.mu.Unlock()

	c.logger.Info().
		Str("participant", string(id)).
		Str("name", displayName).
		Str("stream", stream.StreamID()).
		Bool("local", isLocal).
		Msg("render")

	if remote, ok := stream.(*core.RemoteStream); ok {
		remote.OnTrack(func(t *webrtc.TrackRemote) {
			c.wg.Go(func() { c.drain(ctx, id, t) })
		})
	}
}

func (c *Console) RemoveRender(id domain.ParticipantID) {
	c.mu.Lock()
	t, ok := c.tiles[id]
	delete(c.tiles, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	c.logger.Info().Str("participant", string(id)).Msg("render removed")
}

// Rendered lists the participants currently on screen.
func (c *Console) Rendered() []domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ParticipantID, 0, len(c.tiles))
	for id := range c.tiles {
		out = append(out, id)
	}
	return out
}

// Wait blocks until every drain goroutine has returned.
func (c *Console) Wait() { c.wg.Wait() }

func (c *Console) drain(ctx context.Context, id domain.ParticipantID, t *webrtc.TrackRemote) {
	logger := c.logger.With().
		Str("participant", string(id)).
		Str("track", t.ID()).
		Str("kind", t.Kind().String()).
		Logger()
	logger.Debug().Msg("remote track")

	packets := 0
	for ctx.Err() == nil {
		if _, _, err := t.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("remote track read ended")
			}
			break
		}
		packets++
	}
	logger.Debug().Int("packets", packets).Msg("remote track done")
}

// Navigator ends the process context once the meeting has been left.
type Navigator struct {
	cancel context.CancelFunc
}

func NewNavigator(cancel context.CancelFunc) *Navigator {
	return &Navigator{cancel: cancel}
}

func (n *Navigator) Redirect(url string) {
	log.Info().Str("module", "surface").Str("url", url).Msg("leaving meeting")
	if n.cancel != nil {
		n.cancel()
	}
}

// Alerter logs user-facing failures at error level.
type Alerter struct{}

func (Alerter) Alert(err error) {
	log.Error().Str("module", "surface").Err(err).Msg("alert")
}
