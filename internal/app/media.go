package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// VideoReplacer swaps the outgoing video of every active session.
type VideoReplacer interface {
	ReplaceOutgoingVideoTrack(t core.LocalTrack) error
}

type MediaState struct {
	HasAudio      bool `json:"hasAudio"`
	HasVideo      bool `json:"hasVideo"`
	AudioEnabled  bool `json:"audioEnabled"`
	VideoEnabled  bool `json:"videoEnabled"`
	ScreenSharing bool `json:"screenSharing"`
	ScreenPending bool `json:"screenPending"`
}

// MediaController applies local intent to the capture source and the sessions.
// Loop goroutine only, except for the capture request itself.
type MediaController struct {
	ctx     context.Context
	loop    core.Poster
	devices core.MediaDevices
	video   VideoReplacer
	alerter core.Alerter

	local  core.MediaSource
	camera core.LocalTrack
	screen core.MediaSource

	// gen invalidates screen captures still being acquired
	gen     uint64
	pending bool

	wg conc.WaitGroup
}

func NewMediaController(ctx context.Context, loop core.Poster, devices core.MediaDevices, video VideoReplacer, alerter core.Alerter) *MediaController {
	return &MediaController{
		ctx:     ctx,
		loop:    loop,
		devices: devices,
		video:   video,
		alerter: alerter,
	}
}

// SetLocal records the camera/microphone source acquired at startup.
func (m *MediaController) SetLocal(src core.MediaSource) {
	m.local = src
	m.camera = nil
	if src != nil {
		m.camera = src.Video()
	}
}

// ToggleAudio flips the microphone and returns whether it is now enabled.
func (m *MediaController) ToggleAudio() (bool, error) {
	if m.local == nil || m.local.Audio() == nil {
		return false, fmt.Errorf("toggle audio: %w", ErrMediaUnavailable)
	}
	t := m.local.Audio()
	t.SetEnabled(!t.Enabled())
	log.Info().Str("module", "app.media").Bool("enabled", t.Enabled()).Msg("audio toggled")
	return t.Enabled(), nil
}

// ToggleVideo flips the camera and returns whether it is now enabled.
func (m *MediaController) ToggleVideo() (bool, error) {
	if m.camera == nil {
		return false, fmt.Errorf("toggle video: %w", ErrMediaUnavailable)
	}
	m.camera.SetEnabled(!m.camera.Enabled())
	log.Info().Str("module", "app.media").Bool("enabled", m.camera.Enabled()).Msg("video toggled")
	return m.camera.Enabled(), nil
}

// StartScreenShare acquires a screen capture in the background and puts it in
// every session's video slot. done, if set, runs on the loop with the outcome.
func (m *MediaController) StartScreenShare(done func(error)) {
	m.gen++
	gen := m.gen
	m.pending = true
	log.Info().Str("module", "app.media").Msg("screen share requested")

	m.wg.Go(func() {
		src, err := m.devices.AcquireScreenCapture(m.ctx, core.Constraints{Video: true})
		if !m.loop.Post(func() { m.screenReady(gen, src, err, done) }) && src != nil {
			src.Stop()
		}
	})
}

func (m *MediaController) screenReady(gen uint64, src core.MediaSource, err error, done func(error)) {
	finish := func(err error) {
		if done != nil {
			done(err)
		}
	}
	if gen != m.gen {
		if src != nil {
			src.Stop()
		}
		log.Info().Str("module", "app.media").Msg("screen share cancelled before capture")
		finish(ErrScreenShareCancelled)
		return
	}
	m.pending = false

	if err == nil && (src == nil || src.Video() == nil) {
		if src != nil {
			src.Stop()
		}
		err = errors.New("capture has no video")
	}
	if err != nil {
		if !errors.Is(err, ErrMediaUnavailable) {
			err = fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
		}
		err = fmt.Errorf("screen share: %w", err)
		log.Error().Err(err).Str("module", "app.media").Msg("screen capture failed")
		m.alerter.Alert(err)
		finish(err)
		return
	}

	old := m.screen
	m.screen = src
	if err := m.video.ReplaceOutgoingVideoTrack(src.Video()); err != nil {
		log.Warn().Err(err).Str("module", "app.media").Msg("screen track not placed on every session")
	}
	if old != nil {
		old.Stop()
	}

	src.Video().OnEnded(func() {
		m.loop.Post(func() {
			if m.screen == src {
				log.Info().Str("module", "app.media").Msg("screen capture ended")
				m.StopScreenShare()
			}
		})
	})
	log.Info().Str("module", "app.media").Str("stream", src.StreamID()).Msg("screen share started")
	finish(nil)
}

// StopScreenShare restores the camera everywhere. It also cancels a share
// that is still being acquired. It reports whether a share was active.
func (m *MediaController) StopScreenShare() bool {
	m.gen++
	m.pending = false
	if m.screen == nil {
		return false
	}
	src := m.screen
	m.screen = nil
	if err := m.video.ReplaceOutgoingVideoTrack(m.camera); err != nil {
		log.Warn().Err(err).Str("module", "app.media").Msg("camera not restored on every session")
	}
	src.Stop()
	log.Info().Str("module", "app.media").Msg("screen share stopped")
	return true
}

func (m *MediaController) State() MediaState {
	var st MediaState
	if m.local != nil && m.local.Audio() != nil {
		st.HasAudio = true
		st.AudioEnabled = m.local.Audio().Enabled()
	}
	if m.camera != nil {
		st.HasVideo = true
		st.VideoEnabled = m.camera.Enabled()
	}
	st.ScreenSharing = m.screen != nil
	st.ScreenPending = m.pending
	return st
}

// Stop ends every local and screen track.
func (m *MediaController) Stop() {
	m.gen++
	m.pending = false
	if m.screen != nil {
		m.screen.Stop()
		m.screen = nil
	}
	if m.local != nil {
		m.local.Stop()
	}
	log.Info().Str("module", "app.media").Msg("local media stopped")
}

// Wait blocks until capture requests in flight have returned.
func (m *MediaController) Wait() {
	if r := m.wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "app.media").Str("panic", r.String()).Msg("capture worker panicked")
	}
}
