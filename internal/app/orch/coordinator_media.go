package orch

import (
	"context"

	"github.com/dkeye/Meet/internal/app"
)

// Read-only views and local media intents. Each one runs on the loop and
// fails with app.ErrLoopStopped after leave.

func (c *Coordinator) Participants() ([]app.ParticipantView, error) {
	var out []app.ParticipantView
	err := c.loop.Call(func() { out = c.roster.Snapshot() })
	return out, err
}

func (c *Coordinator) Sessions() ([]app.SessionInfo, error) {
	var out []app.SessionInfo
	err := c.loop.Call(func() { out = c.peers.Sessions() })
	return out, err
}

func (c *Coordinator) MediaState() (app.MediaState, error) {
	var st app.MediaState
	err := c.loop.Call(func() { st = c.media.State() })
	return st, err
}

func (c *Coordinator) ToggleAudio() (bool, error) {
	return c.toggle(c.media.ToggleAudio)
}

func (c *Coordinator) ToggleVideo() (bool, error) {
	return c.toggle(c.media.ToggleVideo)
}

func (c *Coordinator) toggle(fn func() (bool, error)) (bool, error) {
	var (
		on  bool
		err error
	)
	if cerr := c.loop.Call(func() { on, err = fn() }); cerr != nil {
		return false, cerr
	}
	return on, err
}

// StartScreenShare waits for the capture to be live on every session. If ctx
// ends first the share still completes in the background.
func (c *Coordinator) StartScreenShare(ctx context.Context) error {
	result := make(chan error, 1)
	if err := c.loop.Call(func() {
		c.media.StartScreenShare(func(err error) { result <- err })
	}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.left:
		return app.ErrLoopStopped
	}
}

// StopScreenShare reports whether a share was active.
func (c *Coordinator) StopScreenShare() (bool, error) {
	var stopped bool
	err := c.loop.Call(func() { stopped = c.media.StopScreenShare() })
	return stopped, err
}
