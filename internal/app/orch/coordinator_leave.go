package orch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Leave stops local media, closes every session and the signaling channel,
// then redirects to the exit URL. Each step runs even if an earlier one
// failed. Later calls return the first result.
func (c *Coordinator) Leave() error {
	c.leaveOnce.Do(func() {
		c.leaving.Store(true)

		var errs []error
		c.loop.Exec(func() {
			errs = append(errs,
				step("stop media", func() error { c.media.Stop(); return nil }),
				step("close sessions", c.peers.CloseAll),
				step("close signaling", func() error { c.router.Close(); return nil }),
			)
		})
		c.loop.Stop()
		c.cancel()
		c.peers.Wait()
		c.media.Wait()

		c.leaveErr = errors.Join(errs...)
		logger := log.With().Str("module", "app.orch").Str("meeting", string(c.identity.MeetingID)).Logger()
		if c.leaveErr != nil {
			logger.Warn().Err(c.leaveErr).Msg("leave finished with errors")
		} else {
			logger.Info().Msg("left meeting")
		}

		c.navigator.Redirect(c.exitURL)
		close(c.left)
	})
	return c.leaveErr
}

func step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
