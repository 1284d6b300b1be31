package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const defaultScreenWait = 30 * time.Second

type ScreenShareRequest struct {
	// WaitMS bounds how long the request waits for the capture to go live.
	WaitMS int `json:"waitMs"`
}

type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}

type handlers struct {
	ctrl Controller
}

func (h *handlers) participants(c *gin.Context) {
	out, err := h.ctrl.Participants()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) sessions(c *gin.Context) {
	out, err := h.ctrl.Sessions()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) media(c *gin.Context) {
	st, err := h.ctrl.MediaState()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) toggleAudio(c *gin.Context) { h.toggle(c, h.ctrl.ToggleAudio) }
func (h *handlers) toggleVideo(c *gin.Context) { h.toggle(c, h.ctrl.ToggleVideo) }

func (h *handlers) toggle(c *gin.Context, fn func() (bool, error)) {
	on, err := fn()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{Enabled: on})
}

func (h *handlers) startScreen(c *gin.Context) {
	var req ScreenShareRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil || req.WaitMS < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid screen share request"})
			return
		}
	}
	wait := defaultScreenWait
	if req.WaitMS > 0 {
		wait = time.Duration(req.WaitMS) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	if err := h.ctrl.StartScreenShare(ctx); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) stopScreen(c *gin.Context) {
	stopped, err := h.ctrl.StopScreenShare()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StopResponse{Stopped: stopped})
}

// leave answers first: the redirect at the end of leave shuts the process down.
func (h *handlers) leave(c *gin.Context) {
	c.Status(http.StatusAccepted)
	go func() {
		if err := h.ctrl.Leave(); err != nil {
			log.Warn().Str("module", "adapters.http").Err(err).Msg("leave")
		}
	}()
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrLoopStopped):
		return http.StatusGone
	case errors.Is(err, app.ErrMediaUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrScreenShareCancelled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
