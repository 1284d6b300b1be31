package http

import (
	"context"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Controller is the meeting as seen by the local control surface.
type Controller interface {
	Participants() ([]app.ParticipantView, error)
	Sessions() ([]app.SessionInfo, error)
	MediaState() (app.MediaState, error)
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	StartScreenShare(ctx context.Context) error
	StopScreenShare() (bool, error)
	Leave() error
}

func SetupRouter(cfg config.HTTP, ctrl Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{ctrl: ctrl}
	api := r.Group("/api")
	api.GET("/participants", h.participants)
	api.GET("/sessions", h.sessions)
	api.GET("/media", h.media)
	api.POST("/media/audio/toggle", h.toggleAudio)
	api.POST("/media/video/toggle", h.toggleVideo)
	api.POST("/media/screen/start", h.startScreen)
	api.POST("/media/screen/stop", h.stopScreen)
	api.POST("/leave", h.leave)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
