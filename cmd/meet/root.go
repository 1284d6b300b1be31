package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/media"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	signaling "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/adapters/surface"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "meet",
	Short: "Join a mesh video meeting from the command line",
	Long: `meet joins a meeting through its signaling server and keeps one WebRTC
connection to every other participant. Local audio and video are read as RTP
from UDP ports fed by an external encoder. A local HTTP API lists participants
and toggles media.

Examples:
  meet --meeting-id 42 --user-id 7 --user-name Alice
  meet --meeting-id 42 --user-id 7 --user-name Alice --http.addr 127.0.0.1:9000`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
	})
	f.String("meeting-id", "", "meeting to join")
	f.String("user-id", "", "local participant id as assigned by the meeting server")
	f.String("user-name", "", "display name shown to others")
	f.String("signal-url", "", "signaling websocket URL, {meeting} is replaced")
	f.String("exit-url", "", "where to go after leaving")
	f.String("log-level", "", "trace, debug, info, warn or error")
	f.String("http.addr", "", "control API listen address")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	identity, err := domain.NewIdentity(cfg.MeetingID, cfg.UserID, cfg.UserName)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rtcCfg := cfg.WebRTC()
	if len(rtcCfg.ICEServers) == 0 {
		rtcCfg = rtc.DefaultWebRTCConfig()
	}
	connector, err := rtc.NewConnector(rtcCfg)
	if err != nil {
		return err
	}

	console := surface.NewConsole(ctx)
	coord := orch.New(ctx, orch.Deps{
		Identity:  identity,
		ExitURL:   cfg.ExitURL,
		Connector: connector,
		Devices: media.NewDevices(media.Options{
			AudioAddr:  cfg.Media.AudioAddr,
			VideoAddr:  cfg.Media.VideoAddr,
			ScreenAddr: cfg.Media.ScreenAddr,
			VideoCodec: cfg.Media.VideoCodec,
			MTU:        cfg.Media.MTU,
		}),
		Dialer:    &signaling.Dialer{URL: cfg.SignalURLFor(), PingPeriod: cfg.PingPeriod},
		Renderer:  console,
		Navigator: surface.NewNavigator(cancel),
		Alerter:   surface.Alerter{},
		Policy:    app.SimplePolicy{},
	})
	if err := coord.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router.SetupRouter(cfg.HTTP, coord),
	}
	go func() {
		log.Info().Str("module", "main").Str("addr", cfg.HTTP.Addr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("module", "main").Err(err).Msg("control API error")
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")
	if err := coord.Leave(); err != nil {
		log.Warn().Str("module", "main").Err(err).Msg("leave")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("module", "main").Err(err).Msg("control API forced to shutdown")
	}
	console.Wait()
	log.Info().Str("module", "main").Msg("exited gracefully")
	return nil
}
