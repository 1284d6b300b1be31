package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MEET"

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Media struct {
	AudioAddr  string `mapstructure:"audio_addr"`
	VideoAddr  string `mapstructure:"video_addr"`
	ScreenAddr string `mapstructure:"screen_addr"`
	VideoCodec string `mapstructure:"video_codec"`
	MTU        int    `mapstructure:"mtu"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

type Config struct {
	MeetingID  string        `mapstructure:"meeting_id"`
	UserID     string        `mapstructure:"user_id"`
	UserName   string        `mapstructure:"user_name"`
	SignalURL  string        `mapstructure:"signal_url"`
	ExitURL    string        `mapstructure:"exit_url"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	LogLevel   string        `mapstructure:"log_level"`
	ICEServers []ICEServer   `mapstructure:"ice_servers"`
	Media      Media         `mapstructure:"media"`
	HTTP       HTTP          `mapstructure:"http"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("signal_url", "ws://localhost:8000/ws/meeting/{meeting}/")
	v.SetDefault("exit_url", "/meetings/")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
		{"urls": []string{"stun:stun1.l.google.com:19302"}},
	})
	v.SetDefault("media.audio_addr", "127.0.0.1:5006")
	v.SetDefault("media.video_addr", "127.0.0.1:5004")
	v.SetDefault("media.screen_addr", "")
	v.SetDefault("media.video_codec", webrtc.MimeTypeVP8)
	v.SetDefault("media.mtu", 1400)
	v.SetDefault("http.addr", "127.0.0.1:8089")
	v.SetDefault("http.mode", "release")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then MEET_* env vars, then flags.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("meeting", cfg.MeetingID).
		Str("signal", cfg.SignalURLFor()).
		Int("ice_servers", len(cfg.ICEServers)).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MeetingID == "" {
		return fmt.Errorf("meeting_id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.UserName == "" {
		return fmt.Errorf("user_name is required")
	}
	if c.SignalURL == "" {
		return fmt.Errorf("signal_url is required")
	}
	if c.Media.MTU <= 0 {
		return fmt.Errorf("media.mtu must be positive, got %d", c.Media.MTU)
	}
	return nil
}

// SignalURLFor expands the {meeting} placeholder.
func (c *Config) SignalURLFor() string {
	return strings.ReplaceAll(c.SignalURL, "{meeting}", c.MeetingID)
}

// WebRTC is the ICE configuration handed to every new peer connection.
func (c *Config) WebRTC() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}
	return webrtc.Configuration{ICEServers: servers}
}
