package rtc

import (
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Connector builds peer connections that share one pion API and one ICE
// configuration for the whole meeting.
type Connector struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewConnector(cfg webrtc.Configuration) (*Connector, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}
	// Ask remote senders for keyframes so late renders start quickly.
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create PLI interceptor: %w", err)
	}
	registry.Add(pli)

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return &Connector{api: api, cfg: cfg}, nil
}

func (c *Connector) Connect(id domain.ParticipantID) (core.MediaConnection, error) {
	wc, err := NewWebRTCConnection(c.api, c.cfg, id)
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", id, err)
	}
	return wc, nil
}
