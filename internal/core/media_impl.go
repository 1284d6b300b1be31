package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// mediaSource pairs the optional audio and video components of one capture.
type mediaSource struct {
	id    string
	audio LocalTrack
	video LocalTrack
}

func NewMediaSource(id string, audio, video LocalTrack) MediaSource {
	return &mediaSource{id: id, audio: audio, video: video}
}

func (s *mediaSource) StreamID() string  { return s.id }
func (s *mediaSource) Audio() LocalTrack { return s.audio }
func (s *mediaSource) Video() LocalTrack { return s.video }

func (s *mediaSource) Tracks() []LocalTrack {
	out := make([]LocalTrack, 0, 2)
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

func (s *mediaSource) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// RemoteStream groups the remote tracks that share one stream id.
type RemoteStream struct {
	id string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
	subs   []func(*webrtc.TrackRemote)
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

func (s *RemoteStream) StreamID() string { return s.id }

func (s *RemoteStream) AddTrack(t *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	subs := append([]func(*webrtc.TrackRemote){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), s.tracks...)
}

// OnTrack replays the tracks already present, then follows new ones.
func (s *RemoteStream) OnTrack(fn func(*webrtc.TrackRemote)) {
	s.mu.Lock()
	existing := append([]*webrtc.TrackRemote(nil), s.tracks...)
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
	for _, t := range existing {
		fn(t)
	}
}
