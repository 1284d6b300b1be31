package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	participants []app.ParticipantView
	sessions     []app.SessionInfo
	state        app.MediaState
	err          error
	screenErr    error
	screenBlock  bool
	left         atomic.Int32
}

func (f *fakeController) Participants() ([]app.ParticipantView, error) { return f.participants, f.err }
func (f *fakeController) Sessions() ([]app.SessionInfo, error)         { return f.sessions, f.err }
func (f *fakeController) MediaState() (app.MediaState, error)          { return f.state, f.err }

func (f *fakeController) ToggleAudio() (bool, error) {
	f.state.AudioEnabled = !f.state.AudioEnabled
	return f.state.AudioEnabled, f.err
}

func (f *fakeController) ToggleVideo() (bool, error) {
	f.state.VideoEnabled = !f.state.VideoEnabled
	return f.state.VideoEnabled, f.err
}

func (f *fakeController) StartScreenShare(ctx context.Context) error {
	if f.screenBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.screenErr != nil {
		return f.screenErr
	}
	f.state.ScreenSharing = true
	return nil
}

func (f *fakeController) StopScreenShare() (bool, error) {
	was := f.state.ScreenSharing
	f.state.ScreenSharing = false
	return was, f.err
}

func (f *fakeController) Leave() error {
	f.left.Add(1)
	return nil
}

func serve(t *testing.T, ctrl Controller, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := SetupRouter(config.HTTP{Mode: "release"}, ctrl)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListParticipants(t *testing.T) {
	ctrl := &fakeController{participants: []app.ParticipantView{
		{ID: "a1", DisplayName: "Alice", IsLocal: true},
		{ID: "b1", DisplayName: "Bob"},
	}}
	w := serve(t, ctrl, http.MethodGet, "/api/participants", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []app.ParticipantView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, ctrl.participants, got)
	assert.Contains(t, w.Body.String(), `"isLocal":true`)
}

func TestListSessions(t *testing.T) {
	ctrl := &fakeController{sessions: []app.SessionInfo{
		{ParticipantID: "b1", Role: "initiator", State: app.StateStable},
	}}
	w := serve(t, ctrl, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participantId":"b1"`)
	assert.Contains(t, w.Body.String(), `"state":"stable"`)
}

func TestToggleAudio(t *testing.T) {
	ctrl := &fakeController{state: app.MediaState{HasAudio: true, AudioEnabled: true}}
	w := serve(t, ctrl, http.MethodPost, "/api/media/audio/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false}`, w.Body.String())
}

func TestScreenShareLifecycle(t *testing.T) {
	ctrl := &fakeController{}
	w := serve(t, ctrl, http.MethodPost, "/api/media/screen/start", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, ctrl, http.MethodGet, "/api/media", "")
	assert.Contains(t, w.Body.String(), `"screenSharing":true`)

	w = serve(t, ctrl, http.MethodPost, "/api/media/screen/stop", "")
	assert.JSONEq(t, `{"stopped":true}`, w.Body.String())
}

func TestScreenShareTimesOut(t *testing.T) {
	ctrl := &fakeController{screenBlock: true}
	w := serve(t, ctrl, http.MethodPost, "/api/media/screen/start", `{"waitMs":10}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestScreenShareBadRequest(t *testing.T) {
	w := serve(t, &fakeController{}, http.MethodPost, "/api/media/screen/start", `{"waitMs":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"left", app.ErrLoopStopped, http.StatusGone},
		{"media", app.ErrMediaUnavailable, http.StatusServiceUnavailable},
		{"cancelled", app.ErrScreenShareCancelled, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &fakeController{screenErr: tt.err}, http.MethodPost, "/api/media/screen/start", "")
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestLeaveIsAsync(t *testing.T) {
	ctrl := &fakeController{}
	w := serve(t, ctrl, http.MethodPost, "/api/leave", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Eventually(t, func() bool { return ctrl.left.Load() == 1 }, time.Second, 5*time.Millisecond)
}
