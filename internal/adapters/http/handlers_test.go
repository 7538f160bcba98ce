package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyra/aicore/internal/adapters/ws"
	"github.com/keyra/aicore/internal/app"
	"github.com/keyra/aicore/internal/config"
	"github.com/keyra/aicore/internal/core"
)

type fakeService struct {
	createErr error
	answerErr error
	sessions  map[core.SessionID]core.SessionStats
	lastReq   app.CreateRequest
}

func newFakeService() *fakeService {
	return &fakeService{sessions: make(map[core.SessionID]core.SessionStats)}
}

func (s *fakeService) CreateSession(ctx context.Context, req app.CreateRequest) (core.SessionID, string, error) {
	if s.createErr != nil {
		return "", "", s.createErr
	}
	s.lastReq = req
	s.sessions[req.ID] = core.SessionStats{}
	return req.ID, "v=0 fake offer", nil
}

func (s *fakeService) SetAnswer(ctx context.Context, sid core.SessionID, sdp string) error {
	if s.answerErr != nil {
		return s.answerErr
	}
	if _, ok := s.sessions[sid]; !ok {
		return app.ErrSessionNotFound
	}
	return nil
}

func (s *fakeService) CloseSession(ctx context.Context, sid core.SessionID) bool {
	if _, ok := s.sessions[sid]; !ok {
		return false
	}
	delete(s.sessions, sid)
	return true
}

func (s *fakeService) ForwardAudio(sid core.SessionID, data []byte) bool { return false }

func (s *fakeService) Stats(sid core.SessionID) (core.SessionStats, bool) {
	st, ok := s.sessions[sid]
	return st, ok
}

func newTestRouter(svc SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", InputRate: 16000}
	return SetupRouter(context.Background(), cfg, svc, ws.NewConnectionManager())
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSessionEndpoint(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/session", SessionCreateRequest{
		SystemInstruction: "You are a helpful assistant",
		AudioSpeakerName:  "Zephyr",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionCreateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "offer", resp.Offer.Type)
	assert.NotEmpty(t, resp.Offer.SDP)

	assert.Equal(t, "You are a helpful assistant", svc.lastReq.SystemInstruction)
	assert.Equal(t, "Zephyr", svc.lastReq.SpeakerVoice)
	assert.Equal(t, 16000, svc.lastReq.InputSampleRate)
	assert.NotNil(t, svc.lastReq.Sink.OnAudio)
}

func TestCreateSessionMissingInstruction(t *testing.T) {
	r := newTestRouter(newFakeService())

	w := doJSON(r, http.MethodPost, "/api/v1/session", map[string]string{"audio_speaker_name": "Zephyr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAnswerEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.sessions["abc"] = core.SessionStats{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/session/abc/answer", SdpAnswerRequest{
		Answer: SdpPayload{Type: "answer", SDP: "v=0 answer"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
}

func TestSetAnswerUnknownSession(t *testing.T) {
	r := newTestRouter(newFakeService())

	w := doJSON(r, http.MethodPost, "/api/v1/session/ghost/answer", SdpAnswerRequest{
		Answer: SdpPayload{Type: "answer", SDP: "v=0 answer"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetAnswerInvalidSDP(t *testing.T) {
	svc := newFakeService()
	svc.sessions["abc"] = core.SessionStats{}
	svc.answerErr = app.ErrInvalidAnswer
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/session/abc/answer", SdpAnswerRequest{
		Answer: SdpPayload{Type: "answer", SDP: "garbage"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAnswerMissingBody(t *testing.T) {
	svc := newFakeService()
	svc.sessions["abc"] = core.SessionStats{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/session/abc/answer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseSessionEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.sessions["abc"] = core.SessionStats{}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodDelete, "/api/v1/session/abc", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/v1/session/abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionStatsEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.sessions["abc"] = core.SessionStats{AudioSent: 3, AudioReceived: 7}
	r := newTestRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/session/abc/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats core.SessionStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, uint64(3), stats.AudioSent)
	assert.Equal(t, uint64(7), stats.AudioReceived)

	w = doJSON(r, http.MethodGet, "/api/v1/session/ghost/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(newFakeService())

	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
