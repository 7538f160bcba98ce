package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/adapters/ws"
	"github.com/keyra/aicore/internal/app"
	"github.com/keyra/aicore/internal/core"
)

// SessionService is the slice of the engine the HTTP layer needs.
type SessionService interface {
	CreateSession(ctx context.Context, req app.CreateRequest) (core.SessionID, string, error)
	SetAnswer(ctx context.Context, sid core.SessionID, sdp string) error
	CloseSession(ctx context.Context, sid core.SessionID) bool
	ForwardAudio(sid core.SessionID, data []byte) bool
	Stats(sid core.SessionID) (core.SessionStats, bool)
}

type SessionCreateRequest struct {
	SystemInstruction string `json:"system_instruction" binding:"required"`
	AudioSpeakerName  string `json:"audio_speaker_name"`
	SampleRate        int    `json:"sample_rate"`
}

type SdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type SessionCreateResponse struct {
	SessionID string     `json:"session_id"`
	Offer     SdpPayload `json:"offer"`
}

type SdpAnswerRequest struct {
	Answer SdpPayload `json:"answer" binding:"required"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SessionHandler struct {
	svc               SessionService
	conns             *ws.ConnectionManager
	defaultSampleRate int
}

func NewSessionHandler(svc SessionService, conns *ws.ConnectionManager, defaultSampleRate int) *SessionHandler {
	return &SessionHandler{svc: svc, conns: conns, defaultSampleRate: defaultSampleRate}
}

func (h *SessionHandler) createSession(c *gin.Context) {
	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid system_instruction"})
		return
	}
	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = h.defaultSampleRate
	}

	// The id is minted here so the sink closures can address their own
	// session before CreateSession returns.
	sid := core.SessionID(uuid.NewString())
	sink := core.EventSink{
		OnAudio: func(data []byte) {
			h.svc.ForwardAudio(sid, data)
			h.conns.Broadcast(sid, data)
		},
		OnText: func(text string) {
			log.Debug().Str("module", "adapters.http").Str("sid", string(sid)).Int("len", len(text)).Msg("model text")
		},
		OnError: func(err error) {
			log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("session error")
		},
	}

	_, offer, err := h.svc.CreateSession(c.Request.Context(), app.CreateRequest{
		ID:                sid,
		SystemInstruction: req.SystemInstruction,
		SpeakerVoice:      req.AudioSpeakerName,
		InputSampleRate:   sampleRate,
		Sink:              sink,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize dialogue and transport session"})
		return
	}

	c.JSON(http.StatusCreated, SessionCreateResponse{
		SessionID: string(sid),
		Offer:     SdpPayload{Type: "offer", SDP: offer},
	})
}

func (h *SessionHandler) setAnswer(c *gin.Context) {
	sid := core.SessionID(c.Param("id"))
	var req SdpAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Answer.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid answer"})
		return
	}

	err := h.svc.SetAnswer(c.Request.Context(), sid, req.Answer.SDP)
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
	case errors.Is(err, app.ErrInvalidAnswer):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, StatusResponse{Status: "success", Message: "answer received and connection established"})
	}
}

func (h *SessionHandler) closeSession(c *gin.Context) {
	sid := core.SessionID(c.Param("id"))
	if !h.svc.CloseSession(c.Request.Context(), sid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.conns.Disconnect(sid)
	c.JSON(http.StatusOK, StatusResponse{Status: "success", Message: "session terminated"})
}

func (h *SessionHandler) sessionStats(c *gin.Context) {
	sid := core.SessionID(c.Param("id"))
	stats, ok := h.svc.Stats(sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
