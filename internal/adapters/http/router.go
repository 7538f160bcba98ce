package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/adapters/ws"
	"github.com/keyra/aicore/internal/config"
	"github.com/keyra/aicore/internal/core"
)

func SetupRouter(ctx context.Context, cfg *config.Config, svc SessionService, conns *ws.ConnectionManager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "AI Core API is running!"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	h := NewSessionHandler(svc, conns, cfg.InputRate)

	api := r.Group("/api/v1")
	api.POST("/session", h.createSession)
	api.POST("/session/:id/answer", h.setAnswer)
	api.DELETE("/session/:id", h.closeSession)
	api.GET("/session/:id/stats", h.sessionStats)

	api.GET("/ws/:id", func(c *gin.Context) {
		sid := core.SessionID(c.Param("id"))
		log.Info().Str("module", "adapters.http").Str("sid", string(sid)).Msg("ws audio endpoint hit")
		conns.HandleAudio(ctx, c, sid)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
