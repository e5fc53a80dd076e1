// Package control exposes the voice session to a local UI over HTTP and a
// WebSocket.
package control

import (
	"context"
	"net/http"

	"github.com/divinesarathi/voice/internal/config"
	"github.com/divinesarathi/voice/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter builds the control surface for conv.
func SetupRouter(ctx context.Context, cfg *config.Config, conv Conversation) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	topic := domain.Topic{ID: cfg.StoryID, Category: cfg.StoryType}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, conv.Snapshot())
	})
	api.GET("/ws", func(c *gin.Context) {
		Serve(ctx, c.Writer, c.Request, conv, topic, cfg.PingPeriod)
	})

	log.Info().Str("module", "control").Str("story_id", topic.ID).Msg("router setup")
	return r
}
