package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/adapters/signal"
	"github.com/koinonia/liveworkshop/internal/config"
	"github.com/koinonia/liveworkshop/internal/domain"
	sess "github.com/koinonia/liveworkshop/internal/session"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a stable per-client identity cookie; the
// coordinator trusts it as the actor id for every command.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, manager *sess.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("WorkshopSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	ctl := signal.NewController(manager, cfg.ReadLimit, cfg.PingPeriod)

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleWS(ctx, c)
	})

	// Ops visibility: active sessions and their authoritative snapshots.
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": manager.Snapshots()})
	})

	api.GET("/sessions/:workshop", func(c *gin.Context) {
		s, ok := manager.Get(domain.WorkshopID(c.Param("workshop")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session for workshop"})
			return
		}
		snap, err := s.Snapshot()
		if err != nil {
			c.JSON(http.StatusGone, gin.H{"error": "session closed"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	return r
}
