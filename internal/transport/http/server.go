package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/auth"
	"github.com/vovakirdan/wirepresence/internal/config"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/presence"
)

// Dependencies are the collaborators the HTTP layer routes to.
// Exactly one of Hub (push mode) or Heartbeats (poll mode) is set.
type Dependencies struct {
	Auth       *auth.Service
	Hub        *core.Hub
	Heartbeats *presence.Heartbeats
	Metrics    stdhttp.Handler
}

// NewServer builds the HTTP server with API, presence and websocket routes.
func NewServer(cfg *config.Config, deps Dependencies, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	authMiddleware := AuthMiddleware(deps.Auth, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.GET("/me", authMiddleware, apiHandlers.Me)

	var counter presence.Counter
	if deps.Heartbeats != nil {
		counter = deps.Heartbeats
	} else {
		counter = deps.Hub
	}
	presenceHandlers := NewPresenceHandlers(counter, deps.Heartbeats, cfg.Presence, logger)
	api.GET("/online-count", presenceHandlers.OnlineCount)
	api.GET("/presence", presenceHandlers.Settings)

	if deps.Heartbeats != nil {
		api.POST("/user-online", authMiddleware, presenceHandlers.UserOnline)
		api.POST("/user-offline", authMiddleware, presenceHandlers.UserOffline)
	}
	if deps.Hub != nil {
		router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Auth, cfg.MaxMessagesPerMinute, cfg.WSOriginPatterns, logger)))
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
