package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/auth"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/config"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/core"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/presence"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// NewServer builds the HTTP server: REST endpoints plus the WebSocket
// upgrade route.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, tracker *presence.Tracker, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, tracker, logger)

	router.GET("/health", apiHandlers.Health)

	api := router.Group("/api")
	{
		api.GET("/info", apiHandlers.Info)
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		protected.GET("/rooms", roomHandlers.ListRooms)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
