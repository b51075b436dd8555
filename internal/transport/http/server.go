package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
)

// NewServer builds the HTTP server: liveness routes, the websocket endpoint and room introspection.
// The websocket endpoint sits on the plain mux; gin's response writer does not
// hand a clean connection to the websocket library after hijacking.
func NewServer(dir *core.Directory, opts core.SessionOptions, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(dir, opts, WSOptions{
		ReadLimit:          cfg.MaxMessageBytes,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, logger))
	mux.Handle("/", newRouter(dir, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newRouter(dir *core.Directory, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))

	router.GET("/", rootHandler)
	router.GET("/health", healthHandler)

	rooms := NewRoomHandlers(dir, logger)
	api := router.Group("/api")
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:name", rooms.GetRoom)

	return router
}

func rootHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "Chat Server is Running")
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
