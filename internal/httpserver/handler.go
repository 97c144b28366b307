package httpserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func (srv *HTTPServer) mapHandlers(allowedOrigins []string) {
	srv.gin.Use(gin.Recovery())
	srv.gin.Use(otelgin.Middleware(ServiceName))
	if len(allowedOrigins) > 0 {
		srv.gin.Use(cors.New(cors.Config{
			AllowOrigins: allowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		}))
	}

	srv.gin.GET("/health", srv.healthCheck)

	api := srv.gin.Group("/api")
	{
		api.POST("/sessions", srv.startSession)
		api.GET("/sessions/:session_id", srv.getSession)
		api.POST("/sessions/:session_id/end", srv.endSession)
	}

	srv.gin.GET("/ws/:session_id", srv.serveWebSocket)
}
