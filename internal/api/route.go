package api

import (
	"Aorko/internal/api/middleware"
	"Aorko/internal/pkg/logger"
	"Aorko/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, authService service.AuthService) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			// WS 在握手 query 里带 token，升级前完成鉴权
			imGroup.GET("", group.WSHandler.Connect)
		}

		messageGroup := apiGroup.Group("/message")
		messageGroup.Use(middleware.AuthMiddleware(authService))
		{
			messageGroup.POST("/sendfile", group.MessageHandler.SendFile)
			messageGroup.GET("/conversations", group.MessageHandler.GetConversations)
			messageGroup.POST("/get-messages", group.MessageHandler.GetMessages)
			messageGroup.POST("/archive/get-messages", group.MessageHandler.GetArchivedMessages)
		}
	}

	return r
}
