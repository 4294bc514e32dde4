package router

import (
	"github.com/gin-gonic/gin"

	"opsagent.app/history/internal/history"
	"opsagent.app/history/internal/http/handler"
	"opsagent.app/history/internal/http/middleware"
)

type RouterConfig struct {
	Identity middleware.IdentityConfig
}

func SetupRoutes(router *gin.Engine, svc history.Service, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity(cfg.Identity))
	{
		conversationHandler := handler.NewConversationHandler(svc)
		conversations := v1.Group("/conversations")
		conversations.GET("", conversationHandler.List)
		conversations.POST("", conversationHandler.Create)
		conversations.GET("/:id", conversationHandler.Get)
		conversations.PUT("/:id", conversationHandler.Save)
		conversations.DELETE("/:id", conversationHandler.Delete)
	}
}
