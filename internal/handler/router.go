// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"assistant-console-go/internal/middleware"
	"assistant-console-go/internal/service"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(assistantService service.AssistantService, chatService service.ChatService) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	assistantHandler := NewAssistantHandler(assistantService)
	chatHandler := NewChatHandler(chatService, assistantService)

	apiV1 := r.Group("/api/v1")
	{
		assistants := apiV1.Group("/assistants")
		{
			assistants.GET("", assistantHandler.List)
			assistants.POST("", assistantHandler.Create)
			assistants.POST("/refresh", assistantHandler.Refresh)
			assistants.GET("/:id", assistantHandler.Get)
			assistants.PUT("/:id", assistantHandler.Update)
			assistants.PUT("/:id/rules", assistantHandler.UpdateRules)
			assistants.DELETE("/:id", assistantHandler.Delete)

			// 聊天模拟路由组
			chat := assistants.Group("/:id/chat")
			{
				chat.GET("", chatHandler.GetSession)
				chat.GET("/messages", chatHandler.History)
				chat.POST("/messages", chatHandler.SendMessage)
				chat.POST("/reset", chatHandler.RequestReset)
				chat.POST("/reset/confirm", chatHandler.ConfirmReset)
				chat.DELETE("/reset", chatHandler.CancelReset)
			}
		}

		apiV1.GET("/chat/sessions", chatHandler.ListSessions)
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat/:id/ws", chatHandler.Handle)

	return r
}
