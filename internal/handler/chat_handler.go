// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"assistant-console-go/internal/service"
	"assistant-console-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理聊天模拟相关的请求，包括 WebSocket 连接。
type ChatHandler struct {
	chatService      service.ChatService
	assistantService service.AssistantService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, assistantService service.AssistantService) *ChatHandler {
	return &ChatHandler{
		chatService:      chatService,
		assistantService: assistantService,
	}
}

// SendMessageRequest 定义了发送聊天消息 API 的请求体结构。
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ConfirmResetRequest 定义了确认重置 API 的请求体结构。
type ConfirmResetRequest struct {
	ConfirmToken string `json:"confirmToken" binding:"required"`
}

// GetSession 返回助手当前的聊天会话。
func (h *ChatHandler) GetSession(c *gin.Context) {
	session := h.chatService.Session(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// History 返回助手会话的消息列表。
func (h *ChatHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.chatService.History(c.Request.Context(), c.Param("id"))})
}

// ListSessions 返回所有已创建的聊天会话。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.chatService.Sessions(c.Request.Context())})
}

// SendMessage 发送一条用户消息并同步等待助手回复。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	ctx := c.Request.Context()
	assistant, err := h.assistantService.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取助手失败")
		return
	}

	messages, err := h.chatService.SendMessage(ctx, *assistant, req.Content)
	if err != nil {
		respondError(c, err, "发送消息失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}

// RequestReset 是重置会话的第一步，返回确认令牌。
func (h *ChatHandler) RequestReset(c *gin.Context) {
	ctx := c.Request.Context()
	assistantID := c.Param("id")
	if _, err := h.assistantService.Get(ctx, assistantID); err != nil {
		respondError(c, err, "获取助手失败")
		return
	}

	confirmToken, err := h.chatService.RequestReset(ctx, assistantID)
	if err != nil {
		respondError(c, err, "申请重置会话失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "请确认是否重置对话", "data": gin.H{"confirmToken": confirmToken}})
}

// ConfirmReset 是重置会话的第二步，校验令牌后清空消息。
func (h *ChatHandler) ConfirmReset(c *gin.Context) {
	var req ConfirmResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少确认令牌", "data": nil})
		return
	}
	session, err := h.chatService.ConfirmReset(c.Request.Context(), c.Param("id"), req.ConfirmToken)
	if err != nil {
		log.Warnf("ConfirmReset: 重置会话失败: %v", err)
		respondError(c, err, "重置会话失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "对话已重置", "data": session})
}

// CancelReset 放弃待确认的重置。
func (h *ChatHandler) CancelReset(c *gin.Context) {
	h.chatService.CancelReset(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// Handle 处理一个传入的 WebSocket 连接，每个文本帧都是一条用户消息。
func (h *ChatHandler) Handle(c *gin.Context) {
	assistantID := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.assistantService.Get(ctx, assistantID); err != nil {
		respondError(c, err, "获取助手失败")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，助手: %s", assistantID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		// 每条消息都重新获取助手，保证使用最新的训练规则
		assistant, err := h.assistantService.Get(ctx, assistantID)
		if err != nil {
			writeJSON(conn, gin.H{"type": "error", "message": err.Error()})
			break
		}

		writeJSON(conn, gin.H{"type": "typing", "timestamp": time.Now().UnixMilli()})
		messages, err := h.chatService.SendMessage(ctx, *assistant, string(message))
		if err != nil {
			writeJSON(conn, gin.H{"type": "error", "message": err.Error()})
			continue
		}
		for _, m := range messages {
			writeJSON(conn, gin.H{"type": "message", "data": m})
		}
		sendCompletion(conn)
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("序列化 WebSocket 消息失败: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(conn *websocket.Conn) {
	writeJSON(conn, gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	})
}
