package model

import "time"

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SessionState 是单个聊天会话的状态机状态。
type SessionState string

const (
	SessionIdle             SessionState = "idle"
	SessionAwaitingResponse SessionState = "awaiting_response"
)

// ChatMessage 代表聊天会话中的单条消息。
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession 是某个助手在进程内存中的对话记录，按助手 ID 区分。
type ChatSession struct {
	AssistantID string        `json:"assistantId"`
	Messages    []ChatMessage `json:"messages"`
	State       SessionState  `json:"state"`
	// PendingReset 是待确认的重置令牌 ID，为空表示没有待确认的重置。
	PendingReset string `json:"-"`
}
