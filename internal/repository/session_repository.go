package repository

import (
	"context"
	"sync"

	"assistant-console-go/internal/model"
)

// SessionRepository 定义了聊天会话的存取接口。会话只保存在进程内存中。
type SessionRepository interface {
	// Get 返回会话的副本；会话尚未创建时 ok 为 false。
	Get(ctx context.Context, assistantID string) (session model.ChatSession, ok bool)
	// Update 在锁内对会话执行 fn，会话不存在时先惰性创建。
	// fn 返回错误时所做的修改会被丢弃。
	Update(ctx context.Context, assistantID string, fn func(s *model.ChatSession) error) (model.ChatSession, error)
	// AssistantIDs 返回所有已创建会话的助手 ID。
	AssistantIDs(ctx context.Context) []string
}

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*model.ChatSession)}
}

func (r *memorySessionRepository) Get(_ context.Context, assistantID string) (model.ChatSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[assistantID]
	if !ok {
		return model.ChatSession{AssistantID: assistantID, Messages: []model.ChatMessage{}, State: model.SessionIdle}, false
	}
	return cloneSession(s), true
}

func (r *memorySessionRepository) Update(_ context.Context, assistantID string, fn func(s *model.ChatSession) error) (model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[assistantID]
	if !ok {
		current = &model.ChatSession{AssistantID: assistantID, Messages: []model.ChatMessage{}, State: model.SessionIdle}
	}
	working := cloneSession(current)
	if err := fn(&working); err != nil {
		return cloneSession(current), err
	}
	r.sessions[assistantID] = &working
	return cloneSession(&working), nil
}

func (r *memorySessionRepository) AssistantIDs(_ context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func cloneSession(s *model.ChatSession) model.ChatSession {
	out := *s
	out.Messages = make([]model.ChatMessage, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}
