// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"assistant-console-go/internal/model"
	"assistant-console-go/internal/repository"
	"assistant-console-go/pkg/llm"
	"assistant-console-go/pkg/log"
	"assistant-console-go/pkg/token"

	"github.com/google/uuid"
)

const resetAction = "chat.reset"

var (
	// ErrEmptyMessage 表示消息为空或只包含空白。
	ErrEmptyMessage = errors.New("消息内容不能为空")
	// ErrAwaitingResponse 表示会话正在等待助手回复。
	ErrAwaitingResponse = errors.New("助手正在回复，请稍候")
	// ErrInvalidConfirmation 表示重置确认令牌无效、过期或已使用。
	ErrInvalidConfirmation = errors.New("确认令牌无效或已过期")
	// ErrSessionNotFound 表示助手还没有聊天会话，没有可重置的内容。
	ErrSessionNotFound = errors.New("会话不存在")
)

// ChatService 定义了聊天模拟的操作接口。
type ChatService interface {
	Session(ctx context.Context, assistantID string) model.ChatSession
	// History 返回按发送顺序排列的消息列表，会话不存在时为空。
	History(ctx context.Context, assistantID string) []model.ChatMessage
	Sessions(ctx context.Context) []model.ChatSession
	// SendMessage 追加用户消息并等待回复，返回本轮追加的两条消息。
	SendMessage(ctx context.Context, assistant model.Assistant, text string) ([]model.ChatMessage, error)
	// RequestReset 是两步重置的第一步，返回需要回传的确认令牌。
	RequestReset(ctx context.Context, assistantID string) (string, error)
	ConfirmReset(ctx context.Context, assistantID, confirmToken string) (model.ChatSession, error)
	CancelReset(ctx context.Context, assistantID string)
}

type chatService struct {
	sessions        repository.SessionRepository
	llmClient       llm.Client
	confirm         *token.ConfirmManager
	fallbackMessage string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(sessions repository.SessionRepository, llmClient llm.Client, confirm *token.ConfirmManager, fallbackMessage string) ChatService {
	return &chatService{
		sessions:        sessions,
		llmClient:       llmClient,
		confirm:         confirm,
		fallbackMessage: fallbackMessage,
	}
}

func (s *chatService) Session(ctx context.Context, assistantID string) model.ChatSession {
	// 尚未创建的会话按空的 Idle 会话展示
	session, _ := s.sessions.Get(ctx, assistantID)
	return session
}

func (s *chatService) History(ctx context.Context, assistantID string) []model.ChatMessage {
	return s.Session(ctx, assistantID).Messages
}

func (s *chatService) Sessions(ctx context.Context) []model.ChatSession {
	ids := s.sessions.AssistantIDs(ctx)
	sort.Strings(ids)
	out := make([]model.ChatSession, 0, len(ids))
	for _, id := range ids {
		if session, ok := s.sessions.Get(ctx, id); ok {
			out = append(out, session)
		}
	}
	return out
}

// SendMessage 驱动 Idle -> AwaitingResponse -> Idle 的状态转换。
// 回复器失败时以固定的兜底消息作为助手回复，会话总会回到 Idle。
func (s *chatService) SendMessage(ctx context.Context, assistant model.Assistant, text string) ([]model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	userMsg := newChatMessage(model.RoleUser, text)
	session, err := s.sessions.Update(ctx, assistant.ID, func(sess *model.ChatSession) error {
		if sess.State == model.SessionAwaitingResponse {
			return ErrAwaitingResponse
		}
		sess.Messages = append(sess.Messages, userMsg)
		sess.State = model.SessionAwaitingResponse
		return nil
	})
	if err != nil {
		return nil, err
	}

	reply := s.generateReply(ctx, assistant, session.Messages)
	assistantMsg := newChatMessage(model.RoleAssistant, reply)

	// 即使请求已取消也要写回回复并恢复 Idle
	_, _ = s.sessions.Update(context.WithoutCancel(ctx), assistant.ID, func(sess *model.ChatSession) error {
		sess.Messages = append(sess.Messages, assistantMsg)
		sess.State = model.SessionIdle
		return nil
	})
	return []model.ChatMessage{userMsg, assistantMsg}, nil
}

// generateReply 调用回复器；出错或 panic 时返回兜底消息。
func (s *chatService) generateReply(ctx context.Context, assistant model.Assistant, history []model.ChatMessage) (reply string) {
	reply = s.fallbackMessage
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("回复器发生 panic: assistant=%s, panic=%v", assistant.ID, r)
			reply = s.fallbackMessage
		}
	}()

	content, err := s.llmClient.Reply(ctx, s.composeMessages(assistant, history))
	if err != nil {
		log.Warnw("获取助手回复失败，使用兜底消息", "assistantId", assistant.ID, "error", err)
		return s.fallbackMessage
	}
	return content
}

func (s *chatService) composeMessages(assistant model.Assistant, history []model.ChatMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: buildSystemMessage(assistant)})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

// buildSystemMessage 根据助手的配置构建 system 提示词
func buildSystemMessage(assistant model.Assistant) string {
	var sys strings.Builder
	sys.WriteString(fmt.Sprintf("You are \"%s\". Always answer in %s with a %s tone.\n",
		assistant.Name, languageName(assistant.Language), strings.ToLower(string(assistant.Tone))))
	rl := assistant.ResponseLength
	sys.WriteString(fmt.Sprintf("Keep about %d%% of answers short, %d%% medium and %d%% long.\n", rl.Short, rl.Medium, rl.Long))
	if rules := strings.TrimSpace(assistant.Rules); rules != "" {
		sys.WriteString("\n")
		sys.WriteString(rules)
	}
	return sys.String()
}

func languageName(l model.Language) string {
	switch l {
	case model.LanguageEnglish:
		return "English"
	case model.LanguagePortuguese:
		return "Portuguese"
	default:
		return "Spanish"
	}
}

// RequestReset 签发一次性确认令牌，并记录为会话的待确认重置。
// 会话只在首条消息时创建，因此没有会话时返回 ErrSessionNotFound。
func (s *chatService) RequestReset(ctx context.Context, assistantID string) (string, error) {
	if _, ok := s.sessions.Get(ctx, assistantID); !ok {
		return "", ErrSessionNotFound
	}
	confirmToken, jti, err := s.confirm.Issue(resetAction, assistantID)
	if err != nil {
		return "", fmt.Errorf("failed to issue confirmation token: %w", err)
	}
	_, err = s.sessions.Update(ctx, assistantID, func(sess *model.ChatSession) error {
		if sess.State == model.SessionAwaitingResponse {
			return ErrAwaitingResponse
		}
		sess.PendingReset = jti
		return nil
	})
	if err != nil {
		return "", err
	}
	return confirmToken, nil
}

// ConfirmReset 校验令牌后清空消息，助手 ID 保持不变。令牌只能使用一次。
func (s *chatService) ConfirmReset(ctx context.Context, assistantID, confirmToken string) (model.ChatSession, error) {
	jti, err := s.confirm.Verify(confirmToken, resetAction, assistantID)
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("%w: %v", ErrInvalidConfirmation, err)
	}
	return s.sessions.Update(ctx, assistantID, func(sess *model.ChatSession) error {
		if sess.PendingReset == "" || sess.PendingReset != jti {
			return ErrInvalidConfirmation
		}
		if sess.State == model.SessionAwaitingResponse {
			return ErrAwaitingResponse
		}
		sess.Messages = []model.ChatMessage{}
		sess.PendingReset = ""
		return nil
	})
}

// CancelReset 放弃待确认的重置。
func (s *chatService) CancelReset(ctx context.Context, assistantID string) {
	if _, ok := s.sessions.Get(ctx, assistantID); !ok {
		return
	}
	_, _ = s.sessions.Update(ctx, assistantID, func(sess *model.ChatSession) error {
		sess.PendingReset = ""
		return nil
	})
}

func newChatMessage(role model.Role, content string) model.ChatMessage {
	return model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
