// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"

	"assistant-console-go/internal/model"
)

var (
	// ErrAssistantNotFound 表示引用的助手 ID 不存在。
	ErrAssistantNotFound = errors.New("助手不存在")
	// ErrTransientFailure 表示一次可重试的暂时性失败（模拟后端的随机删除失败）。
	ErrTransientFailure = errors.New("删除助手失败，请稍后重试")
)

// AssistantRepository 定义了助手数据源的操作接口。
// 所有返回值都是副本，调用方修改它们不会影响数据源内部状态。
type AssistantRepository interface {
	List(ctx context.Context) ([]model.Assistant, error)
	FindByID(ctx context.Context, id string) (*model.Assistant, error)
	Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error)
	Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error)
	Delete(ctx context.Context, id string) error
}

// Seeder 由持久化数据源实现，数据源为空时写入初始记录。
type Seeder interface {
	SeedIfEmpty(ctx context.Context, seeds []model.Assistant) error
}

// SeedAssistants 返回模拟后端启动时的两条初始记录。
func SeedAssistants() []model.Assistant {
	return []model.Assistant{
		{
			ID:             "1",
			Name:           "Asistente de Ventas",
			Language:       model.LanguageSpanish,
			Tone:           model.ToneProfessional,
			ResponseLength: model.ResponseLength{Short: 30, Medium: 50, Long: 20},
			AudioEnabled:   true,
			Rules:          "Eres un asistente especializado en ventas. Siempre sé cordial y enfócate en identificar necesidades del cliente antes de ofrecer productos.",
		},
		{
			ID:             "2",
			Name:           "Soporte Técnico",
			Language:       model.LanguageEnglish,
			Tone:           model.ToneFriendly,
			ResponseLength: model.ResponseLength{Short: 20, Medium: 30, Long: 50},
			AudioEnabled:   false,
			Rules:          "Ayudas a resolver problemas técnicos de manera clara y paso a paso. Siempre confirma que el usuario haya entendido antes de continuar.",
		},
	}
}
