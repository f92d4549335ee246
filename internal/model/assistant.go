// Package model 包含了应用的数据模型定义。
package model

// Language 是助手回复使用的语言。
type Language string

const (
	LanguageSpanish    Language = "Español"
	LanguageEnglish    Language = "Inglés"
	LanguagePortuguese Language = "Portugués"
)

// Tone 是助手的沟通风格。
type Tone string

const (
	ToneFormal       Tone = "Formal"
	ToneCasual       Tone = "Casual"
	ToneProfessional Tone = "Profesional"
	ToneFriendly     Tone = "Amigable"
)

// ResponseLength 描述短、中、长三类回复的百分比分布，三者之和必须为 100。
type ResponseLength struct {
	Short  int `gorm:"not null" json:"short" validate:"min=0,max=100"`
	Medium int `gorm:"not null" json:"medium" validate:"min=0,max=100"`
	Long   int `gorm:"not null" json:"long" validate:"min=0,max=100"`
}

// Total 返回三类回复百分比之和。
func (r ResponseLength) Total() int {
	return r.Short + r.Medium + r.Long
}

// Assistant 对应于数据库中的 'assistants' 表。
type Assistant struct {
	// ID 由数据源在创建时分配，之后不可变。
	ID             string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(100);not null" json:"name"`
	Language       Language       `gorm:"type:varchar(32);not null" json:"language"`
	Tone           Tone           `gorm:"type:varchar(32);not null" json:"tone"`
	ResponseLength ResponseLength `gorm:"embedded;embeddedPrefix:length_" json:"responseLength"`
	AudioEnabled   bool           `gorm:"not null;default:false" json:"audioEnabled"`
	// Rules 是可选的训练规则，默认为空。
	Rules string `gorm:"type:text" json:"rules"`
	// Seq 记录插入顺序，List 按它排序。
	Seq int64 `gorm:"index" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Assistant) TableName() string {
	return "assistants"
}

// CreateAssistantInput 是创建助手时的输入，不包含 ID。
type CreateAssistantInput struct {
	Name           string         `json:"name" validate:"required"`
	Language       Language       `json:"language" validate:"required,oneof=Español Inglés Portugués"`
	Tone           Tone           `json:"tone" validate:"required,oneof=Formal Casual Profesional Amigable"`
	ResponseLength ResponseLength `json:"responseLength"`
	AudioEnabled   bool           `json:"audioEnabled"`
	Rules          string         `json:"rules"`
}

// UpdateAssistantInput 是部分更新的输入，nil 字段保持原值。
type UpdateAssistantInput struct {
	Name           *string         `json:"name,omitempty" validate:"omitempty"`
	Language       *Language       `json:"language,omitempty" validate:"omitempty,oneof=Español Inglés Portugués"`
	Tone           *Tone           `json:"tone,omitempty" validate:"omitempty,oneof=Formal Casual Profesional Amigable"`
	ResponseLength *ResponseLength `json:"responseLength,omitempty"`
	AudioEnabled   *bool           `json:"audioEnabled,omitempty"`
	Rules          *string         `json:"rules,omitempty"`
}

// NewAssistant 用输入和分配好的 ID 构造一条助手记录。
func (in CreateAssistantInput) NewAssistant(id string) Assistant {
	return Assistant{
		ID:             id,
		Name:           in.Name,
		Language:       in.Language,
		Tone:           in.Tone,
		ResponseLength: in.ResponseLength,
		AudioEnabled:   in.AudioEnabled,
		Rules:          in.Rules,
	}
}

// ApplyTo 将非 nil 字段合并到 a 上，ID 保持不变。
func (in UpdateAssistantInput) ApplyTo(a *Assistant) {
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.Tone != nil {
		a.Tone = *in.Tone
	}
	if in.ResponseLength != nil {
		a.ResponseLength = *in.ResponseLength
	}
	if in.AudioEnabled != nil {
		a.AudioEnabled = *in.AudioEnabled
	}
	if in.Rules != nil {
		a.Rules = *in.Rules
	}
}
