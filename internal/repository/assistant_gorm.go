package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assistant-console-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormAssistantRepository struct {
	db *gorm.DB
}

// NewGormAssistantRepository 创建一个基于 GORM 的 AssistantRepository 实例。
func NewGormAssistantRepository(db *gorm.DB) AssistantRepository {
	return &gormAssistantRepository{db: db}
}

// List 按插入顺序检索所有助手记录。
func (r *gormAssistantRepository) List(ctx context.Context) ([]model.Assistant, error) {
	var assistants []model.Assistant
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&assistants).Error; err != nil {
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	return assistants, nil
}

// FindByID 根据 ID 查找助手。
func (r *gormAssistantRepository) FindByID(ctx context.Context, id string) (*model.Assistant, error) {
	var a model.Assistant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find assistant: %w", err)
	}
	return &a, nil
}

// Create 在数据库中插入一条新的助手记录。
func (r *gormAssistantRepository) Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error) {
	a := input.NewAssistant(uuid.NewString())
	a.Seq = time.Now().UnixNano()
	if err := r.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	return &a, nil
}

// Update 在事务中读取、合并并保存已有记录。
func (r *gormAssistantRepository) Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error) {
	var a model.Assistant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
			return err
		}
		input.ApplyTo(&a)
		return tx.Save(&a).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update assistant: %w", err)
	}
	return &a, nil
}

// Delete 根据 ID 删除助手记录。
func (r *gormAssistantRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&model.Assistant{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete assistant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	return nil
}

// SeedIfEmpty 在表为空时按顺序写入初始记录。
func (r *gormAssistantRepository) SeedIfEmpty(ctx context.Context, seeds []model.Assistant) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Assistant{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count assistants: %w", err)
	}
	if count > 0 || len(seeds) == 0 {
		return nil
	}
	rows := make([]model.Assistant, len(seeds))
	for i, a := range seeds {
		a.Seq = int64(i + 1)
		rows[i] = a
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed assistants: %w", err)
	}
	return nil
}
