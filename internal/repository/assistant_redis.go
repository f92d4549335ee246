package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"assistant-console-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	assistantsHashKey  = "assistants"
	assistantsOrderKey = "assistants:order"
)

type redisAssistantRepository struct {
	redisClient *redis.Client
}

// NewRedisAssistantRepository 创建一个基于 Redis 的 AssistantRepository 实例。
// 记录以 JSON 存放在 hash 中，插入顺序保存在 list 中。
func NewRedisAssistantRepository(redisClient *redis.Client) AssistantRepository {
	return &redisAssistantRepository{redisClient: redisClient}
}

func (r *redisAssistantRepository) List(ctx context.Context) ([]model.Assistant, error) {
	ids, err := r.redisClient.LRange(ctx, assistantsOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list assistant ids: %w", err)
	}
	if len(ids) == 0 {
		return []model.Assistant{}, nil
	}
	values, err := r.redisClient.HMGet(ctx, assistantsHashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load assistants: %w", err)
	}
	assistants := make([]model.Assistant, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// order 与 hash 之间可能短暂不一致，跳过缺失项
			continue
		}
		var a model.Assistant
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assistant: %w", err)
		}
		assistants = append(assistants, a)
	}
	return assistants, nil
}

func (r *redisAssistantRepository) FindByID(ctx context.Context, id string) (*model.Assistant, error) {
	jsonData, err := r.redisClient.HGet(ctx, assistantsHashKey, id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assistant: %w", err)
	}
	var a model.Assistant
	if err := json.Unmarshal([]byte(jsonData), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assistant: %w", err)
	}
	return &a, nil
}

func (r *redisAssistantRepository) Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error) {
	a := input.NewAssistant(uuid.NewString())
	if err := r.insert(ctx, &a); err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	return &a, nil
}

// Update 使用 WATCH 保证读取与写回之间记录未被删除或修改。
func (r *redisAssistantRepository) Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error) {
	var updated model.Assistant
	err := r.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		jsonData, err := tx.HGet(ctx, assistantsHashKey, id).Result()
		if err == redis.Nil {
			return fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(jsonData), &updated); err != nil {
			return err
		}
		input.ApplyTo(&updated)
		b, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, assistantsHashKey, id, b)
			return nil
		})
		return err
	}, assistantsHashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to update assistant: %w", err)
	}
	return &updated, nil
}

// Delete 在同一个事务中删除记录及其顺序项。
func (r *redisAssistantRepository) Delete(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, assistantsHashKey, id)
		pipe.LRem(ctx, assistantsOrderKey, 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete assistant: %w", err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	return nil
}

// SeedIfEmpty 在顺序列表为空时写入初始记录。
func (r *redisAssistantRepository) SeedIfEmpty(ctx context.Context, seeds []model.Assistant) error {
	n, err := r.redisClient.LLen(ctx, assistantsOrderKey).Result()
	if err != nil {
		return fmt.Errorf("failed to count assistants: %w", err)
	}
	if n > 0 {
		return nil
	}
	for i := range seeds {
		if err := r.insert(ctx, &seeds[i]); err != nil {
			return fmt.Errorf("failed to seed assistants: %w", err)
		}
	}
	return nil
}

func (r *redisAssistantRepository) insert(ctx context.Context, a *model.Assistant) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, assistantsHashKey, a.ID, b)
		pipe.RPush(ctx, assistantsOrderKey, a.ID)
		return nil
	})
	return err
}
