package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"assistant-console-go/internal/config"
	"assistant-console-go/internal/model"

	"github.com/google/uuid"
)

// MemoryOptions 控制模拟后端的延迟与故障注入。
type MemoryOptions struct {
	Latency config.LatencyConfig
	// DeleteFailureRate 是 Delete 在记录存在时返回 ErrTransientFailure 的概率，取值 [0, 1]。
	DeleteFailureRate float64
	// Rand 返回 [0, 1) 的随机数；为 nil 时使用 math/rand。
	Rand func() float64
	// NewID 生成新记录的 ID；为 nil 时使用 UUID。
	NewID func() string
	// Seed 是初始记录；为 nil 时不预置任何数据。
	Seed []model.Assistant
}

type memoryAssistantRepository struct {
	mu         sync.RWMutex
	assistants []model.Assistant
	opts       MemoryOptions
}

// NewMemoryAssistantRepository 创建一个进程内的模拟助手数据源。
// 每个实例独立持有自己的数据，重启后恢复为 Seed。
func NewMemoryAssistantRepository(opts MemoryOptions) AssistantRepository {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	assistants := make([]model.Assistant, len(opts.Seed))
	copy(assistants, opts.Seed)
	return &memoryAssistantRepository{assistants: assistants, opts: opts}
}

// List 返回所有助手的快照副本。
func (r *memoryAssistantRepository) List(ctx context.Context) ([]model.Assistant, error) {
	if err := sleep(ctx, r.opts.Latency.List); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Assistant, len(r.assistants))
	copy(out, r.assistants)
	return out, nil
}

// FindByID 返回指定 ID 助手的副本。
func (r *memoryAssistantRepository) FindByID(ctx context.Context, id string) (*model.Assistant, error) {
	if err := sleep(ctx, r.opts.Latency.Get); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexOf(id)
	if idx == -1 {
		return nil, fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	a := r.assistants[idx]
	return &a, nil
}

// Create 分配新 ID 并追加记录。
func (r *memoryAssistantRepository) Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error) {
	if err := sleep(ctx, r.opts.Latency.Create); err != nil {
		return nil, err
	}
	a := input.NewAssistant(r.opts.NewID())
	r.mu.Lock()
	r.assistants = append(r.assistants, a)
	r.mu.Unlock()
	return &a, nil
}

// Update 将非 nil 字段合并到已有记录中，ID 不会改变。
func (r *memoryAssistantRepository) Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error) {
	if err := sleep(ctx, r.opts.Latency.Update); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx == -1 {
		return nil, fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	input.ApplyTo(&r.assistants[idx])
	a := r.assistants[idx]
	return &a, nil
}

// Delete 删除记录。记录不存在时总是返回 ErrAssistantNotFound，
// 只有记录存在时才可能按 DeleteFailureRate 注入 ErrTransientFailure。
func (r *memoryAssistantRepository) Delete(ctx context.Context, id string) error {
	if err := sleep(ctx, r.opts.Latency.Delete); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx == -1 {
		return fmt.Errorf("助手 %s: %w", id, ErrAssistantNotFound)
	}
	if r.opts.DeleteFailureRate > 0 && r.opts.Rand() < r.opts.DeleteFailureRate {
		return ErrTransientFailure
	}
	r.assistants = append(r.assistants[:idx], r.assistants[idx+1:]...)
	return nil
}

// indexOf 调用方必须持有锁。
func (r *memoryAssistantRepository) indexOf(id string) int {
	for i := range r.assistants {
		if r.assistants[i].ID == id {
			return i
		}
	}
	return -1
}

// sleep 模拟网络延迟，ctx 取消时提前返回。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
