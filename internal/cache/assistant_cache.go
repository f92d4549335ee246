// Package cache 保存助手集合及单个助手的客户端缓存，并负责与数据源对账。
package cache

import (
	"context"
	"errors"
	"sync"

	"assistant-console-go/internal/model"
)

// ErrSuperseded 表示刷新结果已被更新的刷新、取消或乐观修改取代，没有写入缓存。
var ErrSuperseded = errors.New("refresh superseded")

// Fetcher 是缓存读取数据源所需的最小接口，repository.AssistantRepository 满足它。
type Fetcher interface {
	List(ctx context.Context) ([]model.Assistant, error)
	FindByID(ctx context.Context, id string) (*model.Assistant, error)
}

// AssistantCache 持有集合缓存与按 ID 的单项缓存。
// 集合的每次写入（刷新、取消、乐观删除、回滚）都会递增 gen，
// 刷新只有在开始到结束期间 gen 未变化时才会落盘。
type AssistantCache struct {
	fetcher Fetcher

	mu       sync.Mutex
	list     []model.Assistant
	loaded   bool
	gen      uint64
	cancelFn context.CancelFunc
	// inflight 在当前刷新结束（落盘、被取代或失败）时关闭。
	inflight chan struct{}

	items    map[string]model.Assistant
	itemGens map[string]uint64
}

// NewAssistantCache 创建一个空的缓存，首次 List 时才会加载。
func NewAssistantCache(fetcher Fetcher) *AssistantCache {
	return &AssistantCache{
		fetcher:  fetcher,
		items:    make(map[string]model.Assistant),
		itemGens: make(map[string]uint64),
	}
}

// List 返回缓存的集合；尚未加载或已失效时先从数据源刷新。
// 已有刷新进行中时等待它完成；自己的刷新被取代时继续等待，
// 直到集合真正加载，不会把未加载的空快照当作结果返回。
func (c *AssistantCache) List(ctx context.Context) ([]model.Assistant, error) {
	for {
		c.mu.Lock()
		if c.loaded {
			out := cloneList(c.list)
			c.mu.Unlock()
			return out, nil
		}
		wait := c.inflight
		c.mu.Unlock()

		if wait != nil {
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		list, err := c.Refresh(ctx)
		if errors.Is(err, ErrSuperseded) {
			continue
		}
		return list, err
	}
}

// Refresh 从数据源重新加载集合。进行中的旧刷新会被取消，其结果也会被丢弃。
// 被取代时返回当前缓存快照和 ErrSuperseded。
func (c *AssistantCache) Refresh(ctx context.Context) ([]model.Assistant, error) {
	c.mu.Lock()
	c.bumpLocked()
	gen := c.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel
	done := make(chan struct{})
	c.inflight = done
	c.mu.Unlock()
	defer cancel()

	list, err := c.fetcher.List(fetchCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == done {
		c.inflight = nil
	}
	defer close(done)
	if c.gen != gen {
		return cloneList(c.list), ErrSuperseded
	}
	c.cancelFn = nil
	if err != nil {
		return cloneList(c.list), err
	}
	c.list = cloneList(list)
	c.loaded = true
	return cloneList(list), nil
}

// CancelRefresh 取消进行中的刷新，使其结果不会覆盖缓存。
func (c *AssistantCache) CancelRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()
}

// Invalidate 将集合标记为失效并立即刷新。被取代的刷新不视为错误。
func (c *AssistantCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()

	_, err := c.Refresh(ctx)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// Snapshot 返回当前缓存集合的副本，不触发加载。
func (c *AssistantCache) Snapshot() []model.Assistant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneList(c.list)
}

// Item 返回单个助手，优先使用缓存。
func (c *AssistantCache) Item(ctx context.Context, id string) (*model.Assistant, error) {
	c.mu.Lock()
	if a, ok := c.items[id]; ok {
		c.mu.Unlock()
		return &a, nil
	}
	gen := c.itemGens[id]
	c.mu.Unlock()

	a, err := c.fetcher.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.itemGens[id] == gen {
		c.items[id] = *a
	}
	out := *a
	return &out, nil
}

// InvalidateItem 丢弃单项缓存，下次 Item 时重新加载。
func (c *AssistantCache) InvalidateItem(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.itemGens[id]++
}

// BeginDelete 取消进行中的刷新，保存当前集合的前像，
// 并立即从缓存中移除目标记录。调用方必须在数据源返回后
// 调用 Commit 或 Rollback 之一。
func (c *AssistantCache) BeginDelete(id string) *PendingDelete {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()

	p := &PendingDelete{
		cache:     c,
		id:        id,
		snapshot:  cloneList(c.list),
		wasLoaded: c.loaded,
	}
	remaining := make([]model.Assistant, 0, len(c.list))
	for _, a := range c.list {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	c.list = remaining
	return p
}

// bumpLocked 递增代数并取消进行中的刷新，调用方必须持有锁。
func (c *AssistantCache) bumpLocked() {
	c.gen++
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
}

// PendingDelete 是一次带前像的待定乐观删除。
type PendingDelete struct {
	cache     *AssistantCache
	id        string
	snapshot  []model.Assistant
	wasLoaded bool

	once sync.Once
}

// ID 返回被删除记录的 ID。
func (p *PendingDelete) ID() string {
	return p.id
}

// Commit 保留乐观状态。
func (p *PendingDelete) Commit() {
	p.once.Do(func() {})
}

// Rollback 将集合原样恢复为删除前的前像。Commit 之后调用无效。
func (p *PendingDelete) Rollback() {
	p.once.Do(func() {
		c := p.cache
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bumpLocked()
		c.list = cloneList(p.snapshot)
		c.loaded = p.wasLoaded
	})
}

func cloneList(in []model.Assistant) []model.Assistant {
	out := make([]model.Assistant, len(in))
	copy(out, in)
	return out
}
