package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assistant-console-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFetcher 的 List 可以被阻塞，用于构造并发刷新。
type fakeFetcher struct {
	mu        sync.Mutex
	list      []model.Assistant
	err       error
	gate      chan struct{}
	started   chan struct{}
	listCalls int
	findCalls int
}

func newFakeFetcher(ids ...string) *fakeFetcher {
	f := &fakeFetcher{}
	for _, id := range ids {
		f.list = append(f.list, model.Assistant{ID: id, Name: "assistant " + id})
	}
	return f
}

func (f *fakeFetcher) setList(list []model.Assistant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = list
}

func (f *fakeFetcher) List(ctx context.Context) ([]model.Assistant, error) {
	f.mu.Lock()
	f.listCalls++
	snapshot := append([]model.Assistant(nil), f.list...)
	err := f.err
	gate := f.gate
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, err
}

func (f *fakeFetcher) FindByID(_ context.Context, id string) (*model.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	for _, a := range f.list {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, errors.New("not found")
}

func ids(list []model.Assistant) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func TestAssistantCache_ListLoadsOnce(t *testing.T) {
	f := newFakeFetcher("1", "2")
	c := NewAssistantCache(f)
	ctx := context.Background()

	first, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(first))

	_, err = c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.listCalls)
}

func TestAssistantCache_RefreshErrorKeepsCache(t *testing.T) {
	f := newFakeFetcher("1")
	c := NewAssistantCache(f)
	ctx := context.Background()
	_, err := c.List(ctx)
	require.NoError(t, err)

	f.err = errors.New("backend down")
	list, err := c.Refresh(ctx)
	assert.Error(t, err)
	assert.Equal(t, []string{"1"}, ids(list))
	assert.Equal(t, []string{"1"}, ids(c.Snapshot()))
}

func TestAssistantCache_SupersededRefreshIsDiscarded(t *testing.T) {
	f := newFakeFetcher("1", "2")
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 2)
	c := NewAssistantCache(f)

	type result struct {
		list []model.Assistant
		err  error
	}
	oldDone := make(chan result, 1)
	go func() {
		list, err := c.Refresh(context.Background())
		oldDone <- result{list, err}
	}()
	<-f.started

	// 新的刷新开始后，旧刷新被取消且结果不得写入缓存
	f.setList([]model.Assistant{{ID: "3"}})
	newDone := make(chan result, 1)
	go func() {
		list, err := c.Refresh(context.Background())
		newDone <- result{list, err}
	}()
	<-f.started

	old := <-oldDone
	assert.ErrorIs(t, old.err, ErrSuperseded)

	close(f.gate)
	latest := <-newDone
	require.NoError(t, latest.err)
	assert.Equal(t, []string{"3"}, ids(latest.list))
	assert.Equal(t, []string{"3"}, ids(c.Snapshot()))
}

func TestAssistantCache_ConcurrentColdListsShareOneLoad(t *testing.T) {
	f := newFakeFetcher("1", "2")
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 2)
	c := NewAssistantCache(f)

	type result struct {
		list []model.Assistant
		err  error
	}
	first := make(chan result, 1)
	go func() {
		list, err := c.List(context.Background())
		first <- result{list, err}
	}()
	<-f.started

	second := make(chan result, 1)
	go func() {
		list, err := c.List(context.Background())
		second <- result{list, err}
	}()

	close(f.gate)
	for _, ch := range []chan result{first, second} {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, []string{"1", "2"}, ids(r.list))
	}
	assert.Equal(t, 1, f.listCalls)
}

func TestAssistantCache_ColdListSupersededByDeleteStillLoads(t *testing.T) {
	f := newFakeFetcher("1", "2")
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 2)
	c := NewAssistantCache(f)

	type result struct {
		list []model.Assistant
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := c.List(context.Background())
		done <- result{list, err}
	}()
	<-f.started

	// 首次加载被乐观删除取代后，List 仍要等到集合真正加载
	pending := c.BeginDelete("1")
	pending.Commit()
	close(f.gate)

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, []string{"1", "2"}, ids(r.list))
	assert.Equal(t, 2, f.listCalls)
}

func TestAssistantCache_ColdListHonorsContextWhileWaiting(t *testing.T) {
	f := newFakeFetcher("1")
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 1)
	c := NewAssistantCache(f)

	loadDone := make(chan error, 1)
	go func() {
		_, err := c.List(context.Background())
		loadDone <- err
	}()
	<-f.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.gate)
	require.NoError(t, <-loadDone)
}

func TestAssistantCache_CancelRefresh(t *testing.T) {
	f := newFakeFetcher("1")
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 1)
	c := NewAssistantCache(f)

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	<-f.started

	c.CancelRefresh()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("refresh was not cancelled")
	}
	assert.Empty(t, c.Snapshot())
}

func TestAssistantCache_BeginDeleteRemovesImmediately(t *testing.T) {
	f := newFakeFetcher("1", "2", "3")
	c := NewAssistantCache(f)
	_, err := c.List(context.Background())
	require.NoError(t, err)

	pending := c.BeginDelete("2")
	assert.Equal(t, "2", pending.ID())
	assert.Equal(t, []string{"1", "3"}, ids(c.Snapshot()))

	pending.Commit()
	assert.Equal(t, []string{"1", "3"}, ids(c.Snapshot()))
}

func TestAssistantCache_RollbackRestoresPreImage(t *testing.T) {
	f := newFakeFetcher("1", "2", "3")
	c := NewAssistantCache(f)
	before, err := c.List(context.Background())
	require.NoError(t, err)

	pending := c.BeginDelete("2")
	pending.Rollback()

	assert.Equal(t, before, c.Snapshot())
}

func TestAssistantCache_RollbackAfterCommitIsNoop(t *testing.T) {
	f := newFakeFetcher("1", "2")
	c := NewAssistantCache(f)
	_, err := c.List(context.Background())
	require.NoError(t, err)

	pending := c.BeginDelete("1")
	pending.Commit()
	pending.Rollback()

	assert.Equal(t, []string{"2"}, ids(c.Snapshot()))
}

func TestAssistantCache_BeginDeleteSupersedesInFlightRefresh(t *testing.T) {
	f := newFakeFetcher("1", "2")
	c := NewAssistantCache(f)
	_, err := c.List(context.Background())
	require.NoError(t, err)

	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	<-f.started

	pending := c.BeginDelete("1")
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, []string{"2"}, ids(c.Snapshot()))
	pending.Commit()
}

func TestAssistantCache_InvalidateReloads(t *testing.T) {
	f := newFakeFetcher("1")
	c := NewAssistantCache(f)
	ctx := context.Background()
	_, err := c.List(ctx)
	require.NoError(t, err)

	f.setList([]model.Assistant{{ID: "1"}, {ID: "2"}})
	require.NoError(t, c.Invalidate(ctx))

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(list))
}

func TestAssistantCache_ItemCachesUntilInvalidated(t *testing.T) {
	f := newFakeFetcher("1")
	c := NewAssistantCache(f)
	ctx := context.Background()

	a, err := c.Item(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "assistant 1", a.Name)

	f.setList([]model.Assistant{{ID: "1", Name: "renamed"}})
	a, err = c.Item(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "assistant 1", a.Name)
	assert.Equal(t, 1, f.findCalls)

	c.InvalidateItem("1")
	a, err = c.Item(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", a.Name)
	assert.Equal(t, 2, f.findCalls)
}

func TestAssistantCache_ItemErrorNotCached(t *testing.T) {
	f := newFakeFetcher()
	c := NewAssistantCache(f)

	_, err := c.Item(context.Background(), "missing")
	assert.Error(t, err)
	_, err = c.Item(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, 2, f.findCalls)
}
