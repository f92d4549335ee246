package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"assistant-console-go/internal/config"
	"assistant-console-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(failureRate float64) AssistantRepository {
	return NewMemoryAssistantRepository(MemoryOptions{
		DeleteFailureRate: failureRate,
		Seed:              SeedAssistants(),
	})
}

func botA() model.CreateAssistantInput {
	return model.CreateAssistantInput{
		Name:           "Bot A",
		Language:       model.LanguageEnglish,
		Tone:           model.ToneCasual,
		ResponseLength: model.ResponseLength{Short: 30, Medium: 50, Long: 20},
		AudioEnabled:   true,
		Rules:          "be brief",
	}
}

func TestMemoryRepository_SeedsTwoRecords(t *testing.T) {
	repo := newTestRepo(0)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
	for _, a := range list {
		assert.Equal(t, 100, a.ResponseLength.Total())
	}
}

func TestMemoryRepository_CreateThenFind(t *testing.T) {
	repo := newTestRepo(0)
	ctx := context.Background()

	created, err := repo.Create(ctx, botA())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)

	want := botA().NewAssistant(created.ID)
	assert.Equal(t, want, *found)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, want, list[2])
}

func TestMemoryRepository_CreateAssignsUniqueIDs(t *testing.T) {
	repo := newTestRepo(0)
	ctx := context.Background()

	a, err := repo.Create(ctx, botA())
	require.NoError(t, err)
	b, err := repo.Create(ctx, botA())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMemoryRepository_UpdateMergesPartialFields(t *testing.T) {
	repo := newTestRepo(0)
	ctx := context.Background()

	before, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)

	mix := model.ResponseLength{Short: 40, Medium: 40, Long: 20}
	updated, err := repo.Update(ctx, "1", model.UpdateAssistantInput{ResponseLength: &mix})
	require.NoError(t, err)

	assert.Equal(t, "1", updated.ID)
	assert.Equal(t, mix, updated.ResponseLength)
	assert.Equal(t, before.Name, updated.Name)
	assert.Equal(t, before.Language, updated.Language)
	assert.Equal(t, before.Tone, updated.Tone)
	assert.Equal(t, before.Rules, updated.Rules)
	assert.Equal(t, before.AudioEnabled, updated.AudioEnabled)
}

func TestMemoryRepository_UpdateMissing(t *testing.T) {
	repo := newTestRepo(0)
	name := "Nobody"

	_, err := repo.Update(context.Background(), "missing", model.UpdateAssistantInput{Name: &name})
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestMemoryRepository_FindMissing(t *testing.T) {
	repo := newTestRepo(0)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := newTestRepo(0)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, "1"))

	_, err := repo.FindByID(ctx, "1")
	assert.ErrorIs(t, err, ErrAssistantNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].ID)
}

func TestMemoryRepository_DeleteMissingIsAlwaysNotFound(t *testing.T) {
	// 即使故障率为 1，不存在的 ID 也只会返回 NotFound
	repo := newTestRepo(1)

	for i := 0; i < 20; i++ {
		err := repo.Delete(context.Background(), "missing")
		require.ErrorIs(t, err, ErrAssistantNotFound)
		assert.False(t, errors.Is(err, ErrTransientFailure))
	}
}

func TestMemoryRepository_DeleteInjectedFailureKeepsRecord(t *testing.T) {
	repo := newTestRepo(1)
	ctx := context.Background()

	err := repo.Delete(ctx, "1")
	require.ErrorIs(t, err, ErrTransientFailure)

	_, err = repo.FindByID(ctx, "1")
	assert.NoError(t, err)
}

func TestMemoryRepository_FailureRateUsesInjectedRand(t *testing.T) {
	rolls := []float64{0.05, 0.5}
	repo := NewMemoryAssistantRepository(MemoryOptions{
		DeleteFailureRate: 0.1,
		Seed:              SeedAssistants(),
		Rand: func() float64 {
			r := rolls[0]
			rolls = rolls[1:]
			return r
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, repo.Delete(ctx, "1"), ErrTransientFailure)
	assert.NoError(t, repo.Delete(ctx, "1"))
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := newTestRepo(0)
	ctx := context.Background()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	list[0].Name = "mutated"

	found, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Asistente de Ventas", found.Name)
	found.Rules = "mutated"

	again, err := repo.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Rules)
}

func TestMemoryRepository_InstancesAreIndependent(t *testing.T) {
	first := newTestRepo(0)
	second := newTestRepo(0)
	ctx := context.Background()

	require.NoError(t, first.Delete(ctx, "1"))

	list, err := second.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMemoryRepository_LatencyHonorsContext(t *testing.T) {
	repo := NewMemoryAssistantRepository(MemoryOptions{
		Latency: config.LatencyConfig{List: time.Hour},
		Seed:    SeedAssistants(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
