package demo

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

func newTestApp(t *testing.T) (*App, *SQLiteKV) {
	t.Helper()
	kv, err := NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	app := NewApp(kv, suggest.NewMock(suggest.WithRand(rand.New(rand.NewPCG(3, 4)))), zap.NewNop())
	return app, kv
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	kv, err := NewSQLiteKV(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v1"))
	require.NoError(t, kv.Set(ctx, "k", "v2"))

	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestApp_SeedsDefaults(t *testing.T) {
	ctx := context.Background()
	app, kv := newTestApp(t)

	tasks, err := app.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "1", tasks[0].ID)
	assert.Equal(t, "Create a demo for Subhash", tasks[0].Text)

	raw, ok, err := kv.Get(ctx, KeyTasks)
	require.NoError(t, err)
	require.True(t, ok)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Len(t, stored, 3)
	assert.Contains(t, stored[0], "createdAt")
	assert.NotContains(t, stored[0], "completedAt")

	session, ok, err := kv.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, session)
}

func TestApp_AddToggleDelete(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)
	clock := time.UnixMilli(1_700_000_000_000)
	app.now = func() time.Time { return clock }

	_, err := app.Add(ctx, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)

	task, err := app.Add(ctx, "  Write report ")
	require.NoError(t, err)
	assert.Equal(t, "Write report", task.Text)

	clock = clock.Add(30 * time.Minute)
	done, err := app.Toggle(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clock.UnixMilli(), *done.CompletedAt)

	stats, err := app.Analytics(ctx, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTasks)
	assert.Equal(t, 1, stats.CompletedTasks)
	require.NotNil(t, stats.AverageCompletionTime)
	assert.InDelta(t, 30.0, *stats.AverageCompletionTime, 1e-9)

	reopened, err := app.Toggle(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, reopened.Completed)
	assert.Nil(t, reopened.CompletedAt)

	require.NoError(t, app.Delete(ctx, task.ID))
	assert.ErrorIs(t, app.Delete(ctx, task.ID), ErrTaskNotFound)
	_, err = app.Toggle(ctx, "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err := app.Tasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestApp_GenerateAITasks(t *testing.T) {
	ctx := context.Background()

	t.Run("basic", func(t *testing.T) {
		app, _ := newTestApp(t)
		added, err := app.GenerateAITasks(ctx, suggest.ModeBasic)
		require.NoError(t, err)
		require.Len(t, added, 5)
		for _, task := range added {
			assert.True(t, task.AIGenerated)
		}

		stats, err := app.Analytics(ctx, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, 8, stats.TotalTasks)
		assert.Equal(t, 5, stats.AIGeneratedTasks)
	})

	t.Run("advanced uses seeded context", func(t *testing.T) {
		app, _ := newTestApp(t)
		added, err := app.GenerateAITasks(ctx, suggest.ModeAdvanced)
		require.NoError(t, err)
		assert.Len(t, added, suggest.MaxSuggestions)
		pool := suggest.AdvancedPool()
		for _, task := range added {
			assert.Contains(t, pool, task.Text)
		}
	})
}

func TestApp_SessionIDIsStable(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)

	first, err := app.SessionID(ctx)
	require.NoError(t, err)
	second, err := app.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
