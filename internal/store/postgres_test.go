package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/testutil"
)

func TestTaskStore_Postgres(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()

	broker := realtime.NewBroker()
	gw := gateway.NewPostgres(pool, objectstore.NewMemory(), broker)
	owner := testutil.SeedProfile(t, pool, "owner", "owner@example.com")
	testutil.SeedProfile(t, pool, "helper", "helper@example.com")

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go realtime.NewPgListener(pool, broker, zap.NewNop()).Run(lctx)

	s := NewTaskStore(gw, owner, WithLogger(zap.NewNop()))
	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	created, err := s.CreateTask(ctx, model.Task{Title: "Write report"})
	require.NoError(t, err)
	require.NotNil(t, created)

	require.NoError(t, s.CompleteTask(ctx, created.ID))
	got := s.State().Tasks[0]
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(got.CreatedAt))

	err = s.AddCollaborator(ctx, created.ID, "nobody@example.com", model.PermissionView)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, s.Err(), ErrUserNotFound)
	assert.Equal(t, "User not found", s.State().Error)

	require.NoError(t, s.AddCollaborator(ctx, created.ID, "helper@example.com", model.PermissionEdit))
	require.Len(t, s.State().Tasks[0].Collaborators, 1)

	// изменение в обход store должно прийти через LISTEN/NOTIFY;
	// LISTEN ставится асинхронно, поэтому UPDATE повторяется
	require.Eventually(t, func() bool {
		_, _ = pool.Exec(ctx, "UPDATE tasks SET title = 'Renamed', updated_at = now() WHERE id = $1", created.ID)
		tasks := s.State().Tasks
		return len(tasks) == 1 && tasks[0].Title == "Renamed"
	}, 10*time.Second, 100*time.Millisecond)
}

