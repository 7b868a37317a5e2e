package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

// MockTaskRepository is a mock implementation of repo.TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) List(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) Get(ctx context.Context, id string) (model.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) Create(ctx context.Context, t model.Task) (model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskRepository) CreateMany(ctx context.Context, ts []model.Task) ([]model.Task, error) {
	args := m.Called(ctx, ts)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, id string, p model.TaskPatch) error {
	args := m.Called(ctx, id, p)
	return args.Error(0)
}

func (m *MockTaskRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) ClaimForPrioritization(ctx context.Context, staleBefore time.Time) (model.Task, error) {
	args := m.Called(ctx, staleBefore)
	return args.Get(0).(model.Task), args.Error(1)
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestPool(tasks repo.TaskRepository, count int, opts ...Option) *Pool {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewPool(tasks, suggest.NewMock(suggest.WithClock(func() time.Time { return fixedNow })),
		zap.NewNop(), count, time.Hour, opts...)
}

func TestPool_ProcessNext(t *testing.T) {
	ctx := context.Background()
	due := fixedNow.Add(12 * time.Hour)

	t.Run("re-buckets claimed task", func(t *testing.T) {
		tasks := new(MockTaskRepository)
		tasks.On("ClaimForPrioritization", mock.Anything, fixedNow.Add(-time.Hour)).
			Return(model.Task{ID: "t1", Priority: model.PriorityLow, DueDate: &due,
				AIMetadata: map[string]any{"source": "suggestion"}}, nil)
		tasks.On("Update", mock.Anything, "t1", mock.MatchedBy(func(p model.TaskPatch) bool {
			return p.Priority != nil && *p.Priority == model.PriorityUrgent &&
				p.AIMetadata["source"] == "suggestion" &&
				p.AIMetadata["prioritization_reason"] == suggest.PrioritizationReason &&
				p.AIMetadata["last_prioritized"] == "2025-03-10T12:00:00Z"
		})).Return(nil)

		ok, err := newTestPool(tasks, 1).processNext(ctx, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		tasks.AssertExpectations(t)
	})

	t.Run("unchanged priority only stamps metadata", func(t *testing.T) {
		tasks := new(MockTaskRepository)
		tasks.On("ClaimForPrioritization", mock.Anything, mock.Anything).
			Return(model.Task{ID: "t2", Priority: model.PriorityUrgent, DueDate: &due}, nil)
		tasks.On("Update", mock.Anything, "t2", mock.MatchedBy(func(p model.TaskPatch) bool {
			return p.Priority == nil && p.AIMetadata["last_prioritized"] != nil
		})).Return(nil)

		ok, err := newTestPool(tasks, 1).processNext(ctx, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		tasks.AssertExpectations(t)
	})

	t.Run("nothing to claim", func(t *testing.T) {
		tasks := new(MockTaskRepository)
		tasks.On("ClaimForPrioritization", mock.Anything, mock.Anything).
			Return(model.Task{}, repo.ErrorNotFound)

		ok, err := newTestPool(tasks, 1).processNext(ctx, 0)
		require.NoError(t, err)
		assert.False(t, ok)
		tasks.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update error is returned", func(t *testing.T) {
		tasks := new(MockTaskRepository)
		tasks.On("ClaimForPrioritization", mock.Anything, mock.Anything).
			Return(model.Task{ID: "t3", DueDate: &due}, nil)
		tasks.On("Update", mock.Anything, "t3", mock.Anything).Return(errors.New("db down"))

		_, err := newTestPool(tasks, 1).processNext(ctx, 0)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestPool_ProcessesMemoryGateway(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory(nil).Gateway(nil)
	owner, err := gw.Profiles.Create(ctx, model.Profile{Email: "owner@example.com"})
	require.NoError(t, err)

	soon := fixedNow.Add(60 * time.Hour)
	later := fixedNow.Add(30 * 24 * time.Hour)
	var ids []string
	for _, tc := range []struct {
		title  string
		due    *time.Time
		status model.Status
	}{
		{"soon", &soon, model.StatusTodo},
		{"later", &later, model.StatusInProgress},
		{"no due date", nil, model.StatusTodo},
		{"done", &soon, model.StatusCompleted},
	} {
		created, err := gw.Tasks.Create(ctx, model.Task{
			UserID: owner.ID, Title: tc.title, Priority: model.PriorityMedium, Status: tc.status, DueDate: tc.due,
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	pool := newTestPool(gw.Tasks, 2, WithTick(10*time.Millisecond))
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		a, _ := gw.Tasks.Get(ctx, ids[0])
		b, _ := gw.Tasks.Get(ctx, ids[1])
		return a.AIMetadata["prioritization_reason"] != nil && b.AIMetadata["prioritization_reason"] != nil
	}, 5*time.Second, 10*time.Millisecond)
	pool.Stop()
	pool.Stop()

	want := []model.Priority{model.PriorityHigh, model.PriorityLow, model.PriorityMedium, model.PriorityMedium}
	for i, id := range ids {
		task, err := gw.Tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want[i], task.Priority, task.Title)
	}
	untouched, _ := gw.Tasks.Get(ctx, ids[2])
	assert.Nil(t, untouched.AIMetadata["prioritization_reason"])
}

func TestPool_GracefulShutdown(t *testing.T) {
	tasks := new(MockTaskRepository)
	tasks.On("ClaimForPrioritization", mock.Anything, mock.Anything).
		Return(model.Task{}, repo.ErrorNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	pool := newTestPool(tasks, 3, WithTick(5*time.Millisecond))
	pool.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop gracefully within 2 seconds")
	}
}

func TestPool_Disabled(t *testing.T) {
	tasks := new(MockTaskRepository)
	pool := newTestPool(tasks, 0, WithTick(time.Millisecond))
	pool.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	pool.Stop()
	tasks.AssertNotCalled(t, "ClaimForPrioritization", mock.Anything, mock.Anything)
}
