package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

// MockFiles - мок файлового хранилища
type MockFiles struct {
	mock.Mock
}

func (m *MockFiles) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	args := m.Called(ctx, path, data, contentType)
	return args.Error(0)
}

func (m *MockFiles) Remove(ctx context.Context, paths ...string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

// countingTasks считает обращения к List
type countingTasks struct {
	repo.TaskRepository
	lists int
}

func (c *countingTasks) List(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	c.lists++
	return c.TaskRepository.List(ctx, q)
}

type fixture struct {
	gw     *gateway.Gateway
	store  *TaskStore
	user   model.Profile
	broker *realtime.Broker
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	broker := realtime.NewBroker()
	gw := gateway.NewMemory(broker).Gateway(nil)
	user, err := gw.Profiles.Create(context.Background(), model.Profile{Email: "owner@example.com"})
	require.NoError(t, err)
	return &fixture{
		gw:     gw,
		store:  NewTaskStore(gw, user.ID, opts...),
		user:   user,
		broker: broker,
	}
}

func (f *fixture) create(t *testing.T, title string) model.Task {
	t.Helper()
	created, err := f.store.CreateTask(context.Background(), model.Task{Title: title})
	require.NoError(t, err)
	require.NotNil(t, created)
	return *created
}

func TestTaskStore_CreateThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, "Write report")
	assert.Equal(t, model.PriorityMedium, created.Priority)
	assert.Equal(t, model.StatusTodo, created.Status)
	assert.Equal(t, f.user.ID, created.UserID)
	assert.Nil(t, created.CompletedAt)

	st := f.store.State()
	require.Len(t, st.Tasks, 1)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)

	f.store.CompleteTask(ctx, created.ID)
	require.NoError(t, f.store.Err())

	st = f.store.State()
	require.Len(t, st.Tasks, 1)
	task := st.Tasks[0]
	assert.Equal(t, model.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.False(t, task.CompletedAt.Before(task.CreatedAt))
	assert.False(t, task.UpdatedAt.Before(task.CreatedAt))
}

func TestTaskStore_CreateValidation(t *testing.T) {
	f := newFixture(t)

	got, err := f.store.CreateTask(context.Background(), model.Task{Title: "   "})

	assert.Nil(t, got)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.ErrorIs(t, f.store.Err(), model.ErrValidation)
	assert.NotEmpty(t, f.store.State().Error)
	assert.Empty(t, f.store.State().Tasks)

	// следующая успешная операция сбрасывает ошибку
	f.create(t, "Valid")
	assert.Empty(t, f.store.State().Error)
}

func TestTaskStore_UpdateClearsCompletedAtWhenReopened(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "Write report")
	f.store.CompleteTask(ctx, task.ID)

	status := model.StatusInProgress
	f.store.UpdateTask(ctx, task.ID, model.TaskPatch{Status: &status})
	require.NoError(t, f.store.Err())

	got := f.store.State().Tasks[0]
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestTaskStore_UpdateUnknownTask(t *testing.T) {
	f := newFixture(t)
	title := "x"

	err := f.store.UpdateTask(context.Background(), "missing", model.TaskPatch{Title: &title})

	assert.ErrorIs(t, err, repo.ErrorNotFound)
	assert.ErrorIs(t, f.store.Err(), repo.ErrorNotFound)
}

func TestTaskStore_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, "Open task")
	done := f.create(t, "Done task")
	old := f.create(t, "Old task")
	f.store.CompleteTask(ctx, done.ID)
	archived := model.StatusArchived
	f.store.UpdateTask(ctx, old.ID, model.TaskPatch{Status: &archived})
	require.NoError(t, f.store.Err())

	titles := func() []string {
		var out []string
		for _, task := range f.store.State().Tasks {
			out = append(out, task.Title)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Open task", "Done task"}, titles())

	completed := "completed"
	f.store.SetFilter(ctx, model.FilterPatch{Status: &completed})
	assert.Equal(t, []string{"Done task"}, titles())
	assert.Equal(t, "completed", f.store.State().Filters.Status)

	archivedFilter := "archived"
	f.store.SetFilter(ctx, model.FilterPatch{Status: &archivedFilter})
	assert.Equal(t, []string{"Old task"}, titles())

	f.store.ResetFilters(ctx)
	assert.Equal(t, model.DefaultTaskFilter(), f.store.State().Filters)

	query := "OPEN"
	f.store.SetFilter(ctx, model.FilterPatch{SearchQuery: &query})
	assert.Equal(t, []string{"Open task"}, titles())
	assert.Equal(t, model.FilterAll, f.store.State().Filters.Status)
}

func TestTaskStore_DeleteRemovesLocallyWithoutRefetch(t *testing.T) {
	broker := realtime.NewBroker()
	gw := gateway.NewMemory(broker).Gateway(nil)
	user, err := gw.Profiles.Create(context.Background(), model.Profile{Email: "owner@example.com"})
	require.NoError(t, err)
	counting := &countingTasks{TaskRepository: gw.Tasks}
	gw.Tasks = counting

	s := NewTaskStore(gw, user.ID)
	ctx := context.Background()
	a, err := s.CreateTask(ctx, model.Task{Title: "a"})
	require.NoError(t, err)
	s.CreateTask(ctx, model.Task{Title: "b"})
	s.SetActiveTask(a.ID)
	lists := counting.lists

	s.DeleteTask(ctx, a.ID)

	require.NoError(t, s.Err())
	assert.Equal(t, lists, counting.lists)
	st := s.State()
	require.Len(t, st.Tasks, 1)
	assert.Equal(t, "b", st.Tasks[0].Title)
	assert.Empty(t, st.ActiveTaskID)
}

func TestTaskStore_Categories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	work, err := f.store.CreateCategory(ctx, model.Category{Name: "Work"})
	require.NoError(t, err)
	require.NotNil(t, work)
	f.store.CreateCategory(ctx, model.Category{Name: "Home", Color: "#ff0000"})

	st := f.store.State()
	require.Len(t, st.Categories, 2)
	assert.Equal(t, "Home", st.Categories[0].Name)
	assert.Equal(t, model.DefaultCategoryColor, st.Categories[1].Color)

	name := "Office"
	f.store.UpdateCategory(ctx, work.ID, model.CategoryPatch{Name: &name})
	require.NoError(t, f.store.Err())
	assert.Equal(t, "Office", f.store.State().Categories[1].Name)

	f.store.DeleteCategory(ctx, work.ID)
	require.NoError(t, f.store.Err())
	assert.Len(t, f.store.State().Categories, 1)
}

var attachmentPath = regexp.MustCompile(`^attachments/[^/]+/[0-9a-z]{13}\.pdf$`)

func TestTaskStore_UploadAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "Write report")

	a, err := f.store.UploadAttachment(ctx, task.ID, model.Upload{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF"),
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Regexp(t, attachmentPath, a.FilePath)
	assert.Contains(t, a.FilePath, task.ID)
	assert.Equal(t, int64(4), a.FileSize)
	assert.True(t, f.gw.Files.(*objectstore.Memory).Has(a.FilePath))

	got := f.store.State().Tasks[0]
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, a.ID, got.Attachments[0].ID)
}

func TestTaskStore_UploadAttachmentOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("no record when bytes fail", func(t *testing.T) {
		f := newFixture(t)
		files := new(MockFiles)
		f.gw.Files = files
		files.On("Upload", mock.Anything, mock.Anything, []byte("hi"), "text/plain").Return(errors.New("disk full"))

		task := f.create(t, "Write report")
		a, err := f.store.UploadAttachment(ctx, task.ID, model.Upload{Name: "a.txt", ContentType: "text/plain", Data: []byte("hi")})

		assert.Nil(t, a)
		require.Error(t, err)
		assert.Contains(t, f.store.State().Error, "disk full")
		got, err := f.gw.Tasks.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Attachments)
		files.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	})

	t.Run("bytes removed when record fails", func(t *testing.T) {
		f := newFixture(t)
		files := new(MockFiles)
		f.gw.Files = files
		files.On("Upload", mock.Anything, mock.Anything, []byte("hi"), "text/plain").Return(nil)
		files.On("Remove", mock.Anything, mock.MatchedBy(func(paths []string) bool {
			return len(paths) == 1 && strings.HasPrefix(paths[0], "attachments/missing/")
		})).Return(nil)

		a, err := f.store.UploadAttachment(ctx, "missing", model.Upload{Name: "a.txt", ContentType: "text/plain", Data: []byte("hi")})

		assert.Nil(t, a)
		assert.ErrorIs(t, err, repo.ErrorNotFound)
		assert.ErrorIs(t, f.store.Err(), repo.ErrorNotFound)
		files.AssertExpectations(t)
	})
}

func TestTaskStore_DeleteAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("removes bytes then record", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t, "Write report")
		a, err := f.store.UploadAttachment(ctx, task.ID, model.Upload{Name: "a.txt", Data: []byte("hi")})
		require.NoError(t, err)

		require.NoError(t, f.store.DeleteAttachment(ctx, a.ID))

		assert.False(t, f.gw.Files.(*objectstore.Memory).Has(a.FilePath))
		_, err = f.gw.Attachments.Get(ctx, a.ID)
		assert.ErrorIs(t, err, repo.ErrorNotFound)
		assert.Empty(t, f.store.State().Tasks[0].Attachments)
	})

	t.Run("keeps record when byte removal fails", func(t *testing.T) {
		f := newFixture(t)
		files := new(MockFiles)
		f.gw.Files = files
		files.On("Upload", mock.Anything, mock.Anything, []byte("hi"), "text/plain").Return(nil)
		files.On("Remove", mock.Anything, mock.Anything).Return(errors.New("storage unavailable"))

		task := f.create(t, "Write report")
		a, err := f.store.UploadAttachment(ctx, task.ID, model.Upload{Name: "a.txt", ContentType: "text/plain", Data: []byte("hi")})
		require.NoError(t, err)

		err = f.store.DeleteAttachment(ctx, a.ID)

		require.Error(t, err)
		assert.Contains(t, f.store.State().Error, "storage unavailable")
		_, err = f.gw.Attachments.Get(ctx, a.ID)
		assert.NoError(t, err)
		files.AssertExpectations(t)
	})
}

func TestTaskStore_AddCollaborator(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t, "Write report")

		f.store.AddCollaborator(ctx, task.ID, "nobody@example.com", model.PermissionEdit)

		assert.ErrorIs(t, f.store.Err(), ErrUserNotFound)
		assert.ErrorIs(t, f.store.Err(), repo.ErrorNotFound)
		assert.Equal(t, "User not found", f.store.State().Error)
		assert.Empty(t, f.store.State().Tasks[0].Collaborators)
	})

	t.Run("known email", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t, "Write report")
		name := "Jane Doe"
		_, err := f.gw.Profiles.Create(ctx, model.Profile{Email: "jane@example.com", FullName: &name})
		require.NoError(t, err)

		f.store.AddCollaborator(ctx, task.ID, "Jane@Example.com", model.PermissionEdit)
		require.NoError(t, f.store.Err())

		collaborators := f.store.State().Tasks[0].Collaborators
		require.Len(t, collaborators, 1)
		assert.Equal(t, model.PermissionEdit, collaborators[0].Permission)
		require.NotNil(t, collaborators[0].Profile)
		assert.Equal(t, "jane@example.com", collaborators[0].Profile.Email)

		f.store.UpdateCollaboratorPermission(ctx, collaborators[0].ID, model.PermissionAdmin)
		require.NoError(t, f.store.Err())
		assert.Equal(t, model.PermissionAdmin, f.store.State().Tasks[0].Collaborators[0].Permission)

		f.store.RemoveCollaborator(ctx, collaborators[0].ID)
		require.NoError(t, f.store.Err())
		assert.Empty(t, f.store.State().Tasks[0].Collaborators)
	})

	t.Run("invalid permission", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t, "Write report")

		f.store.AddCollaborator(ctx, task.ID, "owner@example.com", model.Permission("owner"))

		assert.ErrorIs(t, f.store.Err(), model.ErrValidation)
	})
}

func TestTaskStore_GenerateAITasks(t *testing.T) {
	f := newFixture(t)

	f.store.GenerateAITasks(context.Background())
	require.NoError(t, f.store.Err())

	st := f.store.State()
	require.Len(t, st.Tasks, 3)
	for _, task := range st.Tasks {
		assert.True(t, task.IsAIGenerated)
		assert.NotNil(t, task.DueDate)
	}
	assert.Equal(t, 3, f.store.Analytics().AIGeneratedTasks)
}

func TestTaskStore_AcceptSuggestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AcceptSuggestions(ctx, []string{"Learn Go", " ", "Write docs"})
	require.NoError(t, f.store.Err())
	assert.Len(t, f.store.State().Tasks, 2)

	f.store.AcceptSuggestions(ctx, nil)
	assert.ErrorIs(t, f.store.Err(), model.ErrValidation)
}

func TestTaskStore_PrioritizeTasks(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	due := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	f.store.CreateTask(ctx, model.Task{Title: "soon", DueDate: due(12 * time.Hour)})
	f.store.CreateTask(ctx, model.Task{Title: "next week", DueDate: due(5 * 24 * time.Hour)})
	f.store.CreateTask(ctx, model.Task{Title: "far", DueDate: due(10 * 24 * time.Hour)})
	f.store.CreateTask(ctx, model.Task{Title: "undated", Priority: model.PriorityLow})
	done, err := f.store.CreateTask(ctx, model.Task{Title: "done", Priority: model.PriorityLow, DueDate: due(time.Hour)})
	require.NoError(t, err)
	f.store.CompleteTask(ctx, done.ID)

	f.store.PrioritizeTasks(ctx)
	require.NoError(t, f.store.Err())

	want := map[string]model.Priority{
		"soon":      model.PriorityUrgent,
		"next week": model.PriorityMedium,
		"far":       model.PriorityLow,
		"undated":   model.PriorityMedium,
		"done":      model.PriorityLow,
	}
	for _, task := range f.store.State().Tasks {
		assert.Equal(t, want[task.Title], task.Priority, task.Title)
		if task.Title == "done" {
			assert.NotContains(t, task.AIMetadata, "last_prioritized")
			continue
		}
		assert.Equal(t, "2025-03-10T12:00:00Z", task.AIMetadata["last_prioritized"])
	}
}

func TestTaskStore_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	watcher := NewTaskStore(f.gw, f.user.ID)

	sub, err := watcher.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.broker.Subscribers(realtime.TableTasks))
	assert.Equal(t, 1, f.broker.Subscribers(realtime.TableCategories))

	f.create(t, "From elsewhere")
	f.store.CreateCategory(ctx, model.Category{Name: "Work"})

	assert.Len(t, watcher.State().Tasks, 1)
	assert.Len(t, watcher.State().Categories, 1)

	sub.Unsubscribe()
	assert.Equal(t, 0, f.broker.Subscribers(realtime.TableTasks))

	f.create(t, "Unseen")
	assert.Len(t, watcher.State().Tasks, 1)
}

func TestTaskStore_SubscribeWithoutNotifier(t *testing.T) {
	f := newFixture(t)
	f.gw.Changes = nil

	_, err := f.store.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestTaskStore_FetchTaskByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "Write report")

	got, err := f.store.FetchTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write report", got.Title)

	missing, err := f.store.FetchTaskByID(ctx, "missing")
	assert.Nil(t, missing)
	assert.ErrorIs(t, err, repo.ErrorNotFound)
	assert.ErrorIs(t, f.store.Err(), repo.ErrorNotFound)
	assert.Len(t, f.store.State().Tasks, 1)
}

func TestTaskStore_CategoryOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	work, err := f.store.CreateCategory(ctx, model.Category{Name: "Work"})
	require.NoError(t, err)

	other, err := f.gw.Profiles.Create(ctx, model.Profile{Email: "mallory@example.com"})
	require.NoError(t, err)
	mallory := NewTaskStore(f.gw, other.ID)

	name := "pwned"
	assert.ErrorIs(t, mallory.UpdateCategory(ctx, work.ID, model.CategoryPatch{Name: &name}), repo.ErrorNotFound)
	assert.ErrorIs(t, mallory.DeleteCategory(ctx, work.ID), repo.ErrorNotFound)

	_, err = mallory.CreateTask(ctx, model.Task{Title: "Borrowed", CategoryID: &work.ID})
	assert.ErrorIs(t, err, model.ErrValidation)

	own, err := mallory.CreateTask(ctx, model.Task{Title: "Own"})
	require.NoError(t, err)
	assert.ErrorIs(t, mallory.UpdateTask(ctx, own.ID, model.TaskPatch{CategoryID: &work.ID}), model.ErrValidation)

	require.NoError(t, f.store.FetchCategories(ctx))
	require.Len(t, f.store.State().Categories, 1)
	assert.Equal(t, "Work", f.store.State().Categories[0].Name)

	task, err := f.store.CreateTask(ctx, model.Task{Title: "Filed", CategoryID: &work.ID})
	require.NoError(t, err)
	require.NotNil(t, task.CategoryID)
}

func TestTaskStore_ReturnedErrorBelongsToCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateTask(ctx, model.Task{Title: " "})
	// refetch от realtime-события сбрасывает общий Err, но не ошибку вызова
	require.NoError(t, f.store.FetchTasks(ctx))

	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NoError(t, f.store.Err())
}

func TestTaskStore_SubscribeIgnoresOtherUsers(t *testing.T) {
	ctx := context.Background()
	broker := realtime.NewBroker()
	gw := gateway.NewMemory(broker).Gateway(nil)
	alice, err := gw.Profiles.Create(ctx, model.Profile{Email: "alice@example.com"})
	require.NoError(t, err)
	bob, err := gw.Profiles.Create(ctx, model.Profile{Email: "bob@example.com"})
	require.NoError(t, err)

	watched := *gw
	counting := &countingTasks{TaskRepository: gw.Tasks}
	watched.Tasks = counting
	watcher := NewTaskStore(&watched, alice.ID)
	sub, err := watcher.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	bobs := NewTaskStore(gw, bob.ID)
	shared, err := bobs.CreateTask(ctx, model.Task{Title: "Bob's"})
	require.NoError(t, err)
	_, err = bobs.CreateCategory(ctx, model.Category{Name: "Bob's"})
	require.NoError(t, err)
	assert.Equal(t, 0, counting.lists)
	assert.Empty(t, watcher.State().Categories)

	require.NoError(t, bobs.AddCollaborator(ctx, shared.ID, "alice@example.com", model.PermissionView))
	require.NoError(t, watcher.FetchTasks(ctx))
	require.Len(t, watcher.State().Tasks, 1)
	lists := counting.lists

	// задача уже в списке alice, событие bob'а её касается
	title := "Renamed by Bob"
	require.NoError(t, bobs.UpdateTask(ctx, shared.ID, model.TaskPatch{Title: &title}))
	assert.Equal(t, lists+1, counting.lists)
	assert.Equal(t, title, watcher.State().Tasks[0].Title)

	_, err = gw.Tasks.Create(ctx, model.Task{UserID: alice.ID, Title: "Alice's"})
	require.NoError(t, err)
	assert.Equal(t, lists+2, counting.lists)
	assert.Len(t, watcher.State().Tasks, 2)
}
