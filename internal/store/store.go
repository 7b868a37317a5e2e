// Package store keeps the per-user task state: the task and category
// snapshots, filters, loading flag and last error.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/analytics"
	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

// ErrUserNotFound is returned when a collaborator email has no profile.
var ErrUserNotFound error = userNotFoundError{}

type userNotFoundError struct{}

func (userNotFoundError) Error() string { return "User not found" }

func (userNotFoundError) Is(target error) bool { return target == repo.ErrorNotFound }

var ErrNoChanges = errors.New("change notifications are not configured")

// State is a read-only copy of the store.
type State struct {
	Tasks        []model.Task     `json:"tasks"`
	Categories   []model.Category `json:"categories"`
	Loading      bool             `json:"is_loading"`
	Error        string           `json:"error,omitempty"`
	ActiveTaskID string           `json:"active_task_id,omitempty"`
	Filters      model.TaskFilter `json:"filters"`
}

type TaskStore struct {
	gw          *gateway.Gateway
	userID      string
	logger      *zap.Logger
	paths       func(taskID, fileName string) string
	prioritizer suggest.Prioritizer
	now         func() time.Time
	loc         *time.Location

	mu      sync.RWMutex
	state   State
	err     error
	pending int
}

type Option func(*TaskStore)

func WithLogger(l *zap.Logger) Option {
	return func(s *TaskStore) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) { s.now = now }
}

func WithPrioritizer(p suggest.Prioritizer) Option {
	return func(s *TaskStore) { s.prioritizer = p }
}

// WithLocation sets the zone used for analytics activity days.
func WithLocation(loc *time.Location) Option {
	return func(s *TaskStore) { s.loc = loc }
}

func WithPaths(paths func(taskID, fileName string) string) Option {
	return func(s *TaskStore) { s.paths = paths }
}

func NewTaskStore(gw *gateway.Gateway, userID string, opts ...Option) *TaskStore {
	s := &TaskStore{
		gw:     gw,
		userID: userID,
		logger: zap.NewNop(),
		now:    time.Now,
		loc:    time.Local,
		state: State{
			Tasks:      make([]model.Task, 0),
			Categories: make([]model.Category, 0),
			Filters:    model.DefaultTaskFilter(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.paths == nil {
		s.paths = objectstore.MustPathGenerator().AttachmentPath
	}
	if s.prioritizer == nil {
		s.prioritizer = suggest.NewMock(suggest.WithClock(s.now))
	}
	return s
}

func (s *TaskStore) UserID() string { return s.userID }

func (s *TaskStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Tasks = slices.Clone(s.state.Tasks)
	st.Categories = slices.Clone(s.state.Categories)
	st.Loading = s.pending > 0
	return st
}

// Err returns the error of the last failed operation, nil after a successful one.
func (s *TaskStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *TaskStore) Analytics() model.Analytics {
	s.mu.RLock()
	tasks := s.state.Tasks
	s.mu.RUnlock()
	return analytics.Compute(tasks, s.loc)
}

// run wraps one operation: loading on, error cleared, then the outcome recorded.
// The returned error belongs to this call; Err may already reflect a later one.
func (s *TaskStore) run(op string, fn func() error) error {
	s.mu.Lock()
	s.pending++
	s.err = nil
	s.state.Error = ""
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	s.pending--
	if err != nil {
		s.err = err
		s.state.Error = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("task store operation failed",
			zap.String("op", op),
			zap.String("user_id", s.userID),
			zap.Error(err),
		)
	}
	return err
}

func (s *TaskStore) filters() model.TaskFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Filters
}

func (s *TaskStore) FetchTasks(ctx context.Context) error {
	return s.run("fetch tasks", func() error { return s.fetchTasks(ctx) })
}

func (s *TaskStore) fetchTasks(ctx context.Context) error {
	tasks, err := s.gw.Tasks.List(ctx, model.TaskQuery{UserID: s.userID, Filter: s.filters()})
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	s.mu.Lock()
	s.state.Tasks = tasks
	s.mu.Unlock()
	return nil
}

// FetchTaskByID loads one task with its joined data. The snapshot is not touched.
func (s *TaskStore) FetchTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var out *model.Task
	err := s.run("fetch task", func() error {
		t, err := s.gw.Tasks.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch task %s: %w", id, err)
		}
		out = &t
		return nil
	})
	return out, err
}

// refreshTask reloads one task and swaps it into the snapshot if it is there.
func (s *TaskStore) refreshTask(ctx context.Context, id string) (model.Task, error) {
	t, err := s.gw.Tasks.Get(ctx, id)
	if err != nil {
		return t, fmt.Errorf("fetch task %s: %w", id, err)
	}
	s.mu.Lock()
	if i := slices.IndexFunc(s.state.Tasks, func(x model.Task) bool { return x.ID == id }); i >= 0 {
		tasks := slices.Clone(s.state.Tasks)
		tasks[i] = t
		s.state.Tasks = tasks
	}
	s.mu.Unlock()
	return t, nil
}

func (s *TaskStore) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	var out *model.Task
	err := s.run("create task", func() error {
		if t.UserID == "" {
			t.UserID = s.userID
		}
		if t.Priority == "" {
			t.Priority = model.PriorityMedium
		}
		if t.Status == "" {
			t.Status = model.StatusTodo
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if err := s.checkCategory(ctx, t.UserID, t.CategoryID); err != nil {
			return err
		}
		now := s.now()
		t.CreatedAt, t.UpdatedAt = now, now
		t.CompletedAt = nil

		created, err := s.gw.Tasks.Create(ctx, t)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if err := s.fetchTasks(ctx); err != nil {
			return err
		}
		out = &created
		return nil
	})
	return out, err
}

// UpdateTask applies p. Moving a task out of completed clears completed_at.
func (s *TaskStore) UpdateTask(ctx context.Context, id string, p model.TaskPatch) error {
	return s.run("update task", func() error {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.CategoryID != nil && *p.CategoryID != "" {
			current, err := s.gw.Tasks.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("update task %s: %w", id, err)
			}
			if err := s.checkCategory(ctx, current.UserID, p.CategoryID); err != nil {
				return err
			}
		}
		p.CompletedAt = nil
		p.ClearCompletedAt = p.Status != nil && *p.Status != model.StatusCompleted
		p.UpdatedAt = s.now()

		if err := s.gw.Tasks.Update(ctx, id, p); err != nil {
			return fmt.Errorf("update task %s: %w", id, err)
		}
		return s.fetchTasks(ctx)
	})
}

// DeleteTask removes the task from the backend and then from the snapshot, without a refetch.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	return s.run("delete task", func() error {
		if err := s.gw.Tasks.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete task %s: %w", id, err)
		}
		s.mu.Lock()
		s.state.Tasks = slices.DeleteFunc(slices.Clone(s.state.Tasks), func(t model.Task) bool { return t.ID == id })
		if s.state.ActiveTaskID == id {
			s.state.ActiveTaskID = ""
		}
		s.mu.Unlock()
		return nil
	})
}

func (s *TaskStore) CompleteTask(ctx context.Context, id string) error {
	return s.run("complete task", func() error {
		now := s.now()
		status := model.StatusCompleted
		err := s.gw.Tasks.Update(ctx, id, model.TaskPatch{
			Status:      &status,
			CompletedAt: &now,
			UpdatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("complete task %s: %w", id, err)
		}
		return s.fetchTasks(ctx)
	})
}

func (s *TaskStore) FetchCategories(ctx context.Context) error {
	return s.run("fetch categories", func() error { return s.fetchCategories(ctx) })
}

func (s *TaskStore) fetchCategories(ctx context.Context) error {
	categories, err := s.gw.Categories.List(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	s.mu.Lock()
	s.state.Categories = categories
	s.mu.Unlock()
	return nil
}

func (s *TaskStore) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	var out *model.Category
	err := s.run("create category", func() error {
		if c.UserID == "" {
			c.UserID = s.userID
		}
		if err := c.Validate(); err != nil {
			return err
		}
		now := s.now()
		c.CreatedAt, c.UpdatedAt = now, now

		created, err := s.gw.Categories.Create(ctx, c)
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		if err := s.fetchCategories(ctx); err != nil {
			return err
		}
		out = &created
		return nil
	})
	return out, err
}

// UpdateCategory changes one of the user's own categories; others look missing.
func (s *TaskStore) UpdateCategory(ctx context.Context, id string, p model.CategoryPatch) error {
	return s.run("update category", func() error {
		if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
			return fmt.Errorf("%w: name is required", model.ErrValidation)
		}
		p.UpdatedAt = s.now()
		if err := s.gw.Categories.Update(ctx, s.userID, id, p); err != nil {
			return fmt.Errorf("update category %s: %w", id, err)
		}
		return s.fetchCategories(ctx)
	})
}

func (s *TaskStore) DeleteCategory(ctx context.Context, id string) error {
	return s.run("delete category", func() error {
		if err := s.gw.Categories.Delete(ctx, s.userID, id); err != nil {
			return fmt.Errorf("delete category %s: %w", id, err)
		}
		s.mu.Lock()
		s.state.Categories = slices.DeleteFunc(slices.Clone(s.state.Categories), func(c model.Category) bool { return c.ID == id })
		s.mu.Unlock()
		return nil
	})
}

// UploadAttachment stores the bytes first and then the record.
func (s *TaskStore) UploadAttachment(ctx context.Context, taskID string, up model.Upload) (*model.Attachment, error) {
	var out *model.Attachment
	err := s.run("upload attachment", func() error {
		if strings.TrimSpace(up.Name) == "" {
			return fmt.Errorf("%w: file name is required", model.ErrValidation)
		}
		path := s.paths(taskID, up.Name)
		if err := s.gw.Files.Upload(ctx, path, up.Data, up.ContentType); err != nil {
			return fmt.Errorf("upload file: %w", err)
		}

		now := s.now()
		a, err := s.gw.Attachments.Create(ctx, model.Attachment{
			TaskID:    taskID,
			FileName:  up.Name,
			FileType:  up.ContentType,
			FileSize:  int64(len(up.Data)),
			FilePath:  path,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			if rmErr := s.gw.Files.Remove(ctx, path); rmErr != nil {
				s.logger.Error("orphaned attachment bytes", zap.String("path", path), zap.Error(rmErr))
			}
			return fmt.Errorf("create attachment: %w", err)
		}
		if _, err := s.refreshTask(ctx, taskID); err != nil {
			return err
		}
		out = &a
		return nil
	})
	return out, err
}

// DeleteAttachment removes the bytes and then the record. If byte removal
// fails the record stays.
func (s *TaskStore) DeleteAttachment(ctx context.Context, id string) error {
	return s.run("delete attachment", func() error {
		a, err := s.gw.Attachments.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get attachment %s: %w", id, err)
		}
		if err := s.gw.Files.Remove(ctx, a.FilePath); err != nil {
			return fmt.Errorf("remove file: %w", err)
		}
		if err := s.gw.Attachments.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete attachment %s: %w", id, err)
		}
		return s.fetchTasks(ctx)
	})
}

func (s *TaskStore) AddCollaborator(ctx context.Context, taskID, email string, perm model.Permission) error {
	return s.run("add collaborator", func() error {
		if perm == "" {
			perm = model.PermissionView
		}
		if !perm.Valid() {
			return fmt.Errorf("%w: unknown permission %q", model.ErrValidation, perm)
		}
		profile, err := s.gw.Profiles.FindByEmail(ctx, email)
		if errors.Is(err, repo.ErrorNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("find profile: %w", err)
		}

		_, err = s.gw.Collaborators.Create(ctx, model.Collaborator{
			TaskID:     taskID,
			UserID:     profile.ID,
			Permission: perm,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return fmt.Errorf("add collaborator: %w", err)
		}
		_, err = s.refreshTask(ctx, taskID)
		return err
	})
}

func (s *TaskStore) UpdateCollaboratorPermission(ctx context.Context, id string, perm model.Permission) error {
	return s.run("update collaborator", func() error {
		if !perm.Valid() {
			return fmt.Errorf("%w: unknown permission %q", model.ErrValidation, perm)
		}
		if err := s.gw.Collaborators.UpdatePermission(ctx, id, perm); err != nil {
			return fmt.Errorf("update collaborator %s: %w", id, err)
		}
		return s.fetchTasks(ctx)
	})
}

func (s *TaskStore) RemoveCollaborator(ctx context.Context, id string) error {
	return s.run("remove collaborator", func() error {
		if err := s.gw.Collaborators.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove collaborator %s: %w", id, err)
		}
		return s.fetchTasks(ctx)
	})
}

// SetFilter merges p into the filters and refetches.
func (s *TaskStore) SetFilter(ctx context.Context, p model.FilterPatch) error {
	s.mu.Lock()
	s.state.Filters = s.state.Filters.Merge(p)
	s.mu.Unlock()
	return s.FetchTasks(ctx)
}

func (s *TaskStore) ResetFilters(ctx context.Context) error {
	s.mu.Lock()
	s.state.Filters = model.DefaultTaskFilter()
	s.mu.Unlock()
	return s.FetchTasks(ctx)
}

// SetActiveTask selects a task; an empty id clears the selection.
func (s *TaskStore) SetActiveTask(id string) {
	s.mu.Lock()
	s.state.ActiveTaskID = id
	s.mu.Unlock()
}

// GenerateAITasks inserts the canned AI tasks for the user.
func (s *TaskStore) GenerateAITasks(ctx context.Context) error {
	return s.run("generate ai tasks", func() error {
		if s.userID == "" {
			return fmt.Errorf("%w: user not authenticated", model.ErrValidation)
		}
		if _, err := s.gw.Tasks.CreateMany(ctx, suggest.AITaskTemplates(s.userID, s.now())); err != nil {
			return fmt.Errorf("generate ai tasks: %w", err)
		}
		return s.fetchTasks(ctx)
	})
}

// AcceptSuggestions turns suggestion titles into AI-generated todo tasks.
func (s *TaskStore) AcceptSuggestions(ctx context.Context, titles []string) error {
	return s.run("accept suggestions", func() error {
		now := s.now()
		tasks := make([]model.Task, 0, len(titles))
		for _, title := range titles {
			title = strings.TrimSpace(title)
			if title == "" {
				continue
			}
			tasks = append(tasks, model.Task{
				UserID:        s.userID,
				Title:         title,
				Priority:      model.PriorityMedium,
				Status:        model.StatusTodo,
				IsAIGenerated: true,
				AIMetadata:    map[string]any{"source": "suggestion"},
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
		if len(tasks) == 0 {
			return fmt.Errorf("%w: no suggestions to accept", model.ErrValidation)
		}
		if _, err := s.gw.Tasks.CreateMany(ctx, tasks); err != nil {
			return fmt.Errorf("accept suggestions: %w", err)
		}
		return s.fetchTasks(ctx)
	})
}

// PrioritizeTasks re-buckets every active task in the snapshot by due date.
func (s *TaskStore) PrioritizeTasks(ctx context.Context) error {
	return s.run("prioritize tasks", func() error {
		s.mu.RLock()
		tasks := s.state.Tasks
		s.mu.RUnlock()

		now := s.now()
		for _, t := range tasks {
			if t.Status == model.StatusCompleted || t.Status == model.StatusArchived {
				continue
			}
			priority := s.prioritizer.EstimatePriority(t.DueDate)
			err := s.gw.Tasks.Update(ctx, t.ID, model.TaskPatch{
				Priority:   &priority,
				AIMetadata: suggest.PrioritizationMetadata(t.AIMetadata, now),
				UpdatedAt:  now,
			})
			if err != nil {
				return fmt.Errorf("prioritize task %s: %w", t.ID, err)
			}
		}
		return s.fetchTasks(ctx)
	})
}

// Subscribe refetches tasks and categories whenever a change concerns this
// user. The caller owns the returned handle.
func (s *TaskStore) Subscribe(ctx context.Context) (*realtime.Subscription, error) {
	if s.gw.Changes == nil {
		return nil, ErrNoChanges
	}
	bg := context.WithoutCancel(ctx)

	tasksSub, err := s.gw.Changes.Subscribe(ctx, realtime.TableTasks, func(evt realtime.ChangeEvent) {
		if s.concernsTask(evt) {
			s.FetchTasks(bg)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to tasks: %w", err)
	}
	categoriesSub, err := s.gw.Changes.Subscribe(ctx, realtime.TableCategories, func(evt realtime.ChangeEvent) {
		if evt.UserID == "" || evt.UserID == s.userID {
			s.FetchCategories(bg)
		}
	})
	if err != nil {
		tasksSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe to categories: %w", err)
	}
	return realtime.Combine(tasksSub, categoriesSub), nil
}

// concernsTask reports whether a task event can change this user's list:
// the user owns the row, or it is already in the snapshot as a shared task.
func (s *TaskStore) concernsTask(evt realtime.ChangeEvent) bool {
	if evt.UserID == "" || evt.UserID == s.userID {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.state.Tasks, func(t model.Task) bool { return t.ID == evt.ID })
}

// checkCategory rejects a category that does not belong to the task owner.
func (s *TaskStore) checkCategory(ctx context.Context, ownerID string, categoryID *string) error {
	if categoryID == nil || *categoryID == "" {
		return nil
	}
	_, err := s.gw.Categories.Get(ctx, ownerID, *categoryID)
	if errors.Is(err, repo.ErrorNotFound) {
		return fmt.Errorf("%w: unknown category %s", model.ErrValidation, *categoryID)
	}
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	return nil
}
