package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/analytics"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
)

const (
	KeyTasks   = "tasks"
	KeySession = "sessionId"
)

var ErrTaskNotFound = errors.New("task not found")

// Task is the stored shape; timestamps are epoch milliseconds.
type Task struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Completed   bool   `json:"completed"`
	AIGenerated bool   `json:"aiGenerated,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
}

var seedTexts = []string{
	"Create a demo for Subhash",
	"Show how I use AI tools effectively",
	"Explain my development process",
}

type App struct {
	kv        KV
	suggester suggest.Suggester
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewApp(kv KV, suggester suggest.Suggester, logger *zap.Logger) *App {
	return &App{
		kv:        kv,
		suggester: suggester,
		logger:    logger,
		now:       time.Now,
	}
}

func (a *App) load(ctx context.Context) ([]Task, error) {
	raw, ok, err := a.kv.Get(ctx, KeyTasks)
	if err != nil {
		return nil, err
	}
	if !ok {
		now := a.now().UnixMilli()
		tasks := make([]Task, len(seedTexts))
		for i, text := range seedTexts {
			tasks[i] = Task{ID: fmt.Sprint(i + 1), Text: text, CreatedAt: now}
		}
		return tasks, nil
	}

	var tasks []Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", KeyTasks, err)
	}
	return tasks, nil
}

// save writes the tasks and makes sure a session id exists.
func (a *App) save(ctx context.Context, tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	if err := a.kv.Set(ctx, KeyTasks, string(raw)); err != nil {
		return err
	}
	_, _, err = a.sessionID(ctx)
	return err
}

// Tasks returns the stored tasks, seeding the defaults on first use.
func (a *App) Tasks(ctx context.Context) ([]Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tasks, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return tasks, a.save(ctx, tasks)
}

func (a *App) Add(ctx context.Context, text string) (Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, fmt.Errorf("%w: task text is required", model.ErrValidation)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tasks, err := a.load(ctx)
	if err != nil {
		return Task{}, err
	}
	t := Task{ID: uuid.NewString(), Text: text, CreatedAt: a.now().UnixMilli()}
	if err := a.save(ctx, append(tasks, t)); err != nil {
		return Task{}, err
	}
	a.logger.Debug("task added", zap.String("id", t.ID))
	return t, nil
}

// Toggle flips completion; completing stamps completedAt, reopening clears it.
func (a *App) Toggle(ctx context.Context, id string) (Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks, err := a.load(ctx)
	if err != nil {
		return Task{}, err
	}
	i := slices.IndexFunc(tasks, func(t Task) bool { return t.ID == id })
	if i < 0 {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	t := &tasks[i]
	t.Completed = !t.Completed
	t.CompletedAt = nil
	if t.Completed {
		ms := a.now().UnixMilli()
		t.CompletedAt = &ms
	}
	return *t, a.save(ctx, tasks)
}

func (a *App) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks, err := a.load(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(tasks, func(t Task) bool { return t.ID == id }) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return a.save(ctx, slices.DeleteFunc(tasks, func(t Task) bool { return t.ID == id }))
}

// GenerateAITasks appends suggestions for mode as AI-generated tasks.
func (a *App) GenerateAITasks(ctx context.Context, mode suggest.Mode) ([]Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Text
	}
	suggestions, err := a.suggester.Suggest(ctx, titles, mode)
	if err != nil {
		return nil, err
	}

	now := a.now().UnixMilli()
	added := make([]Task, len(suggestions))
	for i, text := range suggestions {
		added[i] = Task{ID: uuid.NewString(), Text: text, AIGenerated: true, CreatedAt: now}
	}
	if err := a.save(ctx, append(tasks, added...)); err != nil {
		return nil, err
	}
	a.logger.Info("AI tasks generated", zap.String("mode", string(mode)), zap.Int("count", len(added)))
	return added, nil
}

// Analytics aggregates the stored tasks; activity days use loc.
func (a *App) Analytics(ctx context.Context, loc *time.Location) (model.Analytics, error) {
	tasks, err := a.Tasks(ctx)
	if err != nil {
		return model.Analytics{}, err
	}
	converted := make([]model.Task, len(tasks))
	for i, t := range tasks {
		converted[i] = t.toModel()
	}
	return analytics.Compute(converted, loc), nil
}

// SessionID returns the stored session id, creating it on first call.
func (a *App) SessionID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, _, err := a.sessionID(ctx)
	return id, err
}

func (a *App) sessionID(ctx context.Context) (string, bool, error) {
	id, ok, err := a.kv.Get(ctx, KeySession)
	if err != nil {
		return "", false, err
	}
	if ok && id != "" {
		return id, false, nil
	}
	id = uuid.NewString()
	if err := a.kv.Set(ctx, KeySession, id); err != nil {
		return "", false, err
	}
	a.logger.Info("New user session started", zap.String("session_id", id))
	return id, true, nil
}

func (t Task) toModel() model.Task {
	m := model.Task{
		ID:            t.ID,
		Title:         t.Text,
		Status:        model.StatusTodo,
		IsAIGenerated: t.AIGenerated,
		CreatedAt:     time.UnixMilli(t.CreatedAt),
	}
	if t.Completed {
		m.Status = model.StatusCompleted
		if t.CompletedAt != nil {
			done := time.UnixMilli(*t.CompletedAt)
			m.CompletedAt = &done
		}
	}
	return m
}
