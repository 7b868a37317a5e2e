package gateway

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

// Memory is an in-process backend with the same semantics as the Postgres schema:
// foreign keys, unique constraints, cascades and change events.
type Memory struct {
	mu            sync.RWMutex
	profiles      map[string]model.Profile
	categories    map[string]model.Category
	tasks         map[string]model.Task
	attachments   map[string]model.Attachment
	collaborators map[string]model.Collaborator

	broker *realtime.Broker
}

func NewMemory(broker *realtime.Broker) *Memory {
	if broker == nil {
		broker = realtime.NewBroker()
	}
	return &Memory{
		profiles:      make(map[string]model.Profile),
		categories:    make(map[string]model.Category),
		tasks:         make(map[string]model.Task),
		attachments:   make(map[string]model.Attachment),
		collaborators: make(map[string]model.Collaborator),
		broker:        broker,
	}
}

// Gateway returns a gateway backed by m. A nil files store gets an in-memory one.
func (m *Memory) Gateway(files objectstore.Store) *Gateway {
	if files == nil {
		files = objectstore.NewMemory()
	}
	return &Gateway{
		Tasks:         &memTasks{m},
		Categories:    &memCategories{m},
		Attachments:   &memAttachments{m},
		Collaborators: &memCollaborators{m},
		Profiles:      &memProfiles{m},
		Files:         files,
		Changes:       m.broker,
	}
}

func (m *Memory) publish(events []realtime.ChangeEvent) {
	for _, e := range events {
		m.broker.Publish(e)
	}
}

// event mirrors the trigger payload; userID is empty for tables without user_id.
func event(table, op, id, userID string) realtime.ChangeEvent {
	return realtime.ChangeEvent{Table: table, Op: op, ID: id, UserID: userID}
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func fkError(constraint string) error {
	return fmt.Errorf("%w: %s", repo.ErrorNotFound, constraint)
}

// joined must be called with m.mu held.
func (m *Memory) joined(t model.Task) model.Task {
	t.AIMetadata = maps.Clone(t.AIMetadata)
	t.Category = nil
	if t.CategoryID != nil {
		if c, ok := m.categories[*t.CategoryID]; ok {
			t.Category = &model.CategoryRef{ID: c.ID, Name: c.Name, Color: c.Color}
		}
	}

	t.Attachments = nil
	for _, a := range m.attachments {
		if a.TaskID == t.ID {
			t.Attachments = append(t.Attachments, a)
		}
	}
	slices.SortFunc(t.Attachments, func(a, b model.Attachment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	t.Collaborators = nil
	for _, c := range m.collaborators {
		if c.TaskID != t.ID {
			continue
		}
		if p, ok := m.profiles[c.UserID]; ok {
			c.Profile = &model.ProfileRef{Email: p.Email, FullName: p.FullName, AvatarURL: p.AvatarURL}
		}
		t.Collaborators = append(t.Collaborators, c)
	}
	slices.SortFunc(t.Collaborators, func(a, b model.Collaborator) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return t
}

func (m *Memory) isCollaborator(taskID, userID string) bool {
	for _, c := range m.collaborators {
		if c.TaskID == taskID && c.UserID == userID {
			return true
		}
	}
	return false
}

type memTasks struct{ m *Memory }

func (r *memTasks) List(_ context.Context, q model.TaskQuery) ([]model.Task, error) {
	m := r.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := q.Filter
	search := strings.ToLower(f.SearchQuery)
	tasks := make([]model.Task, 0)
	for _, t := range m.tasks {
		if t.UserID != q.UserID && !m.isCollaborator(t.ID, q.UserID) {
			continue
		}
		switch f.Status {
		case model.FilterAll, "":
			if t.Status == model.StatusArchived {
				continue
			}
		default:
			if string(t.Status) != f.Status {
				continue
			}
		}
		if f.Priority != model.FilterAll && f.Priority != "" && string(t.Priority) != f.Priority {
			continue
		}
		if f.CategoryID != model.FilterAll && f.CategoryID != "" &&
			(t.CategoryID == nil || *t.CategoryID != f.CategoryID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) {
			continue
		}
		tasks = append(tasks, m.joined(t))
	}

	slices.SortFunc(tasks, func(a, b model.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return tasks, nil
}

func (r *memTasks) Get(_ context.Context, id string) (model.Task, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	t, ok := r.m.tasks[id]
	if !ok {
		return model.Task{}, repo.ErrorNotFound
	}
	return r.m.joined(t), nil
}

// insert must be called with m.mu held.
func (r *memTasks) insert(t model.Task) (model.Task, error) {
	m := r.m
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := m.tasks[t.ID]; ok {
		return t, repo.ErrorConflict
	}
	if _, ok := m.profiles[t.UserID]; !ok {
		return t, fkError("tasks_user_id_fkey")
	}
	if t.CategoryID != nil {
		if _, ok := m.categories[*t.CategoryID]; !ok {
			return t, fkError("tasks_category_id_fkey")
		}
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == "" {
		t.Status = model.StatusTodo
	}
	t.CreatedAt = stamp(t.CreatedAt)
	t.UpdatedAt = stamp(t.UpdatedAt)
	t.AIMetadata = maps.Clone(t.AIMetadata)
	t.Category, t.Attachments, t.Collaborators = nil, nil, nil
	m.tasks[t.ID] = t
	return t, nil
}

func (r *memTasks) Create(_ context.Context, t model.Task) (model.Task, error) {
	r.m.mu.Lock()
	t, err := r.insert(t)
	r.m.mu.Unlock()
	if err != nil {
		return t, err
	}
	r.m.publish([]realtime.ChangeEvent{event(realtime.TableTasks, "INSERT", t.ID, t.UserID)})
	return t, nil
}

func (r *memTasks) CreateMany(_ context.Context, ts []model.Task) ([]model.Task, error) {
	m := r.m
	m.mu.Lock()
	created := make([]model.Task, 0, len(ts))
	for _, t := range ts {
		t, err := r.insert(t)
		if err != nil {
			// откатываем уже вставленные
			for _, c := range created {
				delete(m.tasks, c.ID)
			}
			m.mu.Unlock()
			return nil, err
		}
		created = append(created, t)
	}
	m.mu.Unlock()

	events := make([]realtime.ChangeEvent, len(created))
	for i, t := range created {
		events[i] = event(realtime.TableTasks, "INSERT", t.ID, t.UserID)
	}
	m.publish(events)
	return created, nil
}

func (r *memTasks) Update(_ context.Context, id string, p model.TaskPatch) error {
	m := r.m
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		t.Description = &d
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.CategoryID != nil {
		if *p.CategoryID == "" {
			t.CategoryID = nil
		} else {
			if _, ok := m.categories[*p.CategoryID]; !ok {
				m.mu.Unlock()
				return fkError("tasks_category_id_fkey")
			}
			c := *p.CategoryID
			t.CategoryID = &c
		}
	}
	if p.IsAIGenerated != nil {
		t.IsAIGenerated = *p.IsAIGenerated
	}
	if p.AIMetadata != nil {
		t.AIMetadata = maps.Clone(p.AIMetadata)
	}
	if p.ClearCompletedAt {
		t.CompletedAt = nil
	} else if p.CompletedAt != nil {
		c := *p.CompletedAt
		t.CompletedAt = &c
	}
	t.UpdatedAt = stamp(p.UpdatedAt)
	if t.UpdatedAt.Before(t.CreatedAt) {
		m.mu.Unlock()
		return fmt.Errorf("updated_at precedes created_at")
	}
	m.tasks[id] = t
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableTasks, "UPDATE", id, t.UserID)})
	return nil
}

func (r *memTasks) Delete(_ context.Context, id string) error {
	m := r.m
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	delete(m.tasks, id)

	events := []realtime.ChangeEvent{event(realtime.TableTasks, "DELETE", id, t.UserID)}
	for aid, a := range m.attachments {
		if a.TaskID == id {
			delete(m.attachments, aid)
			events = append(events, event(realtime.TableAttachments, "DELETE", aid, ""))
		}
	}
	for cid, c := range m.collaborators {
		if c.TaskID == id {
			delete(m.collaborators, cid)
			events = append(events, event(realtime.TableCollaborators, "DELETE", cid, c.UserID))
		}
	}
	m.mu.Unlock()

	m.publish(events)
	return nil
}

func (r *memTasks) ClaimForPrioritization(_ context.Context, staleBefore time.Time) (model.Task, error) {
	m := r.m
	m.mu.Lock()

	var claimed *model.Task
	for _, t := range m.tasks {
		if t.Status != model.StatusTodo && t.Status != model.StatusInProgress {
			continue
		}
		if t.DueDate == nil {
			continue
		}
		if raw, ok := t.AIMetadata["last_prioritized"].(string); ok {
			last, err := time.Parse(time.RFC3339, raw)
			if err == nil && !last.Before(staleBefore) {
				continue
			}
		}
		if claimed == nil || t.DueDate.Before(*claimed.DueDate) {
			c := t
			claimed = &c
		}
	}
	if claimed == nil {
		m.mu.Unlock()
		return model.Task{}, repo.ErrorNotFound
	}

	t := *claimed
	t.AIMetadata = maps.Clone(t.AIMetadata)
	if t.AIMetadata == nil {
		t.AIMetadata = make(map[string]any)
	}
	t.AIMetadata["last_prioritized"] = time.Now().UTC().Format(time.RFC3339)
	m.tasks[t.ID] = t
	out := m.joined(t)
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableTasks, "UPDATE", t.ID, t.UserID)})
	return out, nil
}

type memCategories struct{ m *Memory }

func (r *memCategories) List(_ context.Context, userID string) ([]model.Category, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	categories := make([]model.Category, 0)
	for _, c := range r.m.categories {
		if c.UserID == userID {
			categories = append(categories, c)
		}
	}
	slices.SortFunc(categories, func(a, b model.Category) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return categories, nil
}

func (r *memCategories) Get(_ context.Context, userID, id string) (model.Category, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	c, ok := r.m.categories[id]
	if !ok || c.UserID != userID {
		return model.Category{}, repo.ErrorNotFound
	}
	return c, nil
}

func (r *memCategories) Create(_ context.Context, c model.Category) (model.Category, error) {
	m := r.m
	m.mu.Lock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Color == "" {
		c.Color = model.DefaultCategoryColor
	}
	if _, ok := m.categories[c.ID]; ok {
		m.mu.Unlock()
		return c, repo.ErrorConflict
	}
	if _, ok := m.profiles[c.UserID]; !ok {
		m.mu.Unlock()
		return c, fkError("categories_user_id_fkey")
	}
	c.CreatedAt = stamp(c.CreatedAt)
	c.UpdatedAt = stamp(c.UpdatedAt)
	m.categories[c.ID] = c
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableCategories, "INSERT", c.ID, c.UserID)})
	return c, nil
}

func (r *memCategories) Update(_ context.Context, userID, id string, p model.CategoryPatch) error {
	m := r.m
	m.mu.Lock()
	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	c.UpdatedAt = stamp(p.UpdatedAt)
	m.categories[id] = c
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableCategories, "UPDATE", id, userID)})
	return nil
}

func (r *memCategories) Delete(_ context.Context, userID, id string) error {
	m := r.m
	m.mu.Lock()
	if c, ok := m.categories[id]; !ok || c.UserID != userID {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	delete(m.categories, id)

	// ON DELETE SET NULL
	events := []realtime.ChangeEvent{event(realtime.TableCategories, "DELETE", id, userID)}
	for tid, t := range m.tasks {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			m.tasks[tid] = t
			events = append(events, event(realtime.TableTasks, "UPDATE", tid, t.UserID))
		}
	}
	m.mu.Unlock()

	m.publish(events)
	return nil
}

type memAttachments struct{ m *Memory }

func (r *memAttachments) Get(_ context.Context, id string) (model.Attachment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	a, ok := r.m.attachments[id]
	if !ok {
		return a, repo.ErrorNotFound
	}
	return a, nil
}

func (r *memAttachments) Create(_ context.Context, a model.Attachment) (model.Attachment, error) {
	m := r.m
	m.mu.Lock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := m.tasks[a.TaskID]; !ok {
		m.mu.Unlock()
		return a, fkError("attachments_task_id_fkey")
	}
	for _, existing := range m.attachments {
		if existing.ID == a.ID || existing.FilePath == a.FilePath {
			m.mu.Unlock()
			return a, repo.ErrorConflict
		}
	}
	a.CreatedAt = stamp(a.CreatedAt)
	a.UpdatedAt = stamp(a.UpdatedAt)
	m.attachments[a.ID] = a
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableAttachments, "INSERT", a.ID, "")})
	return a, nil
}

func (r *memAttachments) Delete(_ context.Context, id string) error {
	m := r.m
	m.mu.Lock()
	if _, ok := m.attachments[id]; !ok {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	delete(m.attachments, id)
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableAttachments, "DELETE", id, "")})
	return nil
}

type memCollaborators struct{ m *Memory }

func (r *memCollaborators) Create(_ context.Context, c model.Collaborator) (model.Collaborator, error) {
	m := r.m
	m.mu.Lock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Permission == "" {
		c.Permission = model.PermissionView
	}
	if _, ok := m.tasks[c.TaskID]; !ok {
		m.mu.Unlock()
		return c, fkError("task_collaborators_task_id_fkey")
	}
	if _, ok := m.profiles[c.UserID]; !ok {
		m.mu.Unlock()
		return c, fkError("task_collaborators_user_id_fkey")
	}
	for _, existing := range m.collaborators {
		if existing.ID == c.ID || (existing.TaskID == c.TaskID && existing.UserID == c.UserID) {
			m.mu.Unlock()
			return c, repo.ErrorConflict
		}
	}
	c.CreatedAt = stamp(c.CreatedAt)
	c.Profile = nil
	m.collaborators[c.ID] = c
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableCollaborators, "INSERT", c.ID, c.UserID)})
	return c, nil
}

func (r *memCollaborators) UpdatePermission(_ context.Context, id string, p model.Permission) error {
	m := r.m
	m.mu.Lock()
	c, ok := m.collaborators[id]
	if !ok {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	c.Permission = p
	m.collaborators[id] = c
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableCollaborators, "UPDATE", id, c.UserID)})
	return nil
}

func (r *memCollaborators) Delete(_ context.Context, id string) error {
	m := r.m
	m.mu.Lock()
	c, ok := m.collaborators[id]
	if !ok {
		m.mu.Unlock()
		return repo.ErrorNotFound
	}
	delete(m.collaborators, id)
	m.mu.Unlock()

	m.publish([]realtime.ChangeEvent{event(realtime.TableCollaborators, "DELETE", id, c.UserID)})
	return nil
}

type memProfiles struct{ m *Memory }

func (r *memProfiles) Get(_ context.Context, id string) (model.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.profiles[id]
	if !ok {
		return p, repo.ErrorNotFound
	}
	return p, nil
}

func (r *memProfiles) FindByEmail(_ context.Context, email string) (model.Profile, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	email = strings.TrimSpace(email)
	for _, p := range r.m.profiles {
		if strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return model.Profile{}, repo.ErrorNotFound
}

func (r *memProfiles) Create(_ context.Context, p model.Profile) (model.Profile, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, existing := range m.profiles {
		if existing.ID == p.ID || strings.EqualFold(existing.Email, p.Email) {
			return p, repo.ErrorConflict
		}
	}
	p.CreatedAt = stamp(p.CreatedAt)
	p.UpdatedAt = stamp(p.UpdatedAt)
	m.profiles[p.ID] = p
	return p, nil
}

func (r *memProfiles) Update(_ context.Context, id string, patch model.ProfilePatch) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return repo.ErrorNotFound
	}
	if patch.FullName != nil {
		v := *patch.FullName
		p.FullName = &v
	}
	if patch.AvatarURL != nil {
		v := *patch.AvatarURL
		p.AvatarURL = &v
	}
	p.UpdatedAt = time.Now()
	m.profiles[id] = p
	return nil
}
