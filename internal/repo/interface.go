package repo

import (
	"context"
	"time"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	List(ctx context.Context, q model.TaskQuery) ([]model.Task, error)
	Get(ctx context.Context, id string) (model.Task, error)
	Create(ctx context.Context, t model.Task) (model.Task, error)
	CreateMany(ctx context.Context, ts []model.Task) ([]model.Task, error)
	Update(ctx context.Context, id string, p model.TaskPatch) error
	Delete(ctx context.Context, id string) error
	ClaimForPrioritization(ctx context.Context, staleBefore time.Time) (model.Task, error)
}

// CategoryRepository is scoped by owner: a category of another user is ErrorNotFound.
type CategoryRepository interface {
	List(ctx context.Context, userID string) ([]model.Category, error)
	Get(ctx context.Context, userID, id string) (model.Category, error)
	Create(ctx context.Context, c model.Category) (model.Category, error)
	Update(ctx context.Context, userID, id string, p model.CategoryPatch) error
	Delete(ctx context.Context, userID, id string) error
}

type AttachmentRepository interface {
	Get(ctx context.Context, id string) (model.Attachment, error)
	Create(ctx context.Context, a model.Attachment) (model.Attachment, error)
	Delete(ctx context.Context, id string) error
}

type CollaboratorRepository interface {
	Create(ctx context.Context, c model.Collaborator) (model.Collaborator, error)
	UpdatePermission(ctx context.Context, id string, p model.Permission) error
	Delete(ctx context.Context, id string) error
}

type ProfileRepository interface {
	Get(ctx context.Context, id string) (model.Profile, error)
	FindByEmail(ctx context.Context, email string) (model.Profile, error)
	Create(ctx context.Context, p model.Profile) (model.Profile, error)
	Update(ctx context.Context, id string, p model.ProfilePatch) error
}
