package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

type CollaboratorRepo struct {
	pool *pgxpool.Pool
}

func NewCollaboratorRepo(pool *pgxpool.Pool) *CollaboratorRepo {
	return &CollaboratorRepo{pool: pool}
}

func (r *CollaboratorRepo) Create(ctx context.Context, c model.Collaborator) (model.Collaborator, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_collaborators (id, task_id, user_id, permission, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.TaskID, c.UserID, string(c.Permission), c.CreatedAt)
	return c, mapPgError(err)
}

func (r *CollaboratorRepo) UpdatePermission(ctx context.Context, id string, p model.Permission) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE task_collaborators SET permission = $2 WHERE id = $1", id, string(p))
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *CollaboratorRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM task_collaborators WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}
