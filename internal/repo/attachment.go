package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

type AttachmentRepo struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) *AttachmentRepo {
	return &AttachmentRepo{pool: pool}
}

func (r *AttachmentRepo) Get(ctx context.Context, id string) (model.Attachment, error) {
	var a model.Attachment
	err := r.pool.QueryRow(ctx, `
		SELECT id, task_id, file_name, file_type, file_size, file_path, created_at, updated_at
		FROM attachments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.TaskID, &a.FileName, &a.FileType, &a.FileSize, &a.FilePath, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrorNotFound
	}
	return a, err
}

func (r *AttachmentRepo) Create(ctx context.Context, a model.Attachment) (model.Attachment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attachments (id, task_id, file_name, file_type, file_size, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.TaskID, a.FileName, a.FileType, a.FileSize, a.FilePath, a.CreatedAt, a.UpdatedAt)
	return a, mapPgError(err)
}

func (r *AttachmentRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM attachments WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}
