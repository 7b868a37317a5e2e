package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

const taskColumns = `
	t.id, t.user_id, t.title, t.description, t.priority, t.status, t.due_date,
	t.category_id, t.is_ai_generated, t.ai_metadata, t.created_at, t.updated_at,
	t.completed_at, c.id, c.name, c.color`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) List(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	f := q.Filter
	if f.Status == "" {
		f.Status = model.FilterAll
	}
	if f.Priority == "" {
		f.Priority = model.FilterAll
	}
	if f.CategoryID == "" {
		f.CategoryID = model.FilterAll
	}

	// По умолчанию архивные задачи не показываем
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE (t.user_id = $1 OR EXISTS (
				SELECT 1 FROM task_collaborators tc WHERE tc.task_id = t.id AND tc.user_id = $1))
		  AND (($2 = 'all' AND t.status <> 'archived') OR t.status = $2)
		  AND ($3 = 'all' OR t.priority = $3)
		  AND ($4 = 'all' OR t.category_id = $4)
		  AND ($5 = '' OR t.title ILIKE '%' || $5 || '%' ESCAPE '\')
		ORDER BY t.created_at DESC, t.id DESC
	`, q.UserID, f.Status, f.Priority, f.CategoryID, escapeLike(f.SearchQuery))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepo) Get(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	if err != nil {
		return t, err
	}

	tasks := []model.Task{t}
	if err := r.loadRelations(ctx, tasks); err != nil {
		return t, err
	}
	return tasks[0], nil
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, user_id, title, description, priority, status, due_date,
			category_id, is_ai_generated, ai_metadata, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.UserID, t.Title, t.Description, string(t.Priority), string(t.Status), t.DueDate,
		t.CategoryID, t.IsAIGenerated, t.AIMetadata, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	return t, r.mapError(err)
}

func (r *TaskRepo) CreateMany(ctx context.Context, ts []model.Task) ([]model.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range ts {
		if ts[i].ID == "" {
			ts[i].ID = uuid.NewString()
		}
		t := ts[i]
		batch.Queue(`
			INSERT INTO tasks (id, user_id, title, description, priority, status, due_date,
				category_id, is_ai_generated, ai_metadata, created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, t.ID, t.UserID, t.Title, t.Description, string(t.Priority), string(t.Status), t.DueDate,
			t.CategoryID, t.IsAIGenerated, t.AIMetadata, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, r.mapError(err)
	}
	return ts, tx.Commit(ctx)
}

func (r *TaskRepo) Update(ctx context.Context, id string, p model.TaskPatch) error {
	set := newSetBuilder()
	if p.Title != nil {
		set.add("title", *p.Title)
	}
	if p.Description != nil {
		set.add("description", *p.Description)
	}
	if p.Priority != nil {
		set.add("priority", string(*p.Priority))
	}
	if p.Status != nil {
		set.add("status", string(*p.Status))
	}
	if p.ClearDueDate {
		set.add("due_date", nil)
	} else if p.DueDate != nil {
		set.add("due_date", *p.DueDate)
	}
	if p.CategoryID != nil {
		if *p.CategoryID == "" {
			set.add("category_id", nil)
		} else {
			set.add("category_id", *p.CategoryID)
		}
	}
	if p.IsAIGenerated != nil {
		set.add("is_ai_generated", *p.IsAIGenerated)
	}
	if p.AIMetadata != nil {
		set.add("ai_metadata", p.AIMetadata)
	}
	if p.ClearCompletedAt {
		set.add("completed_at", nil)
	} else if p.CompletedAt != nil {
		set.add("completed_at", *p.CompletedAt)
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set.add("updated_at", updatedAt)

	query := set.query("tasks", id)
	cmd, err := r.pool.Exec(ctx, query, set.args...)
	if err != nil {
		return r.mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// ClaimForPrioritization забирает одну активную задачу со сроком, которую давно не переоценивали
func (r *TaskRepo) ClaimForPrioritization(ctx context.Context, staleBefore time.Time) (model.Task, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		WITH claimed AS (
			SELECT id
			FROM tasks
			WHERE status IN ('todo', 'in_progress')
			  AND due_date IS NOT NULL
			  AND (ai_metadata->>'last_prioritized' IS NULL
			       OR (ai_metadata->>'last_prioritized')::timestamptz < $1)
			ORDER BY due_date
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tasks
		SET ai_metadata = COALESCE(tasks.ai_metadata, '{}'::jsonb)
			|| jsonb_build_object('last_prioritized', to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'))
		FROM claimed
		WHERE tasks.id = claimed.id
		RETURNING tasks.id
	`, staleBefore).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, ErrorNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	return r.Get(ctx, id)
}

// loadRelations подтягивает вложения и соавторов для уже выбранных задач
func (r *TaskRepo) loadRelations(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		index[t.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, file_name, file_type, file_size, file_path, created_at, updated_at
		FROM attachments
		WHERE task_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.FileType, &a.FileSize, &a.FilePath, &a.CreatedAt, &a.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		i := index[a.TaskID]
		tasks[i].Attachments = append(tasks[i].Attachments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT tc.id, tc.task_id, tc.user_id, tc.permission, tc.created_at,
			p.email, p.full_name, p.avatar_url
		FROM task_collaborators tc
		JOIN profiles p ON p.id = tc.user_id
		WHERE tc.task_id = ANY($1)
		ORDER BY tc.created_at
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c    model.Collaborator
			perm string
			prof model.ProfileRef
		)
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &perm, &c.CreatedAt, &prof.Email, &prof.FullName, &prof.AvatarURL); err != nil {
			return err
		}
		c.Permission = model.Permission(perm)
		c.Profile = &prof
		i := index[c.TaskID]
		tasks[i].Collaborators = append(tasks[i].Collaborators, c)
	}
	return rows.Err()
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t                     model.Task
		priority, status      string
		catID, catName, color *string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &priority, &status, &t.DueDate,
		&t.CategoryID, &t.IsAIGenerated, &t.AIMetadata, &t.CreatedAt, &t.UpdatedAt,
		&t.CompletedAt, &catID, &catName, &color,
	)
	if err != nil {
		return t, err
	}
	t.Priority = model.Priority(priority)
	t.Status = model.Status(status)
	if catID != nil {
		t.Category = &model.CategoryRef{ID: *catID, Name: deref(catName), Color: deref(color)}
	}
	return t, nil
}

func (r *TaskRepo) mapError(err error) error {
	return mapPgError(err)
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrorConflict
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrorNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
