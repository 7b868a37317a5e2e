// Package gateway bundles the backend capabilities the task store talks to.
package gateway

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

// Gateway is the narrow surface between the task store and the backend.
type Gateway struct {
	Tasks         repo.TaskRepository
	Categories    repo.CategoryRepository
	Attachments   repo.AttachmentRepository
	Collaborators repo.CollaboratorRepository
	Profiles      repo.ProfileRepository
	Files         objectstore.Store
	Changes       realtime.Notifier
}

// NewPostgres composes a gateway over a pgx pool.
func NewPostgres(pool *pgxpool.Pool, files objectstore.Store, changes realtime.Notifier) *Gateway {
	return &Gateway{
		Tasks:         repo.NewTaskRepo(pool),
		Categories:    repo.NewCategoryRepo(pool),
		Attachments:   repo.NewAttachmentRepo(pool),
		Collaborators: repo.NewCollaboratorRepo(pool),
		Profiles:      repo.NewProfileRepo(pool),
		Files:         files,
		Changes:       changes,
	}
}
