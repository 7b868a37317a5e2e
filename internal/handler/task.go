package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/auth"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/store"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

// TaskHandler serves the signed-in user's task store.
type TaskHandler struct {
	stores      *store.Registry
	suggester   suggest.Suggester
	transcriber suggest.Transcriber
	logger      *zap.Logger
}

func NewTaskHandler(stores *store.Registry, suggester suggest.Suggester, transcriber suggest.Transcriber, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		stores:      stores,
		suggester:   suggester,
		transcriber: transcriber,
		logger:      logger,
	}
}

func (h *TaskHandler) store(r *http.Request) *store.TaskStore {
	session, _ := SessionFrom(r.Context())
	return h.stores.For(r.Context(), session.User.ID)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	handleErrors(h.logger, w, r, err)
}

// State returns the whole store snapshot: tasks, categories, filters and status.
func (h *TaskHandler) State(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, h.store(r).State())
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Task
	if !decode(w, r, h.logger, &req) {
		return
	}
	if err := auth.ValidateTaskTitle(req.Title); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	session, _ := SessionFrom(r.Context())
	req.ID = ""
	req.UserID = session.User.ID

	task, err := h.store(r).CreateTask(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%s", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.store(r).FetchTaskByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.TaskPatch
	if !decode(w, r, h.logger, &req) {
		return
	}
	if req.Empty() {
		respond.Error(w, r, http.StatusBadRequest, "nothing to update")
		return
	}
	id := chi.URLParam(r, "id")
	st := h.store(r)
	if err := st.UpdateTask(r.Context(), id, req); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	h.respondTask(w, r, st, id)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	if err := st.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := h.store(r)
	if err := st.CompleteTask(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	h.respondTask(w, r, st, id)
}

// Activate marks the task as the selected one.
func (h *TaskHandler) Activate(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	st.SetActiveTask(chi.URLParam(r, "id"))
	respond.JSON(w, r, http.StatusOK, st.State())
}

func (h *TaskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	st.SetActiveTask("")
	respond.JSON(w, r, http.StatusOK, st.State())
}

// respondTask answers with the task from the snapshot, or loads it when the
// current filters hide it.
func (h *TaskHandler) respondTask(w http.ResponseWriter, r *http.Request, st *store.TaskStore, id string) {
	tasks := st.State().Tasks
	if i := slices.IndexFunc(tasks, func(t model.Task) bool { return t.ID == id }); i >= 0 {
		respond.JSON(w, r, http.StatusOK, tasks[i])
		return
	}
	task, err := st.FetchTaskByID(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "failed to read file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	a, err := h.store(r).UploadAttachment(r.Context(), chi.URLParam(r, "id"), model.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, a)
}

func (h *TaskHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attachmentID")
	access, _ := accessFrom(r.Context())
	if !slices.ContainsFunc(access.task.Attachments, func(a model.Attachment) bool { return a.ID == id }) {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return
	}
	st := h.store(r)
	if err := st.DeleteAttachment(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.NoContent(w)
}

type collaboratorRequest struct {
	Email      string           `json:"email"`
	Permission model.Permission `json:"permission"`
}

func (h *TaskHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req collaboratorRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	st := h.store(r)
	if err := st.AddCollaborator(r.Context(), id, req.Email, req.Permission); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	h.respondTask(w, r, st, id)
}

func (h *TaskHandler) UpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	var req collaboratorRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	if !ownsCollaborator(r) {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return
	}
	st := h.store(r)
	if err := st.UpdateCollaboratorPermission(r.Context(), chi.URLParam(r, "collaboratorID"), req.Permission); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	h.respondTask(w, r, st, chi.URLParam(r, "id"))
}

func (h *TaskHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	if !ownsCollaborator(r) {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return
	}
	st := h.store(r)
	if err := st.RemoveCollaborator(r.Context(), chi.URLParam(r, "collaboratorID")); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *TaskHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, h.store(r).State().Categories)
}

func (h *TaskHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req model.Category
	if !decode(w, r, h.logger, &req) {
		return
	}
	session, _ := SessionFrom(r.Context())
	req.ID = ""
	req.UserID = session.User.ID

	c, err := h.store(r).CreateCategory(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, c)
}

func (h *TaskHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryPatch
	if !decode(w, r, h.logger, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	st := h.store(r)
	if err := st.UpdateCategory(r.Context(), id, req); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	categories := st.State().Categories
	if i := slices.IndexFunc(categories, func(c model.Category) bool { return c.ID == id }); i >= 0 {
		respond.JSON(w, r, http.StatusOK, categories[i])
		return
	}
	respond.JSON(w, r, http.StatusOK, categories)
}

func (h *TaskHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	if err := st.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *TaskHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req model.FilterPatch
	if !decode(w, r, h.logger, &req) {
		return
	}
	st := h.store(r)
	if err := st.SetFilter(r.Context(), req); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, st.State())
}

func (h *TaskHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	if err := st.ResetFilters(r.Context()); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, st.State())
}

func (h *TaskHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, h.store(r).Analytics())
}

type suggestionsResponse struct {
	Mode        suggest.Mode `json:"mode"`
	Suggestions []string     `json:"suggestions"`
}

func (h *TaskHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	mode, err := suggest.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	tasks := h.store(r).State().Tasks
	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Title
	}
	suggestions, err := h.suggester.Suggest(r.Context(), titles, mode)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, suggestionsResponse{Mode: mode, Suggestions: suggestions})
}

type acceptRequest struct {
	Titles []string `json:"titles"`
}

func (h *TaskHandler) AcceptSuggestions(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	st := h.store(r)
	if err := st.AcceptSuggestions(r.Context(), req.Titles); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, st.State())
}

func (h *TaskHandler) GenerateAITasks(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	if err := st.GenerateAITasks(r.Context()); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, st.State())
}

func (h *TaskHandler) PrioritizeTasks(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	if err := st.PrioritizeTasks(r.Context()); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, st.State())
}

// Transcribe turns an uploaded recording into text.
func (h *TaskHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		respond.Error(w, r, http.StatusRequestEntityTooLarge, "recording too large")
		return
	}
	if len(audio) == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty recording")
		return
	}
	text, err := h.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]string{"text": text})
}

// taskAccess is the task in the URL and the signed-in user's role on it.
type taskAccess struct {
	task model.Task
	role model.Permission
}

func accessFrom(ctx context.Context) (taskAccess, bool) {
	a, ok := ctx.Value(accessKey).(taskAccess)
	return a, ok
}

// roleOf treats the owner as admin.
func roleOf(task model.Task, userID string) (model.Permission, bool) {
	if task.UserID == userID {
		return model.PermissionAdmin, true
	}
	i := slices.IndexFunc(task.Collaborators, func(c model.Collaborator) bool { return c.UserID == userID })
	if i < 0 {
		return "", false
	}
	return task.Collaborators[i].Permission, true
}

// ownsCollaborator reports whether the collaboratorID in the URL belongs to the task.
func ownsCollaborator(r *http.Request) bool {
	id := chi.URLParam(r, "collaboratorID")
	access, _ := accessFrom(r.Context())
	return slices.ContainsFunc(access.task.Collaborators, func(c model.Collaborator) bool { return c.ID == id })
}

// TaskAccess lets a request through only when the signed-in user owns the
// task in the URL or collaborates on it. Anything else looks like a missing task.
func (h *TaskHandler) TaskAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFrom(r.Context())
		task, err := h.store(r).FetchTaskByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.handleErrors(w, r, err)
			return
		}
		role, ok := roleOf(*task, session.User.ID)
		if !ok {
			respond.Error(w, r, http.StatusNotFound, "not found")
			return
		}
		ctx := context.WithValue(r.Context(), accessKey, taskAccess{task: *task, role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission runs after TaskAccess and answers 403 when the user's
// role on the task is below need.
func RequirePermission(need model.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := accessFrom(r.Context())
			if !ok || !access.role.Allows(need) {
				respond.Error(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
