package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BuzzLyutic/taskboard/internal/auth"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

// NewRouter wires every HTTP route onto a chi router.
func NewRouter(authH *AuthHandler, tasks *TaskHandler) chi.Router {
	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get(auth.CallbackPath, authH.Callback)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authH.SignUp)
			r.Post("/signin", authH.SignIn)
			r.Post("/magic-link", authH.MagicLink)
			r.Get("/magic-link/verify", authH.VerifyMagicLink)
			r.Post("/magic-link/verify", authH.VerifyMagicLink)
			r.Get("/oauth/{provider}", authH.OAuth)

			r.Group(func(r chi.Router) {
				r.Use(authH.RequireAuth)
				r.Post("/signout", authH.SignOut)
				r.Get("/session", authH.Session)
				r.Patch("/profile", authH.UpdateProfile)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authH.RequireAuth)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", tasks.State)
				r.Post("/", tasks.Create)
				r.Delete("/active", tasks.Deactivate)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(tasks.TaskAccess)
					view := r.With(RequirePermission(model.PermissionView))
					edit := r.With(RequirePermission(model.PermissionEdit))
					admin := r.With(RequirePermission(model.PermissionAdmin))

					view.Get("/", tasks.Get)
					view.Post("/activate", tasks.Activate)
					edit.Patch("/", tasks.Update)
					edit.Post("/complete", tasks.Complete)
					edit.Post("/attachments", tasks.UploadAttachment)
					edit.Delete("/attachments/{attachmentID}", tasks.DeleteAttachment)
					// удалять задачу и менять состав участников может только владелец или admin
					admin.Delete("/", tasks.Delete)
					admin.Post("/collaborators", tasks.AddCollaborator)
					admin.Patch("/collaborators/{collaboratorID}", tasks.UpdateCollaborator)
					admin.Delete("/collaborators/{collaboratorID}", tasks.RemoveCollaborator)
				})
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", tasks.ListCategories)
				r.Post("/", tasks.CreateCategory)
				r.Patch("/{id}", tasks.UpdateCategory)
				r.Delete("/{id}", tasks.DeleteCategory)
			})

			r.Patch("/filters", tasks.SetFilter)
			r.Delete("/filters", tasks.ResetFilters)
			r.Get("/analytics", tasks.Analytics)

			r.Get("/suggestions", tasks.Suggestions)
			r.Post("/suggestions", tasks.AcceptSuggestions)
			r.Post("/ai/generate", tasks.GenerateAITasks)
			r.Post("/ai/prioritize", tasks.PrioritizeTasks)
			r.Post("/voice/transcribe", tasks.Transcribe)
		})
	})

	return r
}
