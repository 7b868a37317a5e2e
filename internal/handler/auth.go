package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/auth"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	accessKey
)

type AuthHandler struct {
	auth   *auth.Service
	logger *zap.Logger
}

func NewAuthHandler(svc *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
	Token      string `json:"token"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, session)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	if err := auth.ValidateSignIn(req.Email, req.Password); err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, session)
}

func (h *AuthHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	if err := h.auth.SignInWithMagicLink(r.Context(), req.Email, req.RedirectTo); err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req magicLinkRequest
		if !decode(w, r, h.logger, &req) {
			return
		}
		token = req.Token
	}
	h.verifyMagicLink(w, r, token)
}

func (h *AuthHandler) verifyMagicLink(w http.ResponseWriter, r *http.Request, token string) {
	session, err := h.auth.VerifyMagicLink(r.Context(), token)
	if err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, session)
}

// OAuth redirects the browser to the provider's consent page.
func (h *AuthHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	target, err := h.auth.SignInWithOAuth(chi.URLParam(r, "provider"), r.URL.Query().Get("redirect_to"))
	if err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback is where magic links and OAuth providers send the browser back.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("token") != "":
		h.verifyMagicLink(w, r, q.Get("token"))
	case q.Get("state") != "":
		redirectTo, err := h.auth.VerifyOAuthState(q.Get("state"))
		if err != nil {
			handleErrors(h.logger, w, r, err)
			return
		}
		respond.JSON(w, r, http.StatusOK, map[string]string{
			"code":        q.Get("code"),
			"redirect_to": redirectTo,
		})
	default:
		respond.Error(w, r, http.StatusBadRequest, "missing token or state")
	}
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	respond.JSON(w, r, http.StatusOK, session)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	var req model.ProfilePatch
	if !decode(w, r, h.logger, &req) {
		return
	}
	profile, err := h.auth.UpdateProfile(r.Context(), session.User.ID, req)
	if err != nil {
		handleErrors(h.logger, w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, profile)
}

// RequireAuth resolves the bearer token into a session stored on the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respond.Error(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := h.auth.Session(r.Context(), token)
		if err != nil {
			handleErrors(h.logger, w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, session)))
	})
}

func SessionFrom(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(sessionKey).(auth.Session)
	return s, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}
