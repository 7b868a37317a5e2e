package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/auth"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/store"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

// maxUploadSize caps attachment and audio bodies.
const maxUploadSize = 10 << 20

func handleErrors(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		respond.Error(w, r, http.StatusNotFound, store.ErrUserNotFound.Error())
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, auth.ErrUserExists):
		respond.Error(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		respond.Error(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUnknownProvider):
		respond.Error(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrValidation):
		if fields := auth.FieldErrors(err); fields != nil {
			respond.Validation(w, r, fields)
			return
		}
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	default:
		logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
