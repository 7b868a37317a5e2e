package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		data     any
		wantCode int
		wantBody string
	}{
		{
			name:     "task",
			code:     http.StatusCreated,
			data:     taskRef{ID: "t-1", Title: "Write report"},
			wantCode: http.StatusCreated,
			wantBody: `{"id":"t-1","title":"Write report"}`,
		},
		{
			name:     "list keeps order",
			code:     http.StatusOK,
			data:     []taskRef{{ID: "b"}, {ID: "a"}},
			wantCode: http.StatusOK,
			wantBody: `[{"id":"b","title":""},{"id":"a","title":""}]`,
		},
		{
			name:     "nil slice is null",
			code:     http.StatusOK,
			data:     []taskRef(nil),
			wantCode: http.StatusOK,
			wantBody: `null`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), tt.code, tt.data)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{name: "missing task", code: http.StatusNotFound, message: "not found"},
		{name: "no permission", code: http.StatusForbidden, message: "forbidden"},
		{name: "duplicate", code: http.StatusConflict, message: "collaborator already added"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, httptest.NewRequest(http.MethodDelete, "/api/tasks/1", nil), tt.code, tt.message)

			assert.Equal(t, tt.code, w.Code)
			var got ErrorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, ErrorBody{Error: tt.message}, got)
		})
	}
}

func TestValidation(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	Validation(w, r, map[string]string{"email": "Please enter a valid email"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var got ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "validation error", got.Error)
	assert.Equal(t, "Please enter a valid email", got.Fields["email"])
}

func TestErrorOmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "not found")
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
