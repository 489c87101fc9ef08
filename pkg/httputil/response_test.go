package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/observability"
)

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteForbidden(w, "forbidden")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
}

func TestWritePage(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WritePage[string](w, nil, 0))
	assert.JSONEq(t, `{"items":[],"total":0}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WritePage(w, []int{1, 2}, 40))
	assert.JSONEq(t, `{"items":[1,2],"total":40}`, w.Body.String())
}

func TestWriteInternalError_HidesDetails(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	r := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	r = r.WithContext(observability.WithLogger(r.Context(), logger))

	w := httptest.NewRecorder()
	WriteInternalError(w, r, errors.New("pq: relation \"jobs\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Contains(t, buf.String(), "relation")
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		want  int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "x") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "x") }, http.StatusUnauthorized},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "x") }, http.StatusNotFound},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "x") }, http.StatusConflict},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "x") }, http.StatusForbidden},
		{"created", func(w http.ResponseWriter) { _ = WriteCreated(w, map[string]int{"id": 1}) }, http.StatusCreated},
		{"no content", WriteNoContent, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
