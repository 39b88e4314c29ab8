package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "value", body["key"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, errors.New("something broke"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "something broke", decodeError(t, w))
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "name is required") }, http.StatusBadRequest, "name is required"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "malformed") }, http.StatusBadRequest, "malformed"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "no credentials") }, http.StatusUnauthorized, "no credentials"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "not allowed") }, http.StatusForbidden, "not allowed"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "no such key") }, http.StatusNotFound, "no such key"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "already exists") }, http.StatusConflict, "already exists"},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, "slow down"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeError(t, w))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(w, map[string]int{"count": 3}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":3}`, w.Body.String())
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]string{"uuid": "abc"}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"uuid":"abc"}`, w.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
