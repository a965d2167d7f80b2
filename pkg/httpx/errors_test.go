package httpx_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CallumWaite/gatehouse/pkg/httpx"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	httpx.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp httpx.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w *httptest.ResponseRecorder)
		wantCode  int
		wantError string
	}{
		{"bad request", func(w *httptest.ResponseRecorder) { httpx.WriteBadRequest(w, "m") }, 400, "bad_request"},
		{"unauthorized", func(w *httptest.ResponseRecorder) { httpx.WriteUnauthorized(w, "m") }, 401, "unauthorized"},
		{"not found", func(w *httptest.ResponseRecorder) { httpx.WriteNotFound(w, "m") }, 404, "not_found"},
		{"too many requests", func(w *httptest.ResponseRecorder) { httpx.WriteTooManyRequests(w, "m") }, 429, "limit_reached"},
		{"internal error", func(w *httptest.ResponseRecorder) { httpx.WriteInternalError(w, "m") }, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantCode, w.Code)

			var resp httpx.ErrorResponse
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	httpx.WriteJSON(w, 201, map[string]string{"session": "abc"})

	assert.Equal(t, 201, w.Code)
	assert.JSONEq(t, `{"session":"abc"}`, w.Body.String())
}
