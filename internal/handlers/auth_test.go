package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CallumWaite/gatehouse/internal/auth"
	"github.com/CallumWaite/gatehouse/internal/models"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
)

type memUserKeyStore struct {
	keys map[int64]*models.UserTokenKey
}

func (m *memUserKeyStore) Get(ctx context.Context, userID int64) (*models.UserTokenKey, error) {
	key, ok := m.keys[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return key, nil
}

func (m *memUserKeyStore) Rotate(ctx context.Context, userID int64, key string) (*models.UserTokenKey, error) {
	row := &models.UserTokenKey{UserID: userID, Key: key, CreatedAt: time.Now()}
	m.keys[userID] = row
	return row, nil
}

func newAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	audit := pkglogger.NewAuditLogger(logger)
	crypto := auth.NewCrypto()

	sessions := auth.NewSessionTokenService(crypto, audit, logger)
	users := auth.NewUserTokenService(crypto, &memUserKeyStore{keys: make(map[int64]*models.UserTokenKey)},
		auth.UserTokenConfig{RotationLifetime: 24 * time.Hour, MaxTokenLifetime: 24 * time.Hour}, audit, logger)

	return NewAuthHandler(sessions, users)
}

func TestCreateSession(t *testing.T) {
	handler := newAuthHandler(t)

	w := httptest.NewRecorder()
	handler.CreateSession(w, httptest.NewRequest("POST", "/session", nil))

	require.Equal(t, http.StatusCreated, w.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Session)
	assert.Contains(t, resp.Session, ".")
}

func userTokenRequest(userID string) *http.Request {
	req := httptest.NewRequest("POST", "/users/"+userID+"/token", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userID", userID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateUserToken(t *testing.T) {
	handler := newAuthHandler(t)

	w := httptest.NewRecorder()
	handler.CreateUserToken(w, userTokenRequest("42"))

	require.Equal(t, http.StatusCreated, w.Code)

	var resp userTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// Reissue within the rotation lifetime returns the same token.
	w = httptest.NewRecorder()
	handler.CreateUserToken(w, userTokenRequest("42"))
	require.Equal(t, http.StatusCreated, w.Code)

	var second userTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, resp.Token, second.Token)
}

func TestCreateUserToken_InvalidUserID(t *testing.T) {
	handler := newAuthHandler(t)

	w := httptest.NewRecorder()
	handler.CreateUserToken(w, userTokenRequest("abc"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
