package handlers

import (
	"net/http"
	"strconv"

	"github.com/CallumWaite/gatehouse/internal/auth"
	"github.com/CallumWaite/gatehouse/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// AuthHandler exposes token issuance. Session tokens are handed out to any
// new installation; user tokens are issued for callers the (out-of-scope)
// login flow has already authenticated, which guards the route with the
// session middleware before reaching here.
type AuthHandler struct {
	sessions *auth.SessionTokenService
	users    *auth.UserTokenService
}

func NewAuthHandler(sessions *auth.SessionTokenService, users *auth.UserTokenService) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users}
}

type sessionResponse struct {
	Session string `json:"session"`
}

type userTokenResponse struct {
	Token string `json:"token"`
}

// CreateSession issues an anonymous session token for a new installation.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, err := h.sessions.Issue()
	if err != nil {
		httpx.WriteInternalError(w, "failed to issue session token")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{Session: token})
}

// CreateUserToken issues (rotating if due) the token for a user.
func (h *AuthHandler) CreateUserToken(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.WriteBadRequest(w, "invalid user id")
		return
	}

	token, err := h.users.Issue(r.Context(), userID)
	if err != nil {
		httpx.WriteInternalError(w, "failed to issue user token")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userTokenResponse{Token: token})
}

// CheckUserToken reports token validity for a user. The heavy lifting is
// in the middleware; reaching this handler means the token passed.
func (h *AuthHandler) CheckUserToken(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
