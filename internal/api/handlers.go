package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"seabattle/internal/auth"
	"seabattle/internal/obslog"
	"seabattle/internal/users"
)

// SignupRequest is the request body for account registration.
type SignupRequest struct {
	Login    string `json:"login"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SigninRequest is the request body for login.
type SigninRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthResponse is returned by both signup and signin.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Login  string `json:"login"`
	Name   string `json:"name"`
}

// Account and archive endpoints need Postgres. Without DATABASE_URL the
// server still runs matchmaking and games, these routes answer 503.
func (r *Router) requireUsers(w http.ResponseWriter) bool {
	if r.users == nil {
		writeError(w, http.StatusServiceUnavailable, "user accounts are not configured")
		return false
	}
	return true
}

func (r *Router) requireArchive(w http.ResponseWriter) bool {
	if r.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "game archive is not configured")
		return false
	}
	return true
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if !r.requireUsers(w) {
		return
	}
	var body SignupRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := r.users.Create(req.Context(), body.Login, body.Name, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrLoginRequired),
			errors.Is(err, users.ErrNameRequired),
			errors.Is(err, users.ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, users.ErrLoginTaken), errors.Is(err, users.ErrNameTaken):
			writeError(w, http.StatusConflict, err.Error())
		default:
			obslog.L().Error("signup_error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	token, err := r.auth.GenerateToken(u.ID, u.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	obslog.L().Info("user_signup", zap.String("user_id", u.ID), zap.String("login", u.Login))
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, UserID: u.ID, Login: u.Login, Name: u.Name})
}

func (r *Router) handleSignin(w http.ResponseWriter, req *http.Request) {
	if !r.requireUsers(w) {
		return
	}
	var body SigninRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Login == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	u, err := r.users.Authenticate(req.Context(), body.Login, body.Password)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		obslog.L().Error("signin_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, err := r.auth.GenerateToken(u.ID, u.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, UserID: u.ID, Login: u.Login, Name: u.Name})
}

func (r *Router) handleLastGame(w http.ResponseWriter, req *http.Request) {
	if !r.requireArchive(w) {
		return
	}
	g, err := r.archive.LastGame(req.Context())
	if err != nil {
		obslog.L().Error("last_game_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "no finished games yet")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (r *Router) handleUserGames(w http.ResponseWriter, req *http.Request) {
	if !r.requireArchive(w) {
		return
	}
	userID := req.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	list, err := r.archive.ListByUser(req.Context(), userID, 20)
	if err != nil {
		obslog.L().Error("user_games_error", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (r *Router) handleUserStats(w http.ResponseWriter, req *http.Request) {
	if !r.requireArchive(w) {
		return
	}
	userID := req.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	st, err := r.archive.UserStats(req.Context(), userID)
	if err != nil {
		obslog.L().Error("user_stats_error", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
