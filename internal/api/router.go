// Package api exposes the REST surface and the websocket gateway players
// speak to.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"seabattle/internal/archive"
	"seabattle/internal/auth"
	"seabattle/internal/game"
	"seabattle/internal/matchmaking"
	"seabattle/internal/users"
)

// Router holds the HTTP routes and dependencies.
type Router struct {
	mux      *http.ServeMux
	auth     *auth.Service
	users    *users.Repository
	archive  *archive.Repository
	registry *game.Registry
	queue    *matchmaking.Queue
}

func NewRouter(authService *auth.Service, userRepo *users.Repository, archiveRepo *archive.Repository, registry *game.Registry, queue *matchmaking.Queue) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		auth:     authService,
		users:    userRepo,
		archive:  archiveRepo,
		registry: registry,
		queue:    queue,
	}

	r.mux.HandleFunc("POST /api/auth/signup", r.handleSignup)
	r.mux.HandleFunc("POST /api/auth/signin", r.handleSignin)

	r.mux.HandleFunc("POST /api/joingame", r.requireAuth(r.handleJoinGame))
	r.mux.HandleFunc("DELETE /api/joingame", r.requireAuth(r.handleLeaveQueue))

	r.mux.HandleFunc("GET /api/games/last", r.handleLastGame)
	r.mux.HandleFunc("GET /api/games/user/{id}", r.handleUserGames)
	r.mux.HandleFunc("GET /api/users/{id}/stats", r.handleUserStats)

	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth validates the bearer token before calling the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.getAuthClaims(req) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	}
}

// getAuthClaims extracts and validates the token from the Authorization
// header. A bare token without the Bearer prefix is accepted too.
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		return nil
	}
	token := strings.TrimPrefix(header, "Bearer ")
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil
	}
	return claims
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
