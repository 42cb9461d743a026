package api

import (
	"net/http"

	"go.uber.org/zap"

	"seabattle/internal/obslog"
)

// handleJoinGame is a long poll: the request blocks until the queue pairs
// the player, then answers with the bare game id. Rejoining supersedes the
// previous poll, which is failed with a 500 like a dropped subscriber.
func (r *Router) handleJoinGame(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// A fresh join replaces any previous wait by the same player.
	r.queue.Leave(claims.UserID)
	ch, err := r.queue.Join(claims.UserID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	select {
	case m, ok := <-ch:
		if !ok {
			// Superseded by a newer join or cancelled via DELETE.
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(m.ID()))
	case <-req.Context().Done():
		r.queue.Leave(claims.UserID)
		obslog.L().Debug("joingame_poll_dropped", zap.String("user_id", claims.UserID))
	}
}

// handleLeaveQueue removes the player from the queue and answers "ok"
// whether or not they were waiting.
func (r *Router) handleLeaveQueue(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	r.queue.Leave(claims.UserID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
