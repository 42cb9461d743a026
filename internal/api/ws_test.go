package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"

	"seabattle/internal/auth"
	"seabattle/internal/game"
	"seabattle/internal/matchmaking"
	"seabattle/internal/store"
)

const testPlacement = "1111000000" +
	"0000000000" +
	"1110011100" +
	"0000000000" +
	"1100110011" +
	"0000000000" +
	"1010101000" +
	"0000000000" +
	"0000000000" +
	"0000000000"

type testEnv struct {
	server   *httptest.Server
	auth     *auth.Service
	registry *game.Registry
	queue    *matchmaking.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	st, err := store.New(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := game.NewRegistry(st)
	queue := matchmaking.NewQueue(registry, time.Hour)
	authService := auth.NewService("ws-test-secret", time.Hour)

	router := NewRouter(authService, nil, nil, registry, queue)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, auth: authService, registry: registry, queue: queue}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// waitFor reads frames until the wanted event arrives, skipping unrelated
// notifications along the way.
func waitFor(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", event, err)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad frame: %s", raw)
		}
		if env.Event == event {
			return env.Data
		}
	}
	t.Fatalf("event %s never arrived", event)
	return nil
}

func message(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("payload %s: %v", data, err)
	}
	return body.Message
}

func authClient(t *testing.T, e *testEnv, conn *websocket.Conn, userID string) {
	t.Helper()
	if got := message(t, waitFor(t, conn, game.EvWaitingForAuth)); got != "Server is waiting token from you" {
		t.Fatalf("auth prompt drifted: %q", got)
	}
	token, err := e.auth.GenerateToken(userID, userID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	send(t, conn, "userAuth", map[string]string{"token": token})
	if got := message(t, waitFor(t, conn, game.EvSuccessAuth)); got != "Success Authentication" {
		t.Fatalf("auth ack drifted: %q", got)
	}
}

func TestWSAuthErrors(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)

	waitFor(t, conn, game.EvWaitingForAuth)

	send(t, conn, "userAuth", map[string]any{})
	if got := message(t, waitFor(t, conn, game.EvUserAuthError)); got != "Token is expected" {
		t.Fatalf("missing token error drifted: %q", got)
	}

	send(t, conn, "userAuth", map[string]string{"token": "garbage"})
	if got := message(t, waitFor(t, conn, game.EvUserAuthError)); got != "Token is invalid" {
		t.Fatalf("bad token error drifted: %q", got)
	}

	// Anything else before auth is rejected as unauthorized.
	send(t, conn, "connectToGame", map[string]string{"id": "some-game"})
	if got := message(t, waitFor(t, conn, game.EvUserAuthError)); got != "User is not authorized" {
		t.Fatalf("unauthorized error drifted: %q", got)
	}
}

func TestWSConnectErrors(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)
	authClient(t, e, conn, "u1")

	send(t, conn, "connectToGame", map[string]any{})
	if got := message(t, waitFor(t, conn, game.EvConnectToGameError)); got != "Game id was expected" {
		t.Fatalf("missing id error drifted: %q", got)
	}

	send(t, conn, "connectToGame", map[string]string{"id": "missing-game"})
	if got := message(t, waitFor(t, conn, game.EvConnectToGameError)); got != "Game not found" {
		t.Fatalf("unknown game error drifted: %q", got)
	}

	// Operations require a prior successful connect.
	send(t, conn, "userReady", map[string]any{"gameId": "missing-game", "ready": true})
	if got := message(t, waitFor(t, conn, game.EvConnectToGameError)); got != "User dont connected to this game" {
		t.Fatalf("not connected error drifted: %q", got)
	}
}

func TestWSFullMatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	m, err := e.registry.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	gameID := m.ID()

	c1 := e.dial(t)
	c2 := e.dial(t)
	authClient(t, e, c1, "u1")
	authClient(t, e, c2, "u2")

	send(t, c1, "connectToGame", map[string]string{"id": gameID})
	waitFor(t, c1, game.EvSuccessConnectToGame)
	waitFor(t, c1, game.EvWaitingForReady)

	send(t, c2, "connectToGame", map[string]string{"id": gameID})
	waitFor(t, c2, game.EvSuccessConnectToGame)
	if got := message(t, waitFor(t, c1, game.EvEnemyIsConnected)); got != "Enemy is connected to game" {
		t.Fatalf("enemy notice drifted: %q", got)
	}

	send(t, c1, "userReady", map[string]any{"gameId": gameID, "ready": true})
	send(t, c2, "userReady", map[string]any{"gameId": gameID, "ready": true})
	if got := message(t, waitFor(t, c1, game.EvWaitingForHash)); got != "Server is waiting hash from you" {
		t.Fatalf("hash prompt drifted: %q", got)
	}
	waitFor(t, c2, game.EvWaitingForHash)

	hash1 := game.CommitmentHash(testPlacement, "salt-1")
	hash2 := game.CommitmentHash(testPlacement, "salt-2")
	send(t, c1, "setUserHash", map[string]string{"gameId": gameID, "hash": hash1})
	send(t, c2, "setUserHash", map[string]string{"gameId": gameID, "hash": hash2})
	if got := message(t, waitFor(t, c1, game.EvGameStarted)); got != "Game was started" {
		t.Fatalf("start notice drifted: %q", got)
	}
	waitFor(t, c2, game.EvGameStarted)

	send(t, c1, "userMakeMove", map[string]any{"gameId": gameID, "x": 0, "y": 0})
	data := waitFor(t, c2, game.EvWaitingForMoveResult)
	var mr game.MoveResultPayload
	if err := json.Unmarshal(data, &mr); err != nil {
		t.Fatalf("move result payload: %v", err)
	}
	if mr.UserID != "u2" || mr.X != 0 || mr.Y != 0 {
		t.Fatalf("unexpected move result payload: %+v", mr)
	}

	send(t, c2, "userMoveResult", map[string]any{"gameId": gameID, "x": 0, "y": 0, "hit": false})
	data = waitFor(t, c1, game.EvWaitingForMove)
	var mv game.MovePayload
	if err := json.Unmarshal(data, &mv); err != nil {
		t.Fatalf("move payload: %v", err)
	}
	if mv.UserID != "u2" {
		t.Fatalf("miss must pass the turn to u2, got %q", mv.UserID)
	}

	// Fast-forward combat through the engine and finish the reveal over
	// the wire.
	for y := 0; y < game.FieldSize; y++ {
		for x := 0; x < game.FieldSize; x++ {
			if m.Phase() != game.PhaseFighting {
				break
			}
			if err := m.MakeMove(ctx, "u2", x, y); err != nil {
				t.Fatalf("move (%d,%d): %v", x, y, err)
			}
			if err := m.ConfirmMoveResult(ctx, "u1", x, y, true); err != nil {
				t.Fatalf("confirm (%d,%d): %v", x, y, err)
			}
		}
	}
	if got := message(t, waitFor(t, c1, game.EvWaitingForPlacement)); got != "Server is waiting placement from you" {
		t.Fatalf("reveal prompt drifted: %q", got)
	}

	send(t, c1, "setUserPlacement", map[string]string{"gameId": gameID, "placement": testPlacement})
	if got := message(t, waitFor(t, c1, game.EvAcceptPlacement)); got != "ok" {
		t.Fatalf("placement ack drifted: %q", got)
	}
	send(t, c2, "setUserPlacement", map[string]string{"gameId": gameID, "placement": testPlacement})
	waitFor(t, c1, game.EvWaitingForSalt)

	send(t, c1, "setUserSalt", map[string]string{"gameId": gameID, "salt": "salt-1"})
	send(t, c2, "setUserSalt", map[string]string{"gameId": gameID, "salt": "salt-2"})

	data = waitFor(t, c1, game.EvGameFinished)
	var fin game.FinishedPayload
	if err := json.Unmarshal(data, &fin); err != nil {
		t.Fatalf("finish payload: %v", err)
	}
	if fin.Message != "Game was finished" || fin.Winner != "u2" {
		t.Fatalf("unexpected finish payload: %+v", fin)
	}
	waitFor(t, c2, game.EvGameFinished)
}
