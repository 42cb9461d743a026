package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"seabattle/internal/game"
	"seabattle/internal/obslog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// A placement string plus envelope fits comfortably.
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Envelope is the wire frame in both directions: an event name and its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsClient is one player connection. It implements game.Conn: Emit queues
// the frame and never blocks, a full buffer drops the frame instead of
// stalling the match.
type wsClient struct {
	router *Router
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	userID string
	match  *game.Match
}

// Emit implements game.Conn.
func (c *wsClient) Emit(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		obslog.L().Error("ws_marshal_error", zap.String("event", event), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		obslog.L().Warn("ws_send_dropped", zap.String("event", event), zap.String("user_id", c.user()))
	}
}

func (c *wsClient) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *wsClient) setUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *wsClient) boundMatch() *game.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

func (c *wsClient) bindMatch(m *game.Match) {
	c.mu.Lock()
	c.match = m
	c.mu.Unlock()
}

// handleWebSocket upgrades the connection and starts the pumps. The server
// speaks first: it asks for the auth token.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		obslog.L().Error("ws_upgrade_error", zap.Error(err))
		return
	}
	client := &wsClient{
		router: r,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	go client.writePump()
	go client.readPump()

	client.Emit(game.EvWaitingForAuth, game.MessagePayload{Message: "Server is waiting token from you"})
}

func (c *wsClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				obslog.L().Debug("ws_read_error", zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			obslog.L().Debug("ws_bad_frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Protocol violations are reported on
// the offending connection under their family event; anything else is a
// server-side problem and only gets logged.
func (c *wsClient) dispatch(env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	var err error
	switch env.Event {
	case "userAuth":
		err = c.onUserAuth(env.Data)
	case "connectToGame":
		err = c.onConnectToGame(ctx, env.Data)
	case "userReady":
		err = c.onUserReady(ctx, env.Data)
	case "setUserHash":
		err = c.onSetUserHash(ctx, env.Data)
	case "setUserPlacement":
		err = c.onSetUserPlacement(ctx, env.Data)
	case "setUserSalt":
		err = c.onSetUserSalt(ctx, env.Data)
	case "userMakeMove":
		err = c.onUserMakeMove(ctx, env.Data)
	case "userMoveResult":
		err = c.onUserMoveResult(ctx, env.Data)
	default:
		obslog.L().Debug("ws_unknown_event", zap.String("event", env.Event))
		return
	}

	if err == nil {
		return
	}
	var pe *game.ProtocolError
	if errors.As(err, &pe) {
		c.Emit(pe.Event, game.MessagePayload{Message: pe.Message})
		return
	}
	obslog.L().Error("ws_handler_error", zap.String("event", env.Event), zap.String("user_id", c.user()), zap.Error(err))
}

func decodeInto(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

// requireAuth returns the authenticated user id.
func (c *wsClient) requireAuth() (string, error) {
	userID := c.user()
	if userID == "" {
		return "", &game.ProtocolError{Event: game.EvUserAuthError, Message: "User is not authorized"}
	}
	return userID, nil
}

// requireMatch checks that this connection went through connectToGame for
// the given game id.
func (c *wsClient) requireMatch(gameID string) (*game.Match, string, error) {
	userID, err := c.requireAuth()
	if err != nil {
		return nil, "", err
	}
	m := c.boundMatch()
	if m == nil || m.ID() != gameID {
		return nil, "", &game.ProtocolError{Event: game.EvConnectToGameError, Message: "User dont connected to this game"}
	}
	return m, userID, nil
}

func protoErr(event, message string) error {
	return &game.ProtocolError{Event: event, Message: message}
}

func (c *wsClient) onUserAuth(data json.RawMessage) error {
	var body struct {
		Token *string `json:"token"`
	}
	decodeInto(data, &body)
	if body.Token == nil {
		return protoErr(game.EvUserAuthError, "Token is expected")
	}
	claims, err := c.router.auth.ValidateToken(*body.Token)
	if err != nil {
		return protoErr(game.EvUserAuthError, "Token is invalid")
	}
	c.setUser(claims.UserID)
	c.Emit(game.EvSuccessAuth, game.MessagePayload{Message: "Success Authentication"})
	obslog.L().Info("ws_auth", zap.String("user_id", claims.UserID))
	return nil
}

func (c *wsClient) onConnectToGame(ctx context.Context, data json.RawMessage) error {
	var body struct {
		ID *string `json:"id"`
	}
	decodeInto(data, &body)
	if body.ID == nil {
		return protoErr(game.EvConnectToGameError, "Game id was expected")
	}
	userID, err := c.requireAuth()
	if err != nil {
		return err
	}

	m, err := c.router.registry.GetOrLoad(ctx, *body.ID)
	if err != nil {
		if errors.Is(err, game.ErrGameNotFound) {
			return protoErr(game.EvConnectToGameError, "Game not found")
		}
		return err
	}
	if err := m.Connect(ctx, userID, c); err != nil {
		return err
	}
	c.bindMatch(m)
	return nil
}

func (c *wsClient) onUserReady(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID *string `json:"gameId"`
		Ready  *bool   `json:"ready"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserReadyError, "gameId was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	ready := body.Ready != nil && *body.Ready
	return m.SetReady(ctx, userID, ready)
}

func (c *wsClient) onSetUserHash(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID *string `json:"gameId"`
		Hash   *string `json:"hash"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserHashError, "gameId was expected")
	}
	if body.Hash == nil {
		return protoErr(game.EvUserHashError, "Hash was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	return m.SetHash(ctx, userID, *body.Hash)
}

func (c *wsClient) onSetUserPlacement(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID    *string `json:"gameId"`
		Placement *string `json:"placement"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserPlacementError, "gameId was expected")
	}
	if body.Placement == nil {
		return protoErr(game.EvUserPlacementError, "Placement was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	return m.SetPlacement(ctx, userID, *body.Placement)
}

func (c *wsClient) onSetUserSalt(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID *string `json:"gameId"`
		Salt   *string `json:"salt"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserSaltError, "gameId was expected")
	}
	if body.Salt == nil {
		return protoErr(game.EvUserSaltError, "salt was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	return m.SetSalt(ctx, userID, *body.Salt)
}

func (c *wsClient) onUserMakeMove(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID *string `json:"gameId"`
		X      *int    `json:"x"`
		Y      *int    `json:"y"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserMakeMoveError, "gameId was expected")
	}
	if body.X == nil {
		return protoErr(game.EvUserMakeMoveError, "x was expected")
	}
	if body.Y == nil {
		return protoErr(game.EvUserMakeMoveError, "y was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	return m.MakeMove(ctx, userID, *body.X, *body.Y)
}

func (c *wsClient) onUserMoveResult(ctx context.Context, data json.RawMessage) error {
	var body struct {
		GameID *string `json:"gameId"`
		X      *int    `json:"x"`
		Y      *int    `json:"y"`
		Hit    *bool   `json:"hit"`
	}
	decodeInto(data, &body)
	if body.GameID == nil {
		return protoErr(game.EvUserMoveResultError, "gameId was expected")
	}
	if body.X == nil {
		return protoErr(game.EvUserMoveResultError, "x was expected")
	}
	if body.Y == nil {
		return protoErr(game.EvUserMoveResultError, "y was expected")
	}
	if body.Hit == nil {
		return protoErr(game.EvUserMoveResultError, "hit was expected")
	}
	m, userID, err := c.requireMatch(*body.GameID)
	if err != nil {
		return err
	}
	return m.ConfirmMoveResult(ctx, userID, *body.X, *body.Y, *body.Hit)
}
