package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Envelope is the wire frame in both directions: an event name and its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

// EventCallback receives every inbound frame.
type EventCallback func(event string, data json.RawMessage)

type StateCallback func(state WebSocketState)

type eventCallbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

type WebSocket struct {
	wsURL string

	conn   *websocket.Conn
	state  WebSocketState
	stateM sync.RWMutex

	eventCbs []eventCallbackEntry
	stateCbs []stateCallbackEntry
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration

	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewWebSocket(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *WebSocket {
	return &WebSocket{
		wsURL:                wsURL,
		state:                WSStateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		eventCbs:             make([]eventCallbackEntry, 0),
		stateCbs:             make([]stateCallbackEntry, 0),
	}
}

func (ws *WebSocket) Connect(ctx context.Context) error {
	ws.stateM.Lock()
	if ws.state == WSStateConnected || ws.state == WSStateConnecting {
		ws.stateM.Unlock()
		return nil
	}
	ws.stateM.Unlock()

	ws.rootCtx, ws.rootCancel = context.WithCancel(context.Background())
	ws.setState(WSStateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		ws.setState(WSStateFailed)
		ws.scheduleReconnect()
		return err
	}

	ws.setConn(conn)
	ws.setState(WSStateConnected)

	ws.wg.Add(2)
	go ws.listen()
	go ws.pingLoop()
	return nil
}

// Send writes one event frame. Callers send sequentially; wsjson.Write is
// not safe for concurrent writers.
func (ws *WebSocket) Send(ctx context.Context, event string, payload any) error {
	ws.stateM.RLock()
	conn, state := ws.conn, ws.state
	ws.stateM.RUnlock()
	if conn == nil || state != WSStateConnected {
		return errors.New("ws not connected")
	}
	env := Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = raw
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return wsjson.Write(dctx, conn, &env)
}

func (ws *WebSocket) listen() {
	defer ws.wg.Done()
	for {
		select {
		case <-ws.stopCh:
			return
		default:
		}

		conn := ws.getConn()
		if conn == nil {
			return
		}
		var env Envelope
		if err := wsjson.Read(ws.rootCtx, conn, &env); err != nil {
			if ws.isStopping() {
				return
			}
			ws.setState(WSStateDisconnected)
			_ = ws.closeConn(websocket.StatusGoingAway, "reconnect")
			ws.scheduleReconnect()
			return
		}

		ws.cbM.RLock()
		callbacks := make([]eventCallbackEntry, len(ws.eventCbs))
		copy(callbacks, ws.eventCbs)
		ws.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(env.Event, env.Data)
			}
		}
	}
}

func (ws *WebSocket) pingLoop() {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
			conn := ws.getConn()
			if conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					if ws.isStopping() {
						return
					}
					ws.setState(WSStateDisconnected)
					_ = ws.closeConn(websocket.StatusGoingAway, "ping failure")
					ws.scheduleReconnect()
					consecutivePingFailures = 0
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}

func (ws *WebSocket) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 {
		return
	}
	ws.setState(WSStateReconnecting)

	go func() {
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			delay := backoffDuration(attempt)
			if delay < ws.reconnectDelay {
				delay = ws.reconnectDelay
			}
			select {
			case <-ws.stopCh:
				return
			case <-time.After(delay):
			}

			dialCtx, cancel := context.WithTimeout(ws.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				continue
			}

			ws.setConn(conn)
			ws.setState(WSStateConnected)

			ws.wg.Add(2)
			go ws.listen()
			go ws.pingLoop()
			return
		}
		ws.setState(WSStateFailed)
	}()
}

func (ws *WebSocket) OnEvent(cb EventCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	id := len(ws.eventCbs) + 1
	ws.eventCbs = append(ws.eventCbs, eventCallbackEntry{id: id, callback: cb})
	return id
}

func (ws *WebSocket) RemoveEventCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.eventCbs {
		if cb.id == id {
			ws.eventCbs = append(ws.eventCbs[:i], ws.eventCbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) OnStateChange(cb StateCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	id := len(ws.stateCbs) + 1
	ws.stateCbs = append(ws.stateCbs, stateCallbackEntry{id: id, callback: cb})
	return id
}

func (ws *WebSocket) RemoveStateCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.stateCbs {
		if cb.id == id {
			ws.stateCbs = append(ws.stateCbs[:i], ws.stateCbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) setState(state WebSocketState) {
	ws.stateM.Lock()
	ws.state = state
	ws.stateM.Unlock()

	ws.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(ws.stateCbs))
	copy(callbacks, ws.stateCbs)
	ws.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	_ = ws.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if ws.rootCancel != nil {
			ws.rootCancel()
		}
		return nil
	}
}

func (ws *WebSocket) closeConn(code websocket.StatusCode, reason string) error {
	ws.stateM.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.stateM.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

// State reports the current connection state.
func (ws *WebSocket) State() WebSocketState {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.state
}

func (ws *WebSocket) getConn() *websocket.Conn {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.conn
}

func (ws *WebSocket) setConn(conn *websocket.Conn) {
	ws.stateM.Lock()
	ws.conn = conn
	ws.stateM.Unlock()
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}
