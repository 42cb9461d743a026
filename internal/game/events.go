package game

// Outbound event names. These are wire literals shared with the reference
// client; renaming any of them breaks the protocol.
const (
	EvWaitingForAuth       = "waitingForAuth"
	EvSuccessAuth          = "successAuth"
	EvSuccessConnectToGame = "successConnectToGame"
	EvEnemyIsConnected     = "enemyIsConnected"
	EvWaitingForReady      = "waitingForReady"
	EvWaitingForHash       = "waitingForHash"
	EvGameStarted          = "gameStarted"
	EvWaitingForMove       = "waitingForMove"
	EvWaitingForMoveResult = "waitingForMoveResult"
	EvWaitingForPlacement  = "waitingForPlacement"
	EvAcceptPlacement      = "acceptPlacement"
	EvWaitingForSalt       = "waitingForSalt"
	EvGameFinished         = "gameFinished"
)

// Conn is a live connection handle bound to a player slot. Implementations
// must not block: a slow or closed peer drops the notification, it never
// stalls match progress.
type Conn interface {
	Emit(event string, data any)
}

// MessagePayload carries the plain {message} notifications.
type MessagePayload struct {
	Message string `json:"message"`
}

// MovePayload names the player whose move the server now waits for.
type MovePayload struct {
	UserID string `json:"userId"`
}

// MoveResultPayload names the player who must confirm the shot at (x, y).
type MoveResultPayload struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// FinishedPayload closes a match. Winner is empty when neither player
// passed the commitment audit.
type FinishedPayload struct {
	Message string `json:"message"`
	Winner  string `json:"winner,omitempty"`
}
