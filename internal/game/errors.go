package game

// Error event families, one per inbound operation. A ProtocolError is
// delivered to the offending connection under its family name and never
// terminates the connection or the match.
const (
	EvUserAuthError       = "userAuthError"
	EvConnectToGameError  = "connectToGameError"
	EvUserReadyError      = "userReadyError"
	EvUserHashError       = "userHashError"
	EvUserMakeMoveError   = "userMakeMoveError"
	EvUserMoveResultError = "userMoveResultError"
	EvUserPlacementError  = "userPlacementError"
	EvUserSaltError       = "userSaltError"
)

// ProtocolError is a typed, client-visible violation. Message is one of the
// fixed catalogue literals; anything else reaching a client is a bug.
type ProtocolError struct {
	Event   string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Event
}

func protoErr(event, message string) *ProtocolError {
	return &ProtocolError{Event: event, Message: message}
}
