package game

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"seabattle/internal/obslog"
)

// playerSlot holds everything the engine tracks per participant. The conn
// handle is replaced on reconnect; at most one handle is bound at a time.
type playerSlot struct {
	userID    string
	conn      Conn
	ready     bool
	hash      string
	placement string
	salt      string
	result    string
}

// Match is the in-memory state machine of one running match. All mutating
// operations take the match mutex, so calls for the same match linearize
// while different matches proceed in parallel.
//
// The commit window (PhaseWaitingForHash) gates hash, placement and salt
// submission alike, and the post-combat reveal window reuses the same
// gates; see DESIGN.md for the phase-overlap rationale.
type Match struct {
	mu      sync.Mutex
	id      string
	phase   Phase
	users   [2]playerSlot
	history History
	winner  string

	store    Store
	onFinish func(rec *Record)

	// Set by checkGameFinishLocked, delivered by flushFinish once the
	// match lock is released.
	pendingFinish *Record
}

// NewMatch hydrates a state machine from a persisted record. Ready flags
// are reconstructed from the phase: past the ready gate, both players were
// ready by definition.
func NewMatch(rec *Record, store Store) (*Match, error) {
	m := &Match{
		id:    rec.ID,
		phase: Phase(rec.Status),
		store: store,
	}
	ready := m.phase > PhaseWaitingForReady
	m.users[0] = playerSlot{
		userID:    rec.User1,
		ready:     ready,
		hash:      rec.Hash1,
		placement: rec.Placement1,
		salt:      rec.Salt1,
		result:    rec.Result1,
	}
	m.users[1] = playerSlot{
		userID:    rec.User2,
		ready:     ready,
		hash:      rec.Hash2,
		placement: rec.Placement2,
		salt:      rec.Salt2,
		result:    rec.Result2,
	}
	m.winner = rec.Winner
	if err := m.history.FromJSON(rec.History); err != nil {
		return nil, err
	}
	return m, nil
}

// ID returns the match id.
func (m *Match) ID() string { return m.id }

// SetFinishHook registers the callback run after the match reaches
// PhaseFinished; the registry uses it for eviction and archival.
func (m *Match) SetFinishHook(fn func(rec *Record)) {
	m.mu.Lock()
	m.onFinish = fn
	m.mu.Unlock()
}

// localID resolves a player to slot indexes, mirroring the record's
// first/second listing.
func (m *Match) localID(userID string) (me, enemy int, ok bool) {
	if m.users[0].userID == userID {
		return 0, 1, true
	}
	if m.users[1].userID == userID {
		return 1, 0, true
	}
	return 0, 0, false
}

// HasParticipant reports whether userID holds one of the two slots. Slot
// ownership never changes after construction, so no lock is needed.
func (m *Match) HasParticipant(userID string) bool {
	_, _, ok := m.localID(userID)
	return ok
}

func (m *Match) emitToClients(event string, data any) {
	for i := range m.users {
		if c := m.users[i].conn; c != nil {
			c.Emit(event, data)
		}
	}
}

func (m *Match) emitToSlot(slot int, event string, data any) {
	if c := m.users[slot].conn; c != nil {
		c.Emit(event, data)
	}
}

// Connect binds a live connection handle to the player's slot, replacing
// any prior handle (reconnect). The opponent is told, and the connecting
// player receives the notice matching the current waiting phase.
func (m *Match) Connect(ctx context.Context, userID string, conn Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseFinished {
		return protoErr(EvConnectToGameError, "Game is already finished")
	}
	me, enemy, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User havent access to this game")
	}

	if m.phase == PhaseCreated {
		if err := m.store.UpdateGame(ctx, m.id, Update{Status: intPtr(int(PhaseWaitingForReady))}); err != nil {
			return err
		}
		m.phase = PhaseWaitingForReady
	}

	m.users[me].conn = conn
	conn.Emit(EvSuccessConnectToGame, MessagePayload{Message: "Success connection to the game"})
	m.emitToSlot(enemy, EvEnemyIsConnected, MessagePayload{Message: "Enemy is connected to game"})

	switch m.phase {
	case PhaseWaitingForReady:
		conn.Emit(EvWaitingForReady, MessagePayload{Message: "Server is waiting you ready"})
	case PhaseWaitingForHash:
		conn.Emit(EvWaitingForHash, MessagePayload{Message: "Server is waiting hash from you"})
	}

	obslog.L().Info("game_connect", zap.String("game_id", m.id), zap.String("user_id", userID))
	return nil
}

// SetReady marks the player ready. Once both slots are ready the match
// enters the commit window and both players are asked for their hash.
func (m *Match) SetReady(ctx context.Context, userID string, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, _, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if !ready {
		return protoErr(EvUserReadyError, "Expected ready equals true")
	}
	if m.phase > PhaseWaitingForReady {
		return protoErr(EvUserReadyError, "Game is already running")
	}

	me, _, _ := m.localID(userID)
	m.users[me].ready = true
	if !m.users[0].ready || !m.users[1].ready {
		return nil
	}

	if err := m.store.UpdateGame(ctx, m.id, Update{Status: intPtr(int(PhaseWaitingForHash))}); err != nil {
		m.users[me].ready = false
		return err
	}
	m.phase = PhaseWaitingForHash
	m.emitToClients(EvWaitingForHash, MessagePayload{Message: "Server is waiting hash from you"})
	obslog.L().Info("game_commit_wait", zap.String("game_id", m.id))
	return nil
}

// SetHash stores the player's placement commitment. The store validates and
// persists it first; a store rejection surfaces as an incorrect-hash
// protocol error without advancing anything. Both hashes start combat.
func (m *Match) SetHash(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, _, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if m.phase != PhaseWaitingForHash {
		return protoErr(EvUserHashError, "Unexpected hash")
	}
	if err := m.store.SetUserHash(ctx, m.id, userID, hash); err != nil {
		return protoErr(EvUserHashError, "Incorrect hash")
	}
	m.users[me].hash = hash

	if m.users[0].hash == "" || m.users[1].hash == "" {
		return nil
	}
	if err := m.store.UpdateGame(ctx, m.id, Update{Status: intPtr(int(PhaseFighting))}); err != nil {
		return err
	}
	m.phase = PhaseFighting
	m.emitToClients(EvGameStarted, MessagePayload{Message: "Game was started"})
	obslog.L().Info("game_started", zap.String("game_id", m.id))
	return nil
}

// SetPlacement validates and stores the player's revealed board. A geometry
// failure records a terminal outcome for the player and does not advance
// the phase. Once both boards are in, both players are asked for salt.
//
// Accepted during the commit window and again during the post-combat reveal
// window; the two windows share their gate.
func (m *Match) SetPlacement(ctx context.Context, userID, placement string) error {
	err := m.setPlacement(ctx, userID, placement)
	m.flushFinish()
	return err
}

func (m *Match) setPlacement(ctx context.Context, userID, placement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, _, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if m.phase != PhaseWaitingForHash && m.phase != PhaseWaitingForPlacement {
		return protoErr(EvUserPlacementError, "Unexpected placement")
	}

	field, err := ParsePlacement(placement)
	if err != nil {
		return protoErr(EvUserPlacementError, "Incorrect placement format")
	}
	if !CheckShipSum(field) || !CheckDiagonalCollision(field) {
		return m.failAuditLocked(ctx, me, ResultIncorrectPlacement, EvUserPlacementError, "Incorrect placement")
	}

	if err := m.store.SetUserPlacement(ctx, m.id, userID, placement); err != nil {
		return err
	}
	m.users[me].placement = placement
	m.emitToSlot(me, EvAcceptPlacement, MessagePayload{Message: "ok"})

	if m.users[0].placement != "" && m.users[1].placement != "" {
		m.emitToClients(EvWaitingForSalt, MessagePayload{Message: "Server is waiting salt from you"})
	}
	return nil
}

// MakeMove appends a shot to the ledger. Turn order is derived from the
// ledger's last record: first-listed player opens, a confirmed hit grants
// an extra turn, a confirmed miss passes the turn.
func (m *Match) MakeMove(ctx context.Context, userID string, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, enemy, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if x < 0 || x > FieldSize-1 {
		return protoErr(EvUserMakeMoveError, "x can take a value from 0 to 9")
	}
	if y < 0 || y > FieldSize-1 {
		return protoErr(EvUserMakeMoveError, "y can take a value from 0 to 9")
	}
	if m.phase != PhaseFighting {
		return protoErr(EvUserMakeMoveError, "Game is not running")
	}

	last, exists := m.history.LastMove()
	switch {
	case !exists:
		// Nobody has moved: the first-listed player opens.
		if me != 0 {
			return protoErr(EvUserMakeMoveError, "The enemy move is expected")
		}
	case last.Hit == nil:
		if last.UserID == userID {
			return protoErr(EvUserMakeMoveError, "Your move result is waiting from enemy")
		}
		return protoErr(EvUserMakeMoveError, "Enemy move result is waiting from your")
	case *last.Hit:
		// Extra turn on hit.
		if last.UserID != userID {
			return protoErr(EvUserMakeMoveError, "The enemy move is expected")
		}
		if m.history.FindMove(userID, x, y) {
			return protoErr(EvUserMakeMoveError, "This move already exists")
		}
	default:
		// Confirmed miss: the turn passed to the other player.
		if last.UserID == userID {
			return protoErr(EvUserMakeMoveError, "The enemy move is expected")
		}
	}

	if err := m.history.Push(userID, x, y); err != nil {
		return protoErr(EvUserMakeMoveError, "Your move result is waiting from enemy")
	}
	if err := m.persistHistoryLocked(ctx); err != nil {
		m.history.dropLast()
		return err
	}
	m.emitToClients(EvWaitingForMoveResult, MoveResultPayload{UserID: m.users[enemy].userID, X: x, Y: y})
	return nil
}

// ConfirmMoveResult lets the non-mover confirm the last shot's outcome.
// When the mover's confirmed hit count reaches the fleet's cell total,
// combat ends and both players are asked to reveal their boards.
func (m *Match) ConfirmMoveResult(ctx context.Context, userID string, x, y int, hit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, enemy, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if x < 0 || x > FieldSize-1 {
		return protoErr(EvUserMoveResultError, "x can take a value from 0 to 9")
	}
	if y < 0 || y > FieldSize-1 {
		return protoErr(EvUserMoveResultError, "y can take a value from 0 to 9")
	}
	if m.phase != PhaseFighting {
		return protoErr(EvUserMoveResultError, "Game is not running")
	}

	last, exists := m.history.LastMove()
	if !exists {
		if me == 0 {
			return protoErr(EvUserMoveResultError, "Your move is expected")
		}
		return protoErr(EvUserMoveResultError, "Enemy move is expected")
	}
	if last.Hit != nil {
		// Already confirmed: whoever moves next is told so.
		next := last.UserID
		if !*last.Hit {
			next = m.users[enemy].userID
			if last.UserID != userID {
				next = m.users[me].userID
			}
		}
		if next == userID {
			return protoErr(EvUserMoveResultError, "Your move is expected")
		}
		return protoErr(EvUserMoveResultError, "Enemy move is expected")
	}
	if last.UserID == userID {
		return protoErr(EvUserMoveResultError, "You can't confirm your own move")
	}
	if last.Move.X != x || last.Move.Y != y {
		return protoErr(EvUserMoveResultError, "Incorrect last move coordinates")
	}

	m.history.SetHitToLastMove(hit)
	if err := m.persistHistoryLocked(ctx); err != nil {
		m.history.clearLastHit()
		return err
	}

	// The confirmer's opponent is the mover; all of a fleet's cells hit
	// means the confirmer's fleet is fully sunk.
	if m.history.CountOfHits(m.users[enemy].userID) == ShipCells {
		if err := m.store.UpdateGame(ctx, m.id, Update{Status: intPtr(int(PhaseWaitingForPlacement))}); err != nil {
			return err
		}
		m.phase = PhaseWaitingForPlacement
		m.emitToClients(EvWaitingForPlacement, MessagePayload{Message: "Server is waiting placement from you"})
		obslog.L().Info("game_combat_over", zap.String("game_id", m.id), zap.String("sunk", userID))
		return nil
	}

	if hit {
		m.emitToClients(EvWaitingForMove, MovePayload{UserID: m.users[enemy].userID})
	} else {
		m.emitToClients(EvWaitingForMove, MovePayload{UserID: userID})
	}
	return nil
}

// SetSalt verifies the revealed salt against the stored commitment and
// placement. A mismatch records a terminal outcome; a match records "Ok"
// and may complete the game once both outcomes are in.
func (m *Match) SetSalt(ctx context.Context, userID, salt string) error {
	err := m.setSalt(ctx, userID, salt)
	m.flushFinish()
	return err
}

func (m *Match) setSalt(ctx context.Context, userID, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, _, ok := m.localID(userID)
	if !ok {
		return protoErr(EvConnectToGameError, "User dont connected to this game")
	}
	if m.phase != PhaseWaitingForHash && m.phase != PhaseWaitingForPlacement {
		return protoErr(EvUserSaltError, "Unexpected salt")
	}
	slot := &m.users[me]
	if slot.hash == "" || slot.placement == "" {
		return protoErr(EvUserSaltError, "Unexpected salt")
	}
	if !VerifySalt(salt) {
		return m.failAuditLocked(ctx, me, ResultIncorrectSalt, EvUserSaltError, "Incorrect salt")
	}

	if err := m.store.SetUserSalt(ctx, m.id, userID, salt); err != nil {
		return err
	}
	slot.salt = salt

	if !VerifyHash(slot.hash, slot.placement, salt) {
		return m.failAuditLocked(ctx, me, ResultHashesNotEqual, EvUserHashError, "Hashes are not equals")
	}

	m.setResultLocked(ctx, me, ResultOk)
	return m.checkGameFinishLocked(ctx)
}

// setResultLocked records a terminal per-player outcome in memory and in
// the store. The store write is best effort: an outcome is an audit tag,
// not a phase gate.
func (m *Match) setResultLocked(ctx context.Context, slot int, result string) {
	m.users[slot].result = result
	if err := m.store.SetUserResult(ctx, m.id, m.users[slot].userID, result); err != nil {
		obslog.L().Error("game_result_persist_error",
			zap.String("game_id", m.id),
			zap.String("user_id", m.users[slot].userID),
			zap.Error(err))
	}
}

// failAuditLocked records a terminal audit failure and still runs the
// completion check: a failed second audit must close the game, not strand
// it. The client sees the protocol error either way.
func (m *Match) failAuditLocked(ctx context.Context, slot int, result, event, message string) error {
	m.setResultLocked(ctx, slot, result)
	if err := m.checkGameFinishLocked(ctx); err != nil {
		obslog.L().Error("game_finish_error", zap.String("game_id", m.id), zap.Error(err))
	}
	return protoErr(event, message)
}

// checkGameFinishLocked decides the winner once both outcomes are present:
// both "Ok" → the player credited with the final confirmed hit; one "Ok" →
// forfeit win; none → no winner. The match is then finished and broadcast;
// the finish hook is queued for flushFinish, which runs it after the match
// lock is released so the hook can do registry and archive work.
func (m *Match) checkGameFinishLocked(ctx context.Context) error {
	if m.users[0].result == "" || m.users[1].result == "" {
		return nil
	}

	switch {
	case m.users[0].result == ResultOk && m.users[1].result == ResultOk:
		if last, ok := m.history.LastMove(); ok {
			m.winner = last.UserID
		}
	case m.users[0].result == ResultOk:
		m.winner = m.users[0].userID
	case m.users[1].result == ResultOk:
		m.winner = m.users[1].userID
	}

	upd := Update{Status: intPtr(int(PhaseFinished))}
	if m.winner != "" {
		upd.Winner = strPtr(m.winner)
	}
	if err := m.store.UpdateGame(ctx, m.id, upd); err != nil {
		return err
	}
	m.phase = PhaseFinished
	m.emitToClients(EvGameFinished, FinishedPayload{Message: "Game was finished", Winner: m.winner})
	obslog.L().Info("game_finished", zap.String("game_id", m.id), zap.String("winner", m.winner))

	m.pendingFinish = m.snapshotLocked()
	return nil
}

// flushFinish delivers the finish hook outside the match lock. Only the
// reveal operations can finish a game, so they are the only callers.
func (m *Match) flushFinish() {
	m.mu.Lock()
	rec, hook := m.pendingFinish, m.onFinish
	m.pendingFinish = nil
	m.mu.Unlock()
	if rec != nil && hook != nil {
		hook(rec)
	}
}

func (m *Match) persistHistoryLocked(ctx context.Context) error {
	raw, err := m.history.ToJSON()
	if err != nil {
		return err
	}
	return m.store.UpdateGame(ctx, m.id, Update{History: strPtr(raw)})
}

// Snapshot returns a copy of the match as a persisted-record projection.
func (m *Match) Snapshot() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() *Record {
	history, _ := m.history.ToJSON()
	return &Record{
		ID:         m.id,
		User1:      m.users[0].userID,
		User2:      m.users[1].userID,
		Status:     int(m.phase),
		Hash1:      m.users[0].hash,
		Hash2:      m.users[1].hash,
		Placement1: m.users[0].placement,
		Placement2: m.users[1].placement,
		Salt1:      m.users[0].salt,
		Salt2:      m.users[1].salt,
		Result1:    m.users[0].result,
		Result2:    m.users[1].result,
		History:    history,
		Winner:     m.winner,
	}
}

// Phase returns the current coarse phase.
func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Winner returns the recorded winner id, empty while undecided.
func (m *Match) Winner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winner
}
