package game

import (
	"encoding/json"
	"errors"
)

var ErrUnconfirmedMove = errors.New("last move is not confirmed yet")

// Coord is a board coordinate; x runs along a row, y down the rows.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// HistoryRecord is one ledger entry. Hit is nil while the opponent has not
// confirmed the shot; only the final record may be unconfirmed.
type HistoryRecord struct {
	UserID string `json:"userId"`
	Move   Coord  `json:"move"`
	Hit    *bool  `json:"hit,omitempty"`
}

// History is the append-only move ledger of one match. It does not validate
// turn order; callers enforce that before appending.
type History struct {
	records []HistoryRecord
}

// Push appends an unconfirmed move. It fails while the last record still
// awaits confirmation.
func (h *History) Push(userID string, x, y int) error {
	if n := len(h.records); n > 0 && h.records[n-1].Hit == nil {
		return ErrUnconfirmedMove
	}
	h.records = append(h.records, HistoryRecord{UserID: userID, Move: Coord{X: x, Y: y}})
	return nil
}

// SetHitToLastMove confirms the most recent record. No-op on an empty ledger.
func (h *History) SetHitToLastMove(hit bool) {
	if n := len(h.records); n > 0 {
		h.records[n-1].Hit = &hit
	}
}

// clearLastHit rolls a confirmation back; used when persisting it failed.
func (h *History) clearLastHit() {
	if n := len(h.records); n > 0 {
		h.records[n-1].Hit = nil
	}
}

// dropLast removes the most recent record; used when persisting it failed.
func (h *History) dropLast() {
	if n := len(h.records); n > 0 {
		h.records = h.records[:n-1]
	}
}

// LastMove returns a copy of the most recent record, or false on an empty
// ledger.
func (h *History) LastMove() (HistoryRecord, bool) {
	if n := len(h.records); n > 0 {
		return h.records[n-1], true
	}
	return HistoryRecord{}, false
}

// FindMove reports whether the player already fired at (x, y).
func (h *History) FindMove(userID string, x, y int) bool {
	for _, r := range h.records {
		if r.UserID == userID && r.Move.X == x && r.Move.Y == y {
			return true
		}
	}
	return false
}

// CountOfHits counts the player's confirmed hits.
func (h *History) CountOfHits(userID string) int {
	count := 0
	for _, r := range h.records {
		if r.UserID == userID && r.Hit != nil && *r.Hit {
			count++
		}
	}
	return count
}

// Len returns the number of ledger records.
func (h *History) Len() int { return len(h.records) }

// ToJSON serializes the ledger for persistence. An empty ledger serializes
// to the empty string so a fresh record stays compact.
func (h *History) ToJSON() (string, error) {
	if len(h.records) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(h.records)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// FromJSON restores the ledger from its persisted form. The empty string
// restores an empty ledger.
func (h *History) FromJSON(s string) error {
	if s == "" {
		h.records = nil
		return nil
	}
	var records []HistoryRecord
	if err := json.Unmarshal([]byte(s), &records); err != nil {
		return err
	}
	h.records = records
	return nil
}
