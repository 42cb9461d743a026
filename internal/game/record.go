package game

import (
	"context"
	"time"
)

// Phase is the coarse match lifecycle state. The numeric values are part of
// the persisted record format; never reorder them.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseWaitingForReady
	PhaseWaitingForHash
	PhaseFighting
	PhaseWaitingForPlacement
	PhaseWaitingForSalt
	PhaseFinished
)

// Outcome tags recorded per player after the commitment audit.
const (
	ResultOk                 = "Ok"
	ResultIncorrectPlacement = "Incorrect placement"
	ResultIncorrectSalt      = "Incorrect salt"
	ResultHashesNotEqual     = "Hashes are not equals"
)

// Record is the persisted projection of a match. Slot fields are addressed
// by whether a player is the first or second listed participant; a player
// never holds both slots.
type Record struct {
	ID         string     `json:"id"`
	User1      string     `json:"user1"`
	User2      string     `json:"user2"`
	Status     int        `json:"status"`
	Hash1      string     `json:"hash1,omitempty"`
	Hash2      string     `json:"hash2,omitempty"`
	Placement1 string     `json:"placement1,omitempty"`
	Placement2 string     `json:"placement2,omitempty"`
	Salt1      string     `json:"salt1,omitempty"`
	Salt2      string     `json:"salt2,omitempty"`
	Result1    string     `json:"result1,omitempty"`
	Result2    string     `json:"result2,omitempty"`
	History    string     `json:"history,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Update is a partial record update; nil fields are left untouched.
type Update struct {
	Status  *int
	History *string
	Winner  *string
}

// Store is the external persistence boundary the session engine writes
// through. A failed call must leave the stored record unchanged; the engine
// then surfaces the failure without advancing in-memory phase.
type Store interface {
	CreateGame(ctx context.Context, user1, user2 string) (*Record, error)
	GetGame(ctx context.Context, id string) (*Record, error)
	UpdateGame(ctx context.Context, id string, upd Update) error
	SetUserHash(ctx context.Context, id, userID, hash string) error
	SetUserPlacement(ctx context.Context, id, userID, placement string) error
	SetUserSalt(ctx context.Context, id, userID, salt string) error
	SetUserResult(ctx context.Context, id, userID, result string) error
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
