package store

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"seabattle/internal/game"
)

func newTestStore(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	s, err := New(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetGame(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateGame(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if rec.ID == "" || rec.Status != int(game.PhaseCreated) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := s.GetGame(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got == nil || got.User1 != "u1" || got.User2 != "u2" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("creation time not persisted")
	}

	missing, err := s.GetGame(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing game: rec=%v err=%v", missing, err)
	}

	if _, err := s.CreateGame(ctx, "", "u2"); err == nil {
		t.Fatalf("expected error for empty participant")
	}
}

func TestUpdateGame(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec, _ := s.CreateGame(ctx, "u1", "u2")

	status := int(game.PhaseFighting)
	history := `[{"userId":"u1","move":{"x":1,"y":2}}]`
	if err := s.UpdateGame(ctx, rec.ID, game.Update{Status: &status, History: &history}); err != nil {
		t.Fatalf("UpdateGame: %v", err)
	}
	got, _ := s.GetGame(ctx, rec.ID)
	if got.Status != status || got.History != history {
		t.Fatalf("partial update lost fields: %+v", got)
	}
	if got.FinishedAt != nil {
		t.Fatalf("finish time set prematurely")
	}

	finished := int(game.PhaseFinished)
	winner := "u1"
	if err := s.UpdateGame(ctx, rec.ID, game.Update{Status: &finished, Winner: &winner}); err != nil {
		t.Fatalf("UpdateGame finish: %v", err)
	}
	got, _ = s.GetGame(ctx, rec.ID)
	if got.Winner != "u1" || got.FinishedAt == nil {
		t.Fatalf("finish not recorded: %+v", got)
	}
	// The earlier history survives a later partial update.
	if got.History != history {
		t.Fatalf("history clobbered: %q", got.History)
	}

	if err := s.UpdateGame(ctx, "nope", game.Update{Status: &status}); err == nil {
		t.Fatalf("expected error for unknown game")
	}
}

func TestSetUserHashValidatesFormat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec, _ := s.CreateGame(ctx, "u1", "u2")

	if err := s.SetUserHash(ctx, rec.ID, "u1", "not-a-hash"); err == nil {
		t.Fatalf("malformed hash accepted")
	}
	hash := game.CommitmentHash("board", "salt")
	if err := s.SetUserHash(ctx, rec.ID, "u1", hash); err != nil {
		t.Fatalf("SetUserHash: %v", err)
	}
	if err := s.SetUserHash(ctx, rec.ID, "stranger", hash); err == nil {
		t.Fatalf("non-participant accepted")
	}

	got, _ := s.GetGame(ctx, rec.ID)
	if got.Hash1 != hash || got.Hash2 != "" {
		t.Fatalf("hash landed in the wrong slot: %+v", got)
	}
}

func TestSlotFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec, _ := s.CreateGame(ctx, "u1", "u2")

	if err := s.SetUserPlacement(ctx, rec.ID, "u2", "0101"); err != nil {
		t.Fatalf("SetUserPlacement: %v", err)
	}
	if err := s.SetUserSalt(ctx, rec.ID, "u2", "pepper"); err != nil {
		t.Fatalf("SetUserSalt: %v", err)
	}
	if err := s.SetUserResult(ctx, rec.ID, "u1", game.ResultOk); err != nil {
		t.Fatalf("SetUserResult: %v", err)
	}

	got, _ := s.GetGame(ctx, rec.ID)
	if got.Placement2 != "0101" || got.Salt2 != "pepper" || got.Result1 != game.ResultOk {
		t.Fatalf("slot fields mismatch: %+v", got)
	}
	if got.Placement1 != "" || got.Salt1 != "" || got.Result2 != "" {
		t.Fatalf("slot cross-talk: %+v", got)
	}
}

func TestUserIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec, _ := s.CreateGame(ctx, "u1", "u2")

	ids, err := s.ActiveGameIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveGameIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != rec.ID {
		t.Fatalf("index mismatch: %v", ids)
	}

	if err := s.DropIndex(ctx, rec); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	ids, _ = s.ActiveGameIDs(ctx, "u1")
	if len(ids) != 0 {
		t.Fatalf("index not dropped: %v", ids)
	}
	ids, _ = s.ActiveGameIDs(ctx, "u2")
	if len(ids) != 0 {
		t.Fatalf("second index not dropped: %v", ids)
	}
}

func TestStoreDrivesEngine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := game.NewRegistry(s)
	m, err := r.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	if err := m.Connect(ctx, "u1", nopConn{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	r.Evict(m.ID())
	m2, err := r.GetOrLoad(ctx, m.ID())
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if m2.Phase() != game.PhaseWaitingForReady {
		t.Fatalf("persisted phase lost on hydration: %d", m2.Phase())
	}
}

type nopConn struct{}

func (nopConn) Emit(string, any) {}
