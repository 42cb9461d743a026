package game

import "testing"

func TestHistoryPushAndConfirm(t *testing.T) {
	var h History
	if err := h.Push("u1", 0, 0); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := h.Push("u2", 1, 1); err != ErrUnconfirmedMove {
		t.Fatalf("expected ErrUnconfirmedMove, got %v", err)
	}
	h.SetHitToLastMove(true)
	if err := h.Push("u1", 1, 0); err != nil {
		t.Fatalf("Push after confirm: %v", err)
	}
	last, ok := h.LastMove()
	if !ok || last.UserID != "u1" || last.Move.X != 1 || last.Move.Y != 0 || last.Hit != nil {
		t.Fatalf("unexpected last move: %+v", last)
	}
	if h.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", h.Len())
	}
}

func TestHistoryLookups(t *testing.T) {
	var h History
	_ = h.Push("u1", 3, 4)
	h.SetHitToLastMove(true)
	_ = h.Push("u1", 5, 6)
	h.SetHitToLastMove(false)
	_ = h.Push("u2", 3, 4)
	h.SetHitToLastMove(true)

	if !h.FindMove("u1", 3, 4) {
		t.Fatalf("FindMove missed an existing move")
	}
	if h.FindMove("u1", 6, 5) {
		t.Fatalf("FindMove matched swapped coordinates")
	}
	if got := h.CountOfHits("u1"); got != 1 {
		t.Fatalf("CountOfHits(u1) = %d, want 1", got)
	}
	if got := h.CountOfHits("u2"); got != 1 {
		t.Fatalf("CountOfHits(u2) = %d, want 1", got)
	}
}

func TestHistoryJSONRoundTrip(t *testing.T) {
	var h History
	raw, err := h.ToJSON()
	if err != nil || raw != "" {
		t.Fatalf("empty ledger: raw=%q err=%v", raw, err)
	}

	_ = h.Push("u1", 2, 9)
	h.SetHitToLastMove(true)
	_ = h.Push("u2", 0, 0)

	raw, err = h.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	want := `[{"userId":"u1","move":{"x":2,"y":9},"hit":true},{"userId":"u2","move":{"x":0,"y":0}}]`
	if raw != want {
		t.Fatalf("ledger encoding drifted:\n got %s\nwant %s", raw, want)
	}

	var restored History
	if err := restored.FromJSON(raw); err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if restored.Len() != 2 || !restored.FindMove("u1", 2, 9) {
		t.Fatalf("round trip lost records")
	}
	last, _ := restored.LastMove()
	if last.Hit != nil {
		t.Fatalf("unconfirmed flag lost on round trip")
	}

	if err := restored.FromJSON("not json"); err == nil {
		t.Fatalf("expected error for malformed ledger")
	}
	if err := restored.FromJSON(""); err != nil || restored.Len() != 0 {
		t.Fatalf("empty string should restore an empty ledger")
	}
}

func TestHistoryRollbacks(t *testing.T) {
	var h History
	_ = h.Push("u1", 1, 1)
	h.SetHitToLastMove(true)
	h.clearLastHit()
	if last, _ := h.LastMove(); last.Hit != nil {
		t.Fatalf("clearLastHit left confirmation in place")
	}
	h.dropLast()
	if h.Len() != 0 {
		t.Fatalf("dropLast left records behind")
	}
	h.dropLast()
	h.clearLastHit()
}
