package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"seabattle/internal/game"
)

// stubStore is the minimum persistence needed to mint Match values.
type stubStore struct{}

func (stubStore) CreateGame(context.Context, string, string) (*game.Record, error) {
	return nil, nil
}

func (stubStore) GetGame(context.Context, string) (*game.Record, error) { return nil, nil }

func (stubStore) UpdateGame(context.Context, string, game.Update) error { return nil }

func (stubStore) SetUserHash(context.Context, string, string, string) error { return nil }

func (stubStore) SetUserPlacement(context.Context, string, string, string) error { return nil }

func (stubStore) SetUserSalt(context.Context, string, string, string) error { return nil }

func (stubStore) SetUserResult(context.Context, string, string, string) error { return nil }

type stubCreator struct {
	seq  int
	fail bool
}

func (c *stubCreator) Create(_ context.Context, user1, user2 string) (*game.Match, error) {
	if c.fail {
		return nil, errors.New("store down")
	}
	c.seq++
	rec := &game.Record{ID: fmt.Sprintf("game-%d", c.seq), User1: user1, User2: user2}
	return game.NewMatch(rec, stubStore{})
}

func recvMatch(t *testing.T, ch <-chan *game.Match) *game.Match {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a match")
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("no match delivered")
		return nil
	}
}

func TestJoinPairsInOrder(t *testing.T) {
	q := NewQueue(&stubCreator{}, time.Hour)

	ch1, err := q.Join("u1")
	if err != nil {
		t.Fatalf("Join u1: %v", err)
	}
	ch2, _ := q.Join("u2")
	ch3, _ := q.Join("u3")

	q.PairAll(context.Background())

	m1 := recvMatch(t, ch1)
	m2 := recvMatch(t, ch2)
	if m1 != m2 {
		t.Fatalf("first two joiners must share a match")
	}
	if m1.HasParticipant("u3") {
		t.Fatalf("third joiner leaked into the first pair")
	}

	select {
	case <-ch3:
		t.Fatalf("odd player out must keep waiting")
	default:
	}
	if !q.Queued("u3") || q.Len() != 1 {
		t.Fatalf("queue state drifted: len=%d", q.Len())
	}
}

func TestRejoinWhileQueued(t *testing.T) {
	q := NewQueue(&stubCreator{}, time.Hour)
	if _, err := q.Join("u1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := q.Join("u1"); err != ErrAlreadyQueued {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("duplicate join changed the queue: %d", q.Len())
	}
}

func TestLeaveClosesChannel(t *testing.T) {
	q := NewQueue(&stubCreator{}, time.Hour)
	ch, _ := q.Join("u1")
	q.Leave("u1")

	if _, ok := <-ch; ok {
		t.Fatalf("leave must close without a match")
	}
	if q.Queued("u1") || q.Len() != 0 {
		t.Fatalf("leave left state behind")
	}
	q.Leave("u1") // idempotent
}

func TestPairSkipsLeaver(t *testing.T) {
	q := NewQueue(&stubCreator{}, time.Hour)
	ch1, _ := q.Join("u1")
	_, _ = q.Join("u2")
	q.Leave("u2")
	_, _ = q.Join("u3")

	q.PairAll(context.Background())

	m := recvMatch(t, ch1)
	if !m.HasParticipant("u3") {
		t.Fatalf("pairing must fall through to the next waiter")
	}
}

func TestStoreFailureKeepsQueue(t *testing.T) {
	creator := &stubCreator{fail: true}
	q := NewQueue(creator, time.Hour)
	ch1, _ := q.Join("u1")
	ch2, _ := q.Join("u2")

	q.PairAll(context.Background())
	select {
	case <-ch1:
		t.Fatalf("match delivered despite store failure")
	case <-ch2:
		t.Fatalf("match delivered despite store failure")
	default:
	}
	if q.Len() != 2 {
		t.Fatalf("failed pairing must keep both queued: %d", q.Len())
	}

	// The next cycle succeeds once the store recovers.
	creator.fail = false
	q.PairAll(context.Background())
	recvMatch(t, ch1)
	recvMatch(t, ch2)
}

func TestRunPairsOnTicker(t *testing.T) {
	q := NewQueue(&stubCreator{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	ch1, _ := q.Join("u1")
	ch2, _ := q.Join("u2")
	recvMatch(t, ch1)
	recvMatch(t, ch2)
}
