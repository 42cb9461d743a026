// Package matchmaking pairs queued players into matches on a fixed cadence.
package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"seabattle/internal/game"
	"seabattle/internal/obslog"
)

// DefaultPairInterval is how often the queue tries to pair its head.
const DefaultPairInterval = 5 * time.Second

var ErrAlreadyQueued = errors.New("user is already queued")

// MatchCreator produces a live match for a freshly paired pair of players.
// The registry satisfies this.
type MatchCreator interface {
	Create(ctx context.Context, user1, user2 string) (*game.Match, error)
}

// Queue is a FIFO matchmaking queue. A joining player receives a channel
// that delivers the match exactly once; leaving closes the channel without
// a match. Pairing happens on a timer, first come first paired.
type Queue struct {
	creator  MatchCreator
	interval time.Duration

	mu      sync.Mutex
	order   []string
	waiters map[string]chan *game.Match
}

func NewQueue(creator MatchCreator, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = DefaultPairInterval
	}
	return &Queue{
		creator:  creator,
		interval: interval,
		waiters:  make(map[string]chan *game.Match),
	}
}

// Join enqueues the player and returns the delivery channel. Rejoining
// while queued is an error; the original wait keeps its place.
func (q *Queue) Join(userID string) (<-chan *game.Match, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waiters[userID]; ok {
		return nil, ErrAlreadyQueued
	}
	ch := make(chan *game.Match, 1)
	q.waiters[userID] = ch
	q.order = append(q.order, userID)
	obslog.L().Debug("queue_join", zap.String("user_id", userID), zap.Int("depth", len(q.order)))
	return ch, nil
}

// Leave removes the player and closes their delivery channel. A player
// already handed a match is not affected.
func (q *Queue) Leave(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.waiters[userID]
	if !ok {
		return
	}
	delete(q.waiters, userID)
	q.removeFromOrderLocked(userID)
	close(ch)
	obslog.L().Debug("queue_leave", zap.String("user_id", userID), zap.Int("depth", len(q.order)))
}

// Queued reports whether the player currently waits in the queue.
func (q *Queue) Queued(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.waiters[userID]
	return ok
}

// Len reports the queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Run drives the pairing cycle until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.PairAll(ctx)
		}
	}
}

// PairAll pairs queue heads until fewer than two players remain. A store
// failure leaves both players queued for the next cycle.
func (q *Queue) PairAll(ctx context.Context) {
	for q.pairOne(ctx) {
	}
}

func (q *Queue) pairOne(ctx context.Context) bool {
	q.mu.Lock()
	if len(q.order) < 2 {
		q.mu.Unlock()
		return false
	}
	user1, user2 := q.order[0], q.order[1]
	q.mu.Unlock()

	m, err := q.creator.Create(ctx, user1, user2)
	if err != nil {
		obslog.L().Error("queue_pair_error",
			zap.String("user1", user1),
			zap.String("user2", user2),
			zap.Error(err))
		return false
	}

	q.mu.Lock()
	// Either player may have left while the match was being created; the
	// channel is gone then and only the remaining waiter is notified.
	for _, u := range []string{user1, user2} {
		if ch, ok := q.waiters[u]; ok {
			delete(q.waiters, u)
			q.removeFromOrderLocked(u)
			ch <- m
			close(ch)
		}
	}
	depth := len(q.order)
	q.mu.Unlock()

	obslog.L().Info("queue_paired",
		zap.String("game_id", m.ID()),
		zap.String("user1", user1),
		zap.String("user2", user2),
		zap.Int("depth", depth))
	return true
}

func (q *Queue) removeFromOrderLocked(userID string) {
	for i, u := range q.order {
		if u == userID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
