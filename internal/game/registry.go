package game

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"seabattle/internal/obslog"
)

// ErrGameNotFound is returned when neither the registry nor the store knows
// the match id.
var ErrGameNotFound = errors.New("game not found")

// Registry keeps one live Match per active game and hydrates missing ones
// from the store on demand. Finished matches are evicted through the finish
// hook, so the map only ever holds games still in play.
type Registry struct {
	mu      sync.Mutex
	active  map[string]*Match
	store   Store
	onEvict func(rec *Record)
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		active: make(map[string]*Match),
		store:  store,
	}
}

// SetEvictHook registers a callback run with the final record snapshot when
// a finished match leaves the registry. Archival hangs off this hook.
func (r *Registry) SetEvictHook(fn func(rec *Record)) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

// Create persists a fresh match for the pair and registers its state
// machine. Nothing is registered when the store write fails.
func (r *Registry) Create(ctx context.Context, user1, user2 string) (*Match, error) {
	rec, err := r.store.CreateGame(ctx, user1, user2)
	if err != nil {
		return nil, err
	}
	m, err := NewMatch(rec, r.store)
	if err != nil {
		return nil, err
	}
	r.install(m)
	obslog.L().Info("game_created",
		zap.String("game_id", rec.ID),
		zap.String("user1", user1),
		zap.String("user2", user2))
	return m, nil
}

// GetOrLoad returns the live state machine for id, hydrating it from the
// store when the registry lost it (restart, eviction). Concurrent callers
// racing on the same id converge on a single instance.
func (r *Registry) GetOrLoad(ctx context.Context, id string) (*Match, error) {
	r.mu.Lock()
	if m, ok := r.active[id]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	rec, err := r.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrGameNotFound
	}
	m, err := NewMatch(rec, r.store)
	if err != nil {
		return nil, err
	}
	if m.Phase() == PhaseFinished {
		// Nothing will ever evict a finished match, so it must not be
		// registered. Connect on it still fails with the protocol error.
		obslog.L().Debug("game_hydrated_finished", zap.String("game_id", id))
		return m, nil
	}

	r.mu.Lock()
	if cur, ok := r.active[id]; ok {
		// Lost the hydration race; keep the winner.
		r.mu.Unlock()
		return cur, nil
	}
	r.installLocked(m)
	r.mu.Unlock()
	obslog.L().Debug("game_hydrated", zap.String("game_id", id))
	return m, nil
}

// FindByUser returns the live match the user participates in, if any.
func (r *Registry) FindByUser(userID string) (*Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.active {
		if m.HasParticipant(userID) {
			return m, true
		}
	}
	return nil, false
}

// Evict drops the match from the registry without touching the store.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Len reports the number of live matches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Registry) install(m *Match) {
	r.mu.Lock()
	r.installLocked(m)
	r.mu.Unlock()
}

func (r *Registry) installLocked(m *Match) {
	r.active[m.ID()] = m
	m.SetFinishHook(func(rec *Record) {
		r.Evict(rec.ID)
		r.mu.Lock()
		hook := r.onEvict
		r.mu.Unlock()
		if hook != nil {
			hook(rec)
		}
		obslog.L().Info("game_evicted", zap.String("game_id", rec.ID))
	})
}
