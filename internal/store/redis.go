package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"seabattle/internal/game"
)

// Live matches expire after a day of inactivity; finished games move to the
// archive before that.
const ttlGame = 24 * time.Hour

// Redis persists match records as JSON blobs keyed by game id, with a
// per-user index set for active-game lookups. Writes for one match are
// serialized by the session engine, so plain get/set is enough here.
type Redis struct {
	rdb *redis.Client
}

// New connects to REDIS_URL-style addresses (redis:// or rediss://) and
// pings before returning.
func New(redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// NewWithClient wraps an existing client; the caller owns its lifecycle.
func NewWithClient(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (s *Redis) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string { return "sb:game:" + strings.TrimSpace(id) }

func idxUserKey(userID string) string { return "sb:index:user:" + strings.TrimSpace(userID) }

// CreateGame persists a fresh record for the pair and indexes both players.
func (s *Redis) CreateGame(ctx context.Context, user1, user2 string) (*game.Record, error) {
	if strings.TrimSpace(user1) == "" || strings.TrimSpace(user2) == "" {
		return nil, fmt.Errorf("both participants are required")
	}
	rec := &game.Record{
		ID:        uuid.NewString(),
		User1:     strings.TrimSpace(user1),
		User2:     strings.TrimSpace(user2),
		Status:    int(game.PhaseCreated),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.indexParticipants(ctx, rec.ID, rec.User1, rec.User2); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetGame returns the record or (nil, nil) when the key is gone.
func (s *Redis) GetGame(ctx context.Context, id string) (*game.Record, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec game.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateGame applies a partial update read-modify-write.
func (s *Redis) UpdateGame(ctx context.Context, id string, upd game.Update) error {
	return s.mutate(ctx, id, func(rec *game.Record) error {
		if upd.Status != nil {
			rec.Status = *upd.Status
			if *upd.Status == int(game.PhaseFinished) {
				now := time.Now().UTC()
				rec.FinishedAt = &now
			}
		}
		if upd.History != nil {
			rec.History = *upd.History
		}
		if upd.Winner != nil {
			rec.Winner = *upd.Winner
		}
		return nil
	})
}

// SetUserHash validates the commitment format before persisting it, so a
// malformed hash never reaches the record.
func (s *Redis) SetUserHash(ctx context.Context, id, userID, hash string) error {
	if !game.VerifyHashFormat(hash) {
		return fmt.Errorf("malformed commitment hash")
	}
	return s.mutate(ctx, id, func(rec *game.Record) error {
		return setSlotField(rec, userID, &rec.Hash1, &rec.Hash2, hash)
	})
}

func (s *Redis) SetUserPlacement(ctx context.Context, id, userID, placement string) error {
	return s.mutate(ctx, id, func(rec *game.Record) error {
		return setSlotField(rec, userID, &rec.Placement1, &rec.Placement2, placement)
	})
}

func (s *Redis) SetUserSalt(ctx context.Context, id, userID, salt string) error {
	return s.mutate(ctx, id, func(rec *game.Record) error {
		return setSlotField(rec, userID, &rec.Salt1, &rec.Salt2, salt)
	})
}

func (s *Redis) SetUserResult(ctx context.Context, id, userID, result string) error {
	return s.mutate(ctx, id, func(rec *game.Record) error {
		return setSlotField(rec, userID, &rec.Result1, &rec.Result2, result)
	})
}

// ActiveGameIDs lists the ids indexed for the user, unfinished or not;
// callers filter by status after loading.
func (s *Redis) ActiveGameIDs(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	return s.rdb.SMembers(ctx, idxUserKey(userID)).Result()
}

// DropIndex removes a finished game from both players' index sets.
func (s *Redis) DropIndex(ctx context.Context, rec *game.Record) error {
	if rec == nil {
		return nil
	}
	if err := s.rdb.SRem(ctx, idxUserKey(rec.User1), rec.ID).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, idxUserKey(rec.User2), rec.ID).Err()
}

func (s *Redis) mutate(ctx context.Context, id string, apply func(rec *game.Record) error) error {
	rec, err := s.GetGame(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("game %s not found", id)
	}
	if err := apply(rec); err != nil {
		return err
	}
	return s.save(ctx, rec)
}

func (s *Redis) save(ctx context.Context, rec *game.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, gameKey(rec.ID), raw, ttlGame).Err()
}

func (s *Redis) indexParticipants(ctx context.Context, id string, users ...string) error {
	for _, u := range users {
		if strings.TrimSpace(u) == "" {
			continue
		}
		key := idxUserKey(u)
		if err := s.rdb.SAdd(ctx, key, id).Err(); err != nil {
			return err
		}
		if err := s.rdb.Expire(ctx, key, ttlGame).Err(); err != nil {
			return err
		}
	}
	return nil
}

func setSlotField(rec *game.Record, userID string, first, second *string, value string) error {
	switch userID {
	case rec.User1:
		*first = value
	case rec.User2:
		*second = value
	default:
		return fmt.Errorf("user %s is not a participant of game %s", userID, rec.ID)
	}
	return nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
