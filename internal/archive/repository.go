// Package archive persists finished matches and per-player win/loss tallies
// in postgres. Live match state stays in redis; only terminal records land
// here.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"seabattle/internal/game"
)

// ArchivedGame is one finished match as stored in the database.
type ArchivedGame struct {
	GameID     string     `json:"gameId"`
	User1      string     `json:"user1"`
	User2      string     `json:"user2"`
	Result1    string     `json:"result1,omitempty"`
	Result2    string     `json:"result2,omitempty"`
	History    string     `json:"history,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Stats is a player's lifetime tally.
type Stats struct {
	UserID string `json:"userId"`
	Games  int    `json:"games"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// NewRepositoryWithDB wraps an existing pool; the caller owns its lifecycle.
func NewRepositoryWithDB(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the archive tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	qs := []string{
		`CREATE TABLE IF NOT EXISTS sb_games (
        game_id     TEXT PRIMARY KEY,
        user1       TEXT NOT NULL,
        user2       TEXT NOT NULL,
        result1     TEXT,
        result2     TEXT,
        history     TEXT,
        winner      TEXT,
        created_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ
      )`,
		`CREATE INDEX IF NOT EXISTS sb_games_user1_idx ON sb_games (user1)`,
		`CREATE INDEX IF NOT EXISTS sb_games_user2_idx ON sb_games (user2)`,
		`CREATE TABLE IF NOT EXISTS sb_user_stats (
        user_id TEXT PRIMARY KEY,
        games   INT NOT NULL DEFAULT 0,
        wins    INT NOT NULL DEFAULT 0,
        losses  INT NOT NULL DEFAULT 0
      )`,
	}
	for _, q := range qs {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// SaveResult archives a finished match and bumps both players' tallies.
// A game id already archived is left untouched so a redelivered record
// cannot double-count the stats.
func (r *Repository) SaveResult(ctx context.Context, rec *game.Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	finishedAt := rec.FinishedAt
	if finishedAt == nil {
		now := time.Now().UTC()
		finishedAt = &now
	}

	q := `INSERT INTO sb_games (
        game_id, user1, user2, result1, result2, history, winner, created_at, finished_at
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
      ) ON CONFLICT (game_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.User1, rec.User2,
		rec.Result1, rec.Result2,
		rec.History, rec.Winner,
		rec.CreatedAt, finishedAt,
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}
	return r.bumpStats(ctx, rec)
}

func (r *Repository) bumpStats(ctx context.Context, rec *game.Record) error {
	for _, userID := range []string{rec.User1, rec.User2} {
		win := 0
		loss := 0
		if rec.Winner != "" {
			if rec.Winner == userID {
				win = 1
			} else {
				loss = 1
			}
		}
		q := `INSERT INTO sb_user_stats (user_id, games, wins, losses)
          VALUES ($1, 1, $2, $3)
          ON CONFLICT (user_id) DO UPDATE SET
            games = sb_user_stats.games + 1,
            wins = sb_user_stats.wins + $2,
            losses = sb_user_stats.losses + $3`
		if _, err := r.db.ExecContext(ctx, q, userID, win, loss); err != nil {
			return err
		}
	}
	return nil
}

// LastGame returns the most recently finished match, or nil when the
// archive is empty.
func (r *Repository) LastGame(ctx context.Context) (*ArchivedGame, error) {
	q := `SELECT game_id, user1, user2, result1, result2, history, winner, created_at, finished_at
        FROM sb_games ORDER BY finished_at DESC LIMIT 1`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list, err := scanGames(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByUser returns the user's finished matches, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]*ArchivedGame, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT game_id, user1, user2, result1, result2, history, winner, created_at, finished_at
        FROM sb_games WHERE user1 = $1 OR user2 = $1
        ORDER BY finished_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGames(rows)
}

// UserStats returns the player's tally; a player with no finished games
// gets a zero row.
func (r *Repository) UserStats(ctx context.Context, userID string) (*Stats, error) {
	st := &Stats{UserID: strings.TrimSpace(userID)}
	q := `SELECT games, wins, losses FROM sb_user_stats WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, q, st.UserID).Scan(&st.Games, &st.Wins, &st.Losses)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func scanGames(rows *sql.Rows) ([]*ArchivedGame, error) {
	var list []*ArchivedGame
	for rows.Next() {
		var g ArchivedGame
		var result1, result2, history, winner sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&g.GameID, &g.User1, &g.User2, &result1, &result2, &history, &winner, &g.CreatedAt, &finishedAt); err != nil {
			return nil, err
		}
		g.Result1 = result1.String
		g.Result2 = result2.String
		g.History = history.String
		g.Winner = winner.String
		if finishedAt.Valid {
			t := finishedAt.Time
			g.FinishedAt = &t
		}
		list = append(list, &g)
	}
	return list, rows.Err()
}
