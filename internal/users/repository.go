// Package users stores player accounts in postgres.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"seabattle/internal/auth"
)

var (
	ErrLoginRequired    = errors.New("login is required")
	ErrNameRequired     = errors.New("name is required")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrLoginTaken       = errors.New("login is already taken")
	ErrNameTaken        = errors.New("name is already taken")
	ErrNotFound         = errors.New("user not found")
)

const minPasswordLen = 6

// User is a registered player. PasswordHash never leaves this package.
type User struct {
	ID           string
	Login        string
	Name         string
	passwordHash string
	CreatedAt    time.Time
}

type Repository struct {
	db *sql.DB
}

// NewRepository opens a postgres pool and pings it.
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

// EnsureSchema creates the accounts table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS sb_users (
        id          TEXT PRIMARY KEY,
        login       TEXT NOT NULL UNIQUE,
        name        TEXT NOT NULL UNIQUE,
        password    TEXT NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Create registers a new account. Login and name must be unique; the
// password is stored as a bcrypt hash.
func (r *Repository) Create(ctx context.Context, login, name, password string) (*User, error) {
	login = strings.TrimSpace(login)
	name = strings.TrimSpace(name)
	if login == "" {
		return nil, ErrLoginRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	if len(password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Login:        login,
		Name:         name,
		passwordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	q := `INSERT INTO sb_users (id, login, name, password, created_at) VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.db.ExecContext(ctx, q, u.ID, u.Login, u.Name, u.passwordHash, u.CreatedAt); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return u, nil
}

// Authenticate checks the login/password pair and returns the account.
func (r *Repository) Authenticate(ctx context.Context, login, password string) (*User, error) {
	u, err := r.GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, u.passwordHash) {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

func (r *Repository) GetByLogin(ctx context.Context, login string) (*User, error) {
	q := `SELECT id, login, name, password, created_at FROM sb_users WHERE login = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, strings.TrimSpace(login)))
}

func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	q := `SELECT id, login, name, password, created_at FROM sb_users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, strings.TrimSpace(id)))
}

func (r *Repository) scanOne(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Login, &u.Name, &u.passwordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// mapUniqueViolation turns the pq unique-constraint error into the
// field-specific sentinel.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "login") {
			return ErrLoginTaken
		}
		return ErrNameTaken
	}
	return err
}
