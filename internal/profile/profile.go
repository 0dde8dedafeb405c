// Package profile persists user profiles and preferences.
//
// Profiles are write-once: registration is idempotent and there is no
// update operation. Preferences are stored as a JSON document and must
// round-trip exactly (key order irrelevant, values preserved).
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownUser indicates the requested user has never been registered.
var ErrUnknownUser = errors.New("unknown user")

// User is a registered profile.
//
// Preferences holds arbitrary structured preference data. The RAG
// prompt assembler requires at least the dietary_requirements and
// food_preferences keys; this package does not enforce that shape so
// stored documents survive unchanged.
type User struct {
	ID          string
	Name        string
	Preferences map[string]any
}

// Store manages user profiles in SQLite.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store instance.
// A nil logger falls back to slog.Default().
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// AddUser registers a profile. Registration is idempotent: if the
// user_id already exists, the stored profile is left unchanged and no
// error is returned.
func (s *Store) AddUser(ctx context.Context, u User) error {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences for %q: %w", u.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (user_id, name, preferences) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING",
		u.ID, u.Name, string(prefs),
	)
	if err != nil {
		return fmt.Errorf("failed to add user %q: %w", u.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("user already registered", "user_id", u.ID)
		return nil
	}

	s.logger.Debug("registered user", "user_id", u.ID)
	return nil
}

// GetUser fetches a profile by id. Returns ErrUnknownUser when absent.
func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	var (
		u     User
		prefs string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, name, preferences FROM users WHERE user_id = ?",
		userID,
	).Scan(&u.ID, &u.Name, &prefs)

	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to get user %q: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil {
		return User{}, fmt.Errorf("failed to parse preferences for %q: %w", userID, err)
	}

	return u, nil
}
