package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlitelib "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrForeignKey indicates a turn references a user_id that was never
// registered.
var ErrForeignKey = errors.New("turn references unknown user")

// Log is the append-only conversation record in SQLite.
//
// Log is safe for concurrent use by multiple goroutines.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Log instance.
// A nil logger falls back to slog.Default().
func New(db *sql.DB, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{db: db, logger: logger}
}

// AppendTurn inserts a turn. Returns ErrForeignKey when the turn's
// user_id is unknown. Turns are never updated or deleted.
func (l *Log) AppendTurn(ctx context.Context, t Turn) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id, timestamp, content) VALUES (?, ?, ?, ?)",
		t.ID, t.UserID, t.Timestamp.UTC().Format(time.RFC3339), t.Content,
	)
	if err != nil {
		var sqliteErr *sqlitelib.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return fmt.Errorf("%w: %q", ErrForeignKey, t.UserID)
		}
		return fmt.Errorf("failed to append turn %q: %w", t.ID, err)
	}

	l.logger.Debug("appended turn", "id", t.ID, "user_id", t.UserID)
	return nil
}

// ListTurns returns all turns for a user ordered by insertion,
// ascending. A user with no history yields an empty slice.
func (l *Log) ListTurns(ctx context.Context, userID string) ([]Turn, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, user_id, timestamp, content FROM conversations WHERE user_id = ? ORDER BY rowid ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns for %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var (
			t  Turn
			ts string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &ts, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}
