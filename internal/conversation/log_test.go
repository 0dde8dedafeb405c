package conversation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-ai/concierge/internal/database"
	"github.com/concierge-ai/concierge/internal/log"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func registerUser(t *testing.T, db *sql.DB, userID string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO users (user_id, name, preferences) VALUES (?, ?, ?)", userID, "Test", "{}")
	require.NoError(t, err)
}

func TestLog_AppendAndList_Ordered(t *testing.T) {
	db := newTestDB(t)
	registerUser(t, db, "u1")
	l := New(db, log.NewNop())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		turn := Turn{
			ID:        uuid.NewString(),
			UserID:    "u1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Content:   EncodeContent("q", "a"),
		}
		require.NoError(t, l.AppendTurn(ctx, turn))
		ids = append(ids, turn.ID)
	}

	turns, err := l.ListTurns(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, ids[i], turn.ID, "insertion order must be preserved")
	}
	assert.Equal(t, base, turns[0].Timestamp)
}

func TestLog_AppendTurn_UnknownUser(t *testing.T) {
	l := New(newTestDB(t), log.NewNop())

	err := l.AppendTurn(context.Background(), Turn{
		ID:        uuid.NewString(),
		UserID:    "ghost",
		Timestamp: time.Now(),
		Content:   "hello|world",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestLog_AppendTurn_UnknownUser_FreshPoolConnection(t *testing.T) {
	db := newTestDB(t)
	l := New(db, log.NewNop())
	ctx := context.Background()

	// Pin the connections the pool has opened so far; the append below
	// is forced onto a brand-new connection, which must enforce foreign
	// keys just like the first one.
	var pinned []*sql.Conn
	for i := 0; i < 2; i++ {
		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		pinned = append(pinned, conn)
	}
	defer func() {
		for _, conn := range pinned {
			_ = conn.Close()
		}
	}()

	err := l.AppendTurn(ctx, Turn{
		ID:        uuid.NewString(),
		UserID:    "ghost",
		Timestamp: time.Now(),
		Content:   "hello|world",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestLog_ListTurns_Empty(t *testing.T) {
	db := newTestDB(t)
	registerUser(t, db, "u1")
	l := New(db, log.NewNop())

	turns, err := l.ListTurns(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestContentCodec(t *testing.T) {
	content := EncodeContent("What should I cook?", "Try a green curry.")
	assert.Equal(t, "What should I cook?|Try a green curry.", content)

	q, r := SplitContent(content)
	assert.Equal(t, "What should I cook?", q)
	assert.Equal(t, "Try a green curry.", r)
}

func TestSplitContent_DelimiterInResponse(t *testing.T) {
	// Only the first delimiter separates the halves.
	q, r := SplitContent("query|answer|with|pipes")
	assert.Equal(t, "query", q)
	assert.Equal(t, "answer|with|pipes", r)
}

func TestSplitContent_NoDelimiter(t *testing.T) {
	q, r := SplitContent("just a query")
	assert.Equal(t, "just a query", q)
	assert.Empty(t, r)
}

func TestTurn_QueryResponse(t *testing.T) {
	turn := Turn{Content: EncodeContent("q1", "r1")}
	assert.Equal(t, "q1", turn.Query())
	assert.Equal(t, "r1", turn.Response())
}
