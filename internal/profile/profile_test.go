package profile

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

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

func berniePreferences() map[string]any {
	return map[string]any{
		"dietary_requirements": []any{"vegan", "gluten-free"},
		"food_preferences":     []any{"Thai cuisine"},
	}
}

func TestStore_AddUser_GetUser_RoundTrip(t *testing.T) {
	store := New(newTestDB(t), log.NewNop())
	ctx := context.Background()

	in := User{ID: "u1", Name: "Bernie", Preferences: berniePreferences()}
	require.NoError(t, store.AddUser(ctx, in))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "Bernie", got.Name)
	// Preferences must deserialize to the same structure that was stored.
	assert.Equal(t, in.Preferences, got.Preferences)
}

func TestStore_AddUser_Idempotent(t *testing.T) {
	store := New(newTestDB(t), log.NewNop())
	ctx := context.Background()

	require.NoError(t, store.AddUser(ctx, User{ID: "u1", Name: "Bernie", Preferences: berniePreferences()}))

	// Second registration with different data is a no-op, not an error.
	require.NoError(t, store.AddUser(ctx, User{ID: "u1", Name: "Impostor", Preferences: map[string]any{}}))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bernie", got.Name)
	assert.Equal(t, berniePreferences(), got.Preferences)
}

func TestStore_GetUser_Unknown(t *testing.T) {
	store := New(newTestDB(t), log.NewNop())

	_, err := store.GetUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestStore_Preferences_ExtraKeysPreserved(t *testing.T) {
	store := New(newTestDB(t), log.NewNop())
	ctx := context.Background()

	prefs := berniePreferences()
	prefs["spice_tolerance"] = "high"
	require.NoError(t, store.AddUser(ctx, User{ID: "u2", Name: "Elen", Preferences: prefs}))

	got, err := store.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "high", got.Preferences["spice_tolerance"])
}
