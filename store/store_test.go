package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/signspeak/classifier"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "signspeak-test.db")
	db, err := InitDB(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	db, err := InitDB(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Dialect())
}

func TestRebind(t *testing.T) {
	sqlite := &DB{}
	pg := &DB{postgres: true}
	q := `SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3`, pg.rebind(q))
}

func TestUserRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	u := User{ID: "u-1", Email: "ana@example.com", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	u.ID = "u-2"
	assert.ErrorIs(t, repo.Create(ctx, u), ErrDuplicate)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranslationRepoNewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewTranslationRepo(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	labels := []string{"A", "B", "C", "HELLO", "YES"}
	for i, label := range labels {
		require.NoError(t, repo.Append(ctx, "user-1", classifier.Result{
			Label:       label,
			Confidence:  60 + i,
			Description: "desc " + label,
			CapturedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Append(ctx, "user-2", classifier.Result{Label: "NO", CapturedAt: base}))

	got, err := repo.ListRecent(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "YES", got[0].Label)
	assert.Equal(t, "HELLO", got[1].Label)
	assert.Equal(t, "C", got[2].Label)
	assert.Equal(t, 64, got[0].Confidence)
	assert.Equal(t, "desc YES", got[0].Description)
	assert.True(t, got[0].CapturedAt.Equal(base.Add(4*time.Minute)))

	got, err = repo.ListRecent(ctx, "user-2", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.ListRecent(ctx, "nobody", 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}
