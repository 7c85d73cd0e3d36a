package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teachme/internal/database"
	"teachme/internal/database/dbtest"
	"teachme/migrations"
)

func TestMigrationsCreateSchema(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	tables := []string{"users", "sessions", "password_reset_tokens", "children", "child_rewards",
		"kid_sessions", "modules", "lessons", "lesson_completions"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db, err := database.Initialize(filepath.Join(t.TempDir(), "twice.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.RunMigrationsFS(ctx, migrations.FS))
	require.NoError(t, db.RunMigrationsFS(ctx, migrations.FS))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestWithTx(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(tx *database.Tx, id, email string) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, role, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, "parent", "Pat", email, now, now)
		return err
	}

	require.NoError(t, db.WithTx(ctx, func(tx *database.Tx) error {
		return insert(tx, "u1", "one@example.com")
	}))

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *database.Tx) error {
		if err := insert(tx, "u2", "two@example.com"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestForeignKeysEnforced(t *testing.T) {
	db := dbtest.New(t)
	now := time.Now().UTC()

	_, err := db.ExecContext(context.Background(),
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		"s1", "missing-user", now, now)
	assert.Error(t, err)
}

func TestUniqueViolationDetected(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	q := "INSERT INTO users (id, role, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := db.ExecContext(ctx, q, "u1", "parent", "Pat", "same@example.com", now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, q, "u2", "teacher", "Sam", "same@example.com", now, now)
	require.Error(t, err)
	assert.True(t, db.Dialect.IsUniqueViolation(err))
}

func TestConcurrentReads(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		"INSERT INTO users (id, role, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"u1", "parent", "Concurrent", "concurrent@example.com", now, now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var name string
			err := db.QueryRowContext(ctx, "SELECT name FROM users WHERE email = ?", "concurrent@example.com").Scan(&name)
			assert.NoError(t, err)
			assert.Equal(t, "Concurrent", name)
		}()
	}
	wg.Wait()
}
