package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleMigration = Migration{
	Version:     1,
	Description: "Add example test table",
	Up: `
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`,
	Down: `DROP TABLE IF EXISTS test_table`,
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=ON")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteMigrations(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	manager := NewManager(exampleMigration)
	require.NoError(t, manager.ApplySQLite(ctx, db))

	version, err := SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'test')")
	require.NoError(t, err, "test table not created")

	// Applying again is a no-op
	require.NoError(t, manager.ApplySQLite(ctx, db))

	require.NoError(t, manager.RollbackSQLite(ctx, db))
	version, err = SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (2, 'test')")
	assert.Error(t, err, "test table should have been dropped")

	assert.Error(t, manager.RollbackSQLite(ctx, db))
}

func TestSQLiteMigrationsIncremental(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, NewManager(exampleMigration).ApplySQLite(ctx, db))

	second := Migration{
		Version:     2,
		Description: "Add column",
		Up:          `ALTER TABLE test_table ADD COLUMN note TEXT`,
		Down:        `ALTER TABLE test_table DROP COLUMN note`,
	}
	require.NoError(t, NewManager(second, exampleMigration).ApplySQLite(ctx, db))

	version, err := SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec("INSERT INTO test_table (id, name, note) VALUES (1, 'a', 'b')")
	require.NoError(t, err)
}

func TestMigrationOrdering(t *testing.T) {
	manager := NewManager(
		Migration{Version: 3, Description: "Third"},
		Migration{Version: 1, Description: "First"},
		Migration{Version: 2, Description: "Second"},
	)
	manager.sortMigrations()

	require.Len(t, manager.migrations, 3)
	for i, want := range []int{1, 2, 3} {
		assert.Equal(t, want, manager.migrations[i].Version)
	}
	assert.Equal(t, 3, manager.Latest())
}
