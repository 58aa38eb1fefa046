// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/nexusforms/collect/internal/migrations"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var dbCounter atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:collect_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}
