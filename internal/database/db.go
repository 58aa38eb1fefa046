// Package database opens the device SQLite database, applies the embedded
// goose migrations and wires the repositories over it.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusforms/collect/internal/migrations"
	"github.com/nexusforms/collect/internal/repositories/forms"
	"github.com/nexusforms/collect/internal/repositories/instances"

	_ "modernc.org/sqlite"
)

// Repositories groups the repositories backed by one database handle.
type Repositories struct {
	DB        *sql.DB
	Forms     forms.Repository
	Instances instances.Repository
}

// Close releases the underlying database handle.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

// RunMigrations applies all pending migrations. It is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// Open opens the SQLite database at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; keep one connection so in-memory
	// databases are shared and writers never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// InitDatabase opens the database at dsn and returns the repositories over it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		DB:        db,
		Forms:     forms.NewSQLiteRepository(db),
		Instances: instances.NewSQLiteRepository(db),
	}, nil
}
