package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration is one versioned schema change. Up runs inside the transaction that records it.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

var registry = map[int]Migration{}

// Register adds a migration. Migrations register themselves from init.
func Register(m Migration) {
	if _, dup := registry[m.Version]; dup {
		panic(fmt.Sprintf("migrations: version %d registered twice", m.Version))
	}
	registry[m.Version] = m
}

// Apply brings the schema up to date, one transaction per pending migration.
func Apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	pending, err := Pending(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the registered migrations newer than the database's schema version,
// oldest first.
func Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	var current int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	var pending []Migration
	for v, m := range registry {
		if v > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	slog.Info("applying migration", "version", m.Version, "name", m.Name)
	if err := m.Up(ctx, tx); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ColumnExists reports whether table has column.
func ColumnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	return n > 0, nil
}

// AddColumn adds column to table unless a column of that name exists.
func AddColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	exists, err := ColumnExists(ctx, tx, table, column)
	if err != nil || exists {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}
