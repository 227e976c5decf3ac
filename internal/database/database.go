package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/omriShneor/calbot/internal/database/migrations"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is the SQLite store for chat sessions.
type DB struct {
	*sql.DB
}

// New opens the database at path, creating it when missing, and migrates it.
func New(path string) (*DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != MemoryPath {
		dsn += "&_journal_mode=WAL"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: gets its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Apply(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &DB{sqlDB}, nil
}
