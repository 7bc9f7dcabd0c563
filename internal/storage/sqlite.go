package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ambush/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the sqlite backing store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Querier is the read-side surface handed to Read callbacks.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Gateway is the single serialization point for the persisted tables.
//
// SQLite does not support concurrent writers, so every write runs inside a
// transaction under an exclusive lock. Reads share a read lock: they may run
// next to each other but never overlap an in-flight write, which gives
// read-after-write consistency to subsequent callers.
type Gateway struct {
	db  *sql.DB
	log logx.Logger

	mu sync.RWMutex
}

// Open initializes the store. A failure here is fatal for the process.
func Open(cfg Config, log logx.Logger) (*Gateway, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	// A corrupt file is moved aside and recreated rather than deleted.
	if err := backupIfInvalid(path, log); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	g := &Gateway{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := g.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

func (g *Gateway) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx, string(b))
	return err
}

// Read runs fn under a shared lock.
func (g *Gateway) Read(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(ctx, g.db)
}

// Write runs fn inside a transaction under the exclusive lock. The
// transaction is rolled back on any error, so a rejected write leaves
// storage untouched.
func (g *Gateway) Write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// backupIfInvalid moves a file that is not a readable sqlite database to
// <path>.bak so a fresh one can be created in its place.
func backupIfInvalid(path string, log logx.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return nil // nothing there yet
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	_, qerr := db.Exec("SELECT name FROM sqlite_master LIMIT 1")
	_ = db.Close()
	if qerr == nil {
		return nil
	}
	bak := path + ".bak"
	if err := os.Rename(path, bak); err != nil {
		return fmt.Errorf("backing up invalid database: %w", err)
	}
	log.Warn("invalid database file backed up", logx.String("path", path), logx.String("backup", bak))
	return nil
}
