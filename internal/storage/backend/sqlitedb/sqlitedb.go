// Package sqlitedb implements the storage backend on SQLite via the
// ncruces/go-sqlite3 driver.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage/backend"
)

// Manager owns the SQLite connection pool and implements backend.Backend.
type Manager struct {
	db        *sql.DB
	dialect   Dialect
	log       *logging.Logger
	path      string
	startedAt time.Time
	attempts  atomic.Int64
	lastError atomic.Pointer[string]
	closed    atomic.Bool
	cfg       config.DatabaseConfig
}

var _ backend.Backend = (*Manager)(nil)

// Open opens (or creates) the database, applies pragmas, and initializes the
// schema.
//
// For :memory: databases a shared-cache named database with a single
// connection is used; SQLite's in-memory databases are otherwise isolated
// per connection and pool members would not see each other's writes.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*Manager, error) {
	m := &Manager{
		dialect:   Dialect{},
		log:       log.Named("sqlite"),
		path:      cfg.SQLiteFile,
		startedAt: time.Now(),
		cfg:       cfg,
	}

	pragmas := fmt.Sprintf("_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_pragma=synchronous(%s)&_pragma=cache_size(%d)",
		cfg.SQLiteBusyTimeout, cfg.SQLiteSyncMode, cfg.SQLiteCacheSize)

	var connStr string
	isMemory := cfg.SQLiteFile == ":memory:" || strings.Contains(cfg.SQLiteFile, "mode=memory")
	switch {
	case cfg.SQLiteFile == ":memory:":
		// WAL does not work with shared in-memory databases; use DELETE mode.
		connStr = "file:badgestore?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + pragmas
	case strings.HasPrefix(cfg.SQLiteFile, "file:"):
		connStr = cfg.SQLiteFile
		if !strings.Contains(connStr, "_pragma=") {
			connStr += "?" + pragmas
		}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteFile), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = "file:" + cfg.SQLiteFile + "?_pragma=journal_mode(WAL)&" + pragmas
	}

	m.attempts.Add(1)
	backend.ConnectionAttempts.WithLabelValues(m.dialect.Name()).Inc()
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		backend.ConnectionFailures.WithLabelValues(m.dialect.Name()).Inc()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	m.db = db

	if isMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers; cap the pool so
		// writers do not pile up on the write lock.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		backend.ConnectionFailures.WithLabelValues(m.dialect.Name()).Inc()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m.log.Debug("sqlite backend ready", zap.String("path", cfg.SQLiteFile))
	return m, nil
}

// DB returns the pool.
func (m *Manager) DB() backend.Querier { return m.db }

// Dialect returns the SQLite type-conversion boundary.
func (m *Manager) Dialect() backend.Dialect { return m.dialect }

// RunInTx executes fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. IMMEDIATE acquires the write lock up front so concurrent
// allocators serialize instead of deadlocking; SQLITE_BUSY on BEGIN is
// retried with exponential backoff.
func (m *Manager) RunInTx(ctx context.Context, fn func(q backend.Querier) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	begin := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err != nil && isBusy(err) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxElapsedTime(2*time.Second),
	), ctx)
	if err := backoff.Retry(begin, bo); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is canceled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err // rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Ping probes connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	var one int
	if err := m.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		msg := err.Error()
		m.lastError.Store(&msg)
		return err
	}
	return nil
}

// Health reports the diagnostics snapshot.
func (m *Manager) Health(ctx context.Context) backend.Health {
	start := time.Now()
	err := m.Ping(ctx)
	elapsed := time.Since(start)
	backend.HealthProbeDuration.WithLabelValues(m.dialect.Name()).Observe(elapsed.Seconds())

	h := backend.Health{
		Connected:          err == nil,
		ResponseTime:       elapsed,
		Uptime:             time.Since(m.startedAt),
		ConnectionAttempts: m.attempts.Load(),
		Configuration: map[string]string{
			"type":        m.dialect.Name(),
			"file":        m.path,
			"busyTimeout": fmt.Sprintf("%d", m.cfg.SQLiteBusyTimeout),
			"syncMode":    m.cfg.SQLiteSyncMode,
			"cacheSize":   fmt.Sprintf("%d", m.cfg.SQLiteCacheSize),
		},
	}
	if last := m.lastError.Load(); last != nil {
		h.LastError = *last
	}
	return h
}

// Close checkpoints the WAL and releases the pool.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	// Without the checkpoint, writes can be stranded in the WAL file.
	_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return m.db.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
