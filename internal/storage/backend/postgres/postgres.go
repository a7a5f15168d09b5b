// Package postgres implements the storage backend on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage/backend"
)

// Manager owns the PostgreSQL connection pool and implements backend.Backend.
type Manager struct {
	db        *sql.DB
	dialect   Dialect
	log       *logging.Logger
	startedAt time.Time
	attempts  atomic.Int64
	lastError atomic.Pointer[string]
	closed    atomic.Bool
	cfg       config.DatabaseConfig
}

var _ backend.Backend = (*Manager)(nil)

// Open connects to the database, configures the pool, and initializes the
// schema. Connection establishment is retried with exponential backoff up to
// the configured connect timeout.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*Manager, error) {
	m := &Manager{
		dialect:   Dialect{},
		log:       log.Named("postgres"),
		startedAt: time.Now(),
		cfg:       cfg,
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetMaxIdleConns(cfg.PoolMax / 2)
	db.SetConnMaxIdleTime(time.Duration(cfg.IdleTimeoutSec) * time.Second)
	db.SetConnMaxLifetime(time.Duration(cfg.MaxLifetimeSec) * time.Second)
	m.db = db

	ping := func() error {
		m.attempts.Add(1)
		backend.ConnectionAttempts.WithLabelValues(m.dialect.Name()).Inc()
		if err := db.PingContext(ctx); err != nil {
			backend.ConnectionFailures.WithLabelValues(m.dialect.Name()).Inc()
			msg := err.Error()
			m.lastError.Store(&msg)
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(time.Duration(cfg.ConnectTimeoutSec)*time.Second),
	), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	m.log.Debug("postgres backend ready",
		zap.Int("poolMax", cfg.PoolMax),
		logging.Sensitive("connectionString", cfg.ConnectionString),
	)
	return m, nil
}

// DB returns the pool.
func (m *Manager) DB() backend.Querier { return m.db }

// Dialect returns the PostgreSQL type-conversion boundary.
func (m *Manager) Dialect() backend.Dialect { return m.dialect }

// RunInTx executes fn inside a transaction, committing on nil return and
// rolling back on error or panic.
func (m *Manager) RunInTx(ctx context.Context, fn func(q backend.Querier) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err // rollback happens in defer
	}

	if err := tx.Commit(); err != nil {
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

	stats := m.db.Stats()
	h := backend.Health{
		Connected:          err == nil,
		ResponseTime:       elapsed,
		Uptime:             time.Since(m.startedAt),
		ConnectionAttempts: m.attempts.Load(),
		Configuration: map[string]string{
			"type":            m.dialect.Name(),
			"poolMax":         fmt.Sprintf("%d", m.cfg.PoolMax),
			"openConnections": fmt.Sprintf("%d", stats.OpenConnections),
			"inUse":           fmt.Sprintf("%d", stats.InUse),
		},
	}
	if last := m.lastError.Load(); last != nil {
		h.LastError = *last
	}
	return h
}

// Close releases the pool.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.db.Close()
}
