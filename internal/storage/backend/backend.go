// Package backend defines the capability surface the repositories run on:
// a SQL connection with transactions, a health probe, and a Dialect that
// confines every cross-backend type difference to one boundary.
package backend

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the subset of database/sql satisfied by both *sql.DB and
// *sql.Tx, so repository code is written once and runs inside or outside a
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend is the connection manager each engine implements. It owns the pool
// lifecycle and is the only process-wide database resource.
type Backend interface {
	// DB exposes the pool for non-transactional work.
	DB() Querier
	// Dialect returns the engine's type-conversion boundary.
	Dialect() Dialect
	// RunInTx executes fn inside a transaction, committing on nil return and
	// rolling back on error or panic.
	RunInTx(ctx context.Context, fn func(q Querier) error) error
	// Ping is the lightweight connectivity probe (SELECT 1).
	Ping(ctx context.Context) error
	// Health reports the diagnostics surface.
	Health(ctx context.Context) Health
	// ClassifyError maps a driver error onto the storage error taxonomy.
	ClassifyError(err error) error
	Close() error
}

// Health is the diagnostics snapshot exposed to callers.
type Health struct {
	Connected          bool              `json:"connected"`
	ResponseTime       time.Duration     `json:"responseTimeMs"`
	Uptime             time.Duration     `json:"uptimeMs"`
	ConnectionAttempts int64             `json:"connectionAttempts"`
	LastError          string            `json:"lastError,omitempty"`
	Configuration      map[string]string `json:"configuration"`
}

// Dialect confines every difference between the two engines' native type
// systems. Repositories and mappers consume only these primitives; a
// conversion failure is fatal for the current operation and never silently
// coerces.
type Dialect interface {
	// Name is "postgresql" or "sqlite".
	Name() string
	// Rebind translates '?' placeholders to the engine's syntax.
	Rebind(query string) string
	// JSONPathExpr returns the SQL expression extracting a top-level key
	// from a JSON column as text, e.g. recipient->>'identity' or
	// json_extract(recipient, '$.identity').
	JSONPathExpr(column, key string) string

	// BindJSON prepares a JSON-serializable value for a JSON column.
	// nil stays nil.
	BindJSON(v any) (any, error)
	// ScanJSON decodes a scanned JSON column into dst. A NULL column leaves
	// dst untouched.
	ScanJSON(src any, dst any) error

	// BindTime prepares a timestamp column value.
	BindTime(t time.Time) any
	// BindNullTime prepares a nullable timestamp; nil stays NULL.
	BindNullTime(t *time.Time) any
	// ScanTime decodes a scanned timestamp column.
	ScanTime(src any) (time.Time, error)
	// ScanNullTime decodes a nullable timestamp column.
	ScanNullTime(src any) (*time.Time, error)

	// BindBool prepares a boolean column value.
	BindBool(b bool) any
	// ScanBool decodes a scanned boolean column, accepting the engine's
	// native form plus documented legacy shapes.
	ScanBool(src any) (bool, error)

	// BindID validates and prepares an IRI for the primary-key column.
	BindID(iri string) (any, error)
	// BindNullID prepares a nullable IRI reference.
	BindNullID(iri *string) (any, error)
	// ScanID decodes a scanned identifier column.
	ScanID(src any) (string, error)
}
