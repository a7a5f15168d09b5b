package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/opencreds/badgestore/internal/storage"
)

// ClassifyError maps SQLite driver errors onto the storage taxonomy so no
// driver-specific shape leaks past the repositories.
func (m *Manager) ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return storage.ErrUnavailable
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return storage.ErrConflict
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return storage.ErrValidation
	case strings.Contains(msg, "CHECK constraint failed"):
		return storage.ErrValidation
	case isBusy(err), strings.Contains(msg, "sql: database is closed"):
		return storage.ErrUnavailable
	}
	return storage.ErrInternal
}
