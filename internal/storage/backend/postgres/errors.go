package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/opencreds/badgestore/internal/storage"
)

// ClassifyError maps lib/pq errors onto the storage taxonomy so no
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
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return storage.ErrConflict
		case "23503", "23502", "23514": // fk, not-null, check violations
			return storage.ErrValidation
		case "22P02": // invalid_text_representation (bad uuid/json literal)
			return storage.ErrValidation
		case "57014": // query_canceled
			return storage.ErrUnavailable
		}
		switch pqErr.Code.Class() {
		case "08": // connection exceptions
			return storage.ErrUnavailable
		case "53": // insufficient resources (pool, memory)
			return storage.ErrUnavailable
		}
		return storage.ErrInternal
	}
	return storage.ErrInternal
}
