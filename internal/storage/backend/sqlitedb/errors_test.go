package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencreds/badgestore/internal/storage"
)

func TestClassifyError(t *testing.T) {
	m := &Manager{}

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, storage.ErrNotFound},
		{"deadline", context.DeadlineExceeded, storage.ErrUnavailable},
		{"canceled", context.Canceled, storage.ErrUnavailable},
		{"unique", errors.New("UNIQUE constraint failed: credential_status_entries.credential_id"), storage.ErrConflict},
		{"foreign key", errors.New("FOREIGN KEY constraint failed"), storage.ErrValidation},
		{"check", errors.New("CHECK constraint failed: status_size"), storage.ErrValidation},
		{"busy", errors.New("database is locked (SQLITE_BUSY)"), storage.ErrUnavailable},
		{"closed", errors.New("sql: database is closed"), storage.ErrUnavailable},
		{"other", errors.New("parse error"), storage.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.ClassifyError(tc.err))
		})
	}
}
