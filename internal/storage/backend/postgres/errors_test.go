package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
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
		{"unique violation", &pq.Error{Code: "23505"}, storage.ErrConflict},
		{"fk violation", &pq.Error{Code: "23503"}, storage.ErrValidation},
		{"check violation", &pq.Error{Code: "23514"}, storage.ErrValidation},
		{"bad literal", &pq.Error{Code: "22P02"}, storage.ErrValidation},
		{"query canceled", &pq.Error{Code: "57014"}, storage.ErrUnavailable},
		{"connection failure", &pq.Error{Code: "08006"}, storage.ErrUnavailable},
		{"too many connections", &pq.Error{Code: "53300"}, storage.ErrUnavailable},
		{"other pq", &pq.Error{Code: "42601"}, storage.ErrInternal},
		{"plain", errors.New("boom"), storage.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.ClassifyError(tc.err))
		})
	}
}
