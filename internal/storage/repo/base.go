// Package repo implements the entity repositories over the backend
// capability. Each repository is a Data Mapper: it owns the SQL for its
// table and converts rows to domain entities through the backend's Dialect,
// so no engine-specific type ever crosses into the domain.
package repo

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
)

// base carries the shared plumbing: backend handle, structured logging with
// operation context, and error classification.
type base struct {
	be     backend.Backend
	log    *logging.Logger
	entity string
}

func newBase(be backend.Backend, log *logging.Logger, entity string) base {
	return base{be: be, log: log.Named(entity), entity: entity}
}

func (b *base) d() backend.Dialect { return b.be.Dialect() }

// fail classifies err, logs it with the operation context, and returns the
// typed error. Errors already classified pass through unchanged.
func (b *base) fail(op, id string, err error) error {
	var typed *storage.Error
	if errors.As(err, &typed) {
		return err
	}
	kind := b.be.ClassifyError(err)
	e := storage.NewError(kind, op, b.entity, id, err)
	b.log.Error("operation failed",
		zap.String("op", op),
		zap.String("entity", b.entity),
		zap.String("id", id),
		zap.NamedError("cause", err),
	)
	return e
}

// done logs the completed operation with row count and duration.
func (b *base) done(op, id string, rows int, start time.Time) {
	b.log.Debug("operation complete",
		zap.String("op", op),
		zap.String("entity", b.entity),
		zap.String("id", id),
		zap.Int("rows", rows),
		zap.Duration("duration", time.Since(start)),
	)
}

// warnUnbounded flags a FindAll-style call that has no pagination window.
func (b *base) warnUnbounded(op string) {
	b.log.Warn("unbounded listing; prefer the paginated variant",
		zap.String("op", op),
		zap.String("entity", b.entity),
	)
}

// nowUTC stamps at millisecond precision, the finest granularity both
// backends round-trip, so a created entity compares equal to its re-read.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// bumpUpdatedAt advances updatedAt strictly past the previous value even
// under coarse clocks.
func bumpUpdatedAt(prev time.Time) time.Time {
	now := nowUTC()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}
