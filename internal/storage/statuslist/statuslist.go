// Package statuslist manages Bitstring Status Lists: allocation of slots to
// credentials, status mutations against the compressed bitstring, and the
// capacity bookkeeping that keeps two issuances from ever sharing an index.
//
// All multi-step operations run inside backend transactions. SQLite
// serializes writers at BEGIN IMMEDIATE; PostgreSQL takes a row lock on the
// list being allocated from or mutated.
package statuslist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/bitstring"
	"github.com/opencreds/badgestore/internal/idgen"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/types"
)

const listCols = "id, issuer_id, purpose, status_size, encoded_list, ttl, " +
	"total_entries, used_entries, metadata, created_at, updated_at"

// Engine implements storage.StatusListRepository.
type Engine struct {
	be  backend.Backend
	log *logging.Logger
}

var _ storage.StatusListRepository = (*Engine)(nil)

// NewEngine constructs the status list engine.
func NewEngine(be backend.Backend, log *logging.Logger) *Engine {
	return &Engine{be: be, log: log.Named("statusList")}
}

func (e *Engine) d() backend.Dialect { return e.be.Dialect() }

// nowUTC stamps at millisecond precision, the finest granularity both
// backends round-trip.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// forUpdate appends a row lock on engines that need one; SQLite already
// serializes writers at transaction start.
func (e *Engine) forUpdate(query string) string {
	if e.d().Name() == "postgresql" {
		return query + " FOR UPDATE"
	}
	return query
}

func (e *Engine) fail(op, id string, err error) error {
	var typed *storage.Error
	if errors.As(err, &typed) {
		return err
	}
	kind := e.be.ClassifyError(err)
	if errors.Is(err, bitstring.ErrCorrupt) {
		kind = storage.ErrCorrupt
	}
	e.log.Error("operation failed",
		zap.String("op", op),
		zap.String("id", id),
		zap.NamedError("cause", err),
	)
	return storage.NewError(kind, op, "statusList", id, err)
}

func (e *Engine) done(op, id string, start time.Time) {
	e.log.Debug("operation complete",
		zap.String("op", op),
		zap.String("id", id),
		zap.Duration("duration", time.Since(start)),
	)
}

// scanStatusSize tolerates drivers that surface SMALLINT as text.
func scanStatusSize(src any) (uint8, error) {
	switch v := src.(type) {
	case int64:
		if !types.ValidStatusSize(uint8(v)) {
			return 0, fmt.Errorf("status_size column: invalid value %d", v)
		}
		return uint8(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil || !types.ValidStatusSize(uint8(n)) {
			return 0, fmt.Errorf("status_size column: invalid value %q", v)
		}
		return uint8(n), nil
	case []byte:
		return scanStatusSize(string(v))
	default:
		return 0, fmt.Errorf("status_size column: unexpected type %T", src)
	}
}

func (e *Engine) scanList(sc interface{ Scan(...any) error }) (*types.StatusList, error) {
	d := e.d()
	var (
		list                   types.StatusList
		idRaw, issuerRaw       any
		purpose                string
		sizeRaw                any
		ttl                    sql.NullInt64
		metaRaw                any
		createdRaw, updatedRaw any
	)
	if err := sc.Scan(&idRaw, &issuerRaw, &purpose, &sizeRaw, &list.EncodedList,
		&ttl, &list.TotalEntries, &list.UsedEntries, &metaRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if list.ID, err = d.ScanID(idRaw); err != nil {
		return nil, err
	}
	if list.IssuerID, err = d.ScanID(issuerRaw); err != nil {
		return nil, err
	}
	list.Purpose = types.StatusPurpose(purpose)
	if list.StatusSize, err = scanStatusSize(sizeRaw); err != nil {
		return nil, err
	}
	if ttl.Valid {
		list.TTL = ttl.Int64
	}
	if err := d.ScanJSON(metaRaw, &list.Metadata); err != nil {
		return nil, err
	}
	if list.CreatedAt, err = d.ScanTime(createdRaw); err != nil {
		return nil, err
	}
	if list.UpdatedAt, err = d.ScanTime(updatedRaw); err != nil {
		return nil, err
	}
	return &list, nil
}

// FindByID returns the status list or (nil, nil) when absent.
func (e *Engine) FindByID(ctx context.Context, id string) (*types.StatusList, error) {
	const op = "statusList.FindByID"
	start := time.Now()
	d := e.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, "statusList", id, "invalid id: %v", err)
	}
	row := e.be.DB().QueryRowContext(ctx, d.Rebind(`SELECT `+listCols+` FROM status_lists WHERE id = ?`), idv)
	list, err := e.scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, e.fail(op, id, err)
	}
	e.done(op, id, start)
	return list, nil
}

// FindAvailableStatusList returns the allocation target for the
// (issuer, purpose, statusSize) key: the least-used list with free capacity,
// oldest first. Nil when every list is full.
func (e *Engine) FindAvailableStatusList(ctx context.Context, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*types.StatusList, error) {
	const op = "statusList.FindAvailable"
	if err := validateKey(op, issuerID, purpose, statusSize); err != nil {
		return nil, err
	}
	d := e.d()
	idv, err := d.BindID(issuerID)
	if err != nil {
		return nil, storage.Validationf(op, "statusList", issuerID, "invalid issuer id: %v", err)
	}
	list, err := e.findAvailable(ctx, e.be.DB(), idv, purpose, statusSize, false)
	if err != nil {
		return nil, e.fail(op, issuerID, err)
	}
	return list, nil
}

func (e *Engine) findAvailable(ctx context.Context, q backend.Querier, issuerID any, purpose types.StatusPurpose, statusSize uint8, lock bool) (*types.StatusList, error) {
	d := e.d()
	query := `SELECT ` + listCols + ` FROM status_lists
		WHERE issuer_id = ? AND purpose = ? AND status_size = ? AND used_entries < total_entries
		ORDER BY used_entries ASC, created_at ASC LIMIT 1`
	if lock {
		query = e.forUpdate(query)
	}
	row := q.QueryRowContext(ctx, d.Rebind(query), issuerID, string(purpose), int64(statusSize))
	list, err := e.scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return list, err
}

func validateKey(op, issuerID string, purpose types.StatusPurpose, statusSize uint8) error {
	if issuerID == "" {
		return storage.Validationf(op, "statusList", "", "issuer id is required")
	}
	if !purpose.Valid() {
		return storage.Validationf(op, "statusList", "", "unknown purpose %q", purpose)
	}
	if !types.ValidStatusSize(statusSize) {
		return storage.Validationf(op, "statusList", "", "statusSize must be 1, 2, 4, or 8, got %d", statusSize)
	}
	return nil
}

// newList creates and inserts a zeroed status list for the key.
func (e *Engine) newList(ctx context.Context, q backend.Querier, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*types.StatusList, error) {
	encoded, err := bitstring.Encode(bitstring.NewZero(types.DefaultStatusListSize, statusSize))
	if err != nil {
		return nil, err
	}
	now := nowUTC()
	list := &types.StatusList{
		ID:           idgen.New(),
		IssuerID:     issuerID,
		Purpose:      purpose,
		StatusSize:   statusSize,
		EncodedList:  encoded,
		TotalEntries: types.DefaultStatusListSize,
		UsedEntries:  0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := list.Validate(); err != nil {
		return nil, storage.NewError(storage.ErrValidation, "statusList.Create", "statusList", list.ID, err)
	}
	d := e.d()
	idv, err := d.BindID(list.ID)
	if err != nil {
		return nil, err
	}
	issuer, err := d.BindID(list.IssuerID)
	if err != nil {
		return nil, err
	}
	meta, err := d.BindJSON(list.Metadata)
	if err != nil {
		return nil, err
	}
	var ttl any
	if list.TTL != 0 {
		ttl = list.TTL
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		INSERT INTO status_lists (`+listCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		idv, issuer, string(list.Purpose), int64(list.StatusSize), list.EncodedList,
		ttl, list.TotalEntries, list.UsedEntries, meta,
		d.BindTime(list.CreatedAt), d.BindTime(list.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}
	e.log.Info("created status list",
		zap.String("id", list.ID),
		zap.String("issuer", list.IssuerID),
		zap.String("purpose", string(list.Purpose)),
		zap.Uint8("statusSize", list.StatusSize),
		zap.Int("totalEntries", list.TotalEntries),
	)
	return list, nil
}

// lockAllocationKey serializes allocation per (issuer, purpose, statusSize)
// on PostgreSQL, where FOR UPDATE over an empty result set locks nothing and
// two first allocations would otherwise both create a list. The advisory lock
// is transaction-scoped and releases at commit or rollback. SQLite needs no
// lock: BEGIN IMMEDIATE already serializes writers.
func (e *Engine) lockAllocationKey(ctx context.Context, q backend.Querier, issuerID string, purpose types.StatusPurpose, statusSize uint8) error {
	if e.d().Name() != "postgresql" {
		return nil
	}
	key := fmt.Sprintf("status_lists/%s/%s/%d", issuerID, purpose, statusSize)
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// allocate reserves the next free slot inside the caller's transaction. The
// returned index is the list's used count before the increment; the increment
// is guarded so a concurrent fill of the last slot falls through to a fresh
// list rather than overcommitting.
func (e *Engine) allocate(ctx context.Context, q backend.Querier, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*storage.StatusPosition, error) {
	d := e.d()
	idv, err := d.BindID(issuerID)
	if err != nil {
		return nil, err
	}
	if err := e.lockAllocationKey(ctx, q, issuerID, purpose, statusSize); err != nil {
		return nil, err
	}
	list, err := e.findAvailable(ctx, q, idv, purpose, statusSize, true)
	if err != nil {
		return nil, err
	}
	if list == nil {
		if list, err = e.newList(ctx, q, issuerID, purpose, statusSize); err != nil {
			return nil, err
		}
	}
	listID, err := d.BindID(list.ID)
	if err != nil {
		return nil, err
	}
	res, err := q.ExecContext(ctx, d.Rebind(`
		UPDATE status_lists
		SET used_entries = used_entries + 1, updated_at = ?
		WHERE id = ? AND used_entries = ?`),
		d.BindTime(nowUTC()), listID, list.UsedEntries,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, storage.NewError(storage.ErrConflict, "statusList.Allocate", "statusList", list.ID,
			fmt.Errorf("slot allocation raced; retry"))
	}
	return &storage.StatusPosition{StatusListID: list.ID, Index: list.UsedEntries}, nil
}

// AllocateStatusPosition reserves the next free slot in its own transaction,
// creating a new zeroed list when every existing one is full.
func (e *Engine) AllocateStatusPosition(ctx context.Context, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*storage.StatusPosition, error) {
	const op = "statusList.AllocatePosition"
	start := time.Now()
	if err := validateKey(op, issuerID, purpose, statusSize); err != nil {
		return nil, err
	}
	var pos *storage.StatusPosition
	err := e.be.RunInTx(ctx, func(q backend.Querier) error {
		var err error
		pos, err = e.allocate(ctx, q, issuerID, purpose, statusSize)
		return err
	})
	if err != nil {
		return nil, e.fail(op, issuerID, err)
	}
	e.done(op, pos.StatusListID, start)
	return pos, nil
}

// Delete removes a status list and, via cascade, its entries. Returns true
// iff a row was removed.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	const op = "statusList.Delete"
	start := time.Now()
	d := e.d()
	idv, err := d.BindID(id)
	if err != nil {
		return false, storage.Validationf(op, "statusList", id, "invalid id: %v", err)
	}
	res, err := e.be.DB().ExecContext(ctx, d.Rebind(`DELETE FROM status_lists WHERE id = ?`), idv)
	if err != nil {
		return false, e.fail(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, e.fail(op, id, err)
	}
	e.done(op, id, start)
	return n > 0, nil
}

// GetStatusListStats summarizes capacity for one status list.
func (e *Engine) GetStatusListStats(ctx context.Context, statusListID string) (*storage.StatusListStats, error) {
	const op = "statusList.Stats"
	d := e.d()
	idv, err := d.BindID(statusListID)
	if err != nil {
		return nil, storage.Validationf(op, "statusList", statusListID, "invalid id: %v", err)
	}
	var total, used int
	err = e.be.DB().QueryRowContext(ctx,
		d.Rebind(`SELECT total_entries, used_entries FROM status_lists WHERE id = ?`), idv,
	).Scan(&total, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewError(storage.ErrNotFound, op, "statusList", statusListID, nil)
	}
	if err != nil {
		return nil, e.fail(op, statusListID, err)
	}
	stats := &storage.StatusListStats{
		StatusListID: statusListID,
		TotalEntries: total,
		UsedEntries:  used,
		FreeEntries:  total - used,
	}
	if total > 0 {
		stats.Utilization = float64(used) / float64(total)
	}
	return stats, nil
}
