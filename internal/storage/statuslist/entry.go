package statuslist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/bitstring"
	"github.com/opencreds/badgestore/internal/idgen"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/types"
)

const entryCols = "id, credential_id, status_list_id, status_list_index, status_size, " +
	"purpose, current_status, status_reason, created_at, updated_at"

func (e *Engine) scanEntry(sc interface{ Scan(...any) error }) (*types.CredentialStatusEntry, error) {
	d := e.d()
	var (
		entry                      types.CredentialStatusEntry
		idRaw, credRaw, listRaw    any
		sizeRaw                    any
		purpose                    string
		status                     int64
		reason                     sql.NullString
		createdRaw, updatedRaw     any
	)
	if err := sc.Scan(&idRaw, &credRaw, &listRaw, &entry.StatusListIndex, &sizeRaw,
		&purpose, &status, &reason, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if entry.ID, err = d.ScanID(idRaw); err != nil {
		return nil, err
	}
	if entry.CredentialID, err = d.ScanID(credRaw); err != nil {
		return nil, err
	}
	if entry.StatusListID, err = d.ScanID(listRaw); err != nil {
		return nil, err
	}
	if entry.StatusSize, err = scanStatusSize(sizeRaw); err != nil {
		return nil, err
	}
	entry.Purpose = types.StatusPurpose(purpose)
	if status < 0 || status > 255 {
		return nil, fmt.Errorf("current_status column: invalid value %d", status)
	}
	entry.CurrentStatus = uint8(status)
	if reason.Valid {
		entry.StatusReason = reason.String
	}
	if entry.CreatedAt, err = d.ScanTime(createdRaw); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = d.ScanTime(updatedRaw); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *Engine) insertEntry(ctx context.Context, q backend.Querier, entry *types.CredentialStatusEntry) error {
	d := e.d()
	idv, err := d.BindID(entry.ID)
	if err != nil {
		return err
	}
	cred, err := d.BindID(entry.CredentialID)
	if err != nil {
		return err
	}
	list, err := d.BindID(entry.StatusListID)
	if err != nil {
		return err
	}
	var reason any
	if entry.StatusReason != "" {
		reason = entry.StatusReason
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		INSERT INTO credential_status_entries (`+entryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		idv, cred, list, entry.StatusListIndex, int64(entry.StatusSize),
		string(entry.Purpose), int64(entry.CurrentStatus), reason,
		d.BindTime(entry.CreatedAt), d.BindTime(entry.UpdatedAt),
	)
	return err
}

// BindCredentialStatus allocates a slot and inserts the credential's status
// entry in one transaction. The UNIQUE(status_list_id, status_list_index)
// constraint is the backstop: if two issuances ever claim one index, the
// second insert fails and rolls its allocation back.
func (e *Engine) BindCredentialStatus(ctx context.Context, credentialID, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*types.CredentialStatusEntry, error) {
	const op = "statusList.BindCredentialStatus"
	start := time.Now()
	if credentialID == "" {
		return nil, storage.Validationf(op, "statusEntry", "", "credential id is required")
	}
	if err := validateKey(op, issuerID, purpose, statusSize); err != nil {
		return nil, err
	}

	var entry *types.CredentialStatusEntry
	err := e.be.RunInTx(ctx, func(q backend.Querier) error {
		pos, err := e.allocate(ctx, q, issuerID, purpose, statusSize)
		if err != nil {
			return err
		}
		now := nowUTC()
		entry = &types.CredentialStatusEntry{
			ID:              idgen.New(),
			CredentialID:    credentialID,
			StatusListID:    pos.StatusListID,
			StatusListIndex: pos.Index,
			StatusSize:      statusSize,
			Purpose:         purpose,
			CurrentStatus:   0,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := entry.Validate(); err != nil {
			return storage.NewError(storage.ErrValidation, op, "statusEntry", entry.ID, err)
		}
		return e.insertEntry(ctx, q, entry)
	})
	if err != nil {
		return nil, e.fail(op, credentialID, err)
	}
	e.log.Info("bound credential status",
		zap.String("credential", credentialID),
		zap.String("statusList", entry.StatusListID),
		zap.Int("index", entry.StatusListIndex),
		zap.String("purpose", string(purpose)),
	)
	e.done(op, entry.ID, start)
	return entry, nil
}

// CreateEntry inserts a pre-built status entry, for callers that allocated
// the position themselves.
func (e *Engine) CreateEntry(ctx context.Context, entry *types.CredentialStatusEntry) (*types.CredentialStatusEntry, error) {
	const op = "statusList.CreateEntry"
	start := time.Now()
	stored := *entry
	if stored.ID == "" {
		stored.ID = idgen.New()
	}
	now := nowUTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if err := stored.Validate(); err != nil {
		return nil, storage.NewError(storage.ErrValidation, op, "statusEntry", stored.ID, err)
	}
	if err := e.insertEntry(ctx, e.be.DB(), &stored); err != nil {
		return nil, e.fail(op, stored.ID, err)
	}
	e.done(op, stored.ID, start)
	return &stored, nil
}

// FindStatusEntry returns the entry binding the credential to the purpose, or
// (nil, nil) when the credential has no status for it.
func (e *Engine) FindStatusEntry(ctx context.Context, credentialID string, purpose types.StatusPurpose) (*types.CredentialStatusEntry, error) {
	const op = "statusList.FindEntry"
	entry, err := e.findEntry(ctx, e.be.DB(), credentialID, purpose, false)
	if err != nil {
		var typed *storage.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, e.fail(op, credentialID, err)
	}
	return entry, nil
}

func (e *Engine) findEntry(ctx context.Context, q backend.Querier, credentialID string, purpose types.StatusPurpose, lock bool) (*types.CredentialStatusEntry, error) {
	const op = "statusList.FindEntry"
	if !purpose.Valid() {
		return nil, storage.Validationf(op, "statusEntry", credentialID, "unknown purpose %q", purpose)
	}
	d := e.d()
	cred, err := d.BindID(credentialID)
	if err != nil {
		return nil, storage.Validationf(op, "statusEntry", credentialID, "invalid credential id: %v", err)
	}
	query := `SELECT ` + entryCols + ` FROM credential_status_entries WHERE credential_id = ? AND purpose = ?`
	if lock {
		query = e.forUpdate(query)
	}
	row := q.QueryRowContext(ctx, d.Rebind(query), cred, string(purpose))
	entry, err := e.scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// UpdateCredentialStatus sets the credential's status value for the purpose,
// rewriting the owning list's bitstring and the entry's cached status in one
// transaction. The result is structured rather than an error because callers
// batch these and report per-credential outcomes.
func (e *Engine) UpdateCredentialStatus(ctx context.Context, params storage.StatusUpdateParams) storage.StatusUpdateResult {
	const op = "statusList.UpdateStatus"
	start := time.Now()
	if !params.Purpose.Valid() {
		return storage.StatusUpdateResult{Error: fmt.Sprintf("unknown purpose %q", params.Purpose)}
	}

	var entry *types.CredentialStatusEntry
	err := e.be.RunInTx(ctx, func(q backend.Querier) error {
		var err error
		entry, err = e.findEntry(ctx, q, params.CredentialID, params.Purpose, true)
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.NewError(storage.ErrNotFound, op, "statusEntry", params.CredentialID,
				fmt.Errorf("no %s status entry for credential", params.Purpose))
		}
		if params.Status > uint8(1<<entry.StatusSize-1) {
			return storage.Validationf(op, "statusEntry", entry.ID,
				"status %d exceeds max %d for statusSize %d", params.Status, uint8(1<<entry.StatusSize-1), entry.StatusSize)
		}

		if err := e.setListBit(ctx, q, entry.StatusListID, entry.StatusListIndex, params.Status); err != nil {
			return err
		}

		d := e.d()
		entryID, err := d.BindID(entry.ID)
		if err != nil {
			return err
		}
		var reason any
		if params.Reason != "" {
			reason = params.Reason
		}
		entry.CurrentStatus = params.Status
		entry.StatusReason = params.Reason
		entry.UpdatedAt = nowUTC()
		_, err = q.ExecContext(ctx, d.Rebind(`
			UPDATE credential_status_entries
			SET current_status = ?, status_reason = ?, updated_at = ?
			WHERE id = ?`),
			int64(params.Status), reason, d.BindTime(entry.UpdatedAt), entryID,
		)
		return err
	})
	if err != nil {
		e.fail(op, params.CredentialID, err)
		return storage.StatusUpdateResult{Error: err.Error()}
	}
	e.done(op, entry.ID, start)
	return storage.StatusUpdateResult{Success: true, Entry: entry}
}

// setListBit rewrites one slot of the list's bitstring inside the caller's
// transaction. The list row is locked for the duration on PostgreSQL.
func (e *Engine) setListBit(ctx context.Context, q backend.Querier, statusListID string, index int, value uint8) error {
	d := e.d()
	listID, err := d.BindID(statusListID)
	if err != nil {
		return err
	}
	query := `SELECT ` + listCols + ` FROM status_lists WHERE id = ?`
	row := q.QueryRowContext(ctx, d.Rebind(e.forUpdate(query)), listID)
	list, err := e.scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NewError(storage.ErrNotFound, "statusList.UpdateStatus", "statusList", statusListID, nil)
	}
	if err != nil {
		return err
	}

	raw, err := bitstring.Decode(list.EncodedList, list.TotalEntries, list.StatusSize)
	if err != nil {
		return err
	}
	if err := bitstring.Set(raw, index, list.StatusSize, value); err != nil {
		return err
	}
	encoded, err := bitstring.Encode(raw)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		UPDATE status_lists SET encoded_list = ?, updated_at = ? WHERE id = ?`),
		encoded, d.BindTime(nowUTC()), listID,
	)
	return err
}

// GetStatus reads the credential's current status value for the purpose
// straight from the list's bitstring, which is the source of truth.
func (e *Engine) GetStatus(ctx context.Context, credentialID string, purpose types.StatusPurpose) (uint8, error) {
	const op = "statusList.GetStatus"
	entry, err := e.findEntry(ctx, e.be.DB(), credentialID, purpose, false)
	if err != nil {
		var typed *storage.Error
		if errors.As(err, &typed) {
			return 0, err
		}
		return 0, e.fail(op, credentialID, err)
	}
	if entry == nil {
		return 0, storage.NewError(storage.ErrNotFound, op, "statusEntry", credentialID,
			fmt.Errorf("no %s status entry for credential", purpose))
	}

	list, err := e.FindByID(ctx, entry.StatusListID)
	if err != nil {
		return 0, err
	}
	if list == nil {
		return 0, storage.NewError(storage.ErrCorrupt, op, "statusList", entry.StatusListID,
			fmt.Errorf("status entry references missing list"))
	}
	raw, err := bitstring.Decode(list.EncodedList, list.TotalEntries, list.StatusSize)
	if err != nil {
		return 0, e.fail(op, list.ID, err)
	}
	v, err := bitstring.Get(raw, entry.StatusListIndex, list.StatusSize)
	if err != nil {
		return 0, e.fail(op, list.ID, err)
	}
	return v, nil
}
