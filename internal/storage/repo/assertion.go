package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opencreds/badgestore/internal/idgen"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/types"
)

const assertionCols = "id, badge_class_id, issuer_id, recipient, issued_on, expires, " +
	"evidence, verification, revoked, revocation_reason, additional_fields, created_at, updated_at"

// AssertionRepo persists issued credentials.
type AssertionRepo struct {
	base
}

var _ storage.AssertionRepository = (*AssertionRepo)(nil)

// NewAssertionRepository constructs the assertion repository.
func NewAssertionRepository(be backend.Backend, log *logging.Logger) *AssertionRepo {
	return &AssertionRepo{base: newBase(be, log, "assertion")}
}

// Create validates and inserts a new assertion. The issuer is denormalized
// from the badge class when absent; issuedOn must not be in the future.
func (r *AssertionRepo) Create(ctx context.Context, assertion *types.Assertion) (*types.Assertion, error) {
	const op = "assertion.Create"
	start := time.Now()

	id, err := idgen.Normalize(assertion.ID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, assertion.ID, "invalid id: %v", err)
	}
	stored := *assertion
	stored.ID = id
	now := nowUTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	err = r.be.RunInTx(ctx, func(q backend.Querier) error {
		if stored.IssuerID == "" && stored.BadgeClassID != "" {
			owner, err := r.badgeClassOwner(ctx, q, op, stored.BadgeClassID)
			if err != nil {
				return err
			}
			stored.IssuerID = owner
		}
		if err := stored.ValidateForCreate(time.Now().UTC()); err != nil {
			return storage.NewError(storage.ErrValidation, op, r.entity, id, err)
		}
		return r.insert(ctx, q, &stored)
	})
	if err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return &stored, nil
}

// badgeClassOwner resolves the issuer owning the badge class.
func (r *AssertionRepo) badgeClassOwner(ctx context.Context, q backend.Querier, op, badgeClassID string) (string, error) {
	d := r.d()
	idv, err := d.BindID(badgeClassID)
	if err != nil {
		return "", storage.Validationf(op, r.entity, badgeClassID, "invalid badgeClass id: %v", err)
	}
	var ownerRaw any
	err = q.QueryRowContext(ctx, d.Rebind(`SELECT issuer_id FROM badge_classes WHERE id = ?`), idv).Scan(&ownerRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.Validationf(op, r.entity, badgeClassID, "badgeClass does not exist")
	}
	if err != nil {
		return "", err
	}
	return d.ScanID(ownerRaw)
}

func (r *AssertionRepo) insert(ctx context.Context, q backend.Querier, assertion *types.Assertion) error {
	d := r.d()
	idv, err := d.BindID(assertion.ID)
	if err != nil {
		return err
	}
	badgeClassID, err := d.BindID(assertion.BadgeClassID)
	if err != nil {
		return err
	}
	issuerID, err := d.BindID(assertion.IssuerID)
	if err != nil {
		return err
	}
	recipient, err := d.BindJSON(assertion.Recipient)
	if err != nil {
		return err
	}
	evidence, err := bindJSONSlice(d, assertion.Evidence)
	if err != nil {
		return err
	}
	verification, err := bindJSONMap(d, assertion.Verification)
	if err != nil {
		return err
	}
	extras, err := bindJSONMap(d, assertion.AdditionalFields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		INSERT INTO assertions (`+assertionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		idv, badgeClassID, issuerID, recipient,
		d.BindTime(assertion.IssuedOn), d.BindNullTime(assertion.Expires),
		evidence, verification, d.BindBool(assertion.Revoked),
		nullStr(assertion.RevocationReason), extras,
		d.BindTime(assertion.CreatedAt), d.BindTime(assertion.UpdatedAt),
	)
	return err
}

func (r *AssertionRepo) scan(sc scanner) (*types.Assertion, error) {
	d := r.d()
	var (
		assertion                   types.Assertion
		idRaw, badgeRaw, issuerRaw  any
		recipientRaw                any
		issuedRaw, expiresRaw       any
		evidenceRaw, verifRaw       any
		revokedRaw                  any
		reason                      sql.NullString
		extrasRaw                   any
		createdRaw, updatedRaw      any
	)
	if err := sc.Scan(&idRaw, &badgeRaw, &issuerRaw, &recipientRaw, &issuedRaw, &expiresRaw,
		&evidenceRaw, &verifRaw, &revokedRaw, &reason, &extrasRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if assertion.ID, err = d.ScanID(idRaw); err != nil {
		return nil, err
	}
	if assertion.BadgeClassID, err = d.ScanID(badgeRaw); err != nil {
		return nil, err
	}
	if assertion.IssuerID, err = d.ScanID(issuerRaw); err != nil {
		return nil, err
	}
	if err := d.ScanJSON(recipientRaw, &assertion.Recipient); err != nil {
		return nil, err
	}
	if assertion.IssuedOn, err = d.ScanTime(issuedRaw); err != nil {
		return nil, err
	}
	if assertion.Expires, err = d.ScanNullTime(expiresRaw); err != nil {
		return nil, err
	}
	if err := d.ScanJSON(evidenceRaw, &assertion.Evidence); err != nil {
		return nil, err
	}
	if err := d.ScanJSON(verifRaw, &assertion.Verification); err != nil {
		return nil, err
	}
	if assertion.Revoked, err = d.ScanBool(revokedRaw); err != nil {
		return nil, err
	}
	assertion.RevocationReason = fromNullStr(reason)
	if err := d.ScanJSON(extrasRaw, &assertion.AdditionalFields); err != nil {
		return nil, err
	}
	if assertion.CreatedAt, err = d.ScanTime(createdRaw); err != nil {
		return nil, err
	}
	if assertion.UpdatedAt, err = d.ScanTime(updatedRaw); err != nil {
		return nil, err
	}
	return &assertion, nil
}

// FindByID returns the assertion or (nil, nil) when absent.
func (r *AssertionRepo) FindByID(ctx context.Context, id string) (*types.Assertion, error) {
	const op = "assertion.FindByID"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	row := r.be.DB().QueryRowContext(ctx, d.Rebind(`SELECT `+assertionCols+` FROM assertions WHERE id = ?`), idv)
	assertion, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		r.done(op, id, 0, start)
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return assertion, nil
}

// FindAll returns every assertion. Unbounded; logs a warning.
func (r *AssertionRepo) FindAll(ctx context.Context) ([]*types.Assertion, error) {
	const op = "assertion.FindAll"
	r.warnUnbounded(op)
	return r.list(ctx, op, `SELECT `+assertionCols+` FROM assertions ORDER BY issued_on`)
}

// List returns a validated page of assertions.
func (r *AssertionRepo) List(ctx context.Context, page storage.Page) ([]*types.Assertion, error) {
	const op = "assertion.List"
	if err := page.Validate(op, r.entity); err != nil {
		return nil, err
	}
	return r.list(ctx, op,
		`SELECT `+assertionCols+` FROM assertions ORDER BY issued_on LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
}

// FindByBadgeClass returns every assertion issued against the badge class.
func (r *AssertionRepo) FindByBadgeClass(ctx context.Context, badgeClassID string) ([]*types.Assertion, error) {
	const op = "assertion.FindByBadgeClass"
	idv, err := r.d().BindID(badgeClassID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, badgeClassID, "invalid badgeClass id: %v", err)
	}
	return r.list(ctx, op,
		`SELECT `+assertionCols+` FROM assertions WHERE badge_class_id = ? ORDER BY issued_on`, idv)
}

// FindByIssuer returns every assertion issued by the issuer.
func (r *AssertionRepo) FindByIssuer(ctx context.Context, issuerID string) ([]*types.Assertion, error) {
	const op = "assertion.FindByIssuer"
	idv, err := r.d().BindID(issuerID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, issuerID, "invalid issuer id: %v", err)
	}
	return r.list(ctx, op,
		`SELECT `+assertionCols+` FROM assertions WHERE issuer_id = ? ORDER BY issued_on`, idv)
}

// FindByRecipient matches the recipient's identity value inside the stored
// JSON object. Hashed identities match on the stored hash.
func (r *AssertionRepo) FindByRecipient(ctx context.Context, recipientID string) ([]*types.Assertion, error) {
	const op = "assertion.FindByRecipient"
	if recipientID == "" {
		return nil, storage.Validationf(op, r.entity, "", "recipient identity is required")
	}
	expr := r.d().JSONPathExpr("recipient", "identity")
	return r.list(ctx, op,
		`SELECT `+assertionCols+` FROM assertions WHERE `+expr+` = ? ORDER BY issued_on`, recipientID)
}

func (r *AssertionRepo) list(ctx context.Context, op, query string, args ...any) ([]*types.Assertion, error) {
	start := time.Now()
	rows, err := r.be.DB().QueryContext(ctx, r.d().Rebind(query), args...)
	if err != nil {
		return nil, r.fail(op, "", err)
	}
	defer rows.Close()
	var out []*types.Assertion
	for rows.Next() {
		assertion, err := r.scan(rows)
		if err != nil {
			return nil, r.fail(op, "", err)
		}
		out = append(out, assertion)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(op, "", err)
	}
	r.done(op, "", len(out), start)
	return out, nil
}

// Update merges the patch over the stored assertion inside a transaction.
// Revoking requires a reason; un-revoking clears it.
func (r *AssertionRepo) Update(ctx context.Context, id string, patch types.AssertionUpdate) (*types.Assertion, error) {
	const op = "assertion.Update"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}

	var updated *types.Assertion
	err = r.be.RunInTx(ctx, func(q backend.Querier) error {
		row := q.QueryRowContext(ctx, d.Rebind(`SELECT `+assertionCols+` FROM assertions WHERE id = ?`), idv)
		current, err := r.scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NewError(storage.ErrNotFound, op, r.entity, id, nil)
		}
		if err != nil {
			return err
		}

		patch.Recipient.Apply(&current.Recipient)
		patch.Expires.Apply(&current.Expires)
		patch.Evidence.Apply(&current.Evidence)
		patch.Verification.Apply(&current.Verification)
		patch.Revoked.Apply(&current.Revoked)
		patch.RevocationReason.Apply(&current.RevocationReason)
		patch.AdditionalFields.Apply(&current.AdditionalFields)
		if patch.Revoked.IsSet() && !current.Revoked && !patch.RevocationReason.IsSet() {
			current.RevocationReason = ""
		}
		current.UpdatedAt = bumpUpdatedAt(current.UpdatedAt)

		if err := current.Validate(); err != nil {
			return storage.NewError(storage.ErrValidation, op, r.entity, id, err)
		}

		recipient, err := d.BindJSON(current.Recipient)
		if err != nil {
			return err
		}
		evidence, err := bindJSONSlice(d, current.Evidence)
		if err != nil {
			return err
		}
		verification, err := bindJSONMap(d, current.Verification)
		if err != nil {
			return err
		}
		extras, err := bindJSONMap(d, current.AdditionalFields)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, d.Rebind(`
			UPDATE assertions
			SET recipient = ?, expires = ?, evidence = ?, verification = ?,
			    revoked = ?, revocation_reason = ?, additional_fields = ?, updated_at = ?
			WHERE id = ?`),
			recipient, d.BindNullTime(current.Expires), evidence, verification,
			d.BindBool(current.Revoked), nullStr(current.RevocationReason), extras,
			d.BindTime(current.UpdatedAt), idv,
		)
		if err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		var typed *storage.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return updated, nil
}

// Delete removes the assertion and, via cascade, its status entries.
// Returns true iff a row was removed.
func (r *AssertionRepo) Delete(ctx context.Context, id string) (bool, error) {
	const op = "assertion.Delete"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return false, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	res, err := r.be.DB().ExecContext(ctx, d.Rebind(`DELETE FROM assertions WHERE id = ?`), idv)
	if err != nil {
		return false, r.fail(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail(op, id, err)
	}
	r.done(op, id, int(n), start)
	return n > 0, nil
}
