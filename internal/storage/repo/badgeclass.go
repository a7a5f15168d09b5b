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

const badgeClassCols = "id, issuer_id, name, description, image, criteria, alignment, tags, " +
	"version, previous_version, related, endorsement, additional_fields, created_at, updated_at"

// BadgeClassRepo persists badge definitions.
type BadgeClassRepo struct {
	base
}

var _ storage.BadgeClassRepository = (*BadgeClassRepo)(nil)

// NewBadgeClassRepository constructs the badge class repository.
func NewBadgeClassRepository(be backend.Backend, log *logging.Logger) *BadgeClassRepo {
	return &BadgeClassRepo{base: newBase(be, log, "badgeClass")}
}

// Create validates and inserts a new badge class. When previousVersion is set
// the referenced class must exist and belong to the same issuer; the check and
// the insert run in one transaction so the chain cannot be broken by a
// concurrent delete.
func (r *BadgeClassRepo) Create(ctx context.Context, badge *types.BadgeClass) (*types.BadgeClass, error) {
	const op = "badgeClass.Create"
	start := time.Now()

	id, err := idgen.Normalize(badge.ID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, badge.ID, "invalid id: %v", err)
	}
	stored := *badge
	stored.ID = id
	if stored.Criteria == nil {
		stored.Criteria = map[string]any{}
	}
	now := nowUTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if err := stored.Validate(); err != nil {
		return nil, storage.NewError(storage.ErrValidation, op, r.entity, id, err)
	}

	err = r.be.RunInTx(ctx, func(q backend.Querier) error {
		if stored.PreviousVersion != nil {
			if err := r.checkVersionChain(ctx, q, op, stored.IssuerID, *stored.PreviousVersion); err != nil {
				return err
			}
		}
		return r.insert(ctx, q, &stored)
	})
	if err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return &stored, nil
}

// checkVersionChain verifies that prevID names an existing badge class owned
// by issuerID.
func (r *BadgeClassRepo) checkVersionChain(ctx context.Context, q backend.Querier, op, issuerID, prevID string) error {
	d := r.d()
	prev, err := d.BindID(prevID)
	if err != nil {
		return storage.Validationf(op, r.entity, prevID, "invalid previousVersion: %v", err)
	}
	var ownerRaw any
	err = q.QueryRowContext(ctx, d.Rebind(`SELECT issuer_id FROM badge_classes WHERE id = ?`), prev).Scan(&ownerRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Validationf(op, r.entity, prevID, "previousVersion does not exist")
	}
	if err != nil {
		return err
	}
	owner, err := d.ScanID(ownerRaw)
	if err != nil {
		return err
	}
	if owner != issuerID {
		return storage.Validationf(op, r.entity, prevID, "previousVersion belongs to a different issuer")
	}
	return nil
}

func (r *BadgeClassRepo) insert(ctx context.Context, q backend.Querier, badge *types.BadgeClass) error {
	d := r.d()
	idv, err := d.BindID(badge.ID)
	if err != nil {
		return err
	}
	issuerID, err := d.BindID(badge.IssuerID)
	if err != nil {
		return err
	}
	prev, err := d.BindNullID(badge.PreviousVersion)
	if err != nil {
		return err
	}
	image, err := bindJSON(d, badge.Image)
	if err != nil {
		return err
	}
	criteria, err := d.BindJSON(badge.Criteria)
	if err != nil {
		return err
	}
	alignment, err := bindJSONSlice(d, badge.Alignment)
	if err != nil {
		return err
	}
	tags, err := bindJSONSlice(d, badge.Tags)
	if err != nil {
		return err
	}
	related, err := bindJSONSlice(d, badge.Related)
	if err != nil {
		return err
	}
	endorsement, err := bindJSONSlice(d, badge.Endorsement)
	if err != nil {
		return err
	}
	extras, err := bindJSONMap(d, badge.AdditionalFields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		INSERT INTO badge_classes (`+badgeClassCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		idv, issuerID, badge.Name, badge.Description, image, criteria, alignment, tags,
		nullStr(badge.Version), prev, related, endorsement, extras,
		d.BindTime(badge.CreatedAt), d.BindTime(badge.UpdatedAt),
	)
	return err
}

func (r *BadgeClassRepo) scan(sc scanner) (*types.BadgeClass, error) {
	d := r.d()
	var (
		badge            types.BadgeClass
		idRaw, issuerRaw any
		version          sql.NullString
		prevRaw          any
		imageRaw, criteriaRaw, alignmentRaw, tagsRaw   any
		relatedRaw, endorsementRaw, extrasRaw          any
		createdRaw, updatedRaw                         any
	)
	if err := sc.Scan(&idRaw, &issuerRaw, &badge.Name, &badge.Description, &imageRaw,
		&criteriaRaw, &alignmentRaw, &tagsRaw, &version, &prevRaw, &relatedRaw,
		&endorsementRaw, &extrasRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if badge.ID, err = d.ScanID(idRaw); err != nil {
		return nil, err
	}
	if badge.IssuerID, err = d.ScanID(issuerRaw); err != nil {
		return nil, err
	}
	badge.Version = fromNullStr(version)
	if prevRaw != nil {
		prev, err := d.ScanID(prevRaw)
		if err != nil {
			return nil, err
		}
		badge.PreviousVersion = &prev
	}
	for _, f := range []struct {
		raw any
		dst any
	}{
		{imageRaw, &badge.Image},
		{criteriaRaw, &badge.Criteria},
		{alignmentRaw, &badge.Alignment},
		{tagsRaw, &badge.Tags},
		{relatedRaw, &badge.Related},
		{endorsementRaw, &badge.Endorsement},
		{extrasRaw, &badge.AdditionalFields},
	} {
		if err := d.ScanJSON(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	if badge.Criteria == nil {
		badge.Criteria = map[string]any{}
	}
	if badge.CreatedAt, err = d.ScanTime(createdRaw); err != nil {
		return nil, err
	}
	if badge.UpdatedAt, err = d.ScanTime(updatedRaw); err != nil {
		return nil, err
	}
	return &badge, nil
}

// FindByID returns the badge class or (nil, nil) when absent.
func (r *BadgeClassRepo) FindByID(ctx context.Context, id string) (*types.BadgeClass, error) {
	const op = "badgeClass.FindByID"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	row := r.be.DB().QueryRowContext(ctx, d.Rebind(`SELECT `+badgeClassCols+` FROM badge_classes WHERE id = ?`), idv)
	badge, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		r.done(op, id, 0, start)
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return badge, nil
}

// FindAll returns every badge class. Unbounded; logs a warning.
func (r *BadgeClassRepo) FindAll(ctx context.Context) ([]*types.BadgeClass, error) {
	const op = "badgeClass.FindAll"
	r.warnUnbounded(op)
	return r.list(ctx, op, `SELECT `+badgeClassCols+` FROM badge_classes ORDER BY created_at`)
}

// List returns a validated page of badge classes.
func (r *BadgeClassRepo) List(ctx context.Context, page storage.Page) ([]*types.BadgeClass, error) {
	const op = "badgeClass.List"
	if err := page.Validate(op, r.entity); err != nil {
		return nil, err
	}
	return r.list(ctx, op,
		`SELECT `+badgeClassCols+` FROM badge_classes ORDER BY created_at LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
}

// FindByIssuer returns every badge class owned by the issuer.
func (r *BadgeClassRepo) FindByIssuer(ctx context.Context, issuerID string) ([]*types.BadgeClass, error) {
	const op = "badgeClass.FindByIssuer"
	idv, err := r.d().BindID(issuerID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, issuerID, "invalid issuer id: %v", err)
	}
	return r.list(ctx, op,
		`SELECT `+badgeClassCols+` FROM badge_classes WHERE issuer_id = ? ORDER BY created_at`, idv)
}

// ListByIssuer returns a validated page of the issuer's badge classes.
func (r *BadgeClassRepo) ListByIssuer(ctx context.Context, issuerID string, page storage.Page) ([]*types.BadgeClass, error) {
	const op = "badgeClass.ListByIssuer"
	if err := page.Validate(op, r.entity); err != nil {
		return nil, err
	}
	idv, err := r.d().BindID(issuerID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, issuerID, "invalid issuer id: %v", err)
	}
	return r.list(ctx, op,
		`SELECT `+badgeClassCols+` FROM badge_classes WHERE issuer_id = ? ORDER BY created_at LIMIT ? OFFSET ?`,
		idv, page.Limit, page.Offset)
}

func (r *BadgeClassRepo) list(ctx context.Context, op, query string, args ...any) ([]*types.BadgeClass, error) {
	start := time.Now()
	rows, err := r.be.DB().QueryContext(ctx, r.d().Rebind(query), args...)
	if err != nil {
		return nil, r.fail(op, "", err)
	}
	defer rows.Close()
	var out []*types.BadgeClass
	for rows.Next() {
		badge, err := r.scan(rows)
		if err != nil {
			return nil, r.fail(op, "", err)
		}
		out = append(out, badge)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(op, "", err)
	}
	r.done(op, "", len(out), start)
	return out, nil
}

// Update merges the patch over the stored badge class inside a transaction.
// A patched previousVersion is re-validated against the (possibly patched)
// issuer before the write.
func (r *BadgeClassRepo) Update(ctx context.Context, id string, patch types.BadgeClassUpdate) (*types.BadgeClass, error) {
	const op = "badgeClass.Update"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}

	var updated *types.BadgeClass
	err = r.be.RunInTx(ctx, func(q backend.Querier) error {
		row := q.QueryRowContext(ctx, d.Rebind(`SELECT `+badgeClassCols+` FROM badge_classes WHERE id = ?`), idv)
		current, err := r.scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NewError(storage.ErrNotFound, op, r.entity, id, nil)
		}
		if err != nil {
			return err
		}

		patch.IssuerID.Apply(&current.IssuerID)
		patch.Name.Apply(&current.Name)
		patch.Description.Apply(&current.Description)
		patch.Image.Apply(&current.Image)
		patch.Criteria.Apply(&current.Criteria)
		patch.Alignment.Apply(&current.Alignment)
		patch.Tags.Apply(&current.Tags)
		patch.Version.Apply(&current.Version)
		patch.PreviousVersion.Apply(&current.PreviousVersion)
		patch.Related.Apply(&current.Related)
		patch.Endorsement.Apply(&current.Endorsement)
		patch.AdditionalFields.Apply(&current.AdditionalFields)
		current.UpdatedAt = bumpUpdatedAt(current.UpdatedAt)

		if err := current.Validate(); err != nil {
			return storage.NewError(storage.ErrValidation, op, r.entity, id, err)
		}
		if current.PreviousVersion != nil {
			if *current.PreviousVersion == current.ID {
				return storage.Validationf(op, r.entity, id, "previousVersion cannot reference itself")
			}
			if patch.PreviousVersion.IsSet() || patch.IssuerID.IsSet() {
				if err := r.checkVersionChain(ctx, q, op, current.IssuerID, *current.PreviousVersion); err != nil {
					return err
				}
			}
		}

		issuerID, err := d.BindID(current.IssuerID)
		if err != nil {
			return err
		}
		prev, err := d.BindNullID(current.PreviousVersion)
		if err != nil {
			return err
		}
		image, err := bindJSON(d, current.Image)
		if err != nil {
			return err
		}
		criteria, err := d.BindJSON(current.Criteria)
		if err != nil {
			return err
		}
		alignment, err := bindJSONSlice(d, current.Alignment)
		if err != nil {
			return err
		}
		tags, err := bindJSONSlice(d, current.Tags)
		if err != nil {
			return err
		}
		related, err := bindJSONSlice(d, current.Related)
		if err != nil {
			return err
		}
		endorsement, err := bindJSONSlice(d, current.Endorsement)
		if err != nil {
			return err
		}
		extras, err := bindJSONMap(d, current.AdditionalFields)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, d.Rebind(`
			UPDATE badge_classes
			SET issuer_id = ?, name = ?, description = ?, image = ?, criteria = ?,
			    alignment = ?, tags = ?, version = ?, previous_version = ?,
			    related = ?, endorsement = ?, additional_fields = ?, updated_at = ?
			WHERE id = ?`),
			issuerID, current.Name, current.Description, image, criteria,
			alignment, tags, nullStr(current.Version), prev,
			related, endorsement, extras, d.BindTime(current.UpdatedAt), idv,
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

// Delete removes the badge class; its assertions cascade and any version
// chain pointing at it is detached. Returns true iff a row was removed.
func (r *BadgeClassRepo) Delete(ctx context.Context, id string) (bool, error) {
	const op = "badgeClass.Delete"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return false, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	res, err := r.be.DB().ExecContext(ctx, d.Rebind(`DELETE FROM badge_classes WHERE id = ?`), idv)
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
