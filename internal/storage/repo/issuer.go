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

const issuerCols = "id, name, url, email, description, image, public_key, additional_fields, created_at, updated_at"

// IssuerRepo persists issuers.
type IssuerRepo struct {
	base
}

var _ storage.IssuerRepository = (*IssuerRepo)(nil)

// NewIssuerRepository constructs the issuer repository.
func NewIssuerRepository(be backend.Backend, log *logging.Logger) *IssuerRepo {
	return &IssuerRepo{base: newBase(be, log, "issuer")}
}

// Create validates and inserts a new issuer, minting an IRI when absent.
func (r *IssuerRepo) Create(ctx context.Context, issuer *types.Issuer) (*types.Issuer, error) {
	const op = "issuer.Create"
	start := time.Now()

	id, err := idgen.Normalize(issuer.ID)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, issuer.ID, "invalid id: %v", err)
	}
	stored := *issuer
	stored.ID = id
	now := nowUTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if err := stored.Validate(); err != nil {
		return nil, storage.NewError(storage.ErrValidation, op, r.entity, id, err)
	}

	if err := r.insert(ctx, r.be.DB(), &stored); err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return &stored, nil
}

func (r *IssuerRepo) insert(ctx context.Context, q backend.Querier, issuer *types.Issuer) error {
	d := r.d()
	idv, err := d.BindID(issuer.ID)
	if err != nil {
		return err
	}
	image, err := bindJSON(d, issuer.Image)
	if err != nil {
		return err
	}
	publicKey, err := bindJSONMap(d, issuer.PublicKey)
	if err != nil {
		return err
	}
	extras, err := bindJSONMap(d, issuer.AdditionalFields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.Rebind(`
		INSERT INTO issuers (`+issuerCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		idv, issuer.Name, issuer.URL, nullStr(issuer.Email), nullStr(issuer.Description),
		image, publicKey, extras, d.BindTime(issuer.CreatedAt), d.BindTime(issuer.UpdatedAt),
	)
	return err
}

func (r *IssuerRepo) scan(sc scanner) (*types.Issuer, error) {
	d := r.d()
	var (
		issuer             types.Issuer
		idRaw              any
		email, description sql.NullString
		imageRaw, pkRaw    any
		extrasRaw          any
		createdRaw, updatedRaw any
	)
	if err := sc.Scan(&idRaw, &issuer.Name, &issuer.URL, &email, &description,
		&imageRaw, &pkRaw, &extrasRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if issuer.ID, err = d.ScanID(idRaw); err != nil {
		return nil, err
	}
	issuer.Email = fromNullStr(email)
	issuer.Description = fromNullStr(description)
	if err := d.ScanJSON(imageRaw, &issuer.Image); err != nil {
		return nil, err
	}
	if err := d.ScanJSON(pkRaw, &issuer.PublicKey); err != nil {
		return nil, err
	}
	if err := d.ScanJSON(extrasRaw, &issuer.AdditionalFields); err != nil {
		return nil, err
	}
	if issuer.CreatedAt, err = d.ScanTime(createdRaw); err != nil {
		return nil, err
	}
	if issuer.UpdatedAt, err = d.ScanTime(updatedRaw); err != nil {
		return nil, err
	}
	return &issuer, nil
}

// FindByID returns the issuer or (nil, nil) when absent.
func (r *IssuerRepo) FindByID(ctx context.Context, id string) (*types.Issuer, error) {
	const op = "issuer.FindByID"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	row := r.be.DB().QueryRowContext(ctx, d.Rebind(`SELECT `+issuerCols+` FROM issuers WHERE id = ?`), idv)
	issuer, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		r.done(op, id, 0, start)
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(op, id, err)
	}
	r.done(op, id, 1, start)
	return issuer, nil
}

// FindAll returns every issuer. Unbounded; logs a warning.
func (r *IssuerRepo) FindAll(ctx context.Context) ([]*types.Issuer, error) {
	const op = "issuer.FindAll"
	r.warnUnbounded(op)
	return r.list(ctx, op, `SELECT `+issuerCols+` FROM issuers ORDER BY created_at`)
}

// List returns a validated page of issuers.
func (r *IssuerRepo) List(ctx context.Context, page storage.Page) ([]*types.Issuer, error) {
	const op = "issuer.List"
	if err := page.Validate(op, r.entity); err != nil {
		return nil, err
	}
	return r.list(ctx, op,
		`SELECT `+issuerCols+` FROM issuers ORDER BY created_at LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
}

func (r *IssuerRepo) list(ctx context.Context, op, query string, args ...any) ([]*types.Issuer, error) {
	start := time.Now()
	rows, err := r.be.DB().QueryContext(ctx, r.d().Rebind(query), args...)
	if err != nil {
		return nil, r.fail(op, "", err)
	}
	defer rows.Close()
	var out []*types.Issuer
	for rows.Next() {
		issuer, err := r.scan(rows)
		if err != nil {
			return nil, r.fail(op, "", err)
		}
		out = append(out, issuer)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(op, "", err)
	}
	r.done(op, "", len(out), start)
	return out, nil
}

// Update merges the patch over the stored issuer inside a transaction,
// preserving id and createdAt and bumping updatedAt.
func (r *IssuerRepo) Update(ctx context.Context, id string, patch types.IssuerUpdate) (*types.Issuer, error) {
	const op = "issuer.Update"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return nil, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}

	var updated *types.Issuer
	err = r.be.RunInTx(ctx, func(q backend.Querier) error {
		row := q.QueryRowContext(ctx, d.Rebind(`SELECT `+issuerCols+` FROM issuers WHERE id = ?`), idv)
		current, err := r.scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NewError(storage.ErrNotFound, op, r.entity, id, nil)
		}
		if err != nil {
			return err
		}

		patch.Name.Apply(&current.Name)
		patch.URL.Apply(&current.URL)
		patch.Email.Apply(&current.Email)
		patch.Description.Apply(&current.Description)
		patch.Image.Apply(&current.Image)
		patch.PublicKey.Apply(&current.PublicKey)
		patch.AdditionalFields.Apply(&current.AdditionalFields)
		current.UpdatedAt = bumpUpdatedAt(current.UpdatedAt)

		if err := current.Validate(); err != nil {
			return storage.NewError(storage.ErrValidation, op, r.entity, id, err)
		}

		image, err := bindJSON(d, current.Image)
		if err != nil {
			return err
		}
		publicKey, err := bindJSONMap(d, current.PublicKey)
		if err != nil {
			return err
		}
		extras, err := bindJSONMap(d, current.AdditionalFields)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, d.Rebind(`
			UPDATE issuers
			SET name = ?, url = ?, email = ?, description = ?, image = ?,
			    public_key = ?, additional_fields = ?, updated_at = ?
			WHERE id = ?`),
			current.Name, current.URL, nullStr(current.Email), nullStr(current.Description),
			image, publicKey, extras, d.BindTime(current.UpdatedAt), idv,
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

// Delete removes the issuer; cascades take its badge classes, assertions,
// and status lists. Returns true iff a row was removed.
func (r *IssuerRepo) Delete(ctx context.Context, id string) (bool, error) {
	const op = "issuer.Delete"
	start := time.Now()
	d := r.d()
	idv, err := d.BindID(id)
	if err != nil {
		return false, storage.Validationf(op, r.entity, id, "invalid id: %v", err)
	}
	res, err := r.be.DB().ExecContext(ctx, d.Rebind(`DELETE FROM issuers WHERE id = ?`), idv)
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
