package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/storage/backend/sqlitedb"
	"github.com/opencreds/badgestore/internal/types"
)

func newTestBackend(t *testing.T) backend.Backend {
	t.Helper()
	cfg := config.DatabaseConfig{
		Type:              config.BackendSQLite,
		SQLiteFile:        filepath.Join(t.TempDir(), "test.db"),
		SQLiteBusyTimeout: 5000,
		SQLiteSyncMode:    "NORMAL",
		SQLiteCacheSize:   1000,
	}
	be, err := sqlitedb.Open(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })
	return be
}

func createIssuer(t *testing.T, repo storage.IssuerRepository) *types.Issuer {
	t.Helper()
	issuer, err := repo.Create(context.Background(), &types.Issuer{
		Name:  "Example University",
		URL:   "https://example.edu",
		Email: "badges@example.edu",
	})
	require.NoError(t, err)
	return issuer
}

func createBadgeClass(t *testing.T, repo storage.BadgeClassRepository, issuerID string) *types.BadgeClass {
	t.Helper()
	badge, err := repo.Create(context.Background(), &types.BadgeClass{
		IssuerID:    issuerID,
		Name:        "Go Proficiency",
		Description: "Demonstrated Go proficiency",
		Image:       types.ImageFromIRI("https://example.edu/badge.png"),
		Criteria:    map[string]any{"narrative": "pass the exam"},
		Tags:        []string{"go", "backend"},
	})
	require.NoError(t, err)
	return badge
}

func createAssertion(t *testing.T, repo storage.AssertionRepository, badgeClassID, issuerID, identity string) *types.Assertion {
	t.Helper()
	assertion, err := repo.Create(context.Background(), &types.Assertion{
		BadgeClassID: badgeClassID,
		IssuerID:     issuerID,
		Recipient:    &types.Recipient{Type: "email", Identity: identity},
		IssuedOn:     time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	return assertion
}

func TestIssuerCRUD(t *testing.T) {
	be := newTestBackend(t)
	repo := NewIssuerRepository(be, logging.NewNop())
	ctx := context.Background()

	issuer := createIssuer(t, repo)
	assert.NotEmpty(t, issuer.ID, "create mints an id")
	assert.False(t, issuer.CreatedAt.IsZero())
	assert.Equal(t, issuer.CreatedAt, issuer.UpdatedAt)

	found, err := repo.FindByID(ctx, issuer.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, issuer.Name, found.Name)
	assert.Equal(t, issuer.Email, found.Email)

	missing, err := repo.FindByID(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Nil(t, missing, "miss is (nil, nil), not an error")

	deleted, err := repo.Delete(ctx, issuer.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, issuer.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete reports no row")
}

func TestIssuerCreateValidation(t *testing.T) {
	be := newTestBackend(t)
	repo := NewIssuerRepository(be, logging.NewNop())

	_, err := repo.Create(context.Background(), &types.Issuer{URL: "https://example.edu"})
	assert.ErrorIs(t, err, storage.ErrValidation)

	_, err = repo.Create(context.Background(), &types.Issuer{ID: "not-an-iri", Name: "X", URL: "https://x"})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestIssuerUpdatePreservesIdentityAndBumpsUpdatedAt(t *testing.T) {
	be := newTestBackend(t)
	repo := NewIssuerRepository(be, logging.NewNop())
	ctx := context.Background()

	issuer := createIssuer(t, repo)

	updated, err := repo.Update(ctx, issuer.ID, types.IssuerUpdate{
		Name: types.Set("Example Institute"),
	})
	require.NoError(t, err)
	assert.Equal(t, issuer.ID, updated.ID)
	assert.True(t, updated.CreatedAt.Equal(issuer.CreatedAt), "createdAt is immutable")
	assert.True(t, updated.UpdatedAt.After(issuer.UpdatedAt), "updatedAt advances strictly")
	assert.Equal(t, "Example Institute", updated.Name)
	assert.Equal(t, issuer.URL, updated.URL, "unset fields survive")

	// Clearing vs leaving alone.
	updated, err = repo.Update(ctx, issuer.ID, types.IssuerUpdate{Email: types.Set("")})
	require.NoError(t, err)
	assert.Empty(t, updated.Email)

	_, err = repo.Update(ctx, issuer.ID, types.IssuerUpdate{Name: types.Set("")})
	assert.ErrorIs(t, err, storage.ErrValidation, "update cannot strip required fields")

	_, err = repo.Update(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", types.IssuerUpdate{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIssuerListPagination(t *testing.T) {
	be := newTestBackend(t)
	repo := NewIssuerRepository(be, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createIssuer(t, repo)
	}

	page, err := repo.List(ctx, storage.Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.List(ctx, storage.Page{Limit: 10, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	_, err = repo.List(ctx, storage.Page{Limit: 0})
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = repo.List(ctx, storage.Page{Limit: storage.MaxPageLimit + 1})
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = repo.List(ctx, storage.Page{Limit: 10, Offset: -1})
	assert.ErrorIs(t, err, storage.ErrValidation)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestBadgeClassVersionChain(t *testing.T) {
	be := newTestBackend(t)
	log := logging.NewNop()
	issuers := NewIssuerRepository(be, log)
	badges := NewBadgeClassRepository(be, log)
	ctx := context.Background()

	alpha := createIssuer(t, issuers)
	beta := createIssuer(t, issuers)

	v1 := createBadgeClass(t, badges, alpha.ID)

	v2, err := badges.Create(ctx, &types.BadgeClass{
		IssuerID:        alpha.ID,
		Name:            "Go Proficiency v2",
		Description:     "Updated criteria",
		Image:           types.ImageFromIRI("https://example.edu/badge-v2.png"),
		Criteria:        map[string]any{"narrative": "pass the harder exam"},
		PreviousVersion: &v1.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, v2.PreviousVersion)
	assert.Equal(t, v1.ID, *v2.PreviousVersion)

	// Chain across issuers is rejected.
	_, err = badges.Create(ctx, &types.BadgeClass{
		IssuerID:        beta.ID,
		Name:            "Stolen Lineage",
		Description:     "x",
		Image:           types.ImageFromIRI("https://example.edu/x.png"),
		Criteria:        map[string]any{},
		PreviousVersion: &v1.ID,
	})
	assert.ErrorIs(t, err, storage.ErrValidation)

	// Dangling chain is rejected.
	ghost := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	_, err = badges.Create(ctx, &types.BadgeClass{
		IssuerID:        alpha.ID,
		Name:            "Ghost Lineage",
		Description:     "x",
		Image:           types.ImageFromIRI("https://example.edu/x.png"),
		Criteria:        map[string]any{},
		PreviousVersion: &ghost,
	})
	assert.ErrorIs(t, err, storage.ErrValidation)

	// Deleting the ancestor detaches, not deletes, the descendant.
	deleted, err := badges.Delete(ctx, v1.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	survivor, err := badges.FindByID(ctx, v2.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Nil(t, survivor.PreviousVersion)
}

func TestBadgeClassFindByIssuer(t *testing.T) {
	be := newTestBackend(t)
	log := logging.NewNop()
	issuers := NewIssuerRepository(be, log)
	badges := NewBadgeClassRepository(be, log)
	ctx := context.Background()

	alpha := createIssuer(t, issuers)
	beta := createIssuer(t, issuers)
	createBadgeClass(t, badges, alpha.ID)
	createBadgeClass(t, badges, alpha.ID)
	createBadgeClass(t, badges, beta.ID)

	mine, err := badges.FindByIssuer(ctx, alpha.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	paged, err := badges.ListByIssuer(ctx, alpha.ID, storage.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestAssertionLifecycle(t *testing.T) {
	be := newTestBackend(t)
	log := logging.NewNop()
	issuers := NewIssuerRepository(be, log)
	badges := NewBadgeClassRepository(be, log)
	assertions := NewAssertionRepository(be, log)
	ctx := context.Background()

	issuer := createIssuer(t, issuers)
	badge := createBadgeClass(t, badges, issuer.ID)

	// Issuer is denormalized from the badge class when omitted.
	created, err := assertions.Create(ctx, &types.Assertion{
		BadgeClassID: badge.ID,
		Recipient:    &types.Recipient{Type: "email", Identity: "alice@example.edu"},
		IssuedOn:     time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, issuer.ID, created.IssuerID)
	assert.False(t, created.Revoked)

	// Future issuedOn is rejected at create.
	_, err = assertions.Create(ctx, &types.Assertion{
		BadgeClassID: badge.ID,
		Recipient:    &types.Recipient{Identity: "bob@example.edu"},
		IssuedOn:     time.Now().UTC().Add(time.Hour),
	})
	assert.ErrorIs(t, err, storage.ErrValidation)

	byRecipient, err := assertions.FindByRecipient(ctx, "alice@example.edu")
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, created.ID, byRecipient[0].ID)

	byBadge, err := assertions.FindByBadgeClass(ctx, badge.ID)
	require.NoError(t, err)
	assert.Len(t, byBadge, 1)

	// Revocation requires a reason.
	_, err = assertions.Update(ctx, created.ID, types.AssertionUpdate{
		Revoked: types.Set(true),
	})
	assert.ErrorIs(t, err, storage.ErrValidation)

	revoked, err := assertions.Update(ctx, created.ID, types.AssertionUpdate{
		Revoked:          types.Set(true),
		RevocationReason: types.Set("credential superseded"),
	})
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	assert.Equal(t, "credential superseded", revoked.RevocationReason)

	// Un-revoking clears the stale reason.
	unrevoked, err := assertions.Update(ctx, created.ID, types.AssertionUpdate{
		Revoked: types.Set(false),
	})
	require.NoError(t, err)
	assert.False(t, unrevoked.Revoked)
	assert.Empty(t, unrevoked.RevocationReason)
}

func TestCascadeDeleteIssuer(t *testing.T) {
	be := newTestBackend(t)
	log := logging.NewNop()
	issuers := NewIssuerRepository(be, log)
	badges := NewBadgeClassRepository(be, log)
	assertions := NewAssertionRepository(be, log)
	ctx := context.Background()

	issuer := createIssuer(t, issuers)
	badge := createBadgeClass(t, badges, issuer.ID)
	assertion := createAssertion(t, assertions, badge.ID, issuer.ID, "alice@example.edu")

	deleted, err := issuers.Delete(ctx, issuer.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	goneBadge, err := badges.FindByID(ctx, badge.ID)
	require.NoError(t, err)
	assert.Nil(t, goneBadge)

	goneAssertion, err := assertions.FindByID(ctx, assertion.ID)
	require.NoError(t, err)
	assert.Nil(t, goneAssertion)
}

func TestAdditionalFieldsAndImageVariantsPersist(t *testing.T) {
	be := newTestBackend(t)
	log := logging.NewNop()
	issuers := NewIssuerRepository(be, log)
	badges := NewBadgeClassRepository(be, log)
	ctx := context.Background()

	issuer, err := issuers.Create(ctx, &types.Issuer{
		Name:             "Example University",
		URL:              "https://example.edu",
		Image:            types.ImageFromIRI("https://example.edu/logo.png"),
		AdditionalFields: map[string]any{"@context": "https://w3id.org/openbadges/v2"},
	})
	require.NoError(t, err)

	found, err := issuers.FindByID(ctx, issuer.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Image)
	assert.Equal(t, "https://example.edu/logo.png", found.Image.IRI)
	assert.Nil(t, found.Image.Object, "string variant survives storage")
	assert.Equal(t, "https://w3id.org/openbadges/v2", found.AdditionalFields["@context"])

	badge, err := badges.Create(ctx, &types.BadgeClass{
		IssuerID:    issuer.ID,
		Name:        "Go Proficiency",
		Description: "x",
		Image:       types.ImageFromObject(types.ImageObject{ID: "https://example.edu/b.png", Caption: "seal"}),
		Criteria:    map[string]any{},
	})
	require.NoError(t, err)

	foundBadge, err := badges.FindByID(ctx, badge.ID)
	require.NoError(t, err)
	require.NotNil(t, foundBadge.Image)
	require.NotNil(t, foundBadge.Image.Object, "object variant survives storage")
	assert.Equal(t, "seal", foundBadge.Image.Object.Caption)
	assert.Equal(t, []string{"go", "backend"}, createBadgeClass(t, badges, issuer.ID).Tags)
}
