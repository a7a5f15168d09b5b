package statuslist

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/storage/backend/sqlitedb"
	"github.com/opencreds/badgestore/internal/storage/repo"
	"github.com/opencreds/badgestore/internal/types"
)

type fixture struct {
	be         backend.Backend
	engine     *Engine
	issuerID   string
	badgeID    string
	assertions *repo.AssertionRepo
}

func newFixture(t *testing.T) *fixture {
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

	log := logging.NewNop()
	ctx := context.Background()

	issuer, err := repo.NewIssuerRepository(be, log).Create(ctx, &types.Issuer{
		Name: "Example University", URL: "https://example.edu",
	})
	require.NoError(t, err)
	badge, err := repo.NewBadgeClassRepository(be, log).Create(ctx, &types.BadgeClass{
		IssuerID:    issuer.ID,
		Name:        "Go Proficiency",
		Description: "x",
		Image:       types.ImageFromIRI("https://example.edu/badge.png"),
		Criteria:    map[string]any{},
	})
	require.NoError(t, err)

	return &fixture{
		be:         be,
		engine:     NewEngine(be, log),
		issuerID:   issuer.ID,
		badgeID:    badge.ID,
		assertions: repo.NewAssertionRepository(be, log),
	}
}

func (f *fixture) newCredential(t *testing.T, identity string) string {
	t.Helper()
	assertion, err := f.assertions.Create(context.Background(), &types.Assertion{
		BadgeClassID: f.badgeID,
		IssuerID:     f.issuerID,
		Recipient:    &types.Recipient{Type: "email", Identity: identity},
		IssuedOn:     time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	return assertion.ID
}

func TestAllocateStatusPositionCreatesListOnDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.engine.FindAvailableStatusList(ctx, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)
	assert.Nil(t, none, "no list exists yet")

	pos, err := f.engine.AllocateStatusPosition(ctx, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, pos.Index, "first slot of a fresh list")

	list, err := f.engine.FindByID(ctx, pos.StatusListID)
	require.NoError(t, err)
	require.NotNil(t, list)
	assert.Equal(t, types.DefaultStatusListSize, list.TotalEntries)
	assert.Equal(t, 1, list.UsedEntries)
	assert.Equal(t, uint8(1), list.StatusSize)

	next, err := f.engine.AllocateStatusPosition(ctx, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)
	assert.Equal(t, pos.StatusListID, next.StatusListID, "reuses the open list")
	assert.Equal(t, 1, next.Index)
}

func TestAllocateValidatesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AllocateStatusPosition(ctx, f.issuerID, "archived", 1)
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = f.engine.AllocateStatusPosition(ctx, f.issuerID, types.PurposeRevocation, 3)
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = f.engine.AllocateStatusPosition(ctx, "", types.PurposeRevocation, 1)
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestBindCredentialStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.newCredential(t, "alice@example.edu")
	bob := f.newCredential(t, "bob@example.edu")

	first, err := f.engine.BindCredentialStatus(ctx, alice, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, first.StatusListIndex)
	assert.Equal(t, uint8(0), first.CurrentStatus, "fresh binding starts unset")

	second, err := f.engine.BindCredentialStatus(ctx, bob, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)
	assert.Equal(t, first.StatusListID, second.StatusListID)
	assert.Equal(t, 1, second.StatusListIndex)

	// One binding per (credential, purpose).
	_, err = f.engine.BindCredentialStatus(ctx, alice, f.issuerID, types.PurposeRevocation, 1)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// A different purpose is a separate list and a separate binding.
	susp, err := f.engine.BindCredentialStatus(ctx, alice, f.issuerID, types.PurposeSuspension, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.StatusListID, susp.StatusListID)
	assert.Equal(t, 0, susp.StatusListIndex)
}

func TestUpdateAndGetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred := f.newCredential(t, "alice@example.edu")
	_, err := f.engine.BindCredentialStatus(ctx, cred, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)

	status, err := f.engine.GetStatus(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), status)

	result := f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: cred,
		Purpose:      types.PurposeRevocation,
		Status:       1,
		Reason:       "credential superseded",
	})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Entry)
	assert.Equal(t, uint8(1), result.Entry.CurrentStatus)
	assert.Equal(t, "credential superseded", result.Entry.StatusReason)

	status, err = f.engine.GetStatus(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), status, "read comes from the bitstring itself")

	entry, err := f.engine.FindStatusEntry(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, uint8(1), entry.CurrentStatus)

	// Reinstate.
	result = f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: cred,
		Purpose:      types.PurposeRevocation,
		Status:       0,
	})
	require.True(t, result.Success, result.Error)
	status, err = f.engine.GetStatus(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), status)
}

func TestUpdateStatusMultiBit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred := f.newCredential(t, "alice@example.edu")
	_, err := f.engine.BindCredentialStatus(ctx, cred, f.issuerID, types.PurposeMessage, 2)
	require.NoError(t, err)

	result := f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: cred, Purpose: types.PurposeMessage, Status: 3,
	})
	require.True(t, result.Success, result.Error)

	status, err := f.engine.GetStatus(ctx, cred, types.PurposeMessage)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), status)

	// Out of range for a 2-bit list.
	result = f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: cred, Purpose: types.PurposeMessage, Status: 4,
	})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestUpdateStatusFailureModes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Purpose:      types.PurposeRevocation,
		Status:       1,
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")

	result = f.engine.UpdateCredentialStatus(ctx, storage.StatusUpdateParams{
		CredentialID: "whatever", Purpose: "archived", Status: 1,
	})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestGetStatusWithoutBinding(t *testing.T) {
	f := newFixture(t)
	cred := f.newCredential(t, "alice@example.edu")

	_, err := f.engine.GetStatus(context.Background(), cred, types.PurposeRevocation)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentBindingsNeverShareAnIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	creds := make([]string, n)
	for i := range creds {
		creds[i] = f.newCredential(t, fmt.Sprintf("user%d@example.edu", i))
	}

	entries := make([]*types.CredentialStatusEntry, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			entry, err := f.engine.BindCredentialStatus(ctx, creds[i], f.issuerID, types.PurposeRevocation, 1)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int]bool, n)
	for _, entry := range entries {
		require.NotNil(t, entry)
		assert.False(t, seen[entry.StatusListIndex], "index %d allocated twice", entry.StatusListIndex)
		seen[entry.StatusListIndex] = true
	}

	stats, err := f.engine.GetStatusListStats(ctx, entries[0].StatusListID)
	require.NoError(t, err)
	assert.Equal(t, n, stats.UsedEntries)
}

func TestStatusListStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred := f.newCredential(t, "alice@example.edu")
	entry, err := f.engine.BindCredentialStatus(ctx, cred, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)

	stats, err := f.engine.GetStatusListStats(ctx, entry.StatusListID)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultStatusListSize, stats.TotalEntries)
	assert.Equal(t, 1, stats.UsedEntries)
	assert.Equal(t, types.DefaultStatusListSize-1, stats.FreeEntries)
	assert.InDelta(t, 1.0/float64(types.DefaultStatusListSize), stats.Utilization, 1e-12)

	_, err = f.engine.GetStatusListStats(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteListCascadesEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred := f.newCredential(t, "alice@example.edu")
	entry, err := f.engine.BindCredentialStatus(ctx, cred, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)

	deleted, err := f.engine.Delete(ctx, entry.StatusListID)
	require.NoError(t, err)
	require.True(t, deleted)

	gone, err := f.engine.FindStatusEntry(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	assert.Nil(t, gone)

	deleted, err = f.engine.Delete(ctx, entry.StatusListID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteAssertionCascadesEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred := f.newCredential(t, "alice@example.edu")
	_, err := f.engine.BindCredentialStatus(ctx, cred, f.issuerID, types.PurposeRevocation, 1)
	require.NoError(t, err)

	deleted, err := f.assertions.Delete(ctx, cred)
	require.NoError(t, err)
	require.True(t, deleted)

	gone, err := f.engine.FindStatusEntry(ctx, cred, types.PurposeRevocation)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// stubDialect and stubBackend fake just enough of the backend surface to
// observe the statements the engine issues.
type stubDialect struct {
	backend.Dialect
	name string
}

func (d stubDialect) Name() string { return d.name }

type stubBackend struct {
	backend.Backend
	dialect backend.Dialect
}

func (b stubBackend) Dialect() backend.Dialect { return b.dialect }

type recordingQuerier struct {
	backend.Querier
	execs []string
	args  [][]any
}

func (q *recordingQuerier) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	q.execs = append(q.execs, query)
	q.args = append(q.args, args)
	return nil, nil
}

func TestAllocationTakesAdvisoryLockOnPostgres(t *testing.T) {
	ctx := context.Background()

	// On PostgreSQL a FOR UPDATE over an empty result set locks nothing, so
	// first-list creation must serialize on a transaction-scoped advisory
	// lock keyed by (issuer, purpose, statusSize).
	q := &recordingQuerier{}
	e := NewEngine(stubBackend{dialect: stubDialect{name: "postgresql"}}, logging.NewNop())
	require.NoError(t, e.lockAllocationKey(ctx, q, "urn:uuid:0192ce2d-0000-7000-8000-000000000001", types.PurposeRevocation, 1))
	require.Len(t, q.execs, 1)
	assert.Contains(t, q.execs[0], "pg_advisory_xact_lock")
	assert.Equal(t, []any{"status_lists/urn:uuid:0192ce2d-0000-7000-8000-000000000001/revocation/1"}, q.args[0])

	// Distinct keys map to distinct locks.
	require.NoError(t, e.lockAllocationKey(ctx, q, "urn:uuid:0192ce2d-0000-7000-8000-000000000001", types.PurposeSuspension, 2))
	require.Len(t, q.execs, 2)
	assert.NotEqual(t, q.args[0], q.args[1])

	// SQLite serializes writers at BEGIN IMMEDIATE; no lock statement.
	lite := &recordingQuerier{}
	el := NewEngine(stubBackend{dialect: stubDialect{name: "sqlite"}}, logging.NewNop())
	require.NoError(t, el.lockAllocationKey(ctx, lite, "urn:uuid:0192ce2d-0000-7000-8000-000000000001", types.PurposeRevocation, 1))
	assert.Empty(t, lite.execs)
}
