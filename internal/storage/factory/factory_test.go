package factory

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Type:              config.BackendSQLite,
			SQLiteFile:        filepath.Join(t.TempDir(), "test.db"),
			SQLiteBusyTimeout: 5000,
			SQLiteSyncMode:    "NORMAL",
			SQLiteCacheSize:   1000,
		},
		Cache: config.CacheConfig{Enabled: true, TTL: time.Minute},
	}
}

func TestLifecycle(t *testing.T) {
	f := New(testConfig(t), logging.NewNop())
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, f.State())

	// Repositories are unavailable before Initialize.
	_, err := f.Issuers()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uninitialized")

	require.NoError(t, f.Initialize(ctx))
	assert.Equal(t, StateReady, f.State())

	issuers, err := f.Issuers()
	require.NoError(t, err)
	require.NotNil(t, issuers)
	_, err = f.BadgeClasses()
	require.NoError(t, err)
	_, err = f.Assertions()
	require.NoError(t, err)
	_, err = f.StatusLists()
	require.NoError(t, err)

	// Initialize is idempotent.
	require.NoError(t, f.Initialize(ctx))

	require.NoError(t, f.Close())
	assert.Equal(t, StateClosed, f.State())

	_, err = f.Issuers()
	require.Error(t, err)

	// Close is idempotent; a closed factory stays closed.
	require.NoError(t, f.Close())
	require.Error(t, f.Initialize(ctx))
}

func TestInitializeCoalescesConcurrentCallers(t *testing.T) {
	f := New(testConfig(t), logging.NewNop())
	t.Cleanup(func() { _ = f.Close() })
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error { return f.Initialize(ctx) })
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, StateReady, f.State())
}

func TestCloseDuringInitializeNeverLeavesReady(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f := New(testConfig(t), logging.NewNop())
		done := make(chan error, 1)
		go func() { done <- f.Initialize(ctx) }()
		for f.State() == StateUninitialized {
			runtime.Gosched()
		}

		require.NoError(t, f.Close())
		<-done

		// Whatever the interleaving, once Close returns the factory is
		// closed for good and the backend is released.
		assert.Equal(t, StateClosed, f.State())
		_, err := f.Issuers()
		require.Error(t, err)
		require.Error(t, f.Initialize(ctx))
	}
}

func TestInitializeOnReadyWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := New(testConfig(t), logging.FromZap(zap.New(core)))
	ctx := context.Background()

	require.NoError(t, f.Initialize(ctx))
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Initialize(ctx))
	assert.Equal(t, 1, logs.FilterMessage("storage already initialized").Len())
}

func TestInitializeFailureIsRetryable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Type = "oracle"
	f := New(cfg, logging.NewNop())
	ctx := context.Background()

	require.Error(t, f.Initialize(ctx))
	assert.Equal(t, StateUninitialized, f.State(), "failed init returns to uninitialized")

	cfg.Database.Type = config.BackendSQLite
	require.NoError(t, f.Initialize(ctx))
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, StateReady, f.State())
}

func TestFactoryWiresWorkingRepositories(t *testing.T) {
	f := New(testConfig(t), logging.NewNop())
	ctx := context.Background()
	require.NoError(t, f.Initialize(ctx))
	t.Cleanup(func() { _ = f.Close() })

	issuers, err := f.Issuers()
	require.NoError(t, err)
	issuer, err := issuers.Create(ctx, &types.Issuer{Name: "Example University", URL: "https://example.edu"})
	require.NoError(t, err)

	// The cached decorator and the underlying repository agree.
	found, err := issuers.FindByID(ctx, issuer.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, issuer.ID, found.ID)

	health := f.Health(ctx)
	assert.True(t, health.Connected)
	assert.Equal(t, "sqlite", health.Configuration["type"])
}

func TestHealthWhenUnready(t *testing.T) {
	f := New(testConfig(t), logging.NewNop())
	health := f.Health(context.Background())
	assert.False(t, health.Connected)
	assert.Equal(t, "uninitialized", health.Configuration["state"])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
