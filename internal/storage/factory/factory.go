// Package factory assembles the storage stack: it opens the configured
// backend, layers the cache over the entity repositories, and guards the
// whole thing with an explicit lifecycle so repositories cannot be used
// before initialization or after close.
package factory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/storage/backend/postgres"
	"github.com/opencreds/badgestore/internal/storage/backend/sqlitedb"
	"github.com/opencreds/badgestore/internal/storage/cache"
	"github.com/opencreds/badgestore/internal/storage/repo"
	"github.com/opencreds/badgestore/internal/storage/statuslist"
)

// State is the factory lifecycle phase.
type State int32

// Lifecycle states. Transitions only move forward, except that a failed
// initialization returns to Uninitialized so it can be retried.
const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

// String returns the state name for logs and errors.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Factory owns the backend and hands out the repositories. It is safe for
// concurrent use; concurrent Initialize calls coalesce into one attempt.
type Factory struct {
	cfg   *config.Config
	log   *logging.Logger
	state atomic.Int32
	group singleflight.Group

	mu           sync.RWMutex
	be           backend.Backend
	store        *cache.Store
	issuers      storage.IssuerRepository
	badgeClasses storage.BadgeClassRepository
	assertions   storage.AssertionRepository
	statusLists  storage.StatusListRepository
}

// New creates an uninitialized factory. Initialize must be called before any
// repository accessor.
func New(cfg *config.Config, log *logging.Logger) *Factory {
	return &Factory{cfg: cfg, log: log.Named("factory")}
}

// State returns the current lifecycle phase.
func (f *Factory) State() State {
	return State(f.state.Load())
}

// Initialize opens the backend and builds the repository stack. It is
// idempotent: once Ready, further calls return nil immediately, and
// concurrent callers share a single attempt. A closed factory cannot be
// reinitialized.
func (f *Factory) Initialize(ctx context.Context) error {
	switch f.State() {
	case StateReady:
		f.log.Warn("storage already initialized")
		return nil
	case StateClosing, StateClosed:
		return fmt.Errorf("storage factory is %s", f.State())
	}

	_, err, _ := f.group.Do("initialize", func() (any, error) {
		if f.State() == StateReady {
			return nil, nil
		}
		if !f.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
			return nil, fmt.Errorf("storage factory is %s", f.State())
		}
		if err := f.initialize(ctx); err != nil {
			f.state.CompareAndSwap(int32(StateInitializing), int32(StateUninitialized))
			return nil, err
		}
		if !f.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
			// Close raced in while the backend was opening; undo the publish.
			_ = f.teardown()
			return nil, fmt.Errorf("storage factory is %s", f.State())
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	if s := f.State(); s != StateReady {
		return fmt.Errorf("storage factory is %s", s)
	}
	return nil
}

func (f *Factory) initialize(ctx context.Context) error {
	var (
		be  backend.Backend
		err error
	)
	switch f.cfg.Database.Type {
	case config.BackendPostgres:
		be, err = postgres.Open(ctx, f.cfg.Database, f.log)
	case config.BackendSQLite:
		be, err = sqlitedb.Open(ctx, f.cfg.Database, f.log)
	default:
		return fmt.Errorf("unknown database type %q", f.cfg.Database.Type)
	}
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", f.cfg.Database.Type, err)
	}

	issuers := storage.IssuerRepository(repo.NewIssuerRepository(be, f.log))
	badgeClasses := storage.BadgeClassRepository(repo.NewBadgeClassRepository(be, f.log))
	assertions := storage.AssertionRepository(repo.NewAssertionRepository(be, f.log))

	var store *cache.Store
	if f.cfg.Cache.Enabled {
		store = cache.NewStore(f.cfg.Cache.TTL, f.log)
		issuers = cache.NewIssuerCache(issuers, store)
		badgeClasses = cache.NewBadgeClassCache(badgeClasses, store)
		assertions = cache.NewAssertionCache(assertions, store)
	}

	f.mu.Lock()
	f.be = be
	f.store = store
	f.issuers = issuers
	f.badgeClasses = badgeClasses
	f.assertions = assertions
	f.statusLists = statuslist.NewEngine(be, f.log)
	f.mu.Unlock()

	f.log.Info("storage initialized",
		zap.String("backend", f.cfg.Database.Type),
		zap.Bool("cache", f.cfg.Cache.Enabled),
	)
	return nil
}

func (f *Factory) ready() error {
	if s := f.State(); s != StateReady {
		return fmt.Errorf("storage factory is %s, not ready", s)
	}
	return nil
}

// Issuers returns the issuer repository. The factory must be Ready.
func (f *Factory) Issuers() (storage.IssuerRepository, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.issuers, nil
}

// BadgeClasses returns the badge class repository. The factory must be Ready.
func (f *Factory) BadgeClasses() (storage.BadgeClassRepository, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.badgeClasses, nil
}

// Assertions returns the assertion repository. The factory must be Ready.
func (f *Factory) Assertions() (storage.AssertionRepository, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.assertions, nil
}

// StatusLists returns the status list repository. The factory must be Ready.
func (f *Factory) StatusLists() (storage.StatusListRepository, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statusLists, nil
}

// Backend exposes the underlying connection manager for health probes.
func (f *Factory) Backend() (backend.Backend, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.be, nil
}

// Health reports the backend diagnostics; an unready factory reports
// disconnected.
func (f *Factory) Health(ctx context.Context) backend.Health {
	f.mu.RLock()
	be := f.be
	f.mu.RUnlock()
	if f.State() != StateReady || be == nil {
		return backend.Health{
			Connected:     false,
			Configuration: map[string]string{"state": f.State().String()},
		}
	}
	return be.Health(ctx)
}

// teardown unpublishes and releases the repository stack. Safe to call when
// nothing was ever published.
func (f *Factory) teardown() error {
	f.mu.Lock()
	be := f.be
	store := f.store
	f.be = nil
	f.store = nil
	f.issuers = nil
	f.badgeClasses = nil
	f.assertions = nil
	f.statusLists = nil
	f.mu.Unlock()

	if store != nil {
		store.Stop()
	}
	if be != nil {
		return be.Close()
	}
	return nil
}

// Close tears the stack down, waiting for any in-flight initialization first.
// Further repository access and initialization fail; a second Close is a
// no-op.
func (f *Factory) Close() error {
	for {
		s := f.State()
		if s == StateClosing || s == StateClosed {
			return nil
		}
		if f.state.CompareAndSwap(int32(s), int32(StateClosing)) {
			break
		}
	}

	// Join any in-flight initialization. The initializer sees the Closing
	// state when it tries to publish Ready and tears its backend down itself;
	// joining here guarantees that has happened before Close returns.
	f.group.Do("initialize", func() (any, error) { return nil, nil })

	err := f.teardown()
	f.state.Store(int32(StateClosed))
	f.log.Info("storage closed")
	return err
}
