// Package badgestore provides the public API for embedding the badge
// credential store: Open Badges issuers, badge classes, and assertions with
// Bitstring Status List revocation, persisted on SQLite or PostgreSQL.
//
// Most callers open a Store from configuration and use the repositories it
// exposes; the internal packages are not part of the public surface.
package badgestore

import (
	"context"
	"fmt"

	"github.com/opencreds/badgestore/internal/config"
	"github.com/opencreds/badgestore/internal/logging"
	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/storage/backend"
	"github.com/opencreds/badgestore/internal/storage/factory"
	"github.com/opencreds/badgestore/internal/types"
)

// Core entity types.
type (
	Issuer                = types.Issuer
	BadgeClass            = types.BadgeClass
	Assertion             = types.Assertion
	Recipient             = types.Recipient
	Image                 = types.Image
	StatusList            = types.StatusList
	CredentialStatusEntry = types.CredentialStatusEntry
	StatusPurpose         = types.StatusPurpose
)

// Partial-update types. Unset fields are left untouched by Update.
type (
	IssuerUpdate     = types.IssuerUpdate
	BadgeClassUpdate = types.BadgeClassUpdate
	AssertionUpdate  = types.AssertionUpdate
)

// Set marks an update field as present.
func Set[T any](v T) types.Optional[T] { return types.Set(v) }

// Status purposes.
const (
	PurposeRevocation = types.PurposeRevocation
	PurposeSuspension = types.PurposeSuspension
	PurposeRefresh    = types.PurposeRefresh
	PurposeMessage    = types.PurposeMessage
)

// Repository contracts.
type (
	IssuerRepository     = storage.IssuerRepository
	BadgeClassRepository = storage.BadgeClassRepository
	AssertionRepository  = storage.AssertionRepository
	StatusListRepository = storage.StatusListRepository
	Page                 = storage.Page
	StatusUpdateParams   = storage.StatusUpdateParams
	StatusUpdateResult   = storage.StatusUpdateResult
)

// Error taxonomy. Test with errors.Is.
var (
	ErrValidation  = storage.ErrValidation
	ErrNotFound    = storage.ErrNotFound
	ErrConflict    = storage.ErrConflict
	ErrCorrupt     = storage.ErrCorrupt
	ErrUnavailable = storage.ErrUnavailable
	ErrInternal    = storage.ErrInternal
)

// Config is the store configuration, loadable from BADGESTORE_* environment
// variables via LoadConfig.
type Config = config.Config

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) { return config.Load() }

// Store is an initialized credential store.
type Store struct {
	f   *factory.Factory
	log *logging.Logger
}

// Open initializes a store from the given configuration.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogEnv)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	f := factory.New(cfg, log)
	if err := f.Initialize(ctx); err != nil {
		return nil, err
	}
	return &Store{f: f, log: log}, nil
}

// OpenFromEnv initializes a store from BADGESTORE_* environment variables.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// Issuers returns the issuer repository.
func (s *Store) Issuers() (IssuerRepository, error) { return s.f.Issuers() }

// BadgeClasses returns the badge class repository.
func (s *Store) BadgeClasses() (BadgeClassRepository, error) { return s.f.BadgeClasses() }

// Assertions returns the assertion repository.
func (s *Store) Assertions() (AssertionRepository, error) { return s.f.Assertions() }

// StatusLists returns the status list repository.
func (s *Store) StatusLists() (StatusListRepository, error) { return s.f.StatusLists() }

// Health reports backend diagnostics.
func (s *Store) Health(ctx context.Context) backend.Health { return s.f.Health(ctx) }

// Close releases the backend and flushes buffered logs.
func (s *Store) Close() error {
	err := s.f.Close()
	_ = s.log.Sync()
	return err
}
