// Package storage defines the repository contracts for the badge credential
// store, along with the error taxonomy and pagination types shared by every
// backend.
//
// Concrete implementations live in the repo sub-package and are constructed
// through the factory; consumers depend only on these interfaces so that
// backends, caches, and mocks can be substituted freely.
package storage

import (
	"context"

	"github.com/opencreds/badgestore/internal/types"
)

// IssuerRepository persists signing authorities.
type IssuerRepository interface {
	Create(ctx context.Context, issuer *types.Issuer) (*types.Issuer, error)
	FindByID(ctx context.Context, id string) (*types.Issuer, error)
	// FindAll is unbounded and logs a warning; prefer List.
	FindAll(ctx context.Context) ([]*types.Issuer, error)
	List(ctx context.Context, page Page) ([]*types.Issuer, error)
	Update(ctx context.Context, id string, patch types.IssuerUpdate) (*types.Issuer, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// BadgeClassRepository persists badge definitions.
type BadgeClassRepository interface {
	Create(ctx context.Context, badge *types.BadgeClass) (*types.BadgeClass, error)
	FindByID(ctx context.Context, id string) (*types.BadgeClass, error)
	FindAll(ctx context.Context) ([]*types.BadgeClass, error)
	List(ctx context.Context, page Page) ([]*types.BadgeClass, error)
	FindByIssuer(ctx context.Context, issuerID string) ([]*types.BadgeClass, error)
	ListByIssuer(ctx context.Context, issuerID string, page Page) ([]*types.BadgeClass, error)
	Update(ctx context.Context, id string, patch types.BadgeClassUpdate) (*types.BadgeClass, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AssertionRepository persists issued credentials.
type AssertionRepository interface {
	Create(ctx context.Context, assertion *types.Assertion) (*types.Assertion, error)
	FindByID(ctx context.Context, id string) (*types.Assertion, error)
	FindAll(ctx context.Context) ([]*types.Assertion, error)
	List(ctx context.Context, page Page) ([]*types.Assertion, error)
	FindByBadgeClass(ctx context.Context, badgeClassID string) ([]*types.Assertion, error)
	FindByIssuer(ctx context.Context, issuerID string) ([]*types.Assertion, error)
	// FindByRecipient matches the recipient identity value.
	FindByRecipient(ctx context.Context, recipientID string) ([]*types.Assertion, error)
	Update(ctx context.Context, id string, patch types.AssertionUpdate) (*types.Assertion, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// StatusPosition is an allocated slot in a status list.
type StatusPosition struct {
	StatusListID string `json:"statusListId"`
	Index        int    `json:"index"`
}

// StatusUpdateParams identifies the entry to mutate and the new status.
type StatusUpdateParams struct {
	CredentialID string
	Purpose      types.StatusPurpose
	Status       uint8
	Reason       string
}

// StatusUpdateResult is the structured outcome of a status mutation. It is
// the only structured-result type in the layer; everything else returns the
// entity or an error.
type StatusUpdateResult struct {
	Success bool                         `json:"success"`
	Entry   *types.CredentialStatusEntry `json:"entry,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

// StatusListStats summarizes capacity for one status list.
type StatusListStats struct {
	StatusListID string  `json:"statusListId"`
	TotalEntries int     `json:"totalEntries"`
	UsedEntries  int     `json:"usedEntries"`
	FreeEntries  int     `json:"freeEntries"`
	Utilization  float64 `json:"utilization"`
}

// StatusListRepository manages bitstring status lists and the entries that
// bind credentials to slots in them.
type StatusListRepository interface {
	FindByID(ctx context.Context, id string) (*types.StatusList, error)
	// FindAvailableStatusList returns the allocation target for the key:
	// the least-used list with free capacity, oldest first. Nil when none
	// exists.
	FindAvailableStatusList(ctx context.Context, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*types.StatusList, error)
	// AllocateStatusPosition reserves the next free slot, creating a new
	// zeroed list when every existing one is full.
	AllocateStatusPosition(ctx context.Context, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*StatusPosition, error)
	// BindCredentialStatus allocates a slot and inserts the credential's
	// status entry in one transaction, so two concurrent issuances can never
	// claim the same index.
	BindCredentialStatus(ctx context.Context, credentialID, issuerID string, purpose types.StatusPurpose, statusSize uint8) (*types.CredentialStatusEntry, error)
	CreateEntry(ctx context.Context, entry *types.CredentialStatusEntry) (*types.CredentialStatusEntry, error)
	FindStatusEntry(ctx context.Context, credentialID string, purpose types.StatusPurpose) (*types.CredentialStatusEntry, error)
	UpdateCredentialStatus(ctx context.Context, params StatusUpdateParams) StatusUpdateResult
	GetStatus(ctx context.Context, credentialID string, purpose types.StatusPurpose) (uint8, error)
	GetStatusListStats(ctx context.Context, statusListID string) (*StatusListStats, error)
	Delete(ctx context.Context, id string) (bool, error)
}
