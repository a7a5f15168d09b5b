package types

import (
	"fmt"
	"time"
)

// StatusPurpose is the reason a status bit is read.
type StatusPurpose string

// Status purposes defined by the Bitstring Status List spec.
const (
	PurposeRevocation StatusPurpose = "revocation"
	PurposeSuspension StatusPurpose = "suspension"
	PurposeRefresh    StatusPurpose = "refresh"
	PurposeMessage    StatusPurpose = "message"
)

// Valid reports whether p is a known status purpose.
func (p StatusPurpose) Valid() bool {
	switch p {
	case PurposeRevocation, PurposeSuspension, PurposeRefresh, PurposeMessage:
		return true
	}
	return false
}

// DefaultStatusListSize is the minimum entry count for a new status list,
// per the Bitstring Status List spec's herd-privacy floor.
const DefaultStatusListSize = 131072

// ValidStatusSize reports whether size is an allowed bits-per-entry value.
func ValidStatusSize(size uint8) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

// StatusList is the shared revocation/suspension bitstring for an issuer.
type StatusList struct {
	ID       string        `json:"id"`
	IssuerID string        `json:"issuerId"`
	Purpose  StatusPurpose `json:"purpose"`
	// StatusSize is the number of bits per entry: 1, 2, 4, or 8.
	StatusSize uint8 `json:"statusSize"`
	// EncodedList is base64url (no padding) of the gzipped bitstring bytes.
	EncodedList string `json:"encodedList"`
	// TTL in milliseconds; zero means unset.
	TTL          int64          `json:"ttl,omitempty"`
	TotalEntries int            `json:"totalEntries"`
	UsedEntries  int            `json:"usedEntries"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks structural invariants on the status list.
func (s *StatusList) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("status list: id is required")
	}
	if s.IssuerID == "" {
		return fmt.Errorf("status list: issuerId is required")
	}
	if !s.Purpose.Valid() {
		return fmt.Errorf("status list: unknown purpose %q", s.Purpose)
	}
	if !ValidStatusSize(s.StatusSize) {
		return fmt.Errorf("status list: statusSize must be 1, 2, 4, or 8, got %d", s.StatusSize)
	}
	if s.EncodedList == "" {
		return fmt.Errorf("status list: encodedList is required")
	}
	if s.TotalEntries < DefaultStatusListSize {
		return fmt.Errorf("status list: totalEntries must be at least %d, got %d", DefaultStatusListSize, s.TotalEntries)
	}
	if s.UsedEntries < 0 || s.UsedEntries > s.TotalEntries {
		return fmt.Errorf("status list: usedEntries %d out of range [0, %d]", s.UsedEntries, s.TotalEntries)
	}
	return nil
}

// MaxStatus returns the largest status value representable at this list's
// status size.
func (s *StatusList) MaxStatus() uint8 {
	return uint8(1<<s.StatusSize - 1)
}

// CredentialStatusEntry binds one assertion to one slot in one status list.
type CredentialStatusEntry struct {
	ID           string        `json:"id"`
	CredentialID string        `json:"credentialId"`
	StatusListID string        `json:"statusListId"`
	// StatusListIndex is unique within the owning status list.
	StatusListIndex int `json:"statusListIndex"`
	// StatusSize and Purpose mirror the owning status list.
	StatusSize    uint8         `json:"statusSize"`
	Purpose       StatusPurpose `json:"purpose"`
	CurrentStatus uint8         `json:"currentStatus"`
	StatusReason  string        `json:"statusReason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks structural invariants on the status entry.
func (e *CredentialStatusEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("status entry: id is required")
	}
	if e.CredentialID == "" {
		return fmt.Errorf("status entry: credentialId is required")
	}
	if e.StatusListID == "" {
		return fmt.Errorf("status entry: statusListId is required")
	}
	if e.StatusListIndex < 0 {
		return fmt.Errorf("status entry: statusListIndex must be non-negative")
	}
	if !ValidStatusSize(e.StatusSize) {
		return fmt.Errorf("status entry: statusSize must be 1, 2, 4, or 8, got %d", e.StatusSize)
	}
	if !e.Purpose.Valid() {
		return fmt.Errorf("status entry: unknown purpose %q", e.Purpose)
	}
	if max := uint8(1<<e.StatusSize - 1); e.CurrentStatus > max {
		return fmt.Errorf("status entry: currentStatus %d exceeds max %d for statusSize %d", e.CurrentStatus, max, e.StatusSize)
	}
	return nil
}
