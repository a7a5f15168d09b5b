// Package types defines core data structures for the badge credential store.
package types

import (
	"fmt"
	"time"
)

// Issuer is a signing authority that defines badge classes and issues assertions.
type Issuer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
	Image       *Image `json:"image,omitempty"`
	// PublicKey is stored opaquely; signing is the caller's concern.
	PublicKey        map[string]any `json:"publicKey,omitempty"`
	AdditionalFields map[string]any `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks required fields on the issuer.
func (i *Issuer) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issuer: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("issuer: name is required")
	}
	if i.URL == "" {
		return fmt.Errorf("issuer: url is required")
	}
	return nil
}

// BadgeClass is the reusable definition of an award, owned by an issuer.
type BadgeClass struct {
	ID          string `json:"id"`
	IssuerID    string `json:"issuer"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       *Image `json:"image"`
	// Criteria defaults to an empty object, never null.
	Criteria  map[string]any `json:"criteria"`
	Alignment []any          `json:"alignment,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Version   string         `json:"version,omitempty"`
	// PreviousVersion forms a single-parent version chain. It must reference
	// an existing badge class belonging to the same issuer.
	PreviousVersion  *string        `json:"previousVersion,omitempty"`
	Related          []any          `json:"related,omitempty"`
	Endorsement      []any          `json:"endorsement,omitempty"`
	AdditionalFields map[string]any `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks required fields on the badge class.
func (b *BadgeClass) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("badge class: id is required")
	}
	if b.IssuerID == "" {
		return fmt.Errorf("badge class: issuer is required")
	}
	if b.Name == "" {
		return fmt.Errorf("badge class: name is required")
	}
	if b.Description == "" {
		return fmt.Errorf("badge class: description is required")
	}
	if b.Image == nil {
		return fmt.Errorf("badge class: image is required")
	}
	if b.Criteria == nil {
		return fmt.Errorf("badge class: criteria is required")
	}
	return nil
}

// Assertion is a single issuance of a badge class to a recipient.
type Assertion struct {
	ID           string `json:"id"`
	BadgeClassID string `json:"badgeClass"`
	// IssuerID is denormalized from the badge class for query efficiency.
	IssuerID  string     `json:"issuer"`
	Recipient *Recipient `json:"recipient"`
	IssuedOn  time.Time  `json:"issuedOn"`
	Expires   *time.Time `json:"expires,omitempty"`
	Evidence  []any      `json:"evidence,omitempty"`
	// Verification holds the VerificationObject, Proof, or CredentialStatus
	// blob produced by the signing layer. Stored opaquely.
	Verification     map[string]any `json:"verification,omitempty"`
	Revoked          bool           `json:"revoked"`
	RevocationReason string         `json:"revocationReason,omitempty"`
	AdditionalFields map[string]any `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks required fields and temporal invariants on the assertion.
func (a *Assertion) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("assertion: id is required")
	}
	if a.BadgeClassID == "" {
		return fmt.Errorf("assertion: badgeClass is required")
	}
	if a.IssuerID == "" {
		return fmt.Errorf("assertion: issuer is required")
	}
	if a.Recipient == nil {
		return fmt.Errorf("assertion: recipient is required")
	}
	if a.IssuedOn.IsZero() {
		return fmt.Errorf("assertion: issuedOn is required")
	}
	if a.Expires != nil && !a.Expires.After(a.IssuedOn) {
		return fmt.Errorf("assertion: expires must be after issuedOn")
	}
	if a.Revoked && a.RevocationReason == "" {
		return fmt.Errorf("assertion: revocationReason is required when revoked")
	}
	return nil
}

// ValidateForCreate applies the additional create-time invariant issuedOn <= now.
func (a *Assertion) ValidateForCreate(now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.IssuedOn.After(now) {
		return fmt.Errorf("assertion: issuedOn must not be in the future")
	}
	return nil
}

// Recipient identifies who earned an assertion. Known fields cover the Open
// Badges 2.0 identity object; Extra carries the VC credential-subject form and
// any spec-extension keys through round-trips unharmed.
type Recipient struct {
	Type     string         `json:"type,omitempty"`
	Identity string         `json:"identity,omitempty"`
	Hashed   bool           `json:"hashed,omitempty"`
	Salt     string         `json:"salt,omitempty"`
	Extra    map[string]any `json:"-"`
}

// recipientKnownKeys are the keys lifted out of the raw JSON object.
var recipientKnownKeys = map[string]bool{
	"type": true, "identity": true, "hashed": true, "salt": true,
}

// MarshalJSON folds Extra back into the object alongside the known fields.
func (r *Recipient) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		obj[k] = v
	}
	if r.Type != "" {
		obj["type"] = r.Type
	}
	if r.Identity != "" {
		obj["identity"] = r.Identity
	}
	// An identity object always states whether the identity is hashed, even
	// when it is not; only the bare VC credential-subject form omits the key.
	if r.Type != "" || r.Identity != "" {
		obj["hashed"] = r.Hashed
	}
	if r.Salt != "" {
		obj["salt"] = r.Salt
	}
	return marshalMap(obj)
}

// UnmarshalJSON lifts known keys and routes the rest into Extra.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	obj, err := unmarshalMap(data)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if v, ok := obj["type"].(string); ok {
		r.Type = v
	}
	if v, ok := obj["identity"].(string); ok {
		r.Identity = v
	}
	if v, ok := obj["hashed"].(bool); ok {
		r.Hashed = v
	}
	if v, ok := obj["salt"].(string); ok {
		r.Salt = v
	}
	for k, v := range obj {
		if recipientKnownKeys[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return nil
}
