package types

import "time"

// Optional distinguishes "field not present in the patch" from "field set to
// its zero value". Update structs are built entirely from Optionals so that a
// partial update never clobbers columns the caller did not mention.
type Optional[T any] struct {
	value T
	set   bool
}

// Set returns a present Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// IsSet reports whether the field was provided.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Value returns the held value and whether it was provided.
func (o Optional[T]) Value() (T, bool) {
	return o.value, o.set
}

// Apply overwrites dst with the held value when present.
func (o Optional[T]) Apply(dst *T) {
	if o.set {
		*dst = o.value
	}
}

// IssuerUpdate is a partial update for an issuer. Unset fields are untouched.
type IssuerUpdate struct {
	Name             Optional[string]
	URL              Optional[string]
	Email            Optional[string]
	Description      Optional[string]
	Image            Optional[*Image]
	PublicKey        Optional[map[string]any]
	AdditionalFields Optional[map[string]any]
}

// BadgeClassUpdate is a partial update for a badge class.
type BadgeClassUpdate struct {
	IssuerID         Optional[string]
	Name             Optional[string]
	Description      Optional[string]
	Image            Optional[*Image]
	Criteria         Optional[map[string]any]
	Alignment        Optional[[]any]
	Tags             Optional[[]string]
	Version          Optional[string]
	PreviousVersion  Optional[*string]
	Related          Optional[[]any]
	Endorsement      Optional[[]any]
	AdditionalFields Optional[map[string]any]
}

// AssertionUpdate is a partial update for an assertion.
type AssertionUpdate struct {
	Recipient        Optional[*Recipient]
	Expires          Optional[*time.Time]
	Evidence         Optional[[]any]
	Verification     Optional[map[string]any]
	Revoked          Optional[bool]
	RevocationReason Optional[string]
	AdditionalFields Optional[map[string]any]
}
