package types

import (
	"encoding/json"
	"fmt"
)

// The entities tolerate spec-extension keys: anything not recognized on the
// wire is routed into AdditionalFields and folded back in on marshal, so a
// round-trip never drops data.

var issuerKnownKeys = map[string]bool{
	"id": true, "name": true, "url": true, "email": true, "description": true,
	"image": true, "publicKey": true, "created_at": true, "updated_at": true,
}

var badgeClassKnownKeys = map[string]bool{
	"id": true, "issuer": true, "name": true, "description": true, "image": true,
	"criteria": true, "alignment": true, "tags": true, "version": true,
	"previousVersion": true, "related": true, "endorsement": true,
	"created_at": true, "updated_at": true,
}

var assertionKnownKeys = map[string]bool{
	"id": true, "badgeClass": true, "issuer": true, "recipient": true,
	"issuedOn": true, "expires": true, "evidence": true, "verification": true,
	"revoked": true, "revocationReason": true, "created_at": true, "updated_at": true,
}

func marshalWithExtras(base any, extras map[string]any, known map[string]bool) ([]byte, error) {
	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	if len(extras) == 0 {
		return data, nil
	}
	obj, err := unmarshalMap(data)
	if err != nil {
		return nil, err
	}
	for k, v := range extras {
		if !known[k] {
			obj[k] = v
		}
	}
	return marshalMap(obj)
}

func extractExtras(data []byte, known map[string]bool) (map[string]any, error) {
	obj, err := unmarshalMap(data)
	if err != nil {
		return nil, err
	}
	var extras map[string]any
	for k, v := range obj {
		if known[k] {
			continue
		}
		if extras == nil {
			extras = make(map[string]any)
		}
		extras[k] = v
	}
	return extras, nil
}

type issuerAlias Issuer

// MarshalJSON folds AdditionalFields back into the issuer object.
func (i *Issuer) MarshalJSON() ([]byte, error) {
	return marshalWithExtras((*issuerAlias)(i), i.AdditionalFields, issuerKnownKeys)
}

// UnmarshalJSON routes unrecognized keys into AdditionalFields.
func (i *Issuer) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*issuerAlias)(i)); err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	extras, err := extractExtras(data, issuerKnownKeys)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	i.AdditionalFields = extras
	return nil
}

type badgeClassAlias BadgeClass

// MarshalJSON folds AdditionalFields back into the badge class object.
func (b *BadgeClass) MarshalJSON() ([]byte, error) {
	return marshalWithExtras((*badgeClassAlias)(b), b.AdditionalFields, badgeClassKnownKeys)
}

// UnmarshalJSON routes unrecognized keys into AdditionalFields.
func (b *BadgeClass) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*badgeClassAlias)(b)); err != nil {
		return fmt.Errorf("badge class: %w", err)
	}
	extras, err := extractExtras(data, badgeClassKnownKeys)
	if err != nil {
		return fmt.Errorf("badge class: %w", err)
	}
	b.AdditionalFields = extras
	return nil
}

type assertionAlias Assertion

// MarshalJSON folds AdditionalFields back into the assertion object.
func (a *Assertion) MarshalJSON() ([]byte, error) {
	return marshalWithExtras((*assertionAlias)(a), a.AdditionalFields, assertionKnownKeys)
}

// UnmarshalJSON routes unrecognized keys into AdditionalFields.
func (a *Assertion) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*assertionAlias)(a)); err != nil {
		return fmt.Errorf("assertion: %w", err)
	}
	extras, err := extractExtras(data, assertionKnownKeys)
	if err != nil {
		return fmt.Errorf("assertion: %w", err)
	}
	a.AdditionalFields = extras
	return nil
}
