// Package idgen mints and validates the IRI identifiers used for all core
// entities. IRIs are UUIDv4 strings; the urn:uuid: prefix is accepted on
// input and stripped for storage.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const urnPrefix = "urn:uuid:"

// New mints a fresh IRI.
func New() string {
	return uuid.NewString()
}

// Normalize validates iri and returns its canonical lowercase UUID form.
// An empty input mints a new IRI, preserving caller-supplied identifiers
// while guaranteeing every stored row has one.
func Normalize(iri string) (string, error) {
	if iri == "" {
		return New(), nil
	}
	trimmed := strings.TrimPrefix(iri, urnPrefix)
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid IRI %q: %w", iri, err)
	}
	return id.String(), nil
}

// Valid reports whether iri is a well-formed identifier.
func Valid(iri string) bool {
	_, err := Normalize(iri)
	return err == nil && iri != ""
}
