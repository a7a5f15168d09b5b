package types

import (
	"encoding/json"
	"fmt"
)

// Image is either a bare IRI string or a structured image object. Open Badges
// allows both shapes and consumers care which one was stored, so the variant
// is preserved across round-trips.
type Image struct {
	// IRI is set when the stored shape was a plain string.
	IRI string
	// Object is set when the stored shape was an object with an "id".
	Object *ImageObject
}

// ImageObject is the structured form of an image attribute.
type ImageObject struct {
	ID      string `json:"id"`
	Type    string `json:"type,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// ImageFromIRI returns the string variant.
func ImageFromIRI(iri string) *Image {
	return &Image{IRI: iri}
}

// ImageFromObject returns the object variant.
func ImageFromObject(obj ImageObject) *Image {
	return &Image{Object: &obj}
}

// ID returns the image identifier regardless of variant.
func (m *Image) ID() string {
	if m.Object != nil {
		return m.Object.ID
	}
	return m.IRI
}

// MarshalJSON serializes the variant that was stored.
func (m *Image) MarshalJSON() ([]byte, error) {
	if m.Object != nil {
		return json.Marshal(m.Object)
	}
	return json.Marshal(m.IRI)
}

// UnmarshalJSON accepts either a string or an object with an "id".
func (m *Image) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.IRI = s
		m.Object = nil
		return nil
	}
	var obj ImageObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("image: expected IRI string or image object: %w", err)
	}
	if obj.ID == "" {
		return fmt.Errorf("image: object form requires an id")
	}
	m.IRI = ""
	m.Object = &obj
	return nil
}
