package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerValidate(t *testing.T) {
	valid := Issuer{ID: "a", Name: "Example University", URL: "https://example.edu"}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Issuer){
		"missing id":   func(i *Issuer) { i.ID = "" },
		"missing name": func(i *Issuer) { i.Name = "" },
		"missing url":  func(i *Issuer) { i.URL = "" },
	} {
		t.Run(name, func(t *testing.T) {
			i := valid
			mutate(&i)
			assert.Error(t, i.Validate())
		})
	}
}

func TestBadgeClassValidate(t *testing.T) {
	valid := BadgeClass{
		ID:          "b",
		IssuerID:    "a",
		Name:        "Go Proficiency",
		Description: "Demonstrated Go proficiency",
		Image:       ImageFromIRI("https://example.edu/badge.png"),
		Criteria:    map[string]any{"narrative": "pass the exam"},
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*BadgeClass){
		"missing issuer":      func(b *BadgeClass) { b.IssuerID = "" },
		"missing name":        func(b *BadgeClass) { b.Name = "" },
		"missing description": func(b *BadgeClass) { b.Description = "" },
		"missing image":       func(b *BadgeClass) { b.Image = nil },
		"missing criteria":    func(b *BadgeClass) { b.Criteria = nil },
	} {
		t.Run(name, func(t *testing.T) {
			b := valid
			mutate(&b)
			assert.Error(t, b.Validate())
		})
	}
}

func TestAssertionValidate(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	valid := Assertion{
		ID:           "c",
		BadgeClassID: "b",
		IssuerID:     "a",
		Recipient:    &Recipient{Type: "email", Identity: "alice@example.edu"},
		IssuedOn:     issued,
	}
	require.NoError(t, valid.Validate())

	t.Run("expires must be after issuedOn", func(t *testing.T) {
		a := valid
		before := issued.Add(-time.Hour)
		a.Expires = &before
		assert.Error(t, a.Validate())

		same := issued
		a.Expires = &same
		assert.Error(t, a.Validate())

		after := issued.Add(time.Hour)
		a.Expires = &after
		assert.NoError(t, a.Validate())
	})

	t.Run("revoked requires a reason", func(t *testing.T) {
		a := valid
		a.Revoked = true
		assert.Error(t, a.Validate())
		a.RevocationReason = "credential superseded"
		assert.NoError(t, a.Validate())
	})

	t.Run("issuedOn must not be in the future at create", func(t *testing.T) {
		a := valid
		now := issued.Add(-time.Minute)
		assert.Error(t, a.ValidateForCreate(now))
		assert.NoError(t, a.ValidateForCreate(issued))
	})
}

func TestImageRoundTripPreservesVariant(t *testing.T) {
	t.Run("iri string", func(t *testing.T) {
		data, err := json.Marshal(ImageFromIRI("https://example.edu/badge.png"))
		require.NoError(t, err)
		require.JSONEq(t, `"https://example.edu/badge.png"`, string(data))

		var back Image
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, "https://example.edu/badge.png", back.IRI)
		assert.Nil(t, back.Object)
	})

	t.Run("object", func(t *testing.T) {
		img := ImageFromObject(ImageObject{ID: "https://example.edu/badge.png", Type: "Image", Caption: "seal"})
		data, err := json.Marshal(img)
		require.NoError(t, err)

		var back Image
		require.NoError(t, json.Unmarshal(data, &back))
		require.NotNil(t, back.Object)
		assert.Equal(t, "https://example.edu/badge.png", back.Object.ID)
		assert.Equal(t, "seal", back.Object.Caption)
		assert.Equal(t, "https://example.edu/badge.png", back.ID())
	})

	t.Run("object without id is rejected", func(t *testing.T) {
		var img Image
		assert.Error(t, json.Unmarshal([]byte(`{"caption":"seal"}`), &img))
	})
}

func TestRecipientRoundTripKeepsExtraKeys(t *testing.T) {
	in := []byte(`{
		"type": "email",
		"identity": "sha256$abc",
		"hashed": true,
		"salt": "pepper",
		"credentialSubject": {"id": "did:example:123"},
		"x-vendor": 7
	}`)

	var r Recipient
	require.NoError(t, json.Unmarshal(in, &r))
	assert.Equal(t, "email", r.Type)
	assert.Equal(t, "sha256$abc", r.Identity)
	assert.True(t, r.Hashed)
	assert.Equal(t, "pepper", r.Salt)
	assert.Contains(t, r.Extra, "credentialSubject")
	assert.Contains(t, r.Extra, "x-vendor")

	out, err := json.Marshal(&r)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, "email", obj["type"])
	assert.Contains(t, obj, "credentialSubject")
	assert.Contains(t, obj, "x-vendor")
}

func TestRecipientMarshalKeepsExplicitHashedFalse(t *testing.T) {
	r := &Recipient{Type: "email", Identity: "a@b.test", Hashed: false}

	out, err := json.Marshal(r)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	require.Contains(t, obj, "hashed")
	assert.Equal(t, false, obj["hashed"])

	var back Recipient
	require.NoError(t, json.Unmarshal(out, &back))
	assert.False(t, back.Hashed)

	// The bare VC credential-subject form has no identity fields and carries
	// no hashed key.
	out, err = json.Marshal(&Recipient{Extra: map[string]any{"id": "did:example:123"}})
	require.NoError(t, err)
	obj = nil
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.NotContains(t, obj, "hashed")
}

func TestEntityAdditionalFieldsRoundTrip(t *testing.T) {
	in := []byte(`{
		"id": "a",
		"name": "Example University",
		"url": "https://example.edu",
		"@context": "https://w3id.org/openbadges/v2",
		"faxNumber": "none"
	}`)

	var issuer Issuer
	require.NoError(t, json.Unmarshal(in, &issuer))
	assert.Equal(t, "Example University", issuer.Name)
	assert.Equal(t, "https://w3id.org/openbadges/v2", issuer.AdditionalFields["@context"])
	assert.Equal(t, "none", issuer.AdditionalFields["faxNumber"])

	out, err := json.Marshal(&issuer)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, "https://w3id.org/openbadges/v2", obj["@context"])
	assert.Equal(t, "none", obj["faxNumber"])
	// Known keys are never shadowed by extras.
	assert.Equal(t, "a", obj["id"])
}

func TestOptionalDistinguishesUnsetFromZero(t *testing.T) {
	var patch IssuerUpdate
	assert.False(t, patch.Email.IsSet())

	patch.Email = Set("")
	assert.True(t, patch.Email.IsSet())

	email := "old@example.edu"
	patch.Email.Apply(&email)
	assert.Equal(t, "", email, "set-to-zero clears the field")

	var unset Optional[string]
	email = "kept@example.edu"
	unset.Apply(&email)
	assert.Equal(t, "kept@example.edu", email, "unset leaves the field alone")
}
