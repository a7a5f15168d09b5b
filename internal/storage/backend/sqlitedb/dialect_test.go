package sqlitedb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectJSONRoundTrip(t *testing.T) {
	d := Dialect{}

	bound, err := d.BindJSON(map[string]any{"narrative": "pass the exam"})
	require.NoError(t, err)
	require.IsType(t, "", bound, "sqlite stores JSON as TEXT")

	var back map[string]any
	require.NoError(t, d.ScanJSON(bound, &back))
	assert.Equal(t, "pass the exam", back["narrative"])

	// NULL leaves the destination untouched.
	back = map[string]any{"kept": true}
	require.NoError(t, d.ScanJSON(nil, &back))
	assert.Equal(t, map[string]any{"kept": true}, back)
}

func TestDialectTimeIsEpochMillis(t *testing.T) {
	d := Dialect{}
	ts := time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)

	bound := d.BindTime(ts)
	require.Equal(t, ts.UnixMilli(), bound)

	back, err := d.ScanTime(bound)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))

	// Legacy RFC 3339 text is accepted on read.
	back, err = d.ScanTime("2025-06-01T12:30:45.123Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))

	_, err = d.ScanTime("last tuesday")
	assert.Error(t, err)
}

func TestDialectNullTime(t *testing.T) {
	d := Dialect{}
	assert.Nil(t, d.BindNullTime(nil))

	ts := time.Now().UTC().Truncate(time.Millisecond)
	bound := d.BindNullTime(&ts)
	back, err := d.ScanNullTime(bound)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, ts.Equal(*back))

	back, err = d.ScanNullTime(nil)
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestDialectBoolIsZeroOne(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, int64(1), d.BindBool(true))
	assert.Equal(t, int64(0), d.BindBool(false))

	for src, want := range map[int64]bool{0: false, 1: true} {
		got, err := d.ScanBool(src)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := d.ScanBool(int64(2))
	assert.Error(t, err)
}

func TestDialectBoolAcceptsLegacyShapes(t *testing.T) {
	d := Dialect{}

	// Older rows stored revoked as a JSON wrapper in a TEXT column.
	got, err := d.ScanBool(`{"status":true}`)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = d.ScanBool(`{"status":false}`)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = d.ScanBool("true")
	require.NoError(t, err)
	assert.True(t, got)

	_, err = d.ScanBool("maybe")
	assert.Error(t, err)
}

func TestDialectIDs(t *testing.T) {
	d := Dialect{}

	_, err := d.BindID("")
	assert.Error(t, err, "empty identifiers never silently mint")

	bound, err := d.BindID("urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", bound)

	assert.Nil(t, mustBindNullID(t, d, nil))

	id, err := d.ScanID([]byte("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id)
}

func mustBindNullID(t *testing.T, d Dialect, iri *string) any {
	t.Helper()
	v, err := d.BindNullID(iri)
	require.NoError(t, err)
	return v
}

func TestDialectJSONPathExpr(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "json_extract(recipient, '$.identity')", d.JSONPathExpr("recipient", "identity"))
}

func TestDialectRebindIsIdentity(t *testing.T) {
	d := Dialect{}
	q := "SELECT id FROM issuers WHERE id = ? AND name = ?"
	assert.Equal(t, q, d.Rebind(q))
}
