package store

import (
	"errors"
	"testing"

	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	in := models.CustomerSnapshot{
		Name:  "Ada Obi",
		Email: "ada@example.com",
		Phone: "+2348000000000",
		Address: models.Address{
			Line1: "12 Marina Rd",
			City:  "Lagos",
			State: "Lagos",
		},
	}

	raw, err := encodeSnapshot(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada Obi","email":"ada@example.com","phone":"+2348000000000",
		"address":{"line1":"12 Marina Rd","city":"Lagos","state":"Lagos"}}`, raw)

	out, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeSnapshotLegacyRows(t *testing.T) {
	cases := map[string]string{
		"empty column":      "",
		"sql null literal":  "null",
		"empty json string": `""`,
		"empty object":      "{}",
		"whitespace":        "  \n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			snap, err := decodeSnapshot(raw)
			require.NoError(t, err)
			assert.Equal(t, models.CustomerSnapshot{}, snap)
			assert.True(t, snap.Address.IsZero())
		})
	}
}

func TestDecodeSnapshotEmptyAddressString(t *testing.T) {
	snap, err := decodeSnapshot(`{"name":"Guest","email":"g@example.com","phone":"1","address":""}`)
	require.NoError(t, err)
	assert.Equal(t, "Guest", snap.Name)
	assert.True(t, snap.Address.IsZero())
}

func TestDecodeSnapshotDoubleEncodedAddress(t *testing.T) {
	snap, err := decodeSnapshot(`{"name":"Guest","address":"{\"line1\":\"4 Allen Ave\",\"city\":\"Ikeja\",\"state\":\"Lagos\"}"}`)
	require.NoError(t, err)
	assert.Equal(t, models.Address{Line1: "4 Allen Ave", City: "Ikeja", State: "Lagos"}, snap.Address)
}

func TestDecodeSnapshotCorrupt(t *testing.T) {
	snap, err := decodeSnapshot(`{"name":`)
	assert.True(t, errors.Is(err, ErrCorruptData))
	assert.Equal(t, models.CustomerSnapshot{}, snap)

	snap, err = decodeSnapshot(`{"name":"Kept","address":[1,2]}`)
	assert.True(t, errors.Is(err, ErrCorruptData))
	assert.Equal(t, "Kept", snap.Name)
	assert.True(t, snap.Address.IsZero())
}

func TestSnapshotOrEmptySwallowsCorruption(t *testing.T) {
	snap := snapshotOrEmpty(42, "not json")
	assert.Equal(t, models.CustomerSnapshot{}, snap)
}
