package s2n

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectKEMServerPreferenceOrder(t *testing.T) {
	got, ok := SelectKEM(
		[]KEMScheme{KEMSIKEP503R1, KEMBIKE1L1R1},
		[]KEMScheme{KEMBIKE1L1R1, KEMSIKEP503R1},
	)
	require.True(t, ok)
	assert.Equal(t, KEMSIKEP503R1, got)

	_, ok = SelectKEM([]KEMScheme{KEMBIKE1L1R1}, []KEMScheme{KEMSIKEP434R2})
	assert.False(t, ok)
}

func TestSyntheticKEMRoundTrip(t *testing.T) {
	kem := kemRegistry[KEMBIKE1L1R1]
	require.True(t, kem.Available())

	pub, priv, err := kem.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	ciphertext, sharedA, err := kem.Encapsulate(rand.Reader, pub)
	require.NoError(t, err)

	sharedB, err := kem.Decapsulate(priv, ciphertext)
	require.NoError(t, err)

	assert.Equal(t, sharedA, sharedB)
}
