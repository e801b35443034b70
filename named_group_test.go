package s2n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDHEKeyAgreementAllGroups(t *testing.T) {
	groups := []NamedGroup{NamedGroupX25519, NamedGroupP256, NamedGroupP384}

	for _, g := range groups {
		t.Run(g.String(), func(t *testing.T) {
			aPriv, aPub, err := GenerateKeyPair(g)
			require.NoError(t, err)
			bPriv, bPub, err := GenerateKeyPair(g)
			require.NoError(t, err)

			secretA, err := ComputeSharedSecret(g, aPriv, bPub)
			require.NoError(t, err)
			secretB, err := ComputeSharedSecret(g, bPriv, aPub)
			require.NoError(t, err)

			assert.Equal(t, secretA, secretB)
			assert.NotEmpty(t, secretA)
		})
	}
}

func TestIsECDHERejectsKEMCodePoints(t *testing.T) {
	assert.True(t, NamedGroupX25519.IsECDHE())
	assert.True(t, NamedGroupP256.IsECDHE())
	assert.False(t, NamedGroup(0xFE00).IsECDHE())
}

func TestGenerateKeyPairUnsupportedGroupPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _, _ = GenerateKeyPair(NamedGroup(0x9999))
	})
}
