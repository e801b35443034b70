package s2n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherSuiteDescriptorTLS13Suites(t *testing.T) {
	for _, suite := range []CipherSuite{TLS_AES_128_GCM_SHA256, TLS_AES_256_GCM_SHA384, TLS_CHACHA20_POLY1305_SHA256} {
		d, ok := suite.Descriptor()
		require.True(t, ok, suite.String())
		assert.True(t, d.TLS13)
		assert.Equal(t, RecordCipherAEAD, d.RecordCipher)
	}
}

func TestCipherSuiteDescriptorLegacyCBCSuites(t *testing.T) {
	d, ok := TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA.Descriptor()
	require.True(t, ok)
	assert.False(t, d.TLS13)
	assert.Equal(t, RecordCipherBlock, d.RecordCipher)
	assert.Equal(t, 20, d.MACLen) // SHA1 MAC
}

func TestCipherSuiteDescriptorUnknownSuite(t *testing.T) {
	_, ok := CipherSuite(0xABCD).Descriptor()
	assert.False(t, ok)
}

func TestGetHashPanicsOnUnknownSuite(t *testing.T) {
	assert.Panics(t, func() {
		CipherSuite(0xABCD).GetHash()
	})
}

func TestOrderedCipherSuiteListsAreAllValid(t *testing.T) {
	for _, list := range [][]CipherSuite{
		GetCipherSuiteOrderedSecure(),
		GetCipherSuiteOrderedPerformance(),
		GetCipherSuiteLegacy(),
	} {
		for _, suite := range list {
			_, ok := suite.Descriptor()
			assert.True(t, ok, suite.String())
		}
	}
}
