package s2n

import (
	"bytes"
	"testing"

	"github.com/doctorN9/s2n/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveHandshakeSecretsDeterministic(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	sharedSecret := bytes.Repeat([]byte{0x42}, 32)
	transcriptHash := bytes.Repeat([]byte{0x24}, 32)

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	ks1 := &KeySchedule{}
	cBank1, sBank1, err := ks1.DeriveHandshakeSecrets(suite, sharedSecret, transcriptHash, scratch)
	require.NoError(t, err)

	ks2 := &KeySchedule{}
	cBank2, sBank2, err := ks2.DeriveHandshakeSecrets(suite, sharedSecret, transcriptHash, scratch)
	require.NoError(t, err)

	assert.Equal(t, cBank1.Key, cBank2.Key)
	assert.Equal(t, cBank1.IV, cBank2.IV)
	assert.Equal(t, sBank1.Key, sBank2.Key)
	assert.Equal(t, sBank1.IV, sBank2.IV)

	assert.NotEqual(t, cBank1.Key, sBank1.Key, "client and server handshake keys must differ")
}

func TestDeriveApplicationSecretsFollowsHandshakeSecrets(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	sharedSecret := bytes.Repeat([]byte{0x11}, 32)
	hsTranscript := bytes.Repeat([]byte{0x22}, 32)
	apTranscript := bytes.Repeat([]byte{0x33}, 32)

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	ks := &KeySchedule{}
	_, _, err := ks.DeriveHandshakeSecrets(suite, sharedSecret, hsTranscript, scratch)
	require.NoError(t, err)

	cBank, sBank, err := ks.DeriveApplicationSecrets(suite, apTranscript, scratch)
	require.NoError(t, err)

	assert.NotEmpty(t, cBank.Key)
	assert.NotEmpty(t, sBank.Key)
	assert.NotEqual(t, cBank.Key, sBank.Key)
	assert.NotEqual(t, cBank.TrafficSecret, sBank.TrafficSecret)
}

func TestCalculateVerifyDataDeterministicAndSecretSensitive(t *testing.T) {
	hash := TLS_AES_128_GCM_SHA256.GetHash()
	transcriptHash := bytes.Repeat([]byte{0x55}, hash.size)

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	secretA := bytes.Repeat([]byte{0xAA}, hash.size)
	secretB := bytes.Repeat([]byte{0xBB}, hash.size)

	got1, err := CalculateVerifyData(hash, secretA, transcriptHash, scratch)
	require.NoError(t, err)
	got2, err := CalculateVerifyData(hash, secretA, transcriptHash, scratch)
	require.NoError(t, err)
	assert.Equal(t, got1, got2)

	gotOther, err := CalculateVerifyData(hash, secretB, transcriptHash, scratch)
	require.NoError(t, err)
	assert.NotEqual(t, got1, gotOther)
}

func TestKeyScheduleWipeZeroesLadder(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	sharedSecret := bytes.Repeat([]byte{0x77}, 32)
	transcriptHash := bytes.Repeat([]byte{0x88}, 32)

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	ks := &KeySchedule{}
	_, _, err := ks.DeriveHandshakeSecrets(suite, sharedSecret, transcriptHash, scratch)
	require.NoError(t, err)
	require.NotEmpty(t, ks.handshakeSecret)

	ks.Wipe()

	for _, s := range [][]byte{ks.earlySecret, ks.handshakeSecret, ks.clientHandshakeTrafficSecret, ks.serverHandshakeTrafficSecret} {
		for _, b := range s {
			assert.Zero(t, b)
		}
	}
}
