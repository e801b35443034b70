package s2n

import (
	"crypto/rand"
	"testing"

	"github.com/doctorN9/s2n/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestEncryptDecryptRecordAEADInnerTLS13(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	key := randomBytes(t, suite.KeyLen())
	iv := randomBytes(t, 12)

	sendAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)
	recvAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)

	sendBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("traffic-secret"), Key: key, IV: iv, AEAD: sendAEAD}
	recvBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("traffic-secret"), Key: key, IV: append([]byte{}, iv...), AEAD: recvAEAD}

	plaintext := []byte("application data goes here")

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS13, RecordTypeApplicationData, plaintext, sealed))

	opened := buffer.Get()
	defer buffer.Put(opened)
	gotType, err := DecryptRecord(recvBank, VersionTLS13, RecordTypeApplicationData, sealed.Bytes(), opened)
	require.NoError(t, err)
	assert.Equal(t, RecordTypeApplicationData, gotType)
	assert.Equal(t, plaintext, opened.Bytes())
	assert.EqualValues(t, 1, sendBank.SequenceNum)
	assert.EqualValues(t, 1, recvBank.SequenceNum)
}

func TestEncryptDecryptRecordAEADInnerRecoversHandshakeType(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	key := randomBytes(t, suite.KeyLen())
	iv := randomBytes(t, 12)

	sendAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)
	recvAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)

	sendBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("ts"), Key: key, IV: iv, AEAD: sendAEAD}
	recvBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("ts"), Key: key, IV: append([]byte{}, iv...), AEAD: recvAEAD}

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS13, RecordTypeHandshake, []byte("finished body"), sealed))

	opened := buffer.Get()
	defer buffer.Put(opened)
	gotType, err := DecryptRecord(recvBank, VersionTLS13, RecordTypeApplicationData, sealed.Bytes(), opened)
	require.NoError(t, err)
	assert.Equal(t, RecordTypeHandshake, gotType)
}

func TestEncryptDecryptRecordAEADLegacyTLS12(t *testing.T) {
	suite := TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
	key := randomBytes(t, suite.KeyLen())
	iv := randomBytes(t, 4) // implicit 4-byte salt, legacy GCM framing

	sendAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)
	recvAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)

	sendBank := &CryptoBank{Suite: suite, Key: key, IV: iv, AEAD: sendAEAD}
	recvBank := &CryptoBank{Suite: suite, Key: key, IV: append([]byte{}, iv...), AEAD: recvAEAD}

	plaintext := []byte("legacy application data")

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS12, RecordTypeApplicationData, plaintext, sealed))

	opened := buffer.Get()
	defer buffer.Put(opened)
	gotType, err := DecryptRecord(recvBank, VersionTLS12, RecordTypeApplicationData, sealed.Bytes(), opened)
	require.NoError(t, err)
	assert.Equal(t, RecordTypeApplicationData, gotType)
	assert.Equal(t, plaintext, opened.Bytes())
}

func TestEncryptDecryptRecordCBCRoundTrip(t *testing.T) {
	suite := TLS_RSA_WITH_AES_128_CBC_SHA
	key := randomBytes(t, suite.KeyLen())
	macKey := randomBytes(t, 20)

	sendBank := &CryptoBank{Suite: suite, Key: key, MACKey: macKey}
	recvBank := &CryptoBank{Suite: suite, Key: key, MACKey: macKey}

	plaintext := []byte("short plaintext that needs padding")

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS12, RecordTypeApplicationData, plaintext, sealed))

	opened := buffer.Get()
	defer buffer.Put(opened)
	_, err := DecryptRecord(recvBank, VersionTLS12, RecordTypeApplicationData, sealed.Bytes(), opened)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened.Bytes())
}

func TestDecryptRecordCBCRejectsTamperedCiphertext(t *testing.T) {
	suite := TLS_RSA_WITH_AES_128_CBC_SHA
	key := randomBytes(t, suite.KeyLen())
	macKey := randomBytes(t, 20)

	sendBank := &CryptoBank{Suite: suite, Key: key, MACKey: macKey}
	recvBank := &CryptoBank{Suite: suite, Key: key, MACKey: macKey}

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS12, RecordTypeApplicationData, []byte("payload"), sealed))

	tampered := append([]byte{}, sealed.Bytes()...)
	tampered[len(tampered)-1] ^= 0xFF

	opened := buffer.Get()
	defer buffer.Put(opened)
	_, err := DecryptRecord(recvBank, VersionTLS12, RecordTypeApplicationData, tampered, opened)
	assert.ErrorIs(t, err, ErrBadRecordMAC)
}

func TestDecryptRecordAEADInnerRejectsTamperedTag(t *testing.T) {
	suite := TLS_AES_128_GCM_SHA256
	key := randomBytes(t, suite.KeyLen())
	iv := randomBytes(t, 12)

	sendAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)
	recvAEAD, err := createAEAD(suite, key)
	require.NoError(t, err)

	sendBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("ts"), Key: key, IV: iv, AEAD: sendAEAD}
	recvBank := &CryptoBank{Suite: suite, TrafficSecret: []byte("ts"), Key: key, IV: append([]byte{}, iv...), AEAD: recvAEAD}

	sealed := buffer.Get()
	defer buffer.Put(sealed)
	require.NoError(t, EncryptRecord(sendBank, VersionTLS13, RecordTypeApplicationData, []byte("data"), sealed))

	tampered := append([]byte{}, sealed.Bytes()...)
	tampered[len(tampered)-1] ^= 0xFF

	opened := buffer.Get()
	defer buffer.Put(opened)
	_, err = DecryptRecord(recvBank, VersionTLS13, RecordTypeApplicationData, tampered, opened)
	assert.ErrorIs(t, err, ErrBadRecordMAC)
}
