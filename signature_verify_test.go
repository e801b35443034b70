package s2n

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignatureECDSARoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	scheme := ECDSASECP256R1SHA256
	message := []byte("certificate_verify transcript hash stand-in")
	digest := scheme.GetHash().New()
	digest.Write(message)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest.Sum(nil))
	require.NoError(t, err)

	assert.True(t, verifySignature(&priv.PublicKey, scheme, message, sig))

	sig[0] ^= 0xFF
	assert.False(t, verifySignature(&priv.PublicKey, scheme, message, sig))
}

func TestVerifySignatureRSAPSSRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	scheme := RSAPSSRSAESHA256
	message := []byte("certificate_verify transcript hash stand-in")
	digest := scheme.GetHash().New()
	digest.Write(message)
	sig, err := rsa.SignPSS(rand.Reader, priv, scheme.GetHash(), digest.Sum(nil), scheme.GetSignerOpts().(*rsa.PSSOptions))
	require.NoError(t, err)

	assert.True(t, verifySignature(&priv.PublicKey, scheme, message, sig))
	assert.False(t, verifySignature(&priv.PublicKey, scheme, []byte("different message"), sig))
}

func TestVerifySignatureEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	message := []byte("certificate_verify transcript hash stand-in")
	sig := ed25519.Sign(priv, message)

	assert.True(t, verifySignature(pub, Ed25519Scheme, message, sig))
	assert.False(t, verifySignature(pub, Ed25519Scheme, message, append([]byte{}, sig[1:]...)))
}

func TestVerifySignatureRejectsMismatchedKeyType(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	assert.False(t, verifySignature(&priv.PublicKey, RSAPSSRSAESHA256, []byte("x"), []byte("y")))
}

func TestSignatureSchemeFamilyAndTLS13Allowance(t *testing.T) {
	assert.True(t, ECDSASECP256R1SHA256.AllowedForTLS13())
	assert.True(t, RSAPSSRSAESHA256.AllowedForTLS13())
	assert.True(t, Ed25519Scheme.AllowedForTLS13())
	assert.False(t, RSAPKCS1SHA256.AllowedForTLS13())
	assert.False(t, ECDSASHA1.AllowedForTLS13())

	assert.Equal(t, crypto.SHA256, ECDSASECP256R1SHA256.GetHash())
	assert.Equal(t, crypto.Hash(0), Ed25519Scheme.GetHash())
}
