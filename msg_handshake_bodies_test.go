package s2n

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/doctorN9/s2n/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseCertificateMessageRoundTrip(t *testing.T) {
	leafDER := []byte("pretend-DER-encoded-certificate-bytes")
	chain := &CertificateChain{
		DER:               leafDER,
		CertificateRecord: buildCertificateRecord(leafDER),
	}

	out := buffer.Get()
	defer buffer.Put(out)
	BuildCertificateMessage(chain, out)

	got, err := ParseCertificateMessage(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, leafDER, got)
}

func TestParseCertificateMessageRejectsTruncatedBody(t *testing.T) {
	_, err := ParseCertificateMessage([]byte{0x00, 0x00})
	assert.Error(t, err)
}

func TestBuildVerifyCertificateVerifyRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	transcriptHash := []byte("32-byte-stand-in-for-a-sha256-hash")
	scheme := ECDSASECP256R1SHA256

	out := buffer.Get()
	defer buffer.Put(out)
	require.NoError(t, BuildCertificateVerify(priv, scheme, transcriptHash, out))

	err = VerifyCertificateVerify(&priv.PublicKey, scheme, transcriptHash, out.Bytes(), true)
	assert.NoError(t, err)

	err = VerifyCertificateVerify(&priv.PublicKey, scheme, []byte("a different transcript"), out.Bytes(), true)
	assert.Error(t, err)

	err = VerifyCertificateVerify(&priv.PublicKey, scheme, transcriptHash, out.Bytes(), false)
	assert.Error(t, err, "client vs server context string must not be interchangeable")
}

func TestBuildFinishedIsVerifyDataVerbatim(t *testing.T) {
	verifyData := []byte{1, 2, 3, 4, 5}
	out := buffer.Get()
	defer buffer.Put(out)
	BuildFinished(verifyData, out)
	assert.Equal(t, verifyData, out.Bytes())
}
