package s2n

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// Legacy (TLS 1.0–1.2) PRF-based key schedule, RFC 2246 §6.3 / RFC 5246
// §5. SUPPLEMENTED: the teacher is TLS1.3-only; this file gives the
// expanded spec's pre-1.3 handshake path the PRF the 1.3 ladder in
// key_schedule.go has no equivalent for.

// pHash is RFC 5246 §5's P_hash: HMAC_hash(secret, A(i) || seed)
// concatenated until length bytes are produced.
func pHash(newHash func() hash.Hash, secret, seed []byte, length int) []byte {
	out := make([]byte, 0, length)
	a := hmacSum(newHash, secret, seed)
	for len(out) < length {
		out = append(out, hmacSum(newHash, secret, append(append([]byte{}, a...), seed...))...)
		a = hmacSum(newHash, secret, a)
	}
	return out[:length]
}

func hmacSum(newHash func() hash.Hash, key, data []byte) []byte {
	h := hmac.New(newHash, key)
	h.Write(data)
	return h.Sum(nil)
}

// legacyPRF is RFC 2246 §6.3's PRF for TLS 1.0/1.1 (P_MD5 XOR P_SHA1
// over two halves of the secret) and RFC 5246 §5's PRF for TLS 1.2
// (P_SHA256 over the whole secret; a suite-named hash such as the
// _SHA384 suites' is not used, and the CBC suites the legacy path
// negotiates all use SHA256 here).
func legacyPRF(version ProtocolVersion, secret, label, seed []byte, length int) []byte {
	labeledSeed := append(append([]byte{}, label...), seed...)

	if version == VersionTLS12 {
		return pHash(sha256.New, secret, labeledSeed, length)
	}

	half := (len(secret) + 1) / 2
	s1 := secret[:half]
	s2 := secret[len(secret)-half:]

	md5Out := pHash(md5.New, s1, labeledSeed, length)
	sha1Out := pHash(sha1.New, s2, labeledSeed, length)

	out := make([]byte, length)
	for i := range out {
		out[i] = md5Out[i] ^ sha1Out[i]
	}
	return out
}

// DeriveLegacyMasterSecret computes RFC 5246 §8.1's master_secret from
// the negotiated pre-master secret and both hello randoms.
func DeriveLegacyMasterSecret(version ProtocolVersion, preMasterSecret, clientRandom, serverRandom []byte) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return legacyPRF(version, preMasterSecret, []byte("master secret"), seed, 48)
}

// legacyKeyMaterial is the unsplit key_block, RFC 5246 §6.3, before it's
// sliced into per-direction MAC keys, bulk keys and, for CBC suites on
// every version, 16-byte write IVs. encryptCBC does not use these IVs;
// it sends a fresh explicit IV with each record.
type legacyKeyMaterial struct {
	ClientMACKey []byte
	ServerMACKey []byte
	ClientKey    []byte
	ServerKey    []byte
	ClientIV     []byte
	ServerIV     []byte
}

// DeriveLegacyVerifyData computes RFC 5246 §7.4.9's Finished verify_data:
// PRF(master_secret, label, handshake_hash)[0:12], where handshake_hash
// is SHA256 of the transcript on TLS1.2 or MD5||SHA1 of the transcript
// on TLS1.0/1.1 — the legacy counterpart to key_schedule.go's
// CalculateVerifyData, which is HKDF-based and TLS1.3 only.
func DeriveLegacyVerifyData(version ProtocolVersion, masterSecret, handshakeMessages []byte, fromClient bool) []byte {
	label := []byte("server finished")
	if fromClient {
		label = []byte("client finished")
	}

	var handshakeHash []byte
	if version == VersionTLS12 {
		sum := sha256.Sum256(handshakeMessages)
		handshakeHash = sum[:]
	} else {
		md5Sum := md5.Sum(handshakeMessages)
		sha1Sum := sha1.Sum(handshakeMessages)
		handshakeHash = append(append([]byte{}, md5Sum[:]...), sha1Sum[:]...)
	}

	return legacyPRF(version, masterSecret, label, handshakeHash, 12)
}

// DeriveLegacyKeyBlock expands master_secret into the key_block and
// slices it according to d's MACLen/KeyLen, returning the per-direction
// legacyKeyMaterial that installLegacyBanks turns into the CryptoBanks
// activated once ChangeCipherSpec is exchanged.
func DeriveLegacyKeyBlock(version ProtocolVersion, d CipherSuiteDescriptor, masterSecret, clientRandom, serverRandom []byte) (legacyKeyMaterial, error) {
	ivLen := 0
	if d.RecordCipher == RecordCipherBlock {
		ivLen = 16 // AES block size; this module offers no other block cipher
	}

	total := 2*d.MACLen + 2*d.KeyLen + 2*ivLen
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	block := legacyPRF(version, masterSecret, []byte("key expansion"), seed, total)

	pos := 0
	take := func(n int) []byte {
		v := block[pos : pos+n]
		pos += n
		return v
	}

	var m legacyKeyMaterial
	m.ClientMACKey = take(d.MACLen)
	m.ServerMACKey = take(d.MACLen)
	m.ClientKey = take(d.KeyLen)
	m.ServerKey = take(d.KeyLen)
	if ivLen > 0 {
		m.ClientIV = take(ivLen)
		m.ServerIV = take(ivLen)
	}
	return m, nil
}
