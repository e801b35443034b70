package s2n

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	_sha1NullTmp   = sha1.Sum(nil)
	_sha256NullTmp = sha256.Sum256(nil)
	_sha384NullTmp = sha512.Sum384(nil)

	// HashSHA1Settings backs the legacy "_SHA" CBC suites' HMAC, never
	// the TLS1.3 transcript hash (RFC 8446 forbids SHA1 there) — only
	// record_cipher.go's computeCBCMac reaches for newFunc here.
	HashSHA1Settings = &HashSettings{
		nullValue: _sha1NullTmp[:],
		size:      sha1.Size,
		newFunc:   sha1.New,
		hash:      HashSHA1,
	}

	HashSHA256Settings = &HashSettings{
		nullValue: _sha256NullTmp[:],
		size:      sha256.Size,
		newFunc:   sha256.New,
		hash:      HashSHA256,
	}

	HashSHA384Settings = &HashSettings{
		nullValue: _sha384NullTmp[:],
		size:      sha512.Size384,
		newFunc:   sha512.New384,
		hash:      HashSHA384,
	}
)

type cipherHash uint8

const (
	HashSHA1 cipherHash = iota
	HashSHA256
	HashSHA384
)

// HashSettings bundles a hash's precomputed hash(nil), output size and
// constructor, matching the teacher's layout used to avoid re-deriving
// hash(nil) on every key-schedule call.
type HashSettings struct {
	nullValue []byte
	size      int
	newFunc   func() hash.Hash
	hash      cipherHash
}

func (h HashSettings) Hash(data []byte) []byte {
	switch h.hash {
	case HashSHA1:
		sum := sha1.Sum(data)
		return sum[:]
	case HashSHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case HashSHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	default:
		panic("unknown hash")
	}
}

// CipherSuite is the IANA registered code point. 0x13xx is the TLS 1.3
// registry; every other value here is a TLS 1.0–1.2 suite (spec §8
// appendix B.4).
type CipherSuite uint16

const (
	// TLS 1.0–1.2 CBC suites.
	TLS_RSA_WITH_AES_128_CBC_SHA         CipherSuite = 0x002F
	TLS_RSA_WITH_AES_256_CBC_SHA         CipherSuite = 0x0035
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA   CipherSuite = 0xC013
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA   CipherSuite = 0xC014
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA CipherSuite = 0xC009

	// TLS 1.2 AEAD suites.
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256         CipherSuite = 0xC02F
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384         CipherSuite = 0xC030
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256       CipherSuite = 0xC02B
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384       CipherSuite = 0xC02C
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256   CipherSuite = 0xCCA8
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 CipherSuite = 0xCCA9

	// TLS 1.3 suites.
	TLS_AES_128_GCM_SHA256       CipherSuite = 0x1301
	TLS_AES_256_GCM_SHA384       CipherSuite = 0x1302
	TLS_CHACHA20_POLY1305_SHA256 CipherSuite = 0x1303

	// NOT IMPLEMENTED: Go's stdlib has no CCM AEAD. See
	// https://github.com/golang/go/issues/27484
	TLS_AES_128_CCM_SHA256   CipherSuite = 0x1304
	TLS_AES_128_CCM_8_SHA256 CipherSuite = 0x1305
)

// KeyExchangeAlgorithm names how the pre-master/shared secret is agreed.
type KeyExchangeAlgorithm uint8

const (
	KeyExchangeNone KeyExchangeAlgorithm = iota // TLS1.3: key_share extension only
	KeyExchangeRSA
	KeyExchangeECDHE
)

// AuthMethod names the certificate signature algorithm family a suite
// requires, independent of the negotiated SignatureScheme.
type AuthMethod uint8

const (
	AuthNone AuthMethod = iota // TLS1.3: auth is CertificateVerify, not suite-bound
	AuthRSA
	AuthECDSA
)

// RecordCipherKind discriminates the record-layer treatment a suite
// needs — exactly the "capability trait" Design Notes §9 calls for
// instead of switch statements sprinkled through the codec.
type RecordCipherKind uint8

const (
	RecordCipherBlock RecordCipherKind = iota
	RecordCipherAEAD
)

// CipherSuiteDescriptor is the immutable static table entry for one
// suite: spec §3's "Cipher Suite Descriptor".
type CipherSuiteDescriptor struct {
	Suite        CipherSuite
	KeyExchange  KeyExchangeAlgorithm
	Auth         AuthMethod
	RecordCipher RecordCipherKind
	Hash         *HashSettings
	KeyLen       int
	MACLen       int // 0 for AEAD suites (no separate MAC)
	MinVersion   ProtocolVersion
	TLS13        bool
}

var cipherSuiteTable = map[CipherSuite]CipherSuiteDescriptor{
	TLS_RSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_RSA_WITH_AES_128_CBC_SHA, KeyExchange: KeyExchangeRSA, Auth: AuthRSA,
		RecordCipher: RecordCipherBlock, Hash: HashSHA1Settings, KeyLen: 16, MACLen: sha1.Size,
		MinVersion: VersionTLS10,
	},
	TLS_RSA_WITH_AES_256_CBC_SHA: {
		Suite: TLS_RSA_WITH_AES_256_CBC_SHA, KeyExchange: KeyExchangeRSA, Auth: AuthRSA,
		RecordCipher: RecordCipherBlock, Hash: HashSHA1Settings, KeyLen: 32, MACLen: sha1.Size,
		MinVersion: VersionTLS10,
	},
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, KeyExchange: KeyExchangeECDHE, Auth: AuthRSA,
		RecordCipher: RecordCipherBlock, Hash: HashSHA1Settings, KeyLen: 16, MACLen: sha1.Size,
		MinVersion: VersionTLS10,
	},
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA: {
		Suite: TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA, KeyExchange: KeyExchangeECDHE, Auth: AuthRSA,
		RecordCipher: RecordCipherBlock, Hash: HashSHA1Settings, KeyLen: 32, MACLen: sha1.Size,
		MinVersion: VersionTLS10,
	},
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, KeyExchange: KeyExchangeECDHE, Auth: AuthECDSA,
		RecordCipher: RecordCipherBlock, Hash: HashSHA1Settings, KeyLen: 16, MACLen: sha1.Size,
		MinVersion: VersionTLS10,
	},
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, KeyExchange: KeyExchangeECDHE, Auth: AuthRSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: 16,
		MinVersion: VersionTLS12,
	},
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384: {
		Suite: TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, KeyExchange: KeyExchangeECDHE, Auth: AuthRSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA384Settings, KeyLen: 32,
		MinVersion: VersionTLS12,
	},
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, KeyExchange: KeyExchangeECDHE, Auth: AuthECDSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: 16,
		MinVersion: VersionTLS12,
	},
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, KeyExchange: KeyExchangeECDHE, Auth: AuthECDSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA384Settings, KeyLen: 32,
		MinVersion: VersionTLS12,
	},
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, KeyExchange: KeyExchangeECDHE, Auth: AuthRSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: chacha20poly1305.KeySize,
		MinVersion: VersionTLS12,
	},
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, KeyExchange: KeyExchangeECDHE, Auth: AuthECDSA,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: chacha20poly1305.KeySize,
		MinVersion: VersionTLS12,
	},
	TLS_AES_128_GCM_SHA256: {
		Suite: TLS_AES_128_GCM_SHA256, KeyExchange: KeyExchangeNone, Auth: AuthNone,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: 16,
		MinVersion: VersionTLS13, TLS13: true,
	},
	TLS_AES_256_GCM_SHA384: {
		Suite: TLS_AES_256_GCM_SHA384, KeyExchange: KeyExchangeNone, Auth: AuthNone,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA384Settings, KeyLen: 32,
		MinVersion: VersionTLS13, TLS13: true,
	},
	TLS_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_CHACHA20_POLY1305_SHA256, KeyExchange: KeyExchangeNone, Auth: AuthNone,
		RecordCipher: RecordCipherAEAD, Hash: HashSHA256Settings, KeyLen: chacha20poly1305.KeySize,
		MinVersion: VersionTLS13, TLS13: true,
	},
}

func (c CipherSuite) Descriptor() (CipherSuiteDescriptor, bool) {
	d, ok := cipherSuiteTable[c]
	return d, ok
}

func GetCipherSuiteOrderedSecure() []CipherSuite {
	return []CipherSuite{
		TLS_AES_256_GCM_SHA384,
		TLS_CHACHA20_POLY1305_SHA256,
		TLS_AES_128_GCM_SHA256,
		TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	}
}

func GetCipherSuiteOrderedPerformance() []CipherSuite {
	return []CipherSuite{
		TLS_AES_128_GCM_SHA256,
		TLS_CHACHA20_POLY1305_SHA256,
		TLS_AES_256_GCM_SHA384,
		TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

// GetCipherSuiteLegacy returns the CBC fallback list offered to peers
// that never advertise an AEAD suite — TLS 1.0/1.1 clients in practice.
func GetCipherSuiteLegacy() []CipherSuite {
	return []CipherSuite{
		TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
		TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		TLS_RSA_WITH_AES_128_CBC_SHA,
		TLS_RSA_WITH_AES_256_CBC_SHA,
	}
}

// selectCipherSuiteLegacy walks GetCipherSuiteLegacy's CBC fallback
// order and returns the first entry also present in offered — the same
// server-preference algorithm selectCipherSuite runs over the TLS1.3
// table, scoped to the suites DeriveLegacyKeyBlock knows how to key:
// this module's legacy path only ever negotiates CBC, never TLS1.2 AEAD
// (see DESIGN.md for why GCM/ChaCha20 suites aren't offered pre-1.3).
func selectCipherSuiteLegacy(offered []CipherSuite) (CipherSuite, bool) {
	offeredSet := make(map[CipherSuite]bool, len(offered))
	for _, s := range offered {
		offeredSet[s] = true
	}
	for _, want := range GetCipherSuiteLegacy() {
		if offeredSet[want] {
			return want, true
		}
	}
	return 0, false
}

func GetCipherSuiteDefault() []CipherSuite {
	return GetCipherSuiteOrderedPerformance()
}

func (c CipherSuite) GetHash() *HashSettings {
	if d, ok := c.Descriptor(); ok {
		return d.Hash
	}
	panic("unsupported cipher suite " + c.String())
}

func (c CipherSuite) KeyLen() int {
	if d, ok := c.Descriptor(); ok {
		return d.KeyLen
	}
	panic("unsupported cipher suite for key length")
}

func (c CipherSuite) ToBytes() []byte {
	return []byte{byte(c >> 8), byte(c & 0xFF)}
}

func (c CipherSuite) String() string {
	switch c {
	case TLS_RSA_WITH_AES_128_CBC_SHA:
		return "TLS_RSA_WITH_AES_128_CBC_SHA"
	case TLS_RSA_WITH_AES_256_CBC_SHA:
		return "TLS_RSA_WITH_AES_256_CBC_SHA"
	case TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA:
		return "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA"
	case TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA:
		return "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA"
	case TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA"
	case TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:
		return "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"
	case TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:
		return "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"
	case TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"
	case TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:
		return "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384"
	case TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256:
		return "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256"
	case TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256"
	case TLS_AES_128_GCM_SHA256:
		return "TLS_AES_128_GCM_SHA256"
	case TLS_AES_256_GCM_SHA384:
		return "TLS_AES_256_GCM_SHA384"
	case TLS_CHACHA20_POLY1305_SHA256:
		return "TLS_CHACHA20_POLY1305_SHA256"
	case TLS_AES_128_CCM_SHA256:
		return "TLS_AES_128_CCM_SHA256"
	case TLS_AES_128_CCM_8_SHA256:
		return "TLS_AES_128_CCM_8_SHA256"
	default:
		return "Invalid CipherSuite"
	}
}
