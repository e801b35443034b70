package s2n

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"
)

// KEMScheme is a private-use NamedGroup-style code point for a Key
// Encapsulation Mechanism offered in the key_share extension. Spec §8's
// KEM-selection scenarios name draft-era post-quantum schemes (BIKE,
// SIKE) that were never assigned an IANA TLS code point; these use the
// 0xFE00–0xFEFF ecdhe_private_use range reserved for exactly this case.
type KEMScheme uint16

const (
	KEMBIKE1L1R1  KEMScheme = 0xFE00
	KEMBIKE1L1R2  KEMScheme = 0xFE01
	KEMSIKEP503R1 KEMScheme = 0xFE02
	KEMSIKEP434R2 KEMScheme = 0xFE03
)

func (k KEMScheme) String() string {
	switch k {
	case KEMBIKE1L1R1:
		return "BIKE1-L1-R1"
	case KEMBIKE1L1R2:
		return "BIKE1-L1-R2"
	case KEMSIKEP503R1:
		return "SIKE-P503-R1"
	case KEMSIKEP434R2:
		return "SIKE-P434-R2"
	default:
		return "Invalid KEMScheme"
	}
}

var ErrKEMDecapsFailed = errors.New("s2n: KEM decapsulation failed")

// KEMCapability is the tagged-variant interface Design Notes §9 asks
// for in place of a discriminated union with function-pointer vtables:
// {available?, init, set_key, encrypt, decrypt, destroy} specialized to
// a KEM's three operations.
type KEMCapability interface {
	Available() bool
	GenerateKeypair(rand io.Reader) (public, private []byte, err error)
	Encapsulate(rand io.Reader, peerPublic []byte) (ciphertext, sharedSecret []byte, err error)
	Decapsulate(private, ciphertext []byte) (sharedSecret []byte, err error)
}

// kemRegistry maps a negotiable scheme to its backend. The spec treats
// KEM internals as an external collaborator's contract, not this
// module's concern (spec §1); syntheticKEM below exists only to give
// the selection algorithm below a backend it can exercise in tests —
// it is not a real post-quantum construction and must never be offered
// outside of test doubles wired through Config.
var kemRegistry = map[KEMScheme]KEMCapability{
	KEMBIKE1L1R1:  syntheticKEM{scheme: KEMBIKE1L1R1},
	KEMSIKEP503R1: syntheticKEM{scheme: KEMSIKEP503R1},
}

// SelectKEM walks serverPreference in order and returns the first
// scheme also present in clientOffered — the same server-preference
// walk ALPN selection uses (spec §8's KEM scenario table).
func SelectKEM(serverPreference, clientOffered []KEMScheme) (KEMScheme, bool) {
	offered := make(map[KEMScheme]bool, len(clientOffered))
	for _, s := range clientOffered {
		offered[s] = true
	}
	for _, want := range serverPreference {
		if offered[want] {
			return want, true
		}
	}
	return 0, false
}

// syntheticKEM is an HMAC-SHA256-derived test double satisfying KEMCapability
// for schemes this corpus has no real backend for. It is deterministic
// and offers no post-quantum (or classical) security guarantee; it
// exists solely so KEM negotiation and the capability-table dispatch
// path have something concrete to run against in tests.
type syntheticKEM struct {
	scheme KEMScheme
}

func (s syntheticKEM) Available() bool { return true }

func (s syntheticKEM) GenerateKeypair(rand io.Reader) (public, private []byte, err error) {
	private = make([]byte, 32)
	if _, err = io.ReadFull(rand, private); err != nil {
		return nil, nil, err
	}
	public = syntheticPublic(s.scheme, private)
	return public, private, nil
}

func (s syntheticKEM) Encapsulate(rand io.Reader, peerPublic []byte) (ciphertext, sharedSecret []byte, err error) {
	ciphertext = make([]byte, 32)
	if _, err = io.ReadFull(rand, ciphertext); err != nil {
		return nil, nil, err
	}
	sharedSecret = syntheticShared(s.scheme, peerPublic, ciphertext)
	return ciphertext, sharedSecret, nil
}

func (s syntheticKEM) Decapsulate(private, ciphertext []byte) (sharedSecret []byte, err error) {
	public := syntheticPublic(s.scheme, private)
	return syntheticShared(s.scheme, public, ciphertext), nil
}

func syntheticPublic(scheme KEMScheme, private []byte) []byte {
	mac := hmac.New(sha256.New, []byte("s2n-synthetic-kem-pub"))
	mac.Write([]byte{byte(scheme >> 8), byte(scheme)})
	mac.Write(private)
	return mac.Sum(nil)
}

func syntheticShared(scheme KEMScheme, public, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, []byte("s2n-synthetic-kem-shared"))
	mac.Write([]byte{byte(scheme >> 8), byte(scheme)})
	mac.Write(public)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
