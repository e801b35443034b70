package s2n

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"io"

	"github.com/doctorN9/s2n/buffer"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySchedule carries the TLS1.3 secret ladder (RFC 8446 §7.1) for one
// Connection. Every rung is derived with hkdfExtract/hkdfExpandLabel
// below and kept in the struct for the life of the Connection; Wipe
// zeroes the whole ladder when the Connection is returned with Put.
type KeySchedule struct {
	hash *HashSettings

	earlySecret       []byte
	handshakeSecret   []byte
	masterSecret      []byte
	resumptionSecret  []byte

	binderKey []byte

	clientHandshakeTrafficSecret []byte
	serverHandshakeTrafficSecret []byte
	clientApplicationTrafficSecret []byte
	serverApplicationTrafficSecret []byte
}

func hkdfExtract(saltInOut *buffer.Buffer, hash *HashSettings, ikm []byte) {
	h := hmac.New(hash.newFunc, saltInOut.B)
	saltInOut.Reset()
	h.Write(ikm)
	saltInOut.WriteBytes(h.Sum(nil))
}

// hkdfExpandLabel is RFC 8446 §7.1's HKDF-Expand-Label, writing the
// derived secret into out. It reuses out's backing array as scratch
// space for the HkdfLabel structure before overwriting it with the
// expansion result, the same in-place trick the teacher's utils.go uses
// to avoid a second buffer.
func hkdfExpandLabel(out *buffer.Buffer, hash *HashSettings, secret []byte, label string, context []byte, length int) error {
	out.WriteU16(uint16(length))

	labelWithPrefix := []byte("tls13 " + label)
	out.WriteByte(byte(len(labelWithPrefix)))
	out.WriteBytes(labelWithPrefix)

	out.WriteByte(byte(len(context)))
	out.WriteBytes(context)

	expander := hkdf.Expand(hash.newFunc, secret, out.Bytes())

	out.Reset()
	out.B = buffer.EnsureLen(out.B, length)

	if _, err := io.ReadFull(expander, out.B); err != nil {
		return err
	}
	return nil
}

func createAEAD(suite CipherSuite, key []byte) (cipher.AEAD, error) {
	d, ok := suite.Descriptor()
	if !ok || d.RecordCipher != RecordCipherAEAD {
		return nil, ErrCipherNotImplemented
	}
	switch suite {
	case TLS_CHACHA20_POLY1305_SHA256, TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256:
		return chacha20poly1305.New(key)
	default:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
}

// DeriveEarlySecret computes early_secret and, when a PSK binder is in
// play (SUPPLEMENTED: resumption, not present in the distilled spec),
// the binder_key rung derived from it. Called with ikm of all-zeros
// length hash.size when no PSK was offered.
func (ks *KeySchedule) DeriveEarlySecret(hash *HashSettings, ikm []byte, scratch *buffer.Buffer) error {
	ks.hash = hash
	scratch.Reset()
	scratch.B = buffer.EnsureLen(scratch.B, hash.size)
	ZeroSlice(scratch.B)

	hkdfExtract(scratch, hash, ikm)
	ks.earlySecret = append(ks.earlySecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err := hkdfExpandLabel(scratch, hash, ks.earlySecret, "ext binder", hash.nullValue, hash.size); err != nil {
		return err
	}
	ks.binderKey = append(ks.binderKey[:0], scratch.Bytes()...)
	scratch.Reset()
	return nil
}

// DeriveHandshakeSecrets runs the derived-secret -> extract(sharedSecret)
// -> {c,s} hs traffic rungs and returns the handshake key+IV for each
// direction, keyed by the negotiated suite.
func (ks *KeySchedule) DeriveHandshakeSecrets(suite CipherSuite, sharedSecret, transcriptHash []byte, scratch *buffer.Buffer) (cBank, sBank *CryptoBank, err error) {
	hash := suite.GetHash()
	ks.hash = hash

	if ks.earlySecret == nil {
		scratch.Reset()
		scratch.B = buffer.EnsureLen(scratch.B, hash.size)
		ZeroSlice(scratch.B)
		hkdfExtract(scratch, hash, scratch.Bytes())
		ks.earlySecret = append(ks.earlySecret[:0], scratch.Bytes()...)
	}

	scratch.Reset()
	if err = hkdfExpandLabel(scratch, hash, ks.earlySecret, "derived", hash.nullValue, hash.size); err != nil {
		return nil, nil, err
	}
	derived := append([]byte{}, scratch.Bytes()...)
	scratch.Reset()
	scratch.WriteBytes(derived)
	hkdfExtract(scratch, hash, sharedSecret)
	ks.handshakeSecret = append(ks.handshakeSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err = hkdfExpandLabel(scratch, hash, ks.handshakeSecret, "c hs traffic", transcriptHash, hash.size); err != nil {
		return nil, nil, err
	}
	ks.clientHandshakeTrafficSecret = append(ks.clientHandshakeTrafficSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err = hkdfExpandLabel(scratch, hash, ks.handshakeSecret, "s hs traffic", transcriptHash, hash.size); err != nil {
		return nil, nil, err
	}
	ks.serverHandshakeTrafficSecret = append(ks.serverHandshakeTrafficSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	cBank, err = deriveTrafficBank(suite, hash, ks.clientHandshakeTrafficSecret, scratch)
	if err != nil {
		return nil, nil, err
	}
	sBank, err = deriveTrafficBank(suite, hash, ks.serverHandshakeTrafficSecret, scratch)
	return cBank, sBank, err
}

// DeriveApplicationSecrets runs the master-secret -> {c,s} ap traffic
// rungs, per RFC 8446 §7.1. handshakeSecret must already be set by a
// prior DeriveHandshakeSecrets call.
func (ks *KeySchedule) DeriveApplicationSecrets(suite CipherSuite, transcriptHash []byte, scratch *buffer.Buffer) (cBank, sBank *CryptoBank, err error) {
	hash := suite.GetHash()

	scratch.Reset()
	if err = hkdfExpandLabel(scratch, hash, ks.handshakeSecret, "derived", hash.nullValue, hash.size); err != nil {
		return nil, nil, err
	}
	derived := append([]byte{}, scratch.Bytes()...)
	scratch.Reset()

	zeros := make([]byte, hash.size)
	scratch.WriteBytes(derived)
	hkdfExtract(scratch, hash, zeros)
	ks.masterSecret = append(ks.masterSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err = hkdfExpandLabel(scratch, hash, ks.masterSecret, "c ap traffic", transcriptHash, hash.size); err != nil {
		return nil, nil, err
	}
	ks.clientApplicationTrafficSecret = append(ks.clientApplicationTrafficSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err = hkdfExpandLabel(scratch, hash, ks.masterSecret, "s ap traffic", transcriptHash, hash.size); err != nil {
		return nil, nil, err
	}
	ks.serverApplicationTrafficSecret = append(ks.serverApplicationTrafficSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	if err = hkdfExpandLabel(scratch, hash, ks.masterSecret, "res master", transcriptHash, hash.size); err != nil {
		return nil, nil, err
	}
	ks.resumptionSecret = append(ks.resumptionSecret[:0], scratch.Bytes()...)
	scratch.Reset()

	cBank, err = deriveTrafficBank(suite, hash, ks.clientApplicationTrafficSecret, scratch)
	if err != nil {
		return nil, nil, err
	}
	sBank, err = deriveTrafficBank(suite, hash, ks.serverApplicationTrafficSecret, scratch)
	return cBank, sBank, err
}

// deriveTrafficBank expands a traffic secret into {key, iv, AEAD} and
// resets the per-direction record sequence number to zero, per RFC 8446
// §7.3.
func deriveTrafficBank(suite CipherSuite, hash *HashSettings, trafficSecret []byte, scratch *buffer.Buffer) (*CryptoBank, error) {
	keyLen := suite.KeyLen()

	scratch.Reset()
	if err := hkdfExpandLabel(scratch, hash, trafficSecret, "key", nil, keyLen); err != nil {
		return nil, err
	}
	key := append([]byte{}, scratch.Bytes()...)
	scratch.Reset()

	if err := hkdfExpandLabel(scratch, hash, trafficSecret, "iv", nil, 12); err != nil {
		return nil, err
	}
	iv := append([]byte{}, scratch.Bytes()...)
	scratch.Reset()

	aead, err := createAEAD(suite, key)
	if err != nil {
		return nil, err
	}

	return &CryptoBank{
		Suite:         suite,
		TrafficSecret: trafficSecret,
		Key:           key,
		IV:            iv,
		AEAD:          aead,
		SequenceNum:   0,
	}, nil
}

// CalculateVerifyData computes the Finished message's verify_data: an
// HMAC over the running transcript hash, keyed by the given traffic
// secret's "finished" HKDF-expansion (RFC 8446 §4.4.4).
func CalculateVerifyData(hash *HashSettings, secret, transcriptHash []byte, scratch *buffer.Buffer) ([]byte, error) {
	scratch.Reset()
	if err := hkdfExpandLabel(scratch, hash, secret, "finished", []byte{}, hash.size); err != nil {
		return nil, err
	}
	finishedKey := append([]byte{}, scratch.Bytes()...)

	h := hmac.New(hash.newFunc, finishedKey)
	h.Write(transcriptHash)
	return h.Sum(nil), nil
}

// Wipe zeroes every secret rung so they don't linger in the connection
// pool's backing arrays after Put.
func (ks *KeySchedule) Wipe() {
	for _, s := range [][]byte{
		ks.earlySecret, ks.handshakeSecret, ks.masterSecret, ks.resumptionSecret, ks.binderKey,
		ks.clientHandshakeTrafficSecret, ks.serverHandshakeTrafficSecret,
		ks.clientApplicationTrafficSecret, ks.serverApplicationTrafficSecret,
	} {
		ZeroSlice(s)
	}
}
