package s2n

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"

	"github.com/doctorN9/s2n/buffer"
)

func newAESBlock(key []byte) (cipher.Block, error) { return aes.NewCipher(key) }

// EncryptRecord seals plaintext (payload only, no record header) into
// out as a ciphertext ready to be wrapped by BuildRecordHeader. For
// TLS1.3 banks (AEAD with a TrafficSecret) it uses the RFC 8446 §5.2
// inner-plaintext scheme: payload || real content-type, with no zero
// padding added, sealed under type=ApplicationData. For TLS1.2 AEAD and CBC banks it
// uses the classic RFC 5246 framing with the real content type in the
// record header and no inner content-type suffix.
func EncryptRecord(bank *CryptoBank, version ProtocolVersion, recType RecordType, plaintext []byte, out *buffer.Buffer) error {
	tls13 := len(bank.TrafficSecret) > 0

	switch {
	case bank.AEAD != nil && tls13:
		return encryptAEADInner(bank, version, recType, plaintext, out)
	case bank.AEAD != nil:
		return encryptAEADLegacy(bank, version, recType, plaintext, out)
	default:
		return encryptCBC(bank, version, recType, plaintext, out)
	}
}

// DecryptRecord is EncryptRecord's inverse. For TLS1.3 banks it returns
// the real content type recovered from the inner plaintext; for legacy
// banks it returns recType unchanged, since the header already carries
// the true type.
func DecryptRecord(bank *CryptoBank, version ProtocolVersion, recType RecordType, ciphertext []byte, out *buffer.Buffer) (RecordType, error) {
	tls13 := len(bank.TrafficSecret) > 0

	switch {
	case bank.AEAD != nil && tls13:
		return decryptAEADInner(bank, version, recType, ciphertext, out)
	case bank.AEAD != nil:
		return recType, decryptAEADLegacy(bank, version, recType, ciphertext, out)
	default:
		return recType, decryptCBC(bank, version, recType, ciphertext, out)
	}
}

func recordNonce(iv []byte, seq uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-8+i] ^= seqBytes[i]
	}
	return nonce
}

func encryptAEADInner(bank *CryptoBank, version ProtocolVersion, recType RecordType, plaintext []byte, out *buffer.Buffer) error {
	nonce := recordNonce(bank.IV, bank.SequenceNum)

	inner := make([]byte, 0, len(plaintext)+1)
	inner = append(inner, plaintext...)
	inner = append(inner, byte(recType))

	sealedLen := len(inner) + bank.AEAD.Overhead()
	ad := marshalAdditionalData(RecordTypeApplicationData, sealedLen)

	sealed := bank.AEAD.Seal(nil, nonce, inner, ad)
	out.WriteBytes(sealed)

	bank.SequenceNum++
	return nil
}

func decryptAEADInner(bank *CryptoBank, version ProtocolVersion, recType RecordType, ciphertext []byte, out *buffer.Buffer) (RecordType, error) {
	nonce := recordNonce(bank.IV, bank.SequenceNum)
	ad := marshalAdditionalData(RecordTypeApplicationData, len(ciphertext))

	opened, err := bank.AEAD.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return 0, cryptoErr(ErrBadRecordMAC, AlertDescriptionBadRecordMac)
	}
	bank.SequenceNum++

	i := len(opened) - 1
	for i >= 0 && opened[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}

	innerType := RecordType(opened[i])
	out.WriteBytes(opened[:i])
	return innerType, nil
}

func encryptAEADLegacy(bank *CryptoBank, version ProtocolVersion, recType RecordType, plaintext []byte, out *buffer.Buffer) error {
	var explicitNonce [8]byte
	if _, err := rand.Read(explicitNonce[:]); err != nil {
		return internalErr(err)
	}
	nonce := make([]byte, 0, len(bank.IV)+len(explicitNonce))
	nonce = append(nonce, bank.IV...)
	nonce = append(nonce, explicitNonce[:]...)

	ad := marshalAdditionalDataLegacy(recType, version, bank.SequenceNum, len(plaintext))
	sealed := bank.AEAD.Seal(nil, nonce, plaintext, ad)

	out.WriteBytes(explicitNonce[:])
	out.WriteBytes(sealed)
	bank.SequenceNum++
	return nil
}

func decryptAEADLegacy(bank *CryptoBank, version ProtocolVersion, recType RecordType, ciphertext []byte, out *buffer.Buffer) error {
	if len(ciphertext) < 8 {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	explicitNonce := ciphertext[:8]
	body := ciphertext[8:]

	nonce := make([]byte, 0, len(bank.IV)+len(explicitNonce))
	nonce = append(nonce, bank.IV...)
	nonce = append(nonce, explicitNonce...)

	plainLen := len(body) - bank.AEAD.Overhead()
	ad := marshalAdditionalDataLegacy(recType, version, bank.SequenceNum, plainLen)

	opened, err := bank.AEAD.Open(nil, nonce, body, ad)
	if err != nil {
		return cryptoErr(ErrBadRecordMAC, AlertDescriptionBadRecordMac)
	}
	bank.SequenceNum++
	out.WriteBytes(opened)
	return nil
}

// marshalAdditionalDataLegacy builds RFC 5246 §6.2.3.3's AEAD
// associated-data: seq_num || type || version || length.
func marshalAdditionalDataLegacy(recType RecordType, version ProtocolVersion, seq uint64, length int) []byte {
	ad := make([]byte, 13)
	binary.BigEndian.PutUint64(ad[0:8], seq)
	ad[8] = byte(recType)
	binary.BigEndian.PutUint16(ad[9:11], uint16(version))
	binary.BigEndian.PutUint16(ad[11:13], uint16(length))
	return ad
}

// encryptCBC implements RFC 5246 §6.2.3.2's MAC-then-encrypt for block
// ciphers: HMAC over seq||type||version||len||payload, then PKCS#7-style
// padding to a block boundary, then CBC with a fresh explicit IV
// prepended in the clear. The explicit IV is used on every version,
// TLS1.0 included: TLS1.0's implicit-IV chaining is not implemented, so
// a TLS1.0 connection's CBC records carry the TLS1.1 layout.
func encryptCBC(bank *CryptoBank, version ProtocolVersion, recType RecordType, plaintext []byte, out *buffer.Buffer) error {
	block, err := newBlockCipher(bank)
	if err != nil {
		return internalErr(err)
	}
	blockSize := block.BlockSize()

	mac := computeCBCMac(bank, version, recType, plaintext)

	withMAC := make([]byte, 0, len(plaintext)+len(mac)+blockSize)
	withMAC = append(withMAC, plaintext...)
	withMAC = append(withMAC, mac...)

	padLen := blockSize - (len(withMAC)+1)%blockSize
	for i := 0; i <= padLen; i++ {
		withMAC = append(withMAC, byte(padLen))
	}

	iv := make([]byte, blockSize)
	if _, err := rand.Read(iv); err != nil {
		return internalErr(err)
	}

	ciphertext := make([]byte, len(withMAC))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, withMAC)

	out.WriteBytes(iv)
	out.WriteBytes(ciphertext)
	bank.SequenceNum++
	return nil
}

// decryptCBC checks the MAC and padding with the constant-time
// discipline spec §9's Lucky-13 concern requires: the padding is always
// fully walked and the MAC comparison is subtle.ConstantTimeCompare,
// regardless of whether a padding error was already detected, so
// decryption-failure timing doesn't leak which check failed.
func decryptCBC(bank *CryptoBank, version ProtocolVersion, recType RecordType, ciphertext []byte, out *buffer.Buffer) error {
	block, err := newBlockCipher(bank)
	if err != nil {
		return internalErr(err)
	}
	blockSize := block.BlockSize()

	if len(ciphertext) < 2*blockSize {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	iv := ciphertext[:blockSize]
	body := ciphertext[blockSize:]
	if len(body)%blockSize != 0 {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	padLen := int(plain[len(plain)-1])
	badPadding := 0
	if padLen+1 > len(plain) {
		badPadding = 1
		padLen = 0 // avoid an out-of-range slice below; result is discarded anyway
	} else {
		for i := 0; i <= padLen; i++ {
			if plain[len(plain)-1-i] != byte(padLen) {
				badPadding = 1
			}
		}
	}

	macLen := bank.macLen()
	unpaddedLen := len(plain) - padLen - 1
	if unpaddedLen < macLen {
		badPadding = 1
		unpaddedLen = macLen
	}
	payloadLen := unpaddedLen - macLen

	payload := plain[:payloadLen]
	gotMAC := plain[payloadLen:unpaddedLen]
	wantMAC := computeCBCMac(bank, version, recType, payload)

	macOK := subtle.ConstantTimeCompare(gotMAC, wantMAC)
	if macOK != 1 || badPadding != 0 {
		bank.SequenceNum++
		return cryptoErr(ErrBadRecordMAC, AlertDescriptionBadRecordMac)
	}

	bank.SequenceNum++
	out.WriteBytes(payload)
	return nil
}

func (b *CryptoBank) macLen() int {
	d, ok := b.Suite.Descriptor()
	if !ok {
		return 0
	}
	return d.MACLen
}

func computeCBCMac(bank *CryptoBank, version ProtocolVersion, recType RecordType, payload []byte) []byte {
	d, _ := bank.Suite.Descriptor()
	header := make([]byte, 13)
	binary.BigEndian.PutUint64(header[0:8], bank.SequenceNum)
	header[8] = byte(recType)
	binary.BigEndian.PutUint16(header[9:11], uint16(version))
	binary.BigEndian.PutUint16(header[11:13], uint16(len(payload)))

	h := hmac.New(d.Hash.newFunc, bank.MACKey)
	h.Write(header)
	h.Write(payload)
	return h.Sum(nil)
}

func newBlockCipher(bank *CryptoBank) (cipher.Block, error) {
	return newAESBlock(bank.Key)
}
