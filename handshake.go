package s2n

import "github.com/doctorN9/s2n/buffer"

// https://datatracker.ietf.org/doc/html/rfc8446#appendix-B.3
type HandshakeType uint8

const (
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeNewSessionTicket    HandshakeType = 4
	HandshakeTypeEndOfEarlyData      HandshakeType = 5
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeServerKeyExchange   HandshakeType = 12 // legacy (<=TLS1.2) only
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeServerHelloDone     HandshakeType = 14 // legacy only
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeClientKeyExchange   HandshakeType = 16 // legacy only
	HandshakeTypeFinished            HandshakeType = 20
	HandshakeTypeKeyUpdate           HandshakeType = 24
	HandshakeTypeMessageHash         HandshakeType = 254
)

// BuildHandshakeHeader prepends the 4-byte {type, uint24 length} header
// in place, the same EnsureLen-and-shift trick the record header uses
// one layer up.
func BuildHandshakeHeader(msgType HandshakeType, inOut *buffer.Buffer) {
	bodyLen := inOut.Len()
	inOut.B = buffer.EnsureLen(inOut.B, bodyLen+4)
	copy(inOut.B[4:], inOut.B[:bodyLen])

	inOut.B[0] = byte(msgType)
	inOut.B[1] = byte(bodyLen >> 16)
	inOut.B[2] = byte(bodyLen >> 8)
	inOut.B[3] = byte(bodyLen)
}

// ParseHandshakeHeader reads the 4-byte header without consuming the
// body, returning the declared body length.
func ParseHandshakeHeader(raw []byte) (HandshakeType, int, error) {
	if len(raw) < 4 {
		return 0, 0, buffer.ErrOutOfData
	}
	bodyLen := int(raw[1])<<16 | int(raw[2])<<8 | int(raw[3])
	return HandshakeType(raw[0]), bodyLen, nil
}
