package s2n

import (
	"encoding/binary"
	"errors"

	"github.com/doctorN9/s2n/buffer"
)

const (
	// The record layer fragments information blocks into TLSPlaintext
	// records carrying data in chunks of 2^14 bytes or less.
	// https://datatracker.ietf.org/doc/html/rfc8446#section-5.1
	MaxTLSRecordSize = 1 << 14

	// RecordHeaderLen is the fixed 5-byte type+version+length header.
	RecordHeaderLen = 5
	// MaxCiphertextOverhead bounds length for the inbound bad-record
	// check: 2^14 plaintext + 2^10 worth of padding/MAC/AEAD expansion.
	MaxCiphertextOverhead = MaxTLSRecordSize + 1024
)

// https://datatracker.ietf.org/doc/html/rfc8446#appendix-B.1
type RecordType uint8

const (
	RecordTypeInvalid         RecordType = 0
	RecordTypeChangeCipher    RecordType = 20
	RecordTypeAlert           RecordType = 21
	RecordTypeHandshake       RecordType = 22
	RecordTypeApplicationData RecordType = 23
	RecordTypeHeartbeat       RecordType = 24
)

var (
	ErrBadRecordLength = errors.New("s2n: record length exceeds maximum")
	ErrBadRecordType   = errors.New("s2n: unknown record type")
)

// RecordHeader is the parsed 5-byte record header.
type RecordHeader struct {
	Type    RecordType
	Version ProtocolVersion
	Length  int
}

// ParseRecordHeader reads exactly RecordHeaderLen bytes from raw and
// validates the length field against the hard ceiling. It does not
// validate the record type against connection state — callers decide
// whether a given type is expected for the current handshake state.
func ParseRecordHeader(raw []byte) (RecordHeader, error) {
	if len(raw) < RecordHeaderLen {
		return RecordHeader{}, buffer.ErrOutOfData
	}
	h := RecordHeader{
		Type:    RecordType(raw[0]),
		Version: ProtocolVersion(binary.BigEndian.Uint16(raw[1:3])),
		Length:  int(binary.BigEndian.Uint16(raw[3:5])),
	}
	if h.Length > MaxCiphertextOverhead {
		return h, ErrBadRecordLength
	}
	return h, nil
}

// BuildRecordHeader wraps the bodyLen bytes already sitting at the front
// of inOut's backing slice with a record header, shifting the body back
// by RecordHeaderLen — the same prepend-in-place trick the teacher uses
// for handshake headers, applied one level up.
func BuildRecordHeader(recType RecordType, version ProtocolVersion, inOut *buffer.Buffer) {
	bodyLen := inOut.Len()
	inOut.B = buffer.EnsureLen(inOut.B, bodyLen+RecordHeaderLen)
	copy(inOut.B[RecordHeaderLen:], inOut.B[:bodyLen])

	inOut.B[0] = byte(recType)
	binary.BigEndian.PutUint16(inOut.B[1:3], uint16(version))
	binary.BigEndian.PutUint16(inOut.B[3:5], uint16(bodyLen))
}
