package s2n

// ProtocolVersion is the wire-format {major, minor} pair used throughout
// the record and handshake layers. TLS 1.0 is {3,1}, 1.1 is {3,2}, 1.2 is
// {3,3}, 1.3 is {3,4} on the wire but advertises {3,3} in records for
// middlebox compatibility (spec §6).
type ProtocolVersion uint16

const (
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304

	// RecordCompatVersion is what every record header after the first
	// ClientHello advertises once 1.3 is in play.
	RecordCompatVersion = VersionTLS12
	// InitialClientHelloRecordVersion is advertised on the wire for the
	// very first ClientHello record, for broad middlebox compatibility.
	InitialClientHelloRecordVersion = VersionTLS10
)

func (v ProtocolVersion) String() string {
	switch v {
	case VersionTLS10:
		return "TLS1.0"
	case VersionTLS11:
		return "TLS1.1"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	default:
		return "InvalidVersion"
	}
}

func (v ProtocolVersion) IsTLS13() bool { return v == VersionTLS13 }

// marshalAdditionalData builds the AEAD associated data used by the
// TLS1.3 record layer: opaque type + legacy record version + ciphertext
// length, per RFC 8446 §5.2.
func marshalAdditionalData(recordType RecordType, length int) []byte {
	return []byte{
		byte(recordType),
		byte(RecordCompatVersion >> 8), byte(RecordCompatVersion & 0xFF),
		byte(length >> 8), byte(length & 0xFF),
	}
}
