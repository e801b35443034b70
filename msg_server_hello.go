package s2n

import (
	"github.com/doctorN9/s2n/buffer"
	"golang.org/x/crypto/cryptobyte"
)

// HelloRetryRandom is the fixed random value RFC 8446 §4.1.3 requires a
// HelloRetryRequest to use in place of a real ServerHello.random. No
// code in this module references it: the server never sends a
// HelloRetryRequest and ParseServerHello does not check for one.
var HelloRetryRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// BuildServerHello writes the TLS1.3 ServerHello body (post-header):
// legacy_version=0x0303, a fresh random, echoed session_id, the chosen
// suite, null compression, then supported_versions + key_share via
// extension.go's generateServerHelloExtensions.
func BuildServerHello(serverRandom [32]byte, sessionID []byte, suite CipherSuite, group NamedGroup, publicKey []byte, out *buffer.Buffer) error {
	out.WriteU16(uint16(VersionTLS12)) // legacy_version; real version is in supported_versions
	out.WriteBytes(serverRandom[:])
	out.WriteByte(byte(len(sessionID)))
	out.WriteBytes(sessionID)
	out.WriteBytes(suite.ToBytes())
	out.WriteByte(0x00) // compression method: null

	generateServerHelloExtensions(out, group, publicKey)
	return nil
}

// BuildServerHelloLegacy writes a pre-1.3 ServerHello body: same
// envelope as BuildServerHello, but legacy_version carries the actually
// negotiated version (RFC 5246 §7.4.1.3) and there is no extensions
// block at all — this module's legacy path offers none and
// ParseServerHello already tolerates an extensionless body.
func BuildServerHelloLegacy(version ProtocolVersion, serverRandom [32]byte, sessionID []byte, suite CipherSuite, out *buffer.Buffer) error {
	out.WriteU16(uint16(version))
	out.WriteBytes(serverRandom[:])
	out.WriteByte(byte(len(sessionID)))
	out.WriteBytes(sessionID)
	out.WriteBytes(suite.ToBytes())
	out.WriteByte(0x00) // compression method: null
	return nil
}

// ParsedServerHello is what the client role's handshake driver needs
// out of a ServerHello to proceed.
type ParsedServerHello struct {
	Version   ProtocolVersion // legacy_version field, verbatim
	Random    [32]byte
	SessionID []byte
	Suite     CipherSuite
	TLS13     bool
	Group     NamedGroup
	PeerKey   []byte
}

func ParseServerHello(body []byte) (ParsedServerHello, error) {
	var out ParsedServerHello
	s := cryptobyte.String(body)

	var legacyVersion uint16
	var random []byte
	if !s.ReadUint16(&legacyVersion) || !s.ReadBytes(&random, 32) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.Version = ProtocolVersion(legacyVersion)
	copy(out.Random[:], random)

	var session cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&session) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.SessionID = append([]byte{}, session...)

	var suite uint16
	if !s.ReadUint16(&suite) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.Suite = CipherSuite(suite)

	var compression uint8
	if !s.ReadUint8(&compression) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}

	if s.Empty() {
		return out, nil
	}

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	for !extensions.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
		}
		switch Extension(extType) {
		case ExtensionSupportedVersions:
			if len(extData) == 2 && ProtocolVersion(uint16(extData[0])<<8|uint16(extData[1])) == VersionTLS13 {
				out.TLS13 = true
			}
		case ExtensionKeyShare:
			if len(extData) >= 4 {
				out.Group = NamedGroup(uint16(extData[0])<<8 | uint16(extData[1]))
				keyLen := int(uint16(extData[2])<<8 | uint16(extData[3]))
				if 4+keyLen <= len(extData) {
					out.PeerKey = append([]byte{}, extData[4:4+keyLen]...)
				}
			}
		}
	}

	return out, nil
}
