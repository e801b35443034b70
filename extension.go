package s2n

import (
	"encoding/binary"

	"github.com/doctorN9/s2n/buffer"
)

// https://datatracker.ietf.org/doc/html/rfc8446#section-4.2
type Extension uint16

const (
	ExtensionServerName                  Extension = 0
	ExtensionMaxFragmentLength           Extension = 1
	ExtensionStatusRequest               Extension = 5
	ExtensionSupportedGroups             Extension = 10
	ExtensionSignatureAlgorithms         Extension = 13
	ExtensionALPN                        Extension = 16
	ExtensionSupportedVersions           Extension = 43
	ExtensionKeyShare                    Extension = 51
)

// parsedClientHello collects what the extension handlers below extract
// from a ClientHello's extension block. A fresh one is threaded through
// by the handshake state machine for each incoming ClientHello; it
// replaces the teacher's approach of writing straight into *TLState
// fields mid-parse, so the same handlers run identically whether the
// negotiation result is ultimately accepted or abandoned mid-parse.
type parsedClientHello struct {
	sniIndex       int
	scheme         SignatureScheme
	schemeChosen   bool
	tls13          bool
	legacyVersion  ProtocolVersion
	namedGroup     NamedGroup
	offeredGroups  []NamedGroup // populated from supported_groups; legacy ECDHE has no key_share to read a group off of
	peerPublicKey  []byte
	alpnProtocols  []string
	maxFragment    int // 0 = not requested
	statusRequest  bool
}

func handleExtension(cfg *Config, out *parsedClientHello, ext Extension, data []byte) {
	switch ext {
	case ExtensionServerName:
		handleServerName(cfg, out, data)
	case ExtensionSignatureAlgorithms:
		handleSignatureAlgorithms(cfg, out, data)
	case ExtensionSupportedVersions:
		handleSupportedVersions(out, data)
	case ExtensionSupportedGroups:
		handleSupportedGroups(out, data)
	case ExtensionKeyShare:
		handleKeyShare(cfg, out, data)
	case ExtensionALPN:
		handleALPN(out, data)
	case ExtensionMaxFragmentLength:
		handleMaxFragmentLength(out, data)
	case ExtensionStatusRequest:
		out.statusRequest = true
	}
}

// handleSupportedGroups records every group the client offered, in its
// own order. TLS1.3 picks a group from key_share instead; the legacy
// (<=TLS1.2) ECDHE path has no key_share extension at all, so this is
// the only signal the server has for which curve to run
// ServerKeyExchange over.
func handleSupportedGroups(out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 2 {
		return
	}
	listLen := int(binary.BigEndian.Uint16(data[0:2]))
	pos := 2
	for pos+2 <= 2+listLen && pos+2 <= dataLen {
		out.offeredGroups = append(out.offeredGroups, NamedGroup(binary.BigEndian.Uint16(data[pos:pos+2])))
		pos += 2
	}
}

func handleServerName(cfg *Config, out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 2 || !cfg.SNI {
		return
	}
	snLen := int(binary.BigEndian.Uint16(data[0:2]))

	pos := 2
	for pos+3 <= 2+snLen && pos+3 <= dataLen {
		nameType := data[pos]
		pos++
		nameLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if nameType == 0 && pos+nameLen <= dataLen {
			// Falls back to index 0 (the default certificate) if the
			// name doesn't match any configured cert chain.
			out.sniIndex = cfg.CertificateIndexByName(UnsafeString(data[pos : pos+nameLen]))
		}
		pos += nameLen
	}
}

func handleSignatureAlgorithms(cfg *Config, out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 2 {
		return
	}
	sigAlgsLen := int(binary.BigEndian.Uint16(data[0:2]))

	chain := cfg.CertificateAt(out.sniIndex)
	for _, want := range chain.SignatureSchemes {
		pos := 2
		for pos+2 <= 2+sigAlgsLen && pos+2 <= dataLen {
			scheme := SignatureScheme(binary.BigEndian.Uint16(data[pos : pos+2]))
			if scheme == want {
				out.scheme = scheme
				out.schemeChosen = true
				return
			}
			pos += 2
		}
	}
}

func handleSupportedVersions(out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 1 {
		return
	}
	listLen := int(data[0])
	if listLen%2 != 0 || 1+listLen > dataLen {
		return
	}
	for i := 0; i < listLen; i += 2 {
		if ProtocolVersion(binary.BigEndian.Uint16(data[1+i:1+i+2])) == VersionTLS13 {
			out.tls13 = true
			return
		}
	}
}

func handleKeyShare(cfg *Config, out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 2 {
		return
	}
	ksLen := int(binary.BigEndian.Uint16(data[0:2]))

	for _, want := range cfg.NamedGroups {
		pos := 2
		for pos+4 <= 2+ksLen && pos+4 <= dataLen {
			group := NamedGroup(binary.BigEndian.Uint16(data[pos : pos+2]))
			keyLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
			pos += 4
			if pos+keyLen > dataLen {
				break
			}
			if group == want {
				out.peerPublicKey = append(out.peerPublicKey, data[pos:pos+keyLen]...)
				out.namedGroup = group
				return
			}
			pos += keyLen
		}
	}
}

// handleALPN parses the ProtocolNameList; selection against the server's
// preference list happens in alpn.go's SelectALPN, after every extension
// in the ClientHello has been walked.
func handleALPN(out *parsedClientHello, data []byte) {
	dataLen := len(data)
	if dataLen < 2 {
		return
	}
	listLen := int(binary.BigEndian.Uint16(data[0:2]))
	pos := 2
	for pos < 2+listLen && pos < dataLen {
		nameLen := int(data[pos])
		pos++
		if pos+nameLen > dataLen {
			break
		}
		out.alpnProtocols = append(out.alpnProtocols, string(data[pos:pos+nameLen]))
		pos += nameLen
	}
}

func handleMaxFragmentLength(out *parsedClientHello, data []byte) {
	if len(data) < 1 {
		return
	}
	switch data[0] {
	case 1:
		out.maxFragment = 1 << 9
	case 2:
		out.maxFragment = 1 << 10
	case 3:
		out.maxFragment = 1 << 11
	case 4:
		out.maxFragment = 1 << 12
	}
}

// generateServerHelloExtensions writes the TLS1.3 ServerHello extension
// block (supported_versions + key_share) to out, computing the total
// length up front so it can be written before the body the way the
// teacher's single-pass encoder does.
func generateServerHelloExtensions(out *buffer.Buffer, group NamedGroup, publicKey []byte) {
	pubKeyLen := len(publicKey)
	extensionLength := 6 + 8 + pubKeyLen
	out.WriteU16(uint16(extensionLength))

	out.WriteBytes([]byte{0x00, 0x2B, 0x00, 0x02, 0x03, 0x04})

	keyShareLen := 2 + 2 + pubKeyLen
	out.WriteBytes([]byte{0x00, 0x33, byte(keyShareLen >> 8), byte(keyShareLen)})
	out.WriteBytes(group.ToBytes())
	out.WriteU16(uint16(pubKeyLen))
	out.WriteBytes(publicKey)
}

// generateALPNExtension writes the application_layer_protocol_negotiation
// extension for a single negotiated protocol (RFC 7301 §3.1).
func generateALPNExtension(out *buffer.Buffer, protocol string) {
	protoLen := len(protocol)
	listLen := 1 + protoLen
	extLen := 2 + listLen
	out.WriteU16(uint16(ExtensionALPN))
	out.WriteU16(uint16(extLen))
	out.WriteU16(uint16(listLen))
	out.WriteByte(byte(protoLen))
	out.WriteBytes([]byte(protocol))
}
