package s2n

import (
	"crypto"
	"crypto/rand"

	"github.com/doctorN9/s2n/buffer"
)

// This file carries the pre-1.3 handshake messages RFC 5246 §7.4
// defines that TLS1.3 dropped: ServerKeyExchange, CertificateRequest,
// ServerHelloDone, ClientKeyExchange, and the differently-shaped legacy
// Certificate body. handshake.go already declares their HandshakeType
// constants; this is where the wire coders for them live.

// curveTypeNamedCurve is the only ECParameters.CurveType this module
// emits or accepts (RFC 8422 §5.4) — explicit-curve ECDH predates the
// named-curve registry and isn't offered.
const curveTypeNamedCurve = 3

// BuildServerKeyExchangeECDHE writes a ServerKeyExchange body for an
// ECDHE cipher suite (RFC 8422 §5.4): curve params, the server's
// ephemeral public point, then a signature over
// client_random||server_random||params using signer/scheme.
func BuildServerKeyExchangeECDHE(group NamedGroup, publicKey []byte, signer crypto.Signer, scheme SignatureScheme, clientRandom, serverRandom [32]byte, out *buffer.Buffer) error {
	params := buffer.Get()
	defer buffer.Put(params)
	writeECDHParams(params, group, publicKey)

	toSign := make([]byte, 0, 64+params.Len())
	toSign = append(toSign, clientRandom[:]...)
	toSign = append(toSign, serverRandom[:]...)
	toSign = append(toSign, params.Bytes()...)

	var sig []byte
	var err error
	if scheme.IsEdDSA() {
		sig, err = signer.Sign(rand.Reader, toSign, crypto.Hash(0))
	} else {
		digest := scheme.GetHash().New()
		digest.Write(toSign)
		sig, err = signer.Sign(rand.Reader, digest.Sum(nil), scheme.GetSignerOpts())
	}
	if err != nil {
		return internalErr(err)
	}

	out.WriteBytes(params.Bytes())
	out.WriteBytes(scheme.ToBytes())
	out.WriteU16(uint16(len(sig)))
	out.WriteBytes(sig)
	return nil
}

func writeECDHParams(out *buffer.Buffer, group NamedGroup, publicKey []byte) {
	out.WriteByte(curveTypeNamedCurve)
	out.WriteBytes(group.ToBytes())
	out.WriteByte(byte(len(publicKey)))
	out.WriteBytes(publicKey)
}

// ParsedServerKeyExchange is a parsed ECDHE ServerKeyExchange, still
// holding the exact bytes the signature covers so the caller can verify
// it against the chain's leaf public key once client/server random are
// available.
type ParsedServerKeyExchange struct {
	Group        NamedGroup
	PeerKey      []byte
	Scheme       SignatureScheme
	Signature    []byte
	SignedParams []byte // curve params, verbatim — the part the signature covers minus the randoms
}

func ParseServerKeyExchangeECDHE(body []byte) (ParsedServerKeyExchange, error) {
	var out ParsedServerKeyExchange
	if len(body) < 4 || body[0] != curveTypeNamedCurve {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.Group = NamedGroup(uint16(body[1])<<8 | uint16(body[2]))
	pointLen := int(body[3])
	pos := 4
	if pos+pointLen > len(body) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.PeerKey = append([]byte{}, body[pos:pos+pointLen]...)
	pos += pointLen
	out.SignedParams = append([]byte{}, body[:pos]...)

	if pos+4 > len(body) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.Scheme = SignatureScheme(uint16(body[pos])<<8 | uint16(body[pos+1]))
	sigLen := int(uint16(body[pos+2])<<8 | uint16(body[pos+3]))
	pos += 4
	if pos+sigLen > len(body) {
		return out, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	out.Signature = append([]byte{}, body[pos:pos+sigLen]...)
	return out, nil
}

// VerifyServerKeyExchange checks parsed's signature against pub, over
// client_random||server_random||SignedParams exactly as
// BuildServerKeyExchangeECDHE signed it.
func VerifyServerKeyExchange(pub crypto.PublicKey, clientRandom, serverRandom [32]byte, parsed ParsedServerKeyExchange) error {
	toVerify := make([]byte, 0, 64+len(parsed.SignedParams))
	toVerify = append(toVerify, clientRandom[:]...)
	toVerify = append(toVerify, serverRandom[:]...)
	toVerify = append(toVerify, parsed.SignedParams...)
	if !verifySignature(pub, parsed.Scheme, toVerify, parsed.Signature) {
		return protoErr(ErrBadCertificate, AlertDescriptionDecryptError)
	}
	return nil
}

// BuildCertificateRequest writes a minimal CertificateRequest body (RFC
// 5246 §7.4.4): one certificate_type (rsa_sign), then the server's
// preferred signature algorithms, then an empty
// certificate_authorities list — this module doesn't advertise a CA
// set, it accepts whatever chain the client offers in response.
func BuildCertificateRequest(schemes []SignatureScheme, out *buffer.Buffer) {
	out.WriteByte(1) // certificate_types length
	out.WriteByte(1) // rsa_sign

	algsLenPos := out.Len()
	out.WriteU16(0)
	for _, s := range schemes {
		out.WriteBytes(s.ToBytes())
	}
	algsLen := out.Len() - algsLenPos - 2
	out.B[algsLenPos] = byte(algsLen >> 8)
	out.B[algsLenPos+1] = byte(algsLen)

	out.WriteU16(0) // certificate_authorities: empty
}

// ParseCertificateRequest returns the signature_algorithms list a
// CertificateRequest advertised; certificate_types and
// certificate_authorities are read past but not interpreted, since this
// module's client always answers a CertificateRequest with an empty
// Certificate message.
func ParseCertificateRequest(body []byte) ([]SignatureScheme, error) {
	if len(body) < 1 {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	certTypesLen := int(body[0])
	pos := 1 + certTypesLen
	if pos+2 > len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	algsLen := int(uint16(body[pos])<<8 | uint16(body[pos+1]))
	pos += 2
	if pos+algsLen > len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	var schemes []SignatureScheme
	for i := 0; i+2 <= algsLen; i += 2 {
		schemes = append(schemes, SignatureScheme(uint16(body[pos+i])<<8|uint16(body[pos+i+1])))
	}
	return schemes, nil
}

// BuildServerHelloDone writes the (empty) ServerHelloDone body.
func BuildServerHelloDone(out *buffer.Buffer) {}

// ParseServerHelloDone validates that a ServerHelloDone body is, as RFC
// 5246 §7.4.5 requires, empty.
func ParseServerHelloDone(body []byte) error {
	if len(body) != 0 {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	return nil
}

// BuildClientKeyExchangeECDHE writes the client's ephemeral EC public
// point as a ClientKeyExchange body (RFC 8422 §5.7): a single
// length-prefixed point, no curve params (the client already learned
// the curve from ServerKeyExchange).
func BuildClientKeyExchangeECDHE(publicKey []byte, out *buffer.Buffer) {
	out.WriteByte(byte(len(publicKey)))
	out.WriteBytes(publicKey)
}

func ParseClientKeyExchangeECDHE(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	pointLen := int(body[0])
	if 1+pointLen != len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	return append([]byte{}, body[1:1+pointLen]...), nil
}

// BuildCertificateMessageLegacy writes the precomputed pre-1.3
// Certificate body (Config.CertificateChain.CertificateRecordLegacy)
// verbatim. A nil/empty chain (the client-declines-to-authenticate
// case) still produces a well-formed 3-byte empty cert_list.
func BuildCertificateMessageLegacy(chain *CertificateChain, out *buffer.Buffer) {
	if chain == nil || len(chain.CertificateRecordLegacy) == 0 {
		out.WriteBytes([]byte{0x00, 0x00, 0x00})
		return
	}
	out.WriteBytes(chain.CertificateRecordLegacy)
}

// ParseCertificateMessageLegacy extracts the leaf certificate's DER
// bytes from a pre-1.3 Certificate body (RFC 5246 §7.4.2): a 3-byte
// cert_list length followed by one or more 3-byte-length-prefixed DER
// certificates. An empty list (ok=false) is the client-declines case a
// server configured with RequestClientCert must tolerate.
func ParseCertificateMessageLegacy(body []byte) (der []byte, ok bool, err error) {
	if len(body) < 3 {
		return nil, false, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	listLen := int(body[0])<<16 | int(body[1])<<8 | int(body[2])
	if 3+listLen > len(body) {
		return nil, false, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	if listLen == 0 {
		return nil, false, nil
	}
	if listLen < 3 {
		return nil, false, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	pos := 3
	certLen := int(body[pos])<<16 | int(body[pos+1])<<8 | int(body[pos+2])
	pos += 3
	if pos+certLen > len(body) {
		return nil, false, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	return append([]byte{}, body[pos:pos+certLen]...), true, nil
}
