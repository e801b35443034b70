package s2n

import (
	"crypto"
	"crypto/rand"

	"github.com/doctorN9/s2n/buffer"
)

// BuildEncryptedExtensions writes an EncryptedExtensions body: an empty
// extension list, or one carrying the selected ALPN protocol, the only
// encrypted extension this module sends. SUPPLEMENTED surface:
// max_fragment_length and early_data are not echoed here.
func BuildEncryptedExtensions(alpn string, out *buffer.Buffer) {
	if alpn == "" {
		out.WriteU16(0)
		return
	}
	lenPos := out.Len()
	out.WriteU16(0) // placeholder, patched below
	generateALPNExtension(out, alpn)
	total := out.Len() - lenPos - 2
	out.B[lenPos] = byte(total >> 8)
	out.B[lenPos+1] = byte(total)
}

// ParseEncryptedExtensions extracts the negotiated ALPN protocol, if any.
func ParseEncryptedExtensions(body []byte) (alpn string) {
	if len(body) < 2 {
		return ""
	}
	listLen := int(body[0])<<8 | int(body[1])
	pos := 2
	for pos+4 <= 2+listLen && pos+4 <= len(body) {
		extType := Extension(int(body[pos])<<8 | int(body[pos+1]))
		extLen := int(body[pos+2])<<8 | int(body[pos+3])
		pos += 4
		if pos+extLen > len(body) {
			break
		}
		if extType == ExtensionALPN && extLen >= 3 {
			nameLen := int(body[pos+2])
			if 3+nameLen <= extLen {
				alpn = string(body[pos+3 : pos+3+nameLen])
			}
		}
		pos += extLen
	}
	return alpn
}

// ParseCertificateMessage extracts the leaf certificate's DER bytes from
// a TLS1.3 Certificate message body (RFC 8446 §4.4.2): request context,
// then one or more CertificateEntry. Only the leaf (first) entry is
// returned — this module does not walk or validate intermediates.
func ParseCertificateMessage(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	pos := 1 + int(body[0]) // skip request context
	if pos+3 > len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	pos += 3 // cert_list length, unused — we only read the first entry
	if pos+3 > len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	certLen := int(body[pos])<<16 | int(body[pos+1])<<8 | int(body[pos+2])
	pos += 3
	if pos+certLen > len(body) {
		return nil, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	return body[pos : pos+certLen], nil
}

// BuildCertificateMessage writes the precomputed per-chain
// CertificateRecord (Config.CertificateChain.CertificateRecord) into out
// verbatim — it already has the right wire shape (RFC 8446 §4.4.2).
func BuildCertificateMessage(chain *CertificateChain, out *buffer.Buffer) {
	out.WriteBytes(chain.CertificateRecord)
}

// BuildCertificateVerify signs transcriptHash (already run through the
// negotiated hash) with signer under scheme and writes the
// CertificateVerify body: scheme(2) || signature length(2) || signature.
func BuildCertificateVerify(signer crypto.Signer, scheme SignatureScheme, transcriptHash []byte, out *buffer.Buffer) error {
	toSign := certificateVerifyInput(transcriptHash, true)

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

	out.WriteBytes(scheme.ToBytes())
	out.WriteU16(uint16(len(sig)))
	out.WriteBytes(sig)
	return nil
}

// certificateVerifyInput builds RFC 8446 §4.4.3's signature content:
// 64 spaces, a context string, a zero byte, then the transcript hash.
// fromServer selects which context string to use.
func certificateVerifyInput(transcriptHash []byte, fromServer bool) []byte {
	pad := make([]byte, 64)
	for i := range pad {
		pad[i] = 0x20
	}
	context := "TLS 1.3, client CertificateVerify"
	if fromServer {
		context = "TLS 1.3, server CertificateVerify"
	}
	out := make([]byte, 0, 64+len(context)+1+len(transcriptHash))
	out = append(out, pad...)
	out = append(out, []byte(context)...)
	out = append(out, 0x00)
	out = append(out, transcriptHash...)
	return out
}

// VerifyCertificateVerify checks a peer's CertificateVerify signature
// against their public key.
func VerifyCertificateVerify(pub crypto.PublicKey, scheme SignatureScheme, transcriptHash, body []byte, fromServer bool) error {
	if len(body) < 4 {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	gotScheme := SignatureScheme(uint16(body[0])<<8 | uint16(body[1]))
	if gotScheme != scheme {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionIllegalParameter)
	}
	sigLen := int(uint16(body[2])<<8 | uint16(body[3]))
	if 4+sigLen > len(body) {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	sig := body[4 : 4+sigLen]

	toVerify := certificateVerifyInput(transcriptHash, fromServer)
	if !verifySignature(pub, scheme, toVerify, sig) {
		return protoErr(ErrBadCertificate, AlertDescriptionDecryptError)
	}
	return nil
}

// BuildFinished writes verifyData (already computed via
// CalculateVerifyData) as the Finished message body — it has no other
// structure.
func BuildFinished(verifyData []byte, out *buffer.Buffer) {
	out.WriteBytes(verifyData)
}
