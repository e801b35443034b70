package s2n

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
)

// verifySignature checks sig over message under pub, dispatching on
// scheme's family the way CertificateVerify and the legacy
// ServerKeyExchange signature both need to.
func verifySignature(pub crypto.PublicKey, scheme SignatureScheme, message, sig []byte) bool {
	switch scheme.family() {
	case sigFamilyEdDSA:
		key, ok := pub.(ed25519.PublicKey)
		return ok && ed25519.Verify(key, message, sig)

	case sigFamilyECDSA:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		digest := scheme.GetHash().New()
		digest.Write(message)
		return ecdsa.VerifyASN1(key, digest.Sum(nil), sig)

	case sigFamilyRSAPSS:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		digest := scheme.GetHash().New()
		digest.Write(message)
		return rsa.VerifyPSS(key, scheme.GetHash(), digest.Sum(nil), sig, scheme.GetSignerOpts().(*rsa.PSSOptions)) == nil

	case sigFamilyRSAPKCS1:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		digest := scheme.GetHash().New()
		digest.Write(message)
		return rsa.VerifyPKCS1v15(key, scheme.GetHash(), digest.Sum(nil), sig) == nil

	default:
		return false
	}
}

type sigFamily uint8

const (
	sigFamilyUnknown sigFamily = iota
	sigFamilyRSAPKCS1
	sigFamilyECDSA
	sigFamilyRSAPSS
	sigFamilyEdDSA
)

func (s SignatureScheme) family() sigFamily {
	switch {
	case s.IsEdDSA():
		return sigFamilyEdDSA
	case s.IsECDSA():
		return sigFamilyECDSA
	case s.IsRSAPSS():
		return sigFamilyRSAPSS
	case s.IsRSAPKCS1():
		return sigFamilyRSAPKCS1
	default:
		return sigFamilyUnknown
	}
}
