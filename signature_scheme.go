package s2n

import (
	"crypto"
	"crypto/rsa"
)

// Precalculated so SignerOpts conversions don't force a heap allocation
// on every CertificateVerify.
var (
	SHA256Options crypto.SignerOpts = crypto.SHA256
	SHA384Options crypto.SignerOpts = crypto.SHA384
	SHA512Options crypto.SignerOpts = crypto.SHA512

	NoOptions crypto.SignerOpts = crypto.Hash(0)

	RSAPSSSHA256Options = &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	}
	RSAPSSSHA384Options = &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA384,
	}
	RSAPSSSHA512Options = &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA512,
	}
)

// https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.3
/*
enum {
	RSASSA-PKCS1-v1_5 algorithms
	rsa_pkcs1_sha256(0x0401),
	rsa_pkcs1_sha384(0x0501),
	rsa_pkcs1_sha512(0x0601),

	ECDSA algorithms
	ecdsa_secp256r1_sha256(0x0403),
	ecdsa_secp384r1_sha384(0x0503),
	ecdsa_secp521r1_sha512(0x0603),

	RSASSA-PSS algorithms with public key OID rsaEncryption
	rsa_pss_rsae_sha256(0x0804),
	rsa_pss_rsae_sha384(0x0805),
	rsa_pss_rsae_sha512(0x0806),

	EdDSA algorithms
	ed25519(0x0807),
	ed448(0x0808),

	RSASSA-PSS algorithms with public key OID RSASSA-PSS
	rsa_pss_pss_sha256(0x0809),
	rsa_pss_pss_sha384(0x080a),
	rsa_pss_pss_sha512(0x080b),

	Legacy algorithms
	rsa_pkcs1_sha1(0x0201),
	ecdsa_sha1(0x0203),
} SignatureScheme;
*/
type SignatureScheme uint16

const (
	RSAPKCS1SHA1   SignatureScheme = 0x0201 // TLS1.0/1.1 default; not in config.go's signatureSchemesFor RSA list
	RSAPKCS1SHA256 SignatureScheme = 0x0401
	RSAPKCS1SHA384 SignatureScheme = 0x0501
	RSAPKCS1SHA512 SignatureScheme = 0x0601

	ECDSASHA1           SignatureScheme = 0x0203
	ECDSASECP256R1SHA256 SignatureScheme = 0x0403
	ECDSASECP384R1SHA384 SignatureScheme = 0x0503
	ECDSASECP521R1SHA512 SignatureScheme = 0x0603

	RSAPSSRSAESHA256 SignatureScheme = 0x0804
	RSAPSSRSAESHA384 SignatureScheme = 0x0805
	RSAPSSRSAESHA512 SignatureScheme = 0x0806

	Ed25519Scheme SignatureScheme = 0x0807
	Ed448Scheme   SignatureScheme = 0x0808 // no Go stdlib support, kept for String()/wire parsing only

	RSAPSSPSSSHA256 SignatureScheme = 0x0809
	RSAPSSPSSSHA384 SignatureScheme = 0x080a
	RSAPSSPSSSHA512 SignatureScheme = 0x080b
)

func (s SignatureScheme) ToBytes() []byte {
	return []byte{byte(s >> 8), byte(s & 0xFF)}
}

func (s SignatureScheme) GetHash() crypto.Hash {
	switch s {
	case RSAPKCS1SHA1, ECDSASHA1:
		return crypto.SHA1
	case RSAPKCS1SHA256, RSAPSSRSAESHA256, ECDSASECP256R1SHA256, RSAPSSPSSSHA256:
		return crypto.SHA256
	case RSAPKCS1SHA384, RSAPSSRSAESHA384, ECDSASECP384R1SHA384, RSAPSSPSSSHA384:
		return crypto.SHA384
	case RSAPKCS1SHA512, RSAPSSRSAESHA512, ECDSASECP521R1SHA512, RSAPSSPSSSHA512:
		return crypto.SHA512
	case Ed25519Scheme:
		return 0 // Ed25519 does its own hashing internally
	default:
		panic("unsupported signature scheme hash")
	}
}

func (s SignatureScheme) GetSignerOpts() crypto.SignerOpts {
	switch s {
	case RSAPSSRSAESHA256, RSAPSSPSSSHA256:
		return RSAPSSSHA256Options
	case RSAPSSRSAESHA384, RSAPSSPSSSHA384:
		return RSAPSSSHA384Options
	case RSAPSSRSAESHA512, RSAPSSPSSSHA512:
		return RSAPSSSHA512Options
	case RSAPKCS1SHA256, ECDSASECP256R1SHA256:
		return SHA256Options
	case RSAPKCS1SHA384, ECDSASECP384R1SHA384:
		return SHA384Options
	case RSAPKCS1SHA512, ECDSASECP521R1SHA512:
		return SHA512Options
	case Ed25519Scheme:
		return NoOptions
	default:
		panic("unsupported signature scheme hash")
	}
}

func (s SignatureScheme) IsEdDSA() bool {
	return s == Ed25519Scheme || s == Ed448Scheme
}

func (s SignatureScheme) IsECDSA() bool {
	return s == ECDSASHA1 || s == ECDSASECP256R1SHA256 || s == ECDSASECP384R1SHA384 || s == ECDSASECP521R1SHA512
}

func (s SignatureScheme) IsRSAPSS() bool {
	return s == RSAPSSRSAESHA256 || s == RSAPSSRSAESHA384 || s == RSAPSSRSAESHA512 ||
		s == RSAPSSPSSSHA256 || s == RSAPSSPSSSHA384 || s == RSAPSSPSSSHA512
}

func (s SignatureScheme) IsRSAPKCS1() bool {
	return s == RSAPKCS1SHA1 || s == RSAPKCS1SHA256 || s == RSAPKCS1SHA384 || s == RSAPKCS1SHA512
}

// AllowedForTLS13 rejects the SHA1/PKCS1 schemes RFC 8446 §4.2.3 forbids
// in a TLS1.3 CertificateVerify.
func (s SignatureScheme) AllowedForTLS13() bool {
	return !s.IsRSAPKCS1() && s != ECDSASHA1
}

func (s SignatureScheme) String() string {
	switch s {
	case RSAPKCS1SHA1:
		return "rsa_pkcs1_sha1"
	case RSAPKCS1SHA256:
		return "rsa_pkcs1_sha256"
	case RSAPKCS1SHA384:
		return "rsa_pkcs1_sha384"
	case RSAPKCS1SHA512:
		return "rsa_pkcs1_sha512"
	case ECDSASHA1:
		return "ecdsa_sha1"
	case ECDSASECP256R1SHA256:
		return "ecdsa_secp256r1_sha256"
	case ECDSASECP384R1SHA384:
		return "ecdsa_secp384r1_sha384"
	case ECDSASECP521R1SHA512:
		return "ecdsa_secp521r1_sha512"
	case RSAPSSRSAESHA256:
		return "rsa_pss_rsae_sha256"
	case RSAPSSRSAESHA384:
		return "rsa_pss_rsae_sha384"
	case RSAPSSRSAESHA512:
		return "rsa_pss_rsae_sha512"
	case Ed25519Scheme:
		return "ed25519"
	case Ed448Scheme:
		return "ed448"
	case RSAPSSPSSSHA256:
		return "rsa_pss_pss_sha256"
	case RSAPSSPSSSHA384:
		return "rsa_pss_pss_sha384"
	case RSAPSSPSSSHA512:
		return "rsa_pss_pss_sha512"
	default:
		return "Invalid SignatureScheme"
	}
}
