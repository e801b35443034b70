package s2n

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/curve25519"
)

var (
	ErrFailedDecodePemCert = errors.New("s2n: failed to decode PEM certificate")
	ErrFailedDecodePemKey  = errors.New("s2n: failed to decode PEM key")
	ErrUnsupportedKeyType  = errors.New("s2n: certificate key is neither RSA, ECDSA nor Ed25519")
)

// CertificateChain is one entry in Config's index-keyed certificate
// vector. Spec Design Notes §9 calls out the source's singly-linked
// chain-of-owned-nodes as something to re-architect into an
// index-keyed vector with small-integer next-indices; SNI resolution
// below returns a plain slice index rather than walking pointers.
type CertificateChain struct {
	Names []string // SNI hostnames this chain answers for; empty means "default"

	Leaf       *x509.Certificate
	PrivateKey crypto.Signer

	DER                     []byte // leaf certificate, DER-encoded
	CertificateRecord       []byte // precomputed TLS1.3 Certificate message body
	CertificateRecordLegacy []byte // precomputed pre-1.3 Certificate message body

	SignatureSchemes []SignatureScheme
}

// Config is the server (or client) identity and negotiation policy
// handed to a Connection. It expands the teacher's single hardcoded
// identity into the index-keyed multi-chain, multi-extension surface
// SPEC_FULL.md's Connection/Config data model calls for.
type Config struct {
	Chains []CertificateChain

	Ciphers     []CipherSuite
	NamedGroups []NamedGroup

	ALPNProtocols []string

	SNI        bool
	OCSPStaple bool

	MinVersion ProtocolVersion
	MaxVersion ProtocolVersion

	// RequestClientCert makes a server send CertificateRequest on the
	// legacy (<=TLS1.2) path. The connection does not verify whatever
	// chain the client presents in response (or build one itself) — it
	// only drives the CertificateRequest/Certificate exchange of RFC
	// 5246 §7.4.4/§7.4.6, which is as far as SPEC_FULL.md's scope for
	// client authentication goes.
	RequestClientCert bool

	alertCallback AlertCallback
}

// CertificateIndexByName returns the index of the chain whose Names
// contains name, or 0 (the default chain) when nothing matches.
func (c *Config) CertificateIndexByName(name string) int {
	for i, chain := range c.Chains {
		for _, n := range chain.Names {
			if strings.EqualFold(n, name) {
				return i
			}
		}
	}
	return 0
}

func (c *Config) CertificateAt(idx int) *CertificateChain {
	if idx < 0 || idx >= len(c.Chains) {
		if len(c.Chains) == 0 {
			return &CertificateChain{}
		}
		idx = 0
	}
	return &c.Chains[idx]
}

// SetAlertCallback stores cb on the Config. No Connection code reads it
// back, so the hook is not called for inbound alerts.
func (c *Config) SetAlertCallback(cb AlertCallback) { c.alertCallback = cb }

// ConfigFromFile reads a PEM certificate and key from disk and builds a
// single-chain default Config via ConfigFromDER.
func ConfigFromFile(cert, key string) (*Config, error) {
	certPEM, err := os.ReadFile(cert)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(key)
	if err != nil {
		return nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || !strings.HasSuffix(certBlock.Type, "CERTIFICATE") {
		return nil, ErrFailedDecodePemCert
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil || !strings.HasSuffix(keyBlock.Type, "PRIVATE KEY") {
		return nil, ErrFailedDecodePemKey
	}

	return ConfigFromDER(certBlock.Bytes, keyBlock.Bytes, nil)
}

// ConfigFromDER builds a default single-chain Config from a DER
// certificate and key. names, if non-empty, are the SNI hostnames this
// chain answers for.
func ConfigFromDER(certDER, keyDER []byte, names []string) (*Config, error) {
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, err
	}

	signer, err := parsePrivateKey(keyDER)
	if err != nil {
		return nil, err
	}

	chain := CertificateChain{
		Names:            names,
		Leaf:             leaf,
		PrivateKey:       signer,
		DER:              certDER,
		SignatureSchemes: signatureSchemesFor(signer),
	}
	chain.CertificateRecord = buildCertificateRecord(chain.DER)
	chain.CertificateRecordLegacy = buildCertificateRecordLegacy(chain.DER)

	return &Config{
		Chains:      []CertificateChain{chain},
		Ciphers:     GetCipherSuiteDefault(),
		NamedGroups: []NamedGroup{NamedGroupX25519, NamedGroupP256, NamedGroupP384},
		MinVersion:  VersionTLS10,
		MaxVersion:  VersionTLS13,
	}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	if k8, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := k8.(type) {
		case *rsa.PrivateKey:
			return key, nil
		case *ecdsa.PrivateKey:
			return key, nil
		case ed25519.PrivateKey:
			return key, nil
		default:
			return nil, ErrUnsupportedKeyType
		}
	}
	return nil, ErrFailedDecodePemKey
}

func signatureSchemesFor(signer crypto.Signer) []SignatureScheme {
	switch key := signer.(type) {
	case *rsa.PrivateKey:
		return []SignatureScheme{RSAPSSRSAESHA256, RSAPSSRSAESHA384, RSAPSSRSAESHA512, RSAPKCS1SHA256}
	case *ecdsa.PrivateKey:
		switch key.Curve.Params().BitSize {
		case 384:
			return []SignatureScheme{ECDSASECP384R1SHA384}
		case 521:
			return []SignatureScheme{ECDSASECP521R1SHA512}
		default:
			return []SignatureScheme{ECDSASECP256R1SHA256}
		}
	case ed25519.PrivateKey:
		return []SignatureScheme{Ed25519Scheme}
	default:
		return nil
	}
}

// buildCertificateRecord precomputes the TLS1.3 Certificate message
// body (RFC 8446 §4.4.2): a zero-length request context, one
// CertificateEntry with empty extensions.
func buildCertificateRecord(leafDER []byte) []byte {
	entryLen := 3 + len(leafDER) + 2
	record := make([]byte, 0, 1+3+entryLen)
	record = append(record, 0x00) // request context length

	record = append(record,
		byte(entryLen>>16), byte(entryLen>>8), byte(entryLen))
	record = append(record,
		byte(len(leafDER)>>16), byte(len(leafDER)>>8), byte(len(leafDER)))
	record = append(record, leafDER...)
	record = append(record, 0x00, 0x00) // per-entry extensions length

	return record
}

// buildCertificateRecordLegacy precomputes the pre-1.3 Certificate
// message body (RFC 5246 §7.4.2): a 3-byte total-length cert list
// containing a single 3-byte-length-prefixed DER certificate, with none
// of TLS1.3's request-context byte or per-entry extensions block.
func buildCertificateRecordLegacy(leafDER []byte) []byte {
	entryLen := len(leafDER)
	record := make([]byte, 0, 3+3+entryLen)
	listLen := 3 + entryLen
	record = append(record, byte(listLen>>16), byte(listLen>>8), byte(listLen))
	record = append(record, byte(entryLen>>16), byte(entryLen>>8), byte(entryLen))
	record = append(record, leafDER...)
	return record
}

// CheckValidityWindow reports whether now falls within the chain's leaf
// certificate's notBefore/notAfter window. Both fields come from
// crypto/x509's own ASN.1 parse, not from asn1time.go's hand-rolled
// GeneralizedTime/UTCTime readers — x509.ParseCertificate has already
// done that work by the time a CertificateChain exists, so leaf
// selection checks the resulting time.Time fields directly rather than
// re-parsing the raw TBSCertificate bytes a second time.
func (c *CertificateChain) CheckValidityWindow(now time.Time) error {
	if c.Leaf == nil {
		return nil
	}
	if now.Before(c.Leaf.NotBefore) || now.After(c.Leaf.NotAfter) {
		return protoErr(ErrBadCertificate, AlertDescriptionCertificateExpired)
	}
	return nil
}

// GenerateEphemeralX25519 is a convenience for tests and examples that
// want a throwaway X25519 keypair without pulling in crypto/ecdh.
func GenerateEphemeralX25519() (private, public []byte, err error) {
	private = make([]byte, 32)
	if _, err = rand.Read(private); err != nil {
		return nil, nil, err
	}
	public, err = curve25519.X25519(private, curve25519.Basepoint)
	return private, public, err
}
