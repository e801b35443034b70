package s2n

import (
	"crypto/rand"

	"github.com/doctorN9/s2n/buffer"
	"golang.org/x/crypto/cryptobyte"
)

// ClientHelloOffer is what the client role hands to BuildClientHello: the
// negotiable values a ClientHello advertises. The wire encoding itself
// (legacy_version, session_id echoing, compression_methods) is fixed by
// the protocol and not part of the offer.
type ClientHelloOffer struct {
	Random      [32]byte
	SessionID   []byte
	Ciphers     []CipherSuite
	Groups      []NamedGroup
	Schemes     []SignatureScheme
	ALPN        []string
	ServerName  string
	MaxVersion  ProtocolVersion
	KeyShares   map[NamedGroup][]byte // group -> ephemeral public key
}

// BuildClientHello encodes offer as a ClientHello handshake body
// (header not included — callers wrap with BuildHandshakeHeader) using
// cryptobyte the way mar1xlatino-utls builds its hello messages, rather
// than the teacher's manual byte-math (grounded: ClientHello is new
// surface area the TLS1.3-server-only teacher never emits).
func BuildClientHello(offer ClientHelloOffer, out *buffer.Buffer) error {
	var b cryptobyte.Builder

	b.AddUint16(uint16(VersionTLS12)) // legacy_version; InitialClientHelloRecordVersion is the record header's
	b.AddBytes(offer.Random[:])
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddBytes(offer.SessionID)
	})
	b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		for _, suite := range offer.Ciphers {
			c.AddUint16(uint16(suite))
		}
	})
	b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint8(0) // compression_methods: null only
	})

	b.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
		if offer.ServerName != "" {
			addExtensionServerName(ext, offer.ServerName)
		}
		addExtensionSupportedGroups(ext, offer.Groups)
		addExtensionSignatureAlgorithms(ext, offer.Schemes)
		if len(offer.ALPN) > 0 {
			addExtensionALPNList(ext, offer.ALPN)
		}
		if offer.MaxVersion.IsTLS13() {
			addExtensionSupportedVersionsTLS13(ext)
			addExtensionKeyShares(ext, offer.Groups, offer.KeyShares)
		}
	})

	body, err := b.Bytes()
	if err != nil {
		return err
	}
	_, err = out.WriteBytes(body)
	return err
}

func addExtensionServerName(ext *cryptobyte.Builder, name string) {
	ext.AddUint16(uint16(ExtensionServerName))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			list.AddUint8(0) // host_name
			list.AddUint16LengthPrefixed(func(n *cryptobyte.Builder) {
				n.AddBytes([]byte(name))
			})
		})
	})
}

func addExtensionSupportedGroups(ext *cryptobyte.Builder, groups []NamedGroup) {
	ext.AddUint16(uint16(ExtensionSupportedGroups))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			for _, g := range groups {
				list.AddUint16(uint16(g))
			}
		})
	})
}

func addExtensionSignatureAlgorithms(ext *cryptobyte.Builder, schemes []SignatureScheme) {
	ext.AddUint16(uint16(ExtensionSignatureAlgorithms))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			for _, s := range schemes {
				list.AddUint16(uint16(s))
			}
		})
	})
}

func addExtensionALPNList(ext *cryptobyte.Builder, protocols []string) {
	ext.AddUint16(uint16(ExtensionALPN))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			for _, p := range protocols {
				list.AddUint8LengthPrefixed(func(n *cryptobyte.Builder) {
					n.AddBytes([]byte(p))
				})
			}
		})
	})
}

func addExtensionSupportedVersionsTLS13(ext *cryptobyte.Builder) {
	ext.AddUint16(uint16(ExtensionSupportedVersions))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint8LengthPrefixed(func(list *cryptobyte.Builder) {
			list.AddUint16(uint16(VersionTLS13))
		})
	})
}

func addExtensionKeyShares(ext *cryptobyte.Builder, groups []NamedGroup, shares map[NamedGroup][]byte) {
	ext.AddUint16(uint16(ExtensionKeyShare))
	ext.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) {
		c.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
			for _, g := range groups {
				pub, ok := shares[g]
				if !ok {
					continue
				}
				list.AddUint16(uint16(g))
				list.AddUint16LengthPrefixed(func(k *cryptobyte.Builder) {
					k.AddBytes(pub)
				})
			}
		})
	})
}

// ParseClientHello walks a ClientHello body (post-header) and returns
// the per-extension results a server needs to answer it. It delegates
// extension-by-extension handling to extension.go's handlers, the same
// split the teacher uses between "parse the envelope" and "interpret
// one extension's payload".
func ParseClientHello(cfg *Config, body []byte) (clientRandom []byte, sessionID []byte, ciphers []CipherSuite, parsed parsedClientHello, err error) {
	s := cryptobyte.String(body)

	var legacyVersion uint16
	var random []byte
	if !s.ReadUint16(&legacyVersion) || !s.ReadBytes(&random, 32) {
		return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	parsed.legacyVersion = ProtocolVersion(legacyVersion)

	var session cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&session) {
		return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}

	var cipherBytes cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&cipherBytes) {
		return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	for !cipherBytes.Empty() {
		var suite uint16
		if !cipherBytes.ReadUint16(&suite) {
			return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
		}
		ciphers = append(ciphers, CipherSuite(suite))
	}

	var compression cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&compression) {
		return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}

	if s.Empty() {
		return random, session, ciphers, parsed, nil // pre-TLS1.2 client omitting extensions entirely
	}

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) {
		return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	for !extensions.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return nil, nil, nil, parsed, protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
		}
		handleExtension(cfg, &parsed, Extension(extType), extData)
	}

	return random, session, ciphers, parsed, nil
}

func randomBytes32() ([32]byte, error) {
	var r [32]byte
	_, err := rand.Read(r[:])
	return r, err
}
