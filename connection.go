package s2n

import (
	"crypto/x509"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doctorN9/s2n/buffer"
	ringBuffer "github.com/panjf2000/gnet/v2/pkg/pool/ringbuffer"
	"github.com/rs/zerolog/log"
)

// Role is which side of the handshake a Connection plays. The teacher
// only ever plays RoleServer; RoleClient is SUPPLEMENTED surface. Its
// TLS1.3 ClientHello carries a single X25519 key share; on the legacy
// path it uses whichever group the ServerKeyExchange names.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

// HandshakeState generalizes the teacher's five-state TLS1.3-server-only
// enum to both roles, keeping the same name and shape.
type HandshakeState uint8

const (
	HandshakeStateInitial HandshakeState = iota
	HandshakeStateClientHelloDone
	HandshakeStateServerHelloDone
	HandshakeStateWaitFinished
	HandshakeStateDone

	// Legacy (<=TLS1.2) states. The pre-1.3 handshake doesn't collapse
	// ServerHello..ServerHelloDone and ClientKeyExchange..Finished into
	// single encrypted flights the way TLS1.3 does, so it needs more
	// than one "waiting for the next flight" state per role.
	HandshakeStateLegacyWaitServerFlight   // client: Certificate..ServerHelloDone
	HandshakeStateLegacyWaitClientFlight   // server: [Certificate,]ClientKeyExchange
	HandshakeStateLegacyWaitClientFinished // server: got the client's ChangeCipherSpec
	HandshakeStateLegacyWaitServerFinished // client: got the server's ChangeCipherSpec
)

// We extensively use this the way the teacher does: whenever a function
// returns ResponseState, a buffer was written to instead of returned, to
// avoid an extra allocation/copy on the hot path.
type ResponseState uint8

const (
	None      ResponseState = iota // nothing was written, no need to respond
	Responded                      // response data was flushed to outgoing, send it to the peer
)

// Connection is spec §3's Connection object: the role-aware façade
// generalizing the teacher's TLState to both roles and to a pluggable
// Config, while keeping its pooled-object, ring-buffer-backed shape.
type Connection struct {
	role   Role
	config *Config

	incoming          *ringBuffer.RingBuffer
	handshakeMessages *buffer.Buffer

	state HandshakeState

	privateKey    []byte
	publicKey     []byte
	peerPublicKey []byte
	namedGroup    NamedGroup

	peerLeaf *x509.Certificate // client role only: server's leaf, set on Certificate, checked on CertificateVerify

	cipher   CipherSuite
	scheme   SignatureScheme
	sniIndex int

	clientRandom [32]byte
	serverRandom [32]byte
	sessionID    []byte

	alpn string

	// offeredSchemes is, for the client role, the signature_algorithms
	// the local ClientHello advertised — verifyPeerCertificateVerify
	// checks the server's chosen scheme against this rather than the
	// scheme read straight off the wire, which would make the check a
	// tautology.
	offeredSchemes []SignatureScheme

	ks KeySchedule

	clientBanks EpochBanks
	serverBanks EpochBanks

	// legacy is true once ClientHello/ServerHello negotiation lands on
	// anything below TLS1.3. negotiatedVersion and legacyMasterSecret
	// only mean anything when legacy is set; peerCertRequested tracks
	// whether a CertificateRequest is outstanding on the legacy path.
	legacy             bool
	negotiatedVersion  ProtocolVersion
	legacyMasterSecret []byte
	peerCertRequested  bool

	closing atomic.Bool
	closed  atomic.Bool
}

var connPool = sync.Pool{
	New: func() interface{} {
		return &Connection{
			incoming:          ringBuffer.Get(),
			handshakeMessages: buffer.Get(),
		}
	},
}

// Get returns a pooled Connection ready for role and generates the
// ephemeral key share it will offer (client) or be ready to answer with
// (server), on the X25519 group.
func Get(role Role) (*Connection, error) {
	c := connPool.Get().(*Connection)
	c.role = role
	c.namedGroup = NamedGroupX25519

	var err error
	c.privateKey, c.publicKey, err = GenerateKeyPair(NamedGroupX25519)
	if err != nil {
		connPool.Put(c)
		return nil, internalErr(err)
	}

	random, err := randomBytes32()
	if err != nil {
		connPool.Put(c)
		return nil, internalErr(err)
	}
	if role == RoleClient {
		c.clientRandom = random
	} else {
		c.serverRandom = random
	}

	return c, nil
}

// Put wipes secret material and returns c to the pool.
func Put(c *Connection) {
	c.incoming.Reset()
	c.handshakeMessages.Wipe()

	ZeroSlice(c.privateKey)
	ZeroSlice(c.peerPublicKey)
	c.privateKey = nil
	c.publicKey = nil
	c.peerPublicKey = nil
	c.sessionID = nil
	c.peerLeaf = nil

	c.ks.Wipe()
	c.ks = KeySchedule{}

	c.clientBanks.Active.Wipe()
	if c.clientBanks.Pending != nil {
		c.clientBanks.Pending.Wipe()
	}
	c.serverBanks.Active.Wipe()
	if c.serverBanks.Pending != nil {
		c.serverBanks.Pending.Wipe()
	}
	c.clientBanks = EpochBanks{}
	c.serverBanks = EpochBanks{}

	ZeroSlice(c.legacyMasterSecret)
	c.legacyMasterSecret = nil
	c.legacy = false
	c.negotiatedVersion = 0
	c.peerCertRequested = false
	c.offeredSchemes = nil

	c.state = HandshakeStateInitial
	c.cipher = 0
	c.scheme = 0
	c.sniIndex = 0
	c.alpn = ""
	c.config = nil
	c.closing.Store(false)
	c.closed.Store(false)

	connPool.Put(c)
}

func (c *Connection) SetConfig(cfg *Config)                    { c.config = cfg }
func (c *Connection) IsHandshakeDone() bool                    { return c.state == HandshakeStateDone }
func (c *Connection) SelectedCipher() CipherSuite              { return c.cipher }
func (c *Connection) SelectedALPN() string                     { return c.alpn }
func (c *Connection) SelectedSignatureScheme() SignatureScheme { return c.scheme }

// StartHandshake builds the initial ClientHello into out. Only valid for
// RoleClient, before any Feed call.
func (c *Connection) StartHandshake(out *buffer.Buffer) error {
	if c.role != RoleClient {
		return usageErr(errors.New("s2n: StartHandshake is client-only"))
	}
	if c.config == nil {
		return usageErr(errors.New("s2n: SetConfig must be called before StartHandshake"))
	}

	offer := ClientHelloOffer{
		Random:     c.clientRandom,
		SessionID:  c.sessionID,
		Ciphers:    c.config.Ciphers,
		Groups:     c.config.NamedGroups,
		ALPN:       c.config.ALPNProtocols,
		MaxVersion: c.config.MaxVersion,
		KeyShares:  map[NamedGroup][]byte{NamedGroupX25519: c.publicKey},
	}
	for _, chain := range c.config.Chains {
		offer.Schemes = append(offer.Schemes, chain.SignatureSchemes...)
	}
	c.offeredSchemes = offer.Schemes

	out.Reset()
	if err := BuildClientHello(offer, out); err != nil {
		return err
	}
	BuildHandshakeHeader(HandshakeTypeClientHello, out)
	c.handshakeMessages.WriteBytes(out.Bytes())
	BuildRecordHeader(RecordTypeHandshake, InitialClientHelloRecordVersion, out)

	c.state = HandshakeStateClientHelloDone
	return nil
}

// Feed ingests bytes already read from the transport (inOut.Bytes()) and
// drives the handshake as far as it can go. If a response was produced,
// inOut is overwritten with the bytes to send back and ResponseState is
// Responded — the same "flush this buffer to the peer" contract the
// teacher's Feed uses.
func (c *Connection) Feed(inOut *buffer.Buffer) (ResponseState, error) {
	if c.closed.Load() {
		return None, usageErr(ErrConnectionClosed)
	}
	c.incoming.Write(inOut.Bytes())

	if c.state == HandshakeStateDone {
		return None, nil
	}
	return c.processHandshake(inOut)
}

// FeedFrom reads one chunk from r, the way examples/server/main.go's
// handle() loop reads into its tmp slice before calling Feed, and
// drives the handshake with it. A short read that's actually
// EAGAIN/EWOULDBLOCK (r wraps a non-blocking socket) comes back as
// Blocked(err) == true rather than a real failure, via
// ClassifyIOError.
func (c *Connection) FeedFrom(r io.Reader, inOut *buffer.Buffer) (ResponseState, error) {
	var tmp [64 * 1024]byte
	n, err := r.Read(tmp[:])
	if n == 0 {
		if err != nil {
			return None, ClassifyIOError(err)
		}
		return None, blockedErr()
	}

	inOut.WriteBytes(tmp[:n])
	return c.Feed(inOut)
}

// Read drains one decrypted application-data record into out.
func (c *Connection) Read(out *buffer.Buffer) (ResponseState, error) {
	if c.state != HandshakeStateDone {
		log.Debug().Msg("s2n: Read called before handshake completion")
		return None, nil
	}
	return c.processApplicationData(out)
}

// Write seals buff's contents as one or more ApplicationData records,
// fragmenting at MaxTLSRecordSize.
func (c *Connection) Write(buff *buffer.Buffer) error {
	if c.state != HandshakeStateDone {
		return usageErr(ErrHandshakeNotComplete)
	}

	buffLen := buff.Len()
	if buffLen <= MaxTLSRecordSize {
		return c.encryptApplicationData(buff)
	}

	input := make([]byte, buffLen)
	copy(input, buff.Bytes())
	buff.Reset()

	scratch := buffer.Get()
	defer buffer.Put(scratch)

	for off := 0; off < buffLen; off += MaxTLSRecordSize {
		end := off + MaxTLSRecordSize
		if end > buffLen {
			end = buffLen
		}
		scratch.WriteBytes(input[off:end])
		if err := c.encryptApplicationData(scratch); err != nil {
			return err
		}
		buff.WriteBytes(scratch.Bytes())
		scratch.Reset()
	}
	return nil
}

// Close builds a close_notify alert into out and marks the connection
// closing. Per spec §7, callers should give the resulting write a short
// deadline and proceed with teardown regardless of outcome.
func (c *Connection) Close(out *buffer.Buffer) error {
	c.closing.Store(true)
	out.Reset()
	alert := Alert{Level: AlertLevelWarning, Description: AlertDescriptionCloseNotify}
	out.WriteBytes(alert.Encode())

	if c.activeSendBank() == nil {
		BuildRecordHeader(RecordTypeAlert, RecordCompatVersion, out)
		return nil
	}
	if c.legacy {
		return c.encryptLegacyHandshakeRecord(RecordTypeAlert, out)
	}
	return c.encryptHandshakeRecord(RecordTypeAlert, out)
}

func (c *Connection) activeSendBank() *CryptoBank {
	if c.role == RoleServer {
		return c.serverBanks.Active
	}
	return c.clientBanks.Active
}

func (c *Connection) peerRecvBank() *CryptoBank {
	if c.role == RoleServer {
		return c.clientBanks.Active
	}
	return c.serverBanks.Active
}

// processHandshake mirrors the teacher's record-reassembly loop in
// tls13.go's processHandshake: peek a 5-byte header off the ring buffer,
// wait for the full body, then dispatch on record type.
func (c *Connection) processHandshake(inOut *buffer.Buffer) (ResponseState, error) {
	for {
		if c.state == HandshakeStateDone {
			return None, nil
		}

		buffered := c.incoming.Buffered()
		if buffered < RecordHeaderLen {
			return None, nil
		}

		head, tail := c.incoming.Peek(RecordHeaderLen)
		recHeader, err := ParseRecordHeader(joinHeadTail(head, tail, RecordHeaderLen))
		if err != nil {
			return None, protoErr(err, AlertDescriptionRecordOverflow)
		}
		if buffered < RecordHeaderLen+recHeader.Length {
			return None, nil
		}

		c.incoming.Discard(RecordHeaderLen)
		bodyHead, bodyTail := c.incoming.Peek(recHeader.Length)
		c.incoming.Discard(recHeader.Length)
		body := joinHeadTail(bodyHead, bodyTail, recHeader.Length)

		switch recHeader.Type {
		case RecordTypeChangeCipher:
			// On the TLS1.3 path this is just middlebox-compat filler
			// with no effect on either role. On the legacy path it's
			// the real epoch boundary: everything the peer sends after
			// it is ciphertext under the bank processChangeCipherSpec
			// activates here.
			if c.legacy {
				if err := c.processChangeCipherSpec(); err != nil {
					return None, err
				}
			}
			continue

		case RecordTypeHandshake:
			plain, err := c.decryptIfProtected(RecordTypeHandshake, body)
			if err != nil {
				return None, err
			}
			inOut.Reset()
			inOut.WriteBytes(plain)
			return c.processHandshakeMessage(inOut)

		case RecordTypeApplicationData:
			if c.legacy {
				log.Warn().Msg("s2n: unexpected application-data record during legacy handshake")
				continue
			}
			if c.state < HandshakeStateServerHelloDone {
				log.Warn().Msg("s2n: unexpected application-data record before keys are derived")
				continue
			}
			inOut.Reset()
			return c.processEncryptedHandshakeRecord(body, inOut)

		case RecordTypeAlert:
			plain, err := c.decryptIfProtected(RecordTypeAlert, body)
			if err != nil {
				return None, err
			}
			alert, err := ParseAlert(plain)
			if err != nil {
				return None, protoErr(err, AlertDescriptionDecodeError)
			}
			if alert.IsClosure() {
				c.closed.Store(true)
				return None, io.EOF
			}
			if alert.IsFatal() {
				c.closed.Store(true)
				return None, ErrFatalAlert
			}

		default:
			log.Warn().Uint8("record_type", uint8(recHeader.Type)).Msg("s2n: unknown record type")
		}
	}
}

// decryptIfProtected returns body unchanged while no peer receive bank
// is active yet (the legacy pre-ChangeCipherSpec flight, or TLS1.3's
// plaintext ClientHello/ServerHello), otherwise decrypts it under that
// bank. Legacy record protection keeps the real record type in the
// header even once encryption starts, unlike TLS1.3's
// always-ApplicationData-outer scheme, so Handshake and Alert records
// both route through here once a bank exists.
func (c *Connection) decryptIfProtected(recType RecordType, body []byte) ([]byte, error) {
	bank := c.peerRecvBank()
	if bank == nil {
		return body, nil
	}
	plain := buffer.Get()
	defer buffer.Put(plain)
	if _, err := DecryptRecord(bank, c.negotiatedVersion, recType, body, plain); err != nil {
		return nil, err
	}
	return append([]byte{}, plain.Bytes()...), nil
}

func joinHeadTail(head, tail []byte, n int) []byte {
	if len(tail) == 0 {
		return head[:n]
	}
	out := make([]byte, n)
	copy(out, head)
	copy(out[len(head):], tail)
	return out
}

func (c *Connection) processHandshakeMessage(data *buffer.Buffer) (ResponseState, error) {
	raw := append([]byte{}, data.Bytes()...)
	if len(raw) < 4 {
		return None, nil
	}
	msgType, bodyLen, err := ParseHandshakeHeader(raw)
	if err != nil || len(raw) < 4+bodyLen {
		return None, nil
	}

	switch {
	case c.role == RoleServer && msgType == HandshakeTypeClientHello:
		c.handshakeMessages.WriteBytes(raw[:4+bodyLen])
		return c.processClientHello(raw[4:4+bodyLen], data)

	case c.role == RoleClient && msgType == HandshakeTypeServerHello:
		c.handshakeMessages.WriteBytes(raw[:4+bodyLen])
		return c.processServerHello(raw[4:4+bodyLen], data)

	case c.legacy && c.role == RoleClient && c.state == HandshakeStateLegacyWaitServerFlight:
		return c.processLegacyServerFlightMessage(msgType, raw[4:4+bodyLen], raw[:4+bodyLen], data)

	case c.legacy && c.role == RoleServer && c.state == HandshakeStateLegacyWaitClientFlight:
		return c.processLegacyClientFlightMessage(msgType, raw[4:4+bodyLen], raw[:4+bodyLen], data)

	case c.legacy && msgType == HandshakeTypeFinished &&
		(c.state == HandshakeStateLegacyWaitClientFinished || c.state == HandshakeStateLegacyWaitServerFinished):
		return c.processLegacyFinished(raw[4:4+bodyLen], raw[:4+bodyLen], data)

	default:
		log.Warn().Uint8("handshake_type", uint8(msgType)).Msg("s2n: unexpected plaintext handshake message for current role/state")
		return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}
}

// processClientHello is the server role's half of the handshake:
// negotiate cipher/group/scheme/ALPN, derive handshake secrets, and
// build ServerHello plus the encrypted EncryptedExtensions, Certificate,
// CertificateVerify and Finished messages — the same sequence tls13.go's
// generateServerResponse drives, rebuilt on top of key_schedule.go and
// record_cipher.go instead of inline SHA256/X25519-only math.
func (c *Connection) processClientHello(body []byte, out *buffer.Buffer) (ResponseState, error) {
	cfg := c.config
	if cfg == nil {
		return None, usageErr(errors.New("s2n: SetConfig must be called before Feed"))
	}

	clientRandom, sessionID, offeredCiphers, parsed, err := ParseClientHello(cfg, body)
	if err != nil {
		return None, err
	}

	copy(c.clientRandom[:], clientRandom)
	c.sessionID = sessionID
	c.sniIndex = parsed.sniIndex

	if !parsed.tls13 {
		return c.processClientHelloLegacy(cfg, parsed, offeredCiphers, out)
	}

	suite, ok := selectCipherSuite(cfg.Ciphers, offeredCiphers)
	if !ok {
		return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionHandshakeFailure)
	}
	if !parsed.namedGroup.IsECDHE() || len(parsed.peerPublicKey) == 0 {
		return None, protoErr(ErrNoValidKeyShare, AlertDescriptionHandshakeFailure)
	}

	c.cipher = suite
	c.peerPublicKey = parsed.peerPublicKey

	chain := cfg.CertificateAt(c.sniIndex)
	if len(chain.SignatureSchemes) == 0 {
		return None, protoErr(ErrBadCertificate, AlertDescriptionHandshakeFailure)
	}
	if err := chain.CheckValidityWindow(time.Now()); err != nil {
		return None, err
	}
	c.scheme = chain.SignatureSchemes[0]
	if parsed.schemeChosen {
		for _, want := range chain.SignatureSchemes {
			if want == parsed.scheme {
				c.scheme = parsed.scheme
				break
			}
		}
	}

	alpn, err := negotiateALPN(cfg, parsed.alpnProtocols)
	if err != nil {
		return None, err
	}
	c.alpn = alpn

	// The client's offered group may differ from the ephemeral key Get
	// generated speculatively; regenerate on the negotiated group so the
	// shared secret is computed over a matching curve.
	if parsed.namedGroup != c.namedGroup {
		c.namedGroup = parsed.namedGroup
		c.privateKey, c.publicKey, err = GenerateKeyPair(c.namedGroup)
		if err != nil {
			return None, internalErr(err)
		}
	}
	sharedSecret, err := ComputeSharedSecret(c.namedGroup, c.privateKey, c.peerPublicKey)
	if err != nil {
		return None, cryptoErr(err, AlertDescriptionHandshakeFailure)
	}

	out.Reset()
	if err := BuildServerHello(c.serverRandom, c.sessionID, c.cipher, c.namedGroup, c.publicKey, out); err != nil {
		return None, err
	}
	BuildHandshakeHeader(HandshakeTypeServerHello, out)
	c.handshakeMessages.WriteBytes(out.Bytes())
	serverHelloRecord := append([]byte{}, out.Bytes()...)
	out.Reset()
	out.WriteBytes(serverHelloRecord)
	BuildRecordHeader(RecordTypeHandshake, RecordCompatVersion, out)

	hash := c.cipher.GetHash()
	scratch := buffer.Get()
	defer buffer.Put(scratch)

	transcriptHash := hash.Hash(c.handshakeMessages.Bytes())
	cBank, sBank, err := c.ks.DeriveHandshakeSecrets(c.cipher, sharedSecret, transcriptHash, scratch)
	if err != nil {
		return None, err
	}
	c.clientBanks.Pending = cBank
	c.serverBanks.Pending = sBank
	c.clientBanks.Activate()
	c.serverBanks.Activate()

	msg := buffer.Get()
	defer buffer.Put(msg)

	BuildEncryptedExtensions(c.alpn, msg)
	BuildHandshakeHeader(HandshakeTypeEncryptedExtensions, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())
	msg.Reset()

	BuildCertificateMessage(chain, msg)
	BuildHandshakeHeader(HandshakeTypeCertificate, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())
	msg.Reset()

	cvTranscript := hash.Hash(c.handshakeMessages.Bytes())
	if err := BuildCertificateVerify(chain.PrivateKey, c.scheme, cvTranscript, msg); err != nil {
		return None, err
	}
	BuildHandshakeHeader(HandshakeTypeCertificateVerify, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())
	msg.Reset()

	finishedTranscript := hash.Hash(c.handshakeMessages.Bytes())
	verifyData, err := CalculateVerifyData(hash, c.serverBanks.Active.TrafficSecret, finishedTranscript, scratch)
	if err != nil {
		return None, err
	}
	BuildFinished(verifyData, msg)
	BuildHandshakeHeader(HandshakeTypeFinished, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())

	c.state = HandshakeStateWaitFinished
	return Responded, nil
}

// processServerHello is the client role's half: accept the negotiated
// suite/group, derive handshake secrets, and wait for the server's
// encrypted flight (handled by processPeerHandshakeBody as it arrives).
func (c *Connection) processServerHello(body []byte, out *buffer.Buffer) (ResponseState, error) {
	psh, err := ParseServerHello(body)
	if err != nil {
		return None, err
	}
	if !psh.TLS13 {
		return c.processServerHelloLegacy(psh, out)
	}
	if psh.Group != c.namedGroup {
		return None, protoErr(ErrNoValidKeyShare, AlertDescriptionHandshakeFailure)
	}
	if d, ok := psh.Suite.Descriptor(); !ok || !d.TLS13 {
		return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionHandshakeFailure)
	}

	c.serverRandom = psh.Random
	c.cipher = psh.Suite

	sharedSecret, err := ComputeSharedSecret(c.namedGroup, c.privateKey, psh.PeerKey)
	if err != nil {
		return None, cryptoErr(err, AlertDescriptionHandshakeFailure)
	}

	hash := c.cipher.GetHash()
	scratch := buffer.Get()
	defer buffer.Put(scratch)

	transcriptHash := hash.Hash(c.handshakeMessages.Bytes())
	cBank, sBank, err := c.ks.DeriveHandshakeSecrets(c.cipher, sharedSecret, transcriptHash, scratch)
	if err != nil {
		return None, err
	}
	c.clientBanks.Pending = cBank
	c.serverBanks.Pending = sBank
	c.clientBanks.Activate()
	c.serverBanks.Activate()

	c.state = HandshakeStateWaitFinished
	out.Reset()
	return None, nil
}

// negotiateALPN runs alpn.go's SelectALPN and turns an unresolved
// no-match result into the RFC 7301 §3.2 fatal failure it's supposed to
// be: SelectALPN's ok=false is ambiguous between "the client offered
// nothing" and "the client offered protocols but none matched ours",
// and only the latter is an error.
func negotiateALPN(cfg *Config, offered []string) (string, error) {
	if len(offered) == 0 || len(cfg.ALPNProtocols) == 0 {
		return "", nil
	}
	alpn, ok := SelectALPN(cfg.ALPNProtocols, offered)
	if !ok {
		return "", protoErr(ErrNoApplicationProtocol, AlertDescriptionNoApplicationProtocol)
	}
	return alpn, nil
}

// pickGroup is selectCipherSuite's counterpart for named groups on the
// legacy path, where (unlike TLS1.3) the client doesn't speculatively
// send a key share, so the server picks a group from the offer alone
// and generates its ServerKeyExchange key pair only after negotiating.
func pickGroup(preference, offered []NamedGroup) (NamedGroup, bool) {
	offeredSet := make(map[NamedGroup]bool, len(offered))
	for _, g := range offered {
		offeredSet[g] = true
	}
	for _, want := range preference {
		if want.IsECDHE() && offeredSet[want] {
			return want, true
		}
	}
	return 0, false
}

// processClientHelloLegacy drives the server half of a pre-1.3
// handshake (RFC 5246 §7.3): negotiate version/cipher/group from the
// client's offer, then build ServerHello, Certificate,
// ServerKeyExchange, an optional CertificateRequest, and
// ServerHelloDone as one plaintext flight — none of it encrypted until
// ChangeCipherSpec, unlike TLS1.3's all-encrypted-after-ServerHello
// shape.
func (c *Connection) processClientHelloLegacy(cfg *Config, parsed parsedClientHello, offeredCiphers []CipherSuite, out *buffer.Buffer) (ResponseState, error) {
	version := parsed.legacyVersion
	if version > VersionTLS12 {
		version = VersionTLS12
	}
	if version < cfg.MinVersion || version > cfg.MaxVersion {
		return None, protoErr(ErrNoCommonVersion, AlertDescriptionProtocolVersion)
	}

	suite, ok := selectCipherSuiteLegacy(offeredCiphers)
	if !ok {
		return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionHandshakeFailure)
	}
	d, _ := suite.Descriptor()

	group, ok := pickGroup(cfg.NamedGroups, parsed.offeredGroups)
	if !ok {
		return None, protoErr(ErrNoValidKeyShare, AlertDescriptionHandshakeFailure)
	}
	c.namedGroup = group
	var err error
	c.privateKey, c.publicKey, err = GenerateKeyPair(c.namedGroup)
	if err != nil {
		return None, internalErr(err)
	}

	c.legacy = true
	c.negotiatedVersion = version
	c.cipher = suite

	chain := cfg.CertificateAt(c.sniIndex)
	if len(chain.SignatureSchemes) == 0 {
		return None, protoErr(ErrBadCertificate, AlertDescriptionHandshakeFailure)
	}
	if err := chain.CheckValidityWindow(time.Now()); err != nil {
		return None, err
	}
	c.scheme = chain.SignatureSchemes[0]
	if parsed.schemeChosen {
		for _, want := range chain.SignatureSchemes {
			if want == parsed.scheme {
				c.scheme = parsed.scheme
				break
			}
		}
	}

	alpn, err := negotiateALPN(cfg, parsed.alpnProtocols)
	if err != nil {
		return None, err
	}
	c.alpn = alpn

	out.Reset()
	if err := BuildServerHelloLegacy(version, c.serverRandom, c.sessionID, c.cipher, out); err != nil {
		return None, err
	}
	BuildHandshakeHeader(HandshakeTypeServerHello, out)
	c.handshakeMessages.WriteBytes(out.Bytes())
	flight := append([]byte{}, out.Bytes()...)
	out.Reset()
	out.WriteBytes(flight)
	BuildRecordHeader(RecordTypeHandshake, version, out)

	msg := buffer.Get()
	defer buffer.Put(msg)

	BuildCertificateMessageLegacy(chain, msg)
	BuildHandshakeHeader(HandshakeTypeCertificate, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	BuildRecordHeader(RecordTypeHandshake, version, msg)
	out.WriteBytes(msg.Bytes())
	msg.Reset()

	if d.KeyExchange == KeyExchangeECDHE {
		if err := BuildServerKeyExchangeECDHE(c.namedGroup, c.publicKey, chain.PrivateKey, c.scheme, c.clientRandom, c.serverRandom, msg); err != nil {
			return None, err
		}
		BuildHandshakeHeader(HandshakeTypeServerKeyExchange, msg)
		c.handshakeMessages.WriteBytes(msg.Bytes())
		BuildRecordHeader(RecordTypeHandshake, version, msg)
		out.WriteBytes(msg.Bytes())
		msg.Reset()
	}

	if cfg.RequestClientCert {
		c.peerCertRequested = true
		BuildCertificateRequest(chain.SignatureSchemes, msg)
		BuildHandshakeHeader(HandshakeTypeCertificateRequest, msg)
		c.handshakeMessages.WriteBytes(msg.Bytes())
		BuildRecordHeader(RecordTypeHandshake, version, msg)
		out.WriteBytes(msg.Bytes())
		msg.Reset()
	}

	BuildServerHelloDone(msg)
	BuildHandshakeHeader(HandshakeTypeServerHelloDone, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	BuildRecordHeader(RecordTypeHandshake, version, msg)
	out.WriteBytes(msg.Bytes())

	c.state = HandshakeStateLegacyWaitClientFlight
	return Responded, nil
}

// processServerHelloLegacy is the client role's entry into the pre-1.3
// path: accept the negotiated version/suite and wait for the server's
// plaintext flight (Certificate..ServerHelloDone), handled message by
// message by processLegacyServerFlightMessage as each arrives.
func (c *Connection) processServerHelloLegacy(psh ParsedServerHello, out *buffer.Buffer) (ResponseState, error) {
	if psh.Version < VersionTLS10 || psh.Version > VersionTLS12 {
		return None, protoErr(ErrNoCommonVersion, AlertDescriptionProtocolVersion)
	}
	d, ok := psh.Suite.Descriptor()
	if !ok || d.TLS13 {
		return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionHandshakeFailure)
	}

	c.legacy = true
	c.negotiatedVersion = psh.Version
	c.serverRandom = psh.Random
	c.cipher = psh.Suite
	c.state = HandshakeStateLegacyWaitServerFlight
	out.Reset()
	return None, nil
}

// processLegacyServerFlightMessage handles one plaintext message of the
// server's pre-1.3 flight (RFC 5246 §7.3): Certificate,
// ServerKeyExchange, an optional CertificateRequest, then
// ServerHelloDone, which triggers the client's own flight.
func (c *Connection) processLegacyServerFlightMessage(msgType HandshakeType, body []byte, raw []byte, out *buffer.Buffer) (ResponseState, error) {
	c.handshakeMessages.WriteBytes(raw)

	switch msgType {
	case HandshakeTypeCertificate:
		leafDER, ok, err := ParseCertificateMessageLegacy(body)
		if err != nil {
			return None, err
		}
		if !ok {
			return None, protoErr(ErrBadCertificate, AlertDescriptionBadCertificate)
		}
		leaf, err := x509.ParseCertificate(leafDER)
		if err != nil {
			return None, protoErr(ErrBadCertificate, AlertDescriptionBadCertificate)
		}
		c.peerLeaf = leaf
		return None, nil

	case HandshakeTypeServerKeyExchange:
		if c.peerLeaf == nil {
			return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
		}
		ske, err := ParseServerKeyExchangeECDHE(body)
		if err != nil {
			return None, err
		}
		if err := VerifyServerKeyExchange(c.peerLeaf.PublicKey, c.clientRandom, c.serverRandom, ske); err != nil {
			return None, err
		}
		c.namedGroup = ske.Group
		c.peerPublicKey = ske.PeerKey
		return None, nil

	case HandshakeTypeCertificateRequest:
		if _, err := ParseCertificateRequest(body); err != nil {
			return None, err
		}
		c.peerCertRequested = true
		return None, nil

	case HandshakeTypeServerHelloDone:
		if err := ParseServerHelloDone(body); err != nil {
			return None, err
		}
		return c.buildLegacyClientFlight(out)

	default:
		return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}
}

// buildLegacyClientFlight is the client's response to ServerHelloDone:
// an optional Certificate (sent empty when a CertificateRequest arrived
// but this module never authenticates as a client with a real chain),
// ClientKeyExchange, ChangeCipherSpec, then Finished under the
// newly-derived keys — RFC 5246 §7.3's client flight.
func (c *Connection) buildLegacyClientFlight(out *buffer.Buffer) (ResponseState, error) {
	if c.peerLeaf == nil || len(c.peerPublicKey) == 0 {
		return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}

	var err error
	c.privateKey, c.publicKey, err = GenerateKeyPair(c.namedGroup)
	if err != nil {
		return None, internalErr(err)
	}

	sharedSecret, err := ComputeSharedSecret(c.namedGroup, c.privateKey, c.peerPublicKey)
	if err != nil {
		return None, cryptoErr(err, AlertDescriptionHandshakeFailure)
	}

	d, ok := c.cipher.Descriptor()
	if !ok {
		return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionInternalError)
	}

	c.legacyMasterSecret = DeriveLegacyMasterSecret(c.negotiatedVersion, sharedSecret, c.clientRandom[:], c.serverRandom[:])
	if err := c.installLegacyBanks(d, c.legacyMasterSecret); err != nil {
		return None, err
	}

	out.Reset()
	msg := buffer.Get()
	defer buffer.Put(msg)

	if c.peerCertRequested {
		BuildCertificateMessageLegacy(nil, msg) // decline: empty cert list
		BuildHandshakeHeader(HandshakeTypeCertificate, msg)
		c.handshakeMessages.WriteBytes(msg.Bytes())
		BuildRecordHeader(RecordTypeHandshake, c.negotiatedVersion, msg)
		out.WriteBytes(msg.Bytes())
		msg.Reset()
	}

	BuildClientKeyExchangeECDHE(c.publicKey, msg)
	BuildHandshakeHeader(HandshakeTypeClientKeyExchange, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	BuildRecordHeader(RecordTypeHandshake, c.negotiatedVersion, msg)
	out.WriteBytes(msg.Bytes())
	msg.Reset()

	ccs := buffer.Get()
	defer buffer.Put(ccs)
	ccs.WriteByte(0x01)
	BuildRecordHeader(RecordTypeChangeCipher, c.negotiatedVersion, ccs)
	out.WriteBytes(ccs.Bytes())

	c.activateOwnBank()

	verifyData := DeriveLegacyVerifyData(c.negotiatedVersion, c.legacyMasterSecret, c.handshakeMessages.Bytes(), true)
	BuildFinished(verifyData, msg)
	BuildHandshakeHeader(HandshakeTypeFinished, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptLegacyHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())

	c.state = HandshakeStateLegacyWaitServerFinished
	return Responded, nil
}

// processLegacyClientFlightMessage handles the client's pre-1.3 flight
// on the server side: an optional Certificate (only when
// Config.RequestClientCert asked for one) followed by
// ClientKeyExchange, which is where the server learns the shared secret
// and can derive master_secret and the key_block.
func (c *Connection) processLegacyClientFlightMessage(msgType HandshakeType, body []byte, raw []byte, out *buffer.Buffer) (ResponseState, error) {
	c.handshakeMessages.WriteBytes(raw)

	switch msgType {
	case HandshakeTypeCertificate:
		if !c.peerCertRequested {
			return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
		}
		if _, _, err := ParseCertificateMessageLegacy(body); err != nil {
			return None, err
		}
		return None, nil

	case HandshakeTypeClientKeyExchange:
		peerKey, err := ParseClientKeyExchangeECDHE(body)
		if err != nil {
			return None, err
		}
		c.peerPublicKey = peerKey
		sharedSecret, err := ComputeSharedSecret(c.namedGroup, c.privateKey, c.peerPublicKey)
		if err != nil {
			return None, cryptoErr(err, AlertDescriptionHandshakeFailure)
		}
		d, ok := c.cipher.Descriptor()
		if !ok {
			return None, protoErr(ErrNoCommonCipherSuite, AlertDescriptionInternalError)
		}
		c.legacyMasterSecret = DeriveLegacyMasterSecret(c.negotiatedVersion, sharedSecret, c.clientRandom[:], c.serverRandom[:])
		if err := c.installLegacyBanks(d, c.legacyMasterSecret); err != nil {
			return None, err
		}
		return None, nil

	default:
		return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}
}

// installLegacyBanks expands master_secret into the key_block and
// stages both directions' CryptoBanks as Pending — ChangeCipherSpec
// (processChangeCipherSpec, or the local send-side equivalent) is what
// actually promotes them to Active.
func (c *Connection) installLegacyBanks(d CipherSuiteDescriptor, masterSecret []byte) error {
	km, err := DeriveLegacyKeyBlock(c.negotiatedVersion, d, masterSecret, c.clientRandom[:], c.serverRandom[:])
	if err != nil {
		return internalErr(err)
	}
	c.clientBanks.Pending = &CryptoBank{Suite: c.cipher, Key: km.ClientKey, MACKey: km.ClientMACKey, IV: km.ClientIV}
	c.serverBanks.Pending = &CryptoBank{Suite: c.cipher, Key: km.ServerKey, MACKey: km.ServerMACKey, IV: km.ServerIV}
	return nil
}

func (c *Connection) activateOwnBank() {
	if c.role == RoleServer {
		c.serverBanks.Activate()
	} else {
		c.clientBanks.Activate()
	}
}

func (c *Connection) activatePeerBank() {
	if c.role == RoleServer {
		c.clientBanks.Activate()
	} else {
		c.serverBanks.Activate()
	}
}

// processChangeCipherSpec activates whichever bank belongs to the peer
// and advances state to wait for the peer's Finished — the real epoch
// boundary on the legacy path, where (unlike TLS1.3) ChangeCipherSpec
// is a distinct, meaningful record rather than middlebox filler.
func (c *Connection) processChangeCipherSpec() error {
	c.activatePeerBank()
	if c.peerRecvBank() == nil {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}
	if c.role == RoleServer {
		c.state = HandshakeStateLegacyWaitClientFinished
	} else {
		c.state = HandshakeStateLegacyWaitServerFinished
	}
	return nil
}

// encryptLegacyHandshakeRecord seals body under the active send bank
// using RFC 5246 framing: unlike encryptHandshakeRecord's TLS1.3
// inner-plaintext scheme, the outer record header keeps innerType as
// the real type rather than always reporting ApplicationData.
func (c *Connection) encryptLegacyHandshakeRecord(innerType RecordType, body *buffer.Buffer) error {
	bank := c.activeSendBank()
	if bank == nil {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionInternalError)
	}
	plaintext := append([]byte{}, body.Bytes()...)
	body.Reset()
	if err := EncryptRecord(bank, c.negotiatedVersion, innerType, plaintext, body); err != nil {
		return err
	}
	BuildRecordHeader(innerType, c.negotiatedVersion, body)
	return nil
}

// processLegacyFinished verifies the peer's Finished verify_data and,
// for the server role, sends its own ChangeCipherSpec+Finished back —
// the last two legacy handshake messages, RFC 5246 §7.4.9.
func (c *Connection) processLegacyFinished(body []byte, raw []byte, out *buffer.Buffer) (ResponseState, error) {
	fromClient := c.role == RoleServer
	want := DeriveLegacyVerifyData(c.negotiatedVersion, c.legacyMasterSecret, c.handshakeMessages.Bytes(), fromClient)
	if !constantTimeEqual(body, want) {
		return None, cryptoErr(ErrClientFinishVerifyMismatch, AlertDescriptionDecryptError)
	}
	c.handshakeMessages.WriteBytes(raw)

	if c.role == RoleClient {
		c.state = HandshakeStateDone
		return None, nil
	}
	return c.finishLegacyAsServer(out)
}

// finishLegacyAsServer sends the server's own ChangeCipherSpec+Finished
// once the client's has verified — the handshake's final step on the
// legacy path.
func (c *Connection) finishLegacyAsServer(out *buffer.Buffer) (ResponseState, error) {
	c.activateOwnBank()

	out.Reset()
	ccs := buffer.Get()
	defer buffer.Put(ccs)
	ccs.WriteByte(0x01)
	BuildRecordHeader(RecordTypeChangeCipher, c.negotiatedVersion, ccs)
	out.WriteBytes(ccs.Bytes())

	msg := buffer.Get()
	defer buffer.Put(msg)
	verifyData := DeriveLegacyVerifyData(c.negotiatedVersion, c.legacyMasterSecret, c.handshakeMessages.Bytes(), false)
	BuildFinished(verifyData, msg)
	BuildHandshakeHeader(HandshakeTypeFinished, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())
	if err := c.encryptLegacyHandshakeRecord(RecordTypeHandshake, msg); err != nil {
		return None, err
	}
	out.WriteBytes(msg.Bytes())

	c.state = HandshakeStateDone
	return Responded, nil
}

// encryptHandshakeRecord seals body's plaintext (already containing a
// handshake or alert message) under the active send bank using the
// TLS1.3 inner-plaintext scheme, overwriting body with the wire-ready
// ApplicationData record.
func (c *Connection) encryptHandshakeRecord(innerType RecordType, body *buffer.Buffer) error {
	bank := c.activeSendBank()
	if bank == nil {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionInternalError)
	}
	plaintext := append([]byte{}, body.Bytes()...)
	body.Reset()
	if err := EncryptRecord(bank, VersionTLS13, innerType, plaintext, body); err != nil {
		return err
	}
	BuildRecordHeader(RecordTypeApplicationData, RecordCompatVersion, body)
	return nil
}

// processEncryptedHandshakeRecord decrypts one post-ServerHello record
// and, for a Handshake inner type, hands the plaintext (which may carry
// several coalesced handshake messages) to processPeerHandshakeBody.
// out is the caller's response buffer: it arrives empty (the caller
// already Reset it) and stays the outgoing buffer if the peer's flight
// completes the handshake and a Finished needs to be sent back (client
// role only).
func (c *Connection) processEncryptedHandshakeRecord(ciphertext []byte, out *buffer.Buffer) (ResponseState, error) {
	bank := c.peerRecvBank()
	if bank == nil {
		return None, protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}

	plain := buffer.Get()
	defer buffer.Put(plain)

	innerType, err := DecryptRecord(bank, VersionTLS13, RecordTypeApplicationData, ciphertext, plain)
	if err != nil {
		return None, err
	}

	switch innerType {
	case RecordTypeHandshake:
		return c.processPeerHandshakeBody(plain.Bytes(), out)

	case RecordTypeAlert:
		alert, err := ParseAlert(plain.Bytes())
		if err != nil {
			return None, err
		}
		if alert.IsClosure() {
			c.closed.Store(true)
			return None, io.EOF
		}
		if alert.IsFatal() {
			c.closed.Store(true)
			return None, ErrFatalAlert
		}
		return None, nil

	default:
		return None, nil
	}
}

// processPeerHandshakeBody walks the (possibly several) handshake
// messages TLS1.3 servers commonly coalesce into one record —
// EncryptedExtensions, Certificate, CertificateVerify and Finished
// typically arrive together.
func (c *Connection) processPeerHandshakeBody(data []byte, out *buffer.Buffer) (ResponseState, error) {
	resp := None
	for len(data) >= 4 {
		msgType, bodyLen, err := ParseHandshakeHeader(data)
		if err != nil || len(data) < 4+bodyLen {
			break
		}
		msg := data[:4+bodyLen]

		switch {
		case c.role == RoleServer && msgType == HandshakeTypeFinished:
			if err := c.finishAsServer(msg[4 : 4+bodyLen]); err != nil {
				return None, err
			}
			return None, nil

		case c.role == RoleClient:
			switch msgType {
			case HandshakeTypeEncryptedExtensions:
				c.alpn = ParseEncryptedExtensions(msg[4 : 4+bodyLen])
				c.handshakeMessages.WriteBytes(msg)
			case HandshakeTypeCertificate:
				leafDER, err := ParseCertificateMessage(msg[4 : 4+bodyLen])
				if err != nil {
					return None, err
				}
				leaf, err := x509.ParseCertificate(leafDER)
				if err != nil {
					return None, protoErr(ErrBadCertificate, AlertDescriptionBadCertificate)
				}
				c.peerLeaf = leaf
				c.handshakeMessages.WriteBytes(msg)
			case HandshakeTypeCertificateVerify:
				if err := c.verifyPeerCertificateVerify(msg[4 : 4+bodyLen]); err != nil {
					return None, err
				}
				c.handshakeMessages.WriteBytes(msg)
			case HandshakeTypeFinished:
				r, err := c.finishAsClient(msg[4:4+bodyLen], out)
				if err != nil {
					return None, err
				}
				resp = r
			default:
				log.Warn().Uint8("handshake_type", uint8(msgType)).Msg("s2n: unexpected encrypted handshake message")
			}

		default:
			log.Warn().Uint8("handshake_type", uint8(msgType)).Msg("s2n: unexpected encrypted handshake message for current role")
		}

		data = data[4+bodyLen:]
	}
	return resp, nil
}

// verifyPeerCertificateVerify checks the server's CertificateVerify
// signature (client role only) against the leaf certificate captured
// from the preceding Certificate message, over the transcript as it
// stood before this message was appended. gotScheme is read off the
// wire and checked against offeredSchemes — the schemes this
// connection's own ClientHello advertised — before anything is
// verified, so a server can't satisfy the check merely by signing with
// whatever scheme it happens to choose.
func (c *Connection) verifyPeerCertificateVerify(body []byte) error {
	if c.peerLeaf == nil {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionUnexpectedMessage)
	}
	if len(body) < 2 {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionDecodeError)
	}
	gotScheme := SignatureScheme(uint16(body[0])<<8 | uint16(body[1]))

	offered := false
	for _, s := range c.offeredSchemes {
		if s == gotScheme {
			offered = true
			break
		}
	}
	if !offered {
		return protoErr(ErrUnexpectedMessage, AlertDescriptionIllegalParameter)
	}

	hash := c.cipher.GetHash()
	transcriptHash := hash.Hash(c.handshakeMessages.Bytes())

	return VerifyCertificateVerify(c.peerLeaf.PublicKey, gotScheme, transcriptHash, body, true)
}

// finishAsServer verifies the client's Finished against the transcript
// accumulated so far, then derives and activates application secrets —
// the server's last handshake step, mirroring tls13.go's
// processClientFinished.
func (c *Connection) finishAsServer(verifyData []byte) error {
	hash := c.cipher.GetHash()
	scratch := buffer.Get()
	defer buffer.Put(scratch)

	transcriptHash := hash.Hash(c.handshakeMessages.Bytes())
	want, err := CalculateVerifyData(hash, c.clientBanks.Active.TrafficSecret, transcriptHash, scratch)
	if err != nil {
		return err
	}
	if !constantTimeEqual(verifyData, want) {
		return cryptoErr(ErrClientFinishVerifyMismatch, AlertDescriptionDecryptError)
	}

	c.handshakeMessages.WriteBytes(finishedWireBytes(verifyData))

	return c.deriveAndActivateApplicationSecrets(hash, scratch)
}

// finishAsClient verifies the server's Finished, then builds and sends
// the client's own Finished (still under the handshake traffic secret)
// before switching both directions to application secrets.
func (c *Connection) finishAsClient(verifyData []byte, out *buffer.Buffer) (ResponseState, error) {
	hash := c.cipher.GetHash()
	scratch := buffer.Get()
	defer buffer.Put(scratch)

	transcriptHash := hash.Hash(c.handshakeMessages.Bytes())
	want, err := CalculateVerifyData(hash, c.serverBanks.Active.TrafficSecret, transcriptHash, scratch)
	if err != nil {
		return None, err
	}
	if !constantTimeEqual(verifyData, want) {
		return None, cryptoErr(ErrClientFinishVerifyMismatch, AlertDescriptionDecryptError)
	}
	c.handshakeMessages.WriteBytes(finishedWireBytes(verifyData))

	ownTranscript := hash.Hash(c.handshakeMessages.Bytes())
	ownVerifyData, err := CalculateVerifyData(hash, c.clientBanks.Active.TrafficSecret, ownTranscript, scratch)
	if err != nil {
		return None, err
	}

	msg := buffer.Get()
	defer buffer.Put(msg)
	BuildFinished(ownVerifyData, msg)
	BuildHandshakeHeader(HandshakeTypeFinished, msg)
	c.handshakeMessages.WriteBytes(msg.Bytes())

	out.Reset()
	out.WriteBytes(msg.Bytes())
	if err := c.encryptHandshakeRecord(RecordTypeHandshake, out); err != nil {
		return None, err
	}

	if err := c.deriveAndActivateApplicationSecrets(hash, scratch); err != nil {
		return None, err
	}
	return Responded, nil
}

func (c *Connection) deriveAndActivateApplicationSecrets(hash *HashSettings, scratch *buffer.Buffer) error {
	finalTranscript := hash.Hash(c.handshakeMessages.Bytes())
	cBank, sBank, err := c.ks.DeriveApplicationSecrets(c.cipher, finalTranscript, scratch)
	if err != nil {
		return err
	}
	c.clientBanks.Pending = cBank
	c.serverBanks.Pending = sBank
	c.clientBanks.Activate()
	c.serverBanks.Activate()

	c.state = HandshakeStateDone
	return nil
}

func finishedWireBytes(verifyData []byte) []byte {
	body := buffer.Get()
	defer buffer.Put(body)
	body.WriteBytes(verifyData)
	BuildHandshakeHeader(HandshakeTypeFinished, body)
	return append([]byte{}, body.Bytes()...)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

var ErrClientFinishVerifyMismatch = errors.New("s2n: peer Finished verify_data mismatch")

// selectCipherSuite walks preference (server-side config order) and
// returns the first entry also present in offered, the same
// server-preference shape alpn.go's SelectALPN and kem.go's SelectKEM
// use — TLS1.3 cipher negotiation is the same algorithm a third time.
func selectCipherSuite(preference, offered []CipherSuite) (CipherSuite, bool) {
	offeredSet := make(map[CipherSuite]bool, len(offered))
	for _, s := range offered {
		offeredSet[s] = true
	}
	for _, want := range preference {
		if d, ok := want.Descriptor(); ok && d.TLS13 && offeredSet[want] {
			return want, true
		}
	}
	return 0, false
}

// processApplicationData mirrors tls13.go's processApplicationData,
// generalized to dispatch on role for which bank decrypts inbound
// records.
func (c *Connection) processApplicationData(out *buffer.Buffer) (ResponseState, error) {
	for {
		buffered := c.incoming.Buffered()
		if buffered < RecordHeaderLen {
			return None, nil
		}
		head, tail := c.incoming.Peek(RecordHeaderLen)
		recHeader, err := ParseRecordHeader(joinHeadTail(head, tail, RecordHeaderLen))
		if err != nil {
			return None, protoErr(err, AlertDescriptionRecordOverflow)
		}
		if buffered < RecordHeaderLen+recHeader.Length {
			return None, nil
		}

		c.incoming.Discard(RecordHeaderLen)
		bodyHead, bodyTail := c.incoming.Peek(recHeader.Length)
		c.incoming.Discard(recHeader.Length)
		body := joinHeadTail(bodyHead, bodyTail, recHeader.Length)

		if recHeader.Type != RecordTypeApplicationData {
			continue
		}

		bank := c.peerRecvBank()
		version := VersionTLS13
		if c.legacy {
			version = c.negotiatedVersion
		}
		innerType, err := DecryptRecord(bank, version, RecordTypeApplicationData, body, out)
		if err != nil {
			return None, err
		}

		switch innerType {
		case RecordTypeApplicationData:
			return Responded, nil
		case RecordTypeAlert:
			alert, err := ParseAlert(out.Bytes())
			out.Reset()
			if err != nil {
				return None, err
			}
			if alert.IsClosure() {
				c.closed.Store(true)
				return None, io.EOF
			}
			if alert.IsFatal() {
				c.closed.Store(true)
				return None, ErrFatalAlert
			}
		default:
			out.Reset()
		}
	}
}

func (c *Connection) encryptApplicationData(buff *buffer.Buffer) error {
	plaintext := append([]byte{}, buff.Bytes()...)
	buff.Reset()
	bank := c.activeSendBank()
	if bank == nil {
		return usageErr(ErrHandshakeNotComplete)
	}
	version := VersionTLS13
	outerVersion := RecordCompatVersion
	if c.legacy {
		version = c.negotiatedVersion
		outerVersion = c.negotiatedVersion
	}
	if err := EncryptRecord(bank, version, RecordTypeApplicationData, plaintext, buff); err != nil {
		return err
	}
	BuildRecordHeader(RecordTypeApplicationData, outerVersion, buff)
	return nil
}
