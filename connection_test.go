package s2n

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/doctorN9/s2n/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// generateSelfSignedConfig builds a Config around a throwaway ECDSA
// P-256 self-signed leaf, enough for a full loopback TLS1.3 handshake.
func generateSelfSignedConfig(t *testing.T) *Config {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "loopback.test"},
		NotBefore:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	cfg, err := ConfigFromDER(certDER, keyDER, nil)
	require.NoError(t, err)
	cfg.ALPNProtocols = []string{"h2", "http/1.1"}
	return cfg
}

// feedDraining feeds data into c (empty data just drains whatever is
// already buffered) and keeps calling Feed with an empty buffer until
// one call reports Responded or the budget runs out, returning the
// response bytes if any were produced.
func feedDraining(t *testing.T, c *Connection, data []byte) []byte {
	buf := buffer.Get()
	defer buffer.Put(buf)
	buf.WriteBytes(data)

	for i := 0; i < 16; i++ {
		state, err := c.Feed(buf)
		require.NoError(t, err)
		if state == Responded {
			out := append([]byte{}, buf.Bytes()...)
			return out
		}
		buf.Reset()
	}
	return nil
}

func TestFullHandshakeAndApplicationDataRoundTrip(t *testing.T) {
	cfg := generateSelfSignedConfig(t)

	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)
	server, err := Get(RoleServer)
	require.NoError(t, err)
	defer Put(server)

	client.SetConfig(cfg)
	server.SetConfig(cfg)

	clientHello := buffer.Get()
	defer buffer.Put(clientHello)
	require.NoError(t, client.StartHandshake(clientHello))

	serverFlight := feedDraining(t, server, clientHello.Bytes())
	require.NotNil(t, serverFlight, "server should respond with its handshake flight")

	clientFinished := feedDraining(t, client, serverFlight)
	require.NotNil(t, clientFinished, "client should respond with its Finished message")

	tail := feedDraining(t, server, clientFinished)
	assert.Nil(t, tail, "server has nothing left to send once the handshake completes")

	assert.True(t, client.IsHandshakeDone())
	assert.True(t, server.IsHandshakeDone())
	assert.Equal(t, client.SelectedCipher(), server.SelectedCipher())
	assert.Equal(t, "h2", client.SelectedALPN())
	assert.Equal(t, "h2", server.SelectedALPN())

	plaintext := []byte("hello from the client over a freshly negotiated TLS1.3 connection")
	appData := buffer.Get()
	defer buffer.Put(appData)
	appData.WriteBytes(plaintext)
	require.NoError(t, client.Write(appData))

	state, err := server.Feed(appData)
	require.NoError(t, err)
	assert.Equal(t, None, state)

	received := buffer.Get()
	defer buffer.Put(received)
	state, err = server.Read(received)
	require.NoError(t, err)
	assert.Equal(t, Responded, state)
	assert.Equal(t, plaintext, received.Bytes())

	reply := []byte("hello back from the server")
	replyBuf := buffer.Get()
	defer buffer.Put(replyBuf)
	replyBuf.WriteBytes(reply)
	require.NoError(t, server.Write(replyBuf))

	_, err = client.Feed(replyBuf)
	require.NoError(t, err)

	clientReceived := buffer.Get()
	defer buffer.Put(clientReceived)
	state, err = client.Read(clientReceived)
	require.NoError(t, err)
	assert.Equal(t, Responded, state)
	assert.Equal(t, reply, clientReceived.Bytes())
}

// legacyConfig is generateSelfSignedConfig capped to TLS1.2 and offering
// the CBC suites, so StartHandshake omits supported_versions, the server
// takes the pre-1.3 branch of processClientHello, and
// selectCipherSuiteLegacy finds a suite in common.
func legacyConfig(t *testing.T) *Config {
	cfg := generateSelfSignedConfig(t)
	cfg.MaxVersion = VersionTLS12
	cfg.Ciphers = GetCipherSuiteLegacy()
	return cfg
}

func TestLegacyHandshakeAndApplicationDataRoundTrip(t *testing.T) {
	cfg := legacyConfig(t)

	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)
	server, err := Get(RoleServer)
	require.NoError(t, err)
	defer Put(server)

	client.SetConfig(cfg)
	server.SetConfig(cfg)

	clientHello := buffer.Get()
	defer buffer.Put(clientHello)
	require.NoError(t, client.StartHandshake(clientHello))

	// Server flight: ServerHello, Certificate, ServerKeyExchange,
	// ServerHelloDone, each in its own plaintext record, sent as one
	// response.
	serverFlight := feedDraining(t, server, clientHello.Bytes())
	require.NotNil(t, serverFlight)
	assert.True(t, server.legacy)

	// Client flight: ClientKeyExchange, ChangeCipherSpec, Finished.
	clientFlight := feedDraining(t, client, serverFlight)
	require.NotNil(t, clientFlight)
	assert.True(t, client.legacy)

	// Server's ChangeCipherSpec + Finished.
	serverFinished := feedDraining(t, server, clientFlight)
	require.NotNil(t, serverFinished)

	drain := feedDraining(t, client, serverFinished)
	assert.Nil(t, drain)

	assert.True(t, client.IsHandshakeDone())
	assert.True(t, server.IsHandshakeDone())

	plaintext := []byte("hello over a legacy TLS1.2 CBC connection")
	appData := buffer.Get()
	defer buffer.Put(appData)
	appData.WriteBytes(plaintext)
	require.NoError(t, client.Write(appData))

	_, err = server.Feed(appData)
	require.NoError(t, err)

	received := buffer.Get()
	defer buffer.Put(received)
	state, err := server.Read(received)
	require.NoError(t, err)
	assert.Equal(t, Responded, state)
	assert.Equal(t, plaintext, received.Bytes())
}

func TestCloseNotifyReportsEOFToPeer(t *testing.T) {
	cfg := generateSelfSignedConfig(t)

	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)
	server, err := Get(RoleServer)
	require.NoError(t, err)
	defer Put(server)

	client.SetConfig(cfg)
	server.SetConfig(cfg)

	clientHello := buffer.Get()
	defer buffer.Put(clientHello)
	require.NoError(t, client.StartHandshake(clientHello))

	serverFlight := feedDraining(t, server, clientHello.Bytes())
	require.NotNil(t, serverFlight)
	clientFinished := feedDraining(t, client, serverFlight)
	require.NotNil(t, clientFinished)
	feedDraining(t, server, clientFinished)

	require.True(t, client.IsHandshakeDone())
	require.True(t, server.IsHandshakeDone())

	closeBuf := buffer.Get()
	defer buffer.Put(closeBuf)
	require.NoError(t, client.Close(closeBuf))

	_, err = server.Feed(closeBuf)
	require.NoError(t, err)

	drain := buffer.Get()
	defer buffer.Put(drain)
	_, err = server.Read(drain)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFeedOnClosedConnectionIsUsageError(t *testing.T) {
	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)
	client.closed.Store(true)

	buf := buffer.Get()
	defer buffer.Put(buf)
	_, err = client.Feed(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestClientHelloALPNNoMatchIsFatal(t *testing.T) {
	cfg := generateSelfSignedConfig(t)
	cfg.ALPNProtocols = []string{"h2", "http/1.1"}

	clientCfg := generateSelfSignedConfig(t)
	clientCfg.ALPNProtocols = []string{"smtp"}

	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)
	server, err := Get(RoleServer)
	require.NoError(t, err)
	defer Put(server)

	client.SetConfig(clientCfg)
	server.SetConfig(cfg)

	clientHello := buffer.Get()
	defer buffer.Put(clientHello)
	require.NoError(t, client.StartHandshake(clientHello))

	buf := buffer.Get()
	defer buffer.Put(buf)
	buf.WriteBytes(clientHello.Bytes())
	_, err = server.Feed(buf)
	assert.ErrorIs(t, err, ErrNoApplicationProtocol)

	var ce *ConnError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, AlertDescriptionNoApplicationProtocol, ce.Alert)
}

// fakeBlockingReader mimics a non-blocking socket with nothing to read
// yet, the way examples/gnet_tls/main.go's caller would see EAGAIN from
// a raw syscall.Read before any bytes are available.
type fakeBlockingReader struct{}

func (fakeBlockingReader) Read([]byte) (int, error) {
	return 0, unix.EAGAIN
}

func TestFeedFromClassifiesEAGAINAsBlocked(t *testing.T) {
	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)

	buf := buffer.Get()
	defer buffer.Put(buf)

	_, err = client.FeedFrom(fakeBlockingReader{}, buf)
	require.Error(t, err)
	assert.True(t, Blocked(err))
}

func TestWriteBeforeHandshakeCompleteIsUsageError(t *testing.T) {
	client, err := Get(RoleClient)
	require.NoError(t, err)
	defer Put(client)

	buf := buffer.Get()
	defer buffer.Put(buf)
	buf.WriteBytes([]byte("too early"))
	err = client.Write(buf)
	assert.ErrorIs(t, err, ErrHandshakeNotComplete)
}
