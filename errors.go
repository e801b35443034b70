package s2n

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrorClass is the taxonomy spec §7 assigns every error to. Connection
// returns the classified ConnError to its caller; for no class does it
// send an alert or mark itself closed on its own.
type ErrorClass uint8

const (
	// ClassBlocked is transient: the caller retries the same call once
	// more data or buffer space is available. No alert, no close.
	ClassBlocked ErrorClass = iota
	// ClassProtocolViolation marks a peer or wire-format violation; the
	// ConnError's Alert names the matching alert description.
	ClassProtocolViolation
	// ClassCryptoFailure marks a failed record or Finished check; the
	// ConnError's Alert is bad_record_mac or decrypt_error depending on
	// which check failed.
	ClassCryptoFailure
	// ClassUsageError is reported straight to the caller; it reflects a
	// misuse of the API (e.g. Write before the handshake completes), not
	// a peer or wire problem, so it carries no alert description.
	ClassUsageError
	// ClassInternal is fatal with no alert promised: entropy exhaustion,
	// allocation failure, anything below the protocol layer.
	ClassInternal
)

// ConnError pairs a sentinel error with its class and, for protocol or
// crypto failures, the alert description matching the failure. The
// Connection hands it back to the caller without emitting that alert.
type ConnError struct {
	Err   error
	Class ErrorClass
	Alert AlertDescription
}

func (e *ConnError) Error() string { return e.Err.Error() }
func (e *ConnError) Unwrap() error { return e.Err }

func protoErr(err error, alert AlertDescription) *ConnError {
	return &ConnError{Err: err, Class: ClassProtocolViolation, Alert: alert}
}

func cryptoErr(err error, alert AlertDescription) *ConnError {
	return &ConnError{Err: err, Class: ClassCryptoFailure, Alert: alert}
}

func usageErr(err error) *ConnError {
	return &ConnError{Err: err, Class: ClassUsageError}
}

func internalErr(err error) *ConnError {
	return &ConnError{Err: err, Class: ClassInternal}
}

var (
	ErrCipherNotImplemented = errors.New("s2n: cipher suite has no AEAD implementation")
	ErrFatalAlert           = errors.New("s2n: peer sent a fatal alert")
	ErrUnexpectedMessage    = errors.New("s2n: handshake message out of order")
	ErrBadRecordMAC         = errors.New("s2n: record authentication failed")
	ErrNoCommonCipherSuite  = errors.New("s2n: no cipher suite in common with peer")
	ErrNoCommonVersion      = errors.New("s2n: no protocol version in common with peer")
	ErrNoApplicationProtocol = errors.New("s2n: no ALPN protocol in common with peer")
	ErrKEMUnsupportedScheme = errors.New("s2n: no KEM scheme in common with peer")
	ErrHandshakeNotComplete = errors.New("s2n: Write called before handshake completion")
	ErrConnectionClosed     = errors.New("s2n: operation on a closed connection")
	ErrBadCertificate       = errors.New("s2n: certificate rejected")
	ErrNoValidKeyShare      = errors.New("s2n: no usable key_share entry in ClientHello")
	ErrTLS13Required        = errors.New("s2n: peer did not offer TLS 1.3")
)

// Blocked reports whether err (or anything it wraps) is the transient
// "no input yet" signal that FeedFrom and ClassifyIOError raise when a
// non-blocking read delivers nothing, rather than a real failure. A
// partial record is not reported this way: Feed keeps its bytes and
// returns None with a nil error.
func Blocked(err error) bool {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Class == ClassBlocked
	}
	return errors.Is(err, errBlockedSentinel)
}

var errBlockedSentinel = errors.New("s2n: blocked on more input")

func blockedErr() error {
	return &ConnError{Err: errBlockedSentinel, Class: ClassBlocked}
}

// ClassifyIOError turns a raw error from a non-blocking read/write into
// the Blocked/real-error distinction Feed's caller needs. A socket set
// O_NONBLOCK returns EAGAIN (EWOULDBLOCK on the platforms where they
// differ) when there's nothing to read yet; that is not a connection
// failure, just "call again once the fd is readable."
func ClassifyIOError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return blockedErr()
	}
	return internalErr(err)
}
