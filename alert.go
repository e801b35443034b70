package s2n

import "errors"

// https://datatracker.ietf.org/doc/html/rfc8446#section-6
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = iota + 1
	AlertLevelFatal
)

func (a AlertLevel) String() string {
	switch a {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelFatal:
		return "fatal"
	default:
		return "invalid_level"
	}
}

// https://datatracker.ietf.org/doc/html/rfc8446#section-6
type AlertDescription uint8

const (
	AlertDescriptionCloseNotify                  AlertDescription = 0
	AlertDescriptionUnexpectedMessage             AlertDescription = 10
	AlertDescriptionBadRecordMac                  AlertDescription = 20
	AlertDescriptionRecordOverflow                AlertDescription = 22
	AlertDescriptionHandshakeFailure              AlertDescription = 40
	AlertDescriptionBadCertificate                AlertDescription = 42
	AlertDescriptionUnsupportedCertificate        AlertDescription = 43
	AlertDescriptionCertificateRevoked            AlertDescription = 44
	AlertDescriptionCertificateExpired            AlertDescription = 45
	AlertDescriptionCertificateUnknown            AlertDescription = 46
	AlertDescriptionIllegalParameter               AlertDescription = 47
	AlertDescriptionUnknownCa                      AlertDescription = 48
	AlertDescriptionAccessDenied                   AlertDescription = 49
	AlertDescriptionDecodeError                    AlertDescription = 50
	AlertDescriptionDecryptError                   AlertDescription = 51
	AlertDescriptionProtocolVersion                AlertDescription = 70
	AlertDescriptionInsufficientSecurity           AlertDescription = 71
	AlertDescriptionInternalError                  AlertDescription = 80
	AlertDescriptionInappropriateFallback          AlertDescription = 86
	AlertDescriptionUserCanceled                   AlertDescription = 90
	AlertDescriptionMissingExtension                AlertDescription = 109
	AlertDescriptionUnsupportedExtension            AlertDescription = 110
	AlertDescriptionUnrecognizedName                 AlertDescription = 112
	AlertDescriptionBadCertificateStatusResponse    AlertDescription = 113
	AlertDescriptionUnknownPskIdentity              AlertDescription = 115
	AlertDescriptionCertificateRequired             AlertDescription = 116
	AlertDescriptionNoApplicationProtocol           AlertDescription = 120
)

func (a AlertDescription) String() string {
	switch a {
	case AlertDescriptionCloseNotify:
		return "close_notify"
	case AlertDescriptionUnexpectedMessage:
		return "unexpected_message"
	case AlertDescriptionBadRecordMac:
		return "bad_record_mac"
	case AlertDescriptionRecordOverflow:
		return "record_overflow"
	case AlertDescriptionHandshakeFailure:
		return "handshake_failure"
	case AlertDescriptionBadCertificate:
		return "bad_certificate"
	case AlertDescriptionUnsupportedCertificate:
		return "unsupported_certificate"
	case AlertDescriptionCertificateRevoked:
		return "certificate_revoked"
	case AlertDescriptionCertificateExpired:
		return "certificate_expired"
	case AlertDescriptionCertificateUnknown:
		return "certificate_unknown"
	case AlertDescriptionIllegalParameter:
		return "illegal_parameter"
	case AlertDescriptionUnknownCa:
		return "unknown_ca"
	case AlertDescriptionAccessDenied:
		return "access_denied"
	case AlertDescriptionDecodeError:
		return "decode_error"
	case AlertDescriptionDecryptError:
		return "decrypt_error"
	case AlertDescriptionProtocolVersion:
		return "protocol_version"
	case AlertDescriptionInsufficientSecurity:
		return "insufficient_security"
	case AlertDescriptionInternalError:
		return "internal_error"
	case AlertDescriptionInappropriateFallback:
		return "inappropriate_fallback"
	case AlertDescriptionUserCanceled:
		return "user_canceled"
	case AlertDescriptionMissingExtension:
		return "missing_extension"
	case AlertDescriptionUnsupportedExtension:
		return "unsupported_extension"
	case AlertDescriptionUnrecognizedName:
		return "unrecognized_name"
	case AlertDescriptionBadCertificateStatusResponse:
		return "bad_certificate_status_response"
	case AlertDescriptionUnknownPskIdentity:
		return "unknown_psk_identity"
	case AlertDescriptionCertificateRequired:
		return "certificate_required"
	case AlertDescriptionNoApplicationProtocol:
		return "no_application_protocol"
	default:
		return "invalid_description"
	}
}

var ErrMalformedAlert = errors.New("s2n: alert record shorter than 2 bytes")

// AlertCallback is the hook type Config.SetAlertCallback stores.
// Connection does not invoke it; inbound alerts are handled by the
// level-driven close semantics below alone.
type AlertCallback func(level AlertLevel, description AlertDescription)

// Alert is the two-byte Alert protocol message body (RFC 8446 §6). It is
// plain data: the state machine decides what an Alert means for a given
// Connection, this type only knows how to move between wire bytes and
// {level, description}.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

func ParseAlert(in []byte) (Alert, error) {
	if len(in) < 2 {
		return Alert{}, ErrMalformedAlert
	}
	return Alert{Level: AlertLevel(in[0]), Description: AlertDescription(in[1])}, nil
}

func (a Alert) Encode() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// IsClosure reports the RFC 8446 §6.1 close_notify special case: the
// sender won't transmit anything more on this connection, and anything
// received after it arrives must be ignored.
func (a Alert) IsClosure() bool {
	return a.Description == AlertDescriptionCloseNotify
}

// IsFatal reports whether receipt or transmission of this alert requires
// immediately closing the connection, per RFC 8446 §6.2.
func (a Alert) IsFatal() bool {
	return a.Level == AlertLevelFatal
}
