package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
)

// Kind can be one of:
//   - permission_denied
//   - device_capture_failure
//   - network_timeout
//   - network_unreachable
//   - server_rejected
//   - server_error
//   - unsupported_format
//   - file_too_large
//   - no_face_detected
//   - no_media_to_submit
//   - unknown
type Kind string

const (
	KindPermissionDenied     Kind = "permission_denied"
	KindDeviceCaptureFailure Kind = "device_capture_failure"
	KindNetworkTimeout       Kind = "network_timeout"
	KindNetworkUnreachable   Kind = "network_unreachable"
	KindServerRejected       Kind = "server_rejected"
	KindServerError          Kind = "server_error"
	KindUnsupportedFormat    Kind = "unsupported_format"
	KindFileTooLarge         Kind = "file_too_large"
	KindNoFaceDetected       Kind = "no_face_detected"
	KindNoMediaToSubmit      Kind = "no_media_to_submit"
	KindUnknown              Kind = "unknown"
)

func (k Kind) String() string {
	return string(k)
}

// Error carries a user facing message next to the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Kind
	}
	return KindUnknown
}

// Message returns the user facing message for err, falling back to fallback
// when err carries none.
func Message(err error, fallback string) string {
	var fErr *Error
	if errors.As(err, &fErr) && fErr.Message != "" {
		return fErr.Message
	}
	return fallback
}

// ClassifyTransport maps an error returned by http.Client.Do to a network kind.
func ClassifyTransport(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetworkTimeout
	}

	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return KindNetworkUnreachable
	}
	return KindUnknown
}

// KindForStatus maps a non-2xx response status to a kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return KindFileTooLarge
	case status == http.StatusUnprocessableEntity:
		return KindUnsupportedFormat
	case status >= 400 && status < 500:
		return KindServerRejected
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// HTTPStatus is the status the station API answers with for a failure kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNoMediaToSubmit, KindServerRejected, KindUnsupportedFormat, KindNoFaceDetected:
		return http.StatusUnprocessableEntity
	case KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNetworkTimeout:
		return http.StatusGatewayTimeout
	case KindNetworkUnreachable, KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
