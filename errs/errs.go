package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrAuthentication indicates that the provider refused the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrSessionExpired indicates that the session could not be renewed and has been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrPlayback indicates that the provider declined a playback request.
	ErrPlayback = errors.New("playback declined")
	// ErrNoStream indicates that a playback response carried no usable stream.
	ErrNoStream = errors.New("no stream available")
	// ErrTransport indicates a network or decoding failure talking to the provider.
	ErrTransport = errors.New("transport failure")
)

// Reasons refine a Kind. They are matched with errors.Is as well.
var (
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrOutOfRegion      = errors.New("out of region")
	ErrKidsDenied       = errors.New("not available on kids profile")
	ErrConcurrencyLimit = errors.New("concurrent stream limit reached")
	ErrIPAddress        = errors.New("ip address rejected")
)

// Kind classifies an Error.
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindSessionExpired Kind = "SESSION_EXPIRED"
	KindPlayback       Kind = "PLAYBACK"
	KindNoStream       Kind = "NO_STREAM"
	KindTransport      Kind = "TRANSPORT"
)

var kindSentinels = map[Kind]error{
	KindAuthentication: ErrAuthentication,
	KindSessionExpired: ErrSessionExpired,
	KindPlayback:       ErrPlayback,
	KindNoStream:       ErrNoStream,
	KindTransport:      ErrTransport,
}

// Sentinel returns the package-level error that matches kind.
func (k Kind) Sentinel() error {
	return kindSentinels[k]
}

// Error is the structured error returned by session and playback operations.
//
// Message is user-facing and already localized. Code carries the provider's
// raw error code when there is one.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Reason  error  `json:"-"`
	Err     error  `json:"-"`
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithCode sets the provider error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithReason sets the reason sentinel.
func (e *Error) WithReason(reason error) *Error {
	e.Reason = reason
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel and the reason.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s := e.Kind.Sentinel(); s != nil && target == s {
		return true
	}
	return e.Reason != nil && errors.Is(e.Reason, target)
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	out := struct {
		*alias
		Reason string `json:"reason,omitempty"`
		Error  string `json:"error"`
	}{alias: (*alias)(e), Error: e.Error()}
	if e.Reason != nil {
		out.Reason = e.Reason.Error()
	}
	return json.Marshal(out)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }

// IsSessionExpired reports whether err is a session expiry.
func IsSessionExpired(err error) bool { return errors.Is(err, ErrSessionExpired) }

// IsPlayback reports whether err is a declined playback.
func IsPlayback(err error) bool { return errors.Is(err, ErrPlayback) }

// IsNoStream reports whether err means no stream was offered.
func IsNoStream(err error) bool { return errors.Is(err, ErrNoStream) }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// Transport wraps a network level failure for the given request.
func Transport(op string, cause error) *Error {
	return Wrap(KindTransport, fmt.Sprintf("%s failed", op), cause)
}
