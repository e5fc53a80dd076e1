package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	KindPermissionDenied       ErrorKind = "permission_denied"
	KindUnsupportedEnvironment ErrorKind = "unsupported_environment"
	KindAuthRequired           ErrorKind = "authentication_required"
	KindAuthExpired            ErrorKind = "authentication_expired"
	KindCredentialFetchFailed  ErrorKind = "credential_fetch_failed"
	KindNegotiationFailed      ErrorKind = "negotiation_failed"
	KindNoLocalAudio           ErrorKind = "no_local_audio"
	KindTransportDisconnected  ErrorKind = "transport_disconnected"
	KindProtocolError          ErrorKind = "protocol_error"
	KindNotConnected           ErrorKind = "not_connected"
	KindAlreadyConnected       ErrorKind = "already_connected"
	KindSuperseded             ErrorKind = "superseded"
	KindClosed                 ErrorKind = "closed"
)

// Error is a classified session error. Two Errors match under errors.Is when
// their kinds are equal, so the sentinels below can be used as targets.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an Error of the given kind.
func Errorf(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

var (
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrUnsupportedEnvironment = &Error{Kind: KindUnsupportedEnvironment}
	ErrAuthRequired           = &Error{Kind: KindAuthRequired}
	ErrAuthExpired            = &Error{Kind: KindAuthExpired}
	ErrCredentialFetchFailed  = &Error{Kind: KindCredentialFetchFailed}
	ErrNegotiationFailed      = &Error{Kind: KindNegotiationFailed}
	ErrNoLocalAudio           = &Error{Kind: KindNoLocalAudio}
	ErrTransportDisconnected  = &Error{Kind: KindTransportDisconnected}
	ErrProtocol               = &Error{Kind: KindProtocolError}
	ErrNotConnected           = &Error{Kind: KindNotConnected}
	ErrAlreadyConnected       = &Error{Kind: KindAlreadyConnected}
	ErrSuperseded             = &Error{Kind: KindSuperseded}
	ErrClosed                 = &Error{Kind: KindClosed}
)

// KindOf returns the kind of err, or "" if err is not a classified Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
