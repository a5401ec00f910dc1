// Package voxerr defines the relay's error-handling design: a typed Go
// error wrapping a Kind enum, checked with errors.Is/errors.As — the
// idiomatic successor to grumble's bare errors.New usage throughout
// cmd/grumble/client.go. Per-kind, per-direction occurrence counts are
// tracked with expvar, since grumble carries no metrics library at all:
// expvar is the stdlib's own answer to that gap, not a fallback chosen in
// place of one.
package voxerr

import (
	"expvar"
	"fmt"
)

// Kind enumerates the relay's abstract error categories.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindTLS
	KindProtocolDecode
	KindUnexpectedMessage
	KindCryptDecrypt
	KindCryptSetupMissing
	KindTimeout
	KindNoPing
	KindQueueFull
	KindUnknownChannel
	KindUnknownClient
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindTLS:
		return "Tls"
	case KindProtocolDecode:
		return "ProtocolDecode"
	case KindUnexpectedMessage:
		return "UnexpectedMessage"
	case KindCryptDecrypt:
		return "CryptDecrypt"
	case KindCryptSetupMissing:
		return "CryptSetupMissing"
	case KindTimeout:
		return "Timeout"
	case KindNoPing:
		return "NoPing"
	case KindQueueFull:
		return "QueueFull"
	case KindUnknownChannel:
		return "UnknownChannel"
	case KindUnknownClient:
		return "UnknownClient"
	case KindPermissionDenied:
		return "PermissionDenied"
	default:
		return "Unknown"
	}
}

// Error makes a bare Kind usable as the target of errors.Is.
func (k Kind) Error() string { return k.String() }

// Error is a Kind-tagged error, suitable for errors.Is comparison
// against a bare Kind value and errors.As extraction of the full Error.
type Error struct {
	Kind    Kind
	Op      string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("voxerr: %s: %s: %v", e.Op, e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("voxerr: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, SomeKind) by comparing against a bare Kind
// value, so callers can write `errors.Is(err, voxerr.KindTimeout)`
// without constructing an *Error.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// New wraps err (which may be nil) under op and kind, incrementing the
// matching counter. direction is "inbound" or "outbound".
func New(op string, kind Kind, direction string, err error) *Error {
	m := inbound
	if direction == "outbound" {
		m = outbound
	}
	m.Add(kind.String(), 1)
	return &Error{Kind: kind, Op: op, Wrapped: err}
}

var (
	inbound  = expvar.NewMap("voxrelay_errors_inbound")
	outbound = expvar.NewMap("voxrelay_errors_outbound")
)
