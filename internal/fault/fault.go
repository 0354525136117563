// Package fault classifies payment-core errors so callers can pick a retry
// policy without string matching. The kinds map one-to-one onto the policies
// the daemon enforces: precondition and on-chain failures surface immediately,
// transport and timeout failures during channel setup park the channel in the
// failed state, and timeouts during a payment abort only that session.
package fault

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindTransport
	KindTimeout
	KindProtocol
	KindOnChain
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindOnChain:
		return "onchain"
	default:
		return "unknown"
	}
}

// Error carries the failing operation's name alongside the classified cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String() + " error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Already-classified errors keep their
// original kind so the first classification wins.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return &Error{Kind: fe.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsTimeout(err error) bool      { return KindOf(err) == KindTimeout }
func IsPrecondition(err error) bool { return KindOf(err) == KindPrecondition }
func IsTransport(err error) bool    { return KindOf(err) == KindTransport }
