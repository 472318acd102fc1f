// Package apperr classifies failures so the HTTP boundary can log them by kind
// while still answering clients with a fixed message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindUpstreamUnavailable
	KindNotFound
	KindInconsistent
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindNotFound:
		return "not_found"
	case KindInconsistent:
		return "inconsistent"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return E(KindUpstreamUnavailable, op, err)
}

func Invalid(op, msg string) error {
	return E(KindInvalid, op, errors.New(msg))
}

func Inconsistent(op string, err error, format string, args ...any) error {
	return E(KindInconsistent, op, fmt.Errorf(format+": %w", append(args, err)...))
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicError is returned by handlers: Message goes to the client, Cause to the log.
type PublicError struct {
	Status  int
	Message string
	Cause   error
}

func (e *PublicError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *PublicError) Unwrap() error { return e.Cause }

func Public(status int, message string, cause error) error {
	return &PublicError{Status: status, Message: message, Cause: cause}
}
