// Package protoerr holds the failure taxonomy shared by the message and
// transfer channels. Every error surfaced by the core wraps exactly one of
// the sentinels below, so callers can discriminate with errors.Is or KindOf.
package protoerr

import (
	"context"
	"errors"
)

var (
	ErrMalformedHeader      = errors.New("malformed header")
	ErrTruncatedTransfer    = errors.New("truncated transfer")
	ErrIOFailure            = errors.New("i/o failure")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrPathFailure          = errors.New("path failure")
)

// Kind is the discriminated form of an error returned by the core.
type Kind int

const (
	KindNone Kind = iota
	KindMalformedHeader
	KindTruncatedTransfer
	KindIOFailure
	KindUnsupportedOperation
	KindPathFailure
	KindCancelled
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformedHeader:
		return "malformed_header"
	case KindTruncatedTransfer:
		return "truncated_transfer"
	case KindIOFailure:
		return "io_failure"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindPathFailure:
		return "path_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Cancellation is checked first because a cancelled
// handler usually also reports the I/O error caused by closing its socket.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrMalformedHeader):
		return KindMalformedHeader
	case errors.Is(err, ErrTruncatedTransfer):
		return KindTruncatedTransfer
	case errors.Is(err, ErrUnsupportedOperation):
		return KindUnsupportedOperation
	case errors.Is(err, ErrPathFailure):
		return KindPathFailure
	case errors.Is(err, ErrIOFailure):
		return KindIOFailure
	default:
		return KindUnknown
	}
}
