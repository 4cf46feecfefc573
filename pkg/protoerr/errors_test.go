package protoerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"malformed", fmt.Errorf("bad magic: %w", ErrMalformedHeader), KindMalformedHeader},
		{"truncated", fmt.Errorf("body: %w", ErrTruncatedTransfer), KindTruncatedTransfer},
		{"io", fmt.Errorf("write: %w", ErrIOFailure), KindIOFailure},
		{"unsupported", ErrUnsupportedOperation, KindUnsupportedOperation},
		{"path", fmt.Errorf("open a/b: %w", ErrPathFailure), KindPathFailure},
		{"cancelled", fmt.Errorf("read: %w", context.Canceled), KindCancelled},
		{"cancelled wins over io", fmt.Errorf("%w: %w", ErrIOFailure, context.Canceled), KindCancelled},
		{"unknown", errors.New("something else"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "malformed_header", KindMalformedHeader.String())
	assert.Equal(t, "truncated_transfer", KindTruncatedTransfer.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
