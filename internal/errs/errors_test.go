package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message",
			err:  New(ErrKindInvalidInput, "empty path"),
			want: "[invalid_input] empty path",
		},
		{
			name: "with cause",
			err:  Wrap(ErrKindConnectionFailed, "ping failed", errors.New("dial tcp: refused")),
			want: "[connection_failed] ping failed: dial tcp: refused",
		},
		{
			name: "with path",
			err:  Wrap(ErrKindNotFound, "failed to stat object", errors.New("NoSuchKey")).WithPath("docs/a.txt"),
			want: `[not_found] failed to stat object "docs/a.txt": NoSuchKey`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("listing docs: %w", Wrap(ErrKindPermissionDenied, "failed to list objects", nil))

	assert.True(t, IsPermissionDenied(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(New(ErrKindNotFound, "gone")))
	assert.True(t, IsTimeout(Wrap(ErrKindTimeout, "slow", context.DeadlineExceeded)))
	assert.True(t, IsBackendFailed(New(ErrKindBackendFailed, "boom")))
	assert.True(t, IsInvalidInput(New(ErrKindInvalidInput, "bad")))
	assert.True(t, IsConnectionFailed(New(ErrKindConnectionFailed, "down")))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	err := Wrap(ErrKindTimeout, "list timed out", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
}
