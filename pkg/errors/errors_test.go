package errors

import (
	stderr "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("not found")
	cause := stderr.New("no such row")

	wrapped := sentinel.Wrap(cause)
	require.NotSame(t, sentinel, wrapped)
	assert.Nil(t, sentinel.Unwrap(), "wrapping must not mutate the sentinel")

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))
	assert.Equal(t, "not found: no such row", wrapped.Error())

	rewrapped := wrapped.Wrap(stderr.New("other"))
	assert.True(t, Is(rewrapped, sentinel))

	annotated := fmt.Errorf("find %q: %w", "f1", wrapped)
	assert.True(t, Is(annotated, sentinel))
	assert.False(t, Is(annotated, New("not found")))

	var target *Error
	require.True(t, As(annotated, &target))
	assert.True(t, target.Is(sentinel))
}
