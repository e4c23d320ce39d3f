package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitForChannel(t *testing.T) {
	t.Parallel()

	ch := make(chan struct{})
	close(ch)
	WaitForChannel(t, ch, ShortTestTimeout, "closed channel must not block")
}

func TestWaitForError(t *testing.T) {
	t.Parallel()

	want := errors.New("listen failed")
	ch := make(chan error, 1)
	ch <- want
	assert.Equal(t, want, WaitForError(t, ch, ShortTestTimeout, "buffered error must be returned"))

	ch <- nil
	assert.NoError(t, WaitForError(t, ch, ShortTestTimeout, "nil must be returned"))
}
