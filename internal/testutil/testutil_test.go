package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitFor(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	go func() {
		for range 3 {
			n.Add(1)
		}
	}()
	WaitFor(t, func() bool { return n.Load() == 3 }, ShortTestTimeout, "counter")
}

func TestWaitForChannel(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, WaitForChannel(t, ch, ShortTestTimeout, "value"))
	NoSignal(t, ch, 10*time.Millisecond, "channel should be empty")
}
