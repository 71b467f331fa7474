// Package testutil provides shared helpers for hearken tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestTimeout bounds waits on goroutines doing real work.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete at once.
	ShortTestTimeout = time.Second

	// PollInterval is how often WaitFor re-checks its condition.
	PollInterval = 5 * time.Millisecond
)

// WaitFor polls cond until it holds or fails the test after timeout.
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	require.Eventually(t, cond, timeout, PollInterval, msg)
}

// WaitForChannel waits for a signal on ch or fails after timeout.
func WaitForChannel[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}

// NoSignal fails the test when ch delivers within wait.
func NoSignal[T any](t *testing.T, ch <-chan T, wait time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.FailNow(t, msg)
	case <-time.After(wait):
	}
}
