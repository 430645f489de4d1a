package test

import (
	"os"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// guardConfig holds the limits of a guarded test.
type guardConfig struct {
	deadline    time.Duration
	leakTimeout time.Duration
}

// GuardOption changes the limits of Guard.
type GuardOption func(*guardConfig)

// WithDeadline overrides how long a guarded test may run.
func WithDeadline(d time.Duration) GuardOption {
	return func(c *guardConfig) {
		c.deadline = d
	}
}

// WithLeakTimeout overrides how long Guard waits for background goroutines
// such as webhook retries and order watchers to exit.
func WithLeakTimeout(d time.Duration) GuardOption {
	return func(c *guardConfig) {
		c.leakTimeout = d
	}
}

// Guard bounds the run time of a test that drives the order manager or the
// notifier. A stuck test dumps all goroutines and panics. The returned
// function stops the deadline and fails the test on leaked goroutines.
func Guard(t *testing.T, opts ...GuardOption) func() {
	t.Helper()

	cfg := guardConfig{
		deadline:    Timeout,
		leakTimeout: Timeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	timer := time.AfterFunc(cfg.deadline, func() {
		_ = pprof.Lookup("goroutine").WriteTo(os.Stderr, 1)
		panic(t.Name() + ": " + ErrTimeout.Error())
	})

	checkLeaks := leaktest.CheckTimeout(t, cfg.leakTimeout)

	return func() {
		timer.Stop()
		checkLeaks()
	}
}
