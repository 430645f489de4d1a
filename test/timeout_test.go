package test

import (
	"testing"
	"time"
)

// TestGuardWaitsForGoroutines checks a goroutine that exits late is not
// reported as a leak.
func TestGuardWaitsForGoroutines(t *testing.T) {
	defer Guard(
		t, WithDeadline(2*time.Second), WithLeakTimeout(time.Second),
	)()

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
	}()
	<-done
}
