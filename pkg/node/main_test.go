package node_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that no test in this package leaks a goroutine (the
// reactor's scheduleWakeup timers and readLoop goroutines live in
// internal/transport, not here, but Fetch's subscriber channels and the
// manual clock's scheduling are exercised directly by this package, so
// a leak here would point at a real bug in the service's bookkeeping).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
