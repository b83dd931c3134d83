package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv is set by internal/testing/guard so binaries linked into test
// packages never dial Postgres or Redis.
const TestModeEnv = "LEDGER_TEST_MODE"

var testMode atomic.Pointer[bool]

func readTestMode() *bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	on = err == nil && on
	return &on
}

// InTestMode reports whether the binaries should skip runtime side effects.
// The environment is read on first use and cached.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	testMode.CompareAndSwap(nil, readTestMode())
	return *testMode.Load()
}

// RefreshTestMode re-reads the environment, for tests that toggle it.
func RefreshTestMode() {
	testMode.Store(readTestMode())
}
