package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertLogged checks that the captured log output contains msg. It keeps
// tests independent of the handler's exact attribute formatting.
func AssertLogged(t *testing.T, logs *SafeBuffer, msg string) {
	t.Helper()

	require.True(t,
		strings.Contains(logs.String(), msg),
		"expected log message %q was not found in logs:\n%s", msg, logs.String(),
	)
}

// AssertNotLogged is the inverse of AssertLogged.
func AssertNotLogged(t *testing.T, logs *SafeBuffer, msg string) {
	t.Helper()

	require.False(t,
		strings.Contains(logs.String(), msg),
		"unexpected log message %q found in logs", msg,
	)
}
