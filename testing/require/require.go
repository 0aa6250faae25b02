// Package require mirrors the corpus's own testing/require convention:
// thin, t.Helper()-marked wrappers around testify that stop the test
// immediately on failure, as opposed to testing/assert's continue-on-failure
// twin.
package require

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// Equal asserts that want and got are deeply equal, failing the test immediately otherwise.
func Equal(t testing.TB, want, got interface{}, msg ...interface{}) {
	t.Helper()
	require.Equal(t, want, got, msg...)
}

// NotEqual asserts that want and got are not deeply equal.
func NotEqual(t testing.TB, want, got interface{}, msg ...interface{}) {
	t.Helper()
	require.NotEqual(t, want, got, msg...)
}

// True asserts that ok is true.
func True(t testing.TB, ok bool, msg ...interface{}) {
	t.Helper()
	require.True(t, ok, msg...)
}

// False asserts that ok is false.
func False(t testing.TB, ok bool, msg ...interface{}) {
	t.Helper()
	require.False(t, ok, msg...)
}

// NoError asserts that err is nil.
func NoError(t testing.TB, err error, msg ...interface{}) {
	t.Helper()
	require.NoError(t, err, msg...)
}

// Error asserts that err is non-nil.
func Error(t testing.TB, err error, msg ...interface{}) {
	t.Helper()
	require.Error(t, err, msg...)
}

// ErrorContains asserts that err is non-nil and its message contains want.
func ErrorContains(t testing.TB, want string, err error, msg ...interface{}) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error containing %q, got %q", want, err.Error())
	}
}

// ErrorIs asserts that errors.Is(err, target) holds.
func ErrorIs(t testing.TB, err, target error, msg ...interface{}) {
	t.Helper()
	require.ErrorIs(t, err, target, msg...)
}

// NotNil asserts that obj is not nil.
func NotNil(t testing.TB, obj interface{}, msg ...interface{}) {
	t.Helper()
	require.NotNil(t, obj, msg...)
}

// Nil asserts that obj is nil.
func Nil(t testing.TB, obj interface{}, msg ...interface{}) {
	t.Helper()
	require.Nil(t, obj, msg...)
}

// Len asserts that obj has the given length.
func Len(t testing.TB, obj interface{}, length int, msg ...interface{}) {
	t.Helper()
	require.Len(t, obj, length, msg...)
}

// LogsContain asserts that one of the hook's captured entries contains msg.
func LogsContain(t testing.TB, hook *test.Hook, msg string) {
	t.Helper()
	logsContain(t, hook, msg, true)
}

// LogsDoNotContain asserts that none of the hook's captured entries contain msg.
func LogsDoNotContain(t testing.TB, hook *test.Hook, msg string) {
	t.Helper()
	logsContain(t, hook, msg, false)
}

func logsContain(t testing.TB, hook *test.Hook, want string, shouldContain bool) {
	t.Helper()
	var found bool
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, want) {
			found = true
			break
		}
		for _, v := range entry.Data {
			if s, ok := v.(string); ok && strings.Contains(s, want) {
				found = true
				break
			}
		}
	}
	if found != shouldContain {
		if shouldContain {
			t.Fatalf("could not find log entry containing %q", want)
		} else {
			t.Fatalf("found unexpected log entry containing %q", want)
		}
	}
}
