// Package assert mirrors the corpus's own testing/assert convention: thin,
// t.Helper()-marked wrappers around testify that report a failure and let
// the test continue, as opposed to testing/require's fail-fast twin.
package assert

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

// Equal asserts that want and got are deeply equal.
func Equal(t testing.TB, want, got interface{}, msg ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got, msg...)
}

// NotEqual asserts that want and got are not deeply equal.
func NotEqual(t testing.TB, want, got interface{}, msg ...interface{}) {
	t.Helper()
	assert.NotEqual(t, want, got, msg...)
}

// True asserts that ok is true.
func True(t testing.TB, ok bool, msg ...interface{}) {
	t.Helper()
	assert.True(t, ok, msg...)
}

// False asserts that ok is false.
func False(t testing.TB, ok bool, msg ...interface{}) {
	t.Helper()
	assert.False(t, ok, msg...)
}

// NoError asserts that err is nil.
func NoError(t testing.TB, err error, msg ...interface{}) {
	t.Helper()
	assert.NoError(t, err, msg...)
}

// ErrorContains asserts that err is non-nil and its message contains want.
func ErrorContains(t testing.TB, want string, err error, msg ...interface{}) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error containing %q, got nil", want)
		return
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}

// NotNil asserts that obj is not nil.
func NotNil(t testing.TB, obj interface{}, msg ...interface{}) {
	t.Helper()
	assert.NotNil(t, obj, msg...)
}

// Nil asserts that obj is nil.
func Nil(t testing.TB, obj interface{}, msg ...interface{}) {
	t.Helper()
	assert.Nil(t, obj, msg...)
}

// Len asserts that obj has the given length.
func Len(t testing.TB, obj interface{}, length int, msg ...interface{}) {
	t.Helper()
	assert.Len(t, obj, length, msg...)
}

// Empty asserts that obj is the zero value for its type.
func Empty(t testing.TB, obj interface{}, msg ...interface{}) {
	t.Helper()
	assert.Empty(t, obj, msg...)
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
			t.Errorf("could not find log entry containing %q", want)
		} else {
			t.Errorf("found unexpected log entry containing %q", want)
		}
	}
}
