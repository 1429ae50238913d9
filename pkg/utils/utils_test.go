package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrDefault(t *testing.T) {
	t.Setenv("LM_TEST_INT", "42")
	t.Setenv("LM_TEST_BAD_INT", "forty")
	t.Setenv("LM_TEST_BOOL", "true")
	t.Setenv("LM_TEST_DUR", "1500ms")
	t.Setenv("LM_TEST_SECS", "7")

	assert.Equal(t, 42, GetIntOrDefault("LM_TEST_INT", 1))
	assert.Equal(t, 1, GetIntOrDefault("LM_TEST_BAD_INT", 1))
	assert.Equal(t, 3, GetIntOrDefault("LM_TEST_MISSING", 3))
	assert.True(t, GetBoolOrDefault("LM_TEST_BOOL", false))
	assert.Equal(t, 1500*time.Millisecond, GetDurationOrDefault("LM_TEST_DUR", time.Second))
	assert.Equal(t, 7*time.Second, GetDurationOrDefault("LM_TEST_SECS", time.Second))
	assert.Equal(t, "x", GetStringOrDefault("LM_TEST_MISSING", "x"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Error(t, LoadEnv("test"), "no env files present")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("LM_FROM_FILE=yes\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LM_FROM_FILE") })
	require.NoError(t, LoadEnv("test"))
	assert.Equal(t, "yes", GetEnv("LM_FROM_FILE"))
}

func TestSplitURLs(t *testing.T) {
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, SplitURLs(" stun:a:1, ,stun:b:2 "))
	assert.Nil(t, SplitURLs(""))
}

func TestIDs(t *testing.T) {
	a, b := NewIdentity(), NewIdentity()
	assert.NotEqual(t, a, b)
	assert.Len(t, NewShortID(12), 12)
}
