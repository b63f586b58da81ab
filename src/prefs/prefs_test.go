package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MissingFileIsSignedOut(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)

	assert.False(t, s.SignedIn())
	assert.Empty(t, s.AccessToken())
}

func TestSaveSession_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession("access-sandbox-123"))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.True(t, reopened.SignedIn())
	assert.Equal(t, "access-sandbox-123", reopened.AccessToken())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession("access-sandbox-123"))
	require.NoError(t, s.Clear())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.False(t, reopened.SignedIn())
	assert.Empty(t, reopened.AccessToken())
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signed_in: [unterminated"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}
