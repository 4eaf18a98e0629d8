package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigningSecret_WhenConfigured_ReturnsItWithoutTouchingDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	key, err := SigningSecret("configured-secret", dir)
	require.NoError(t, err)
	assert.Equal(t, "configured-secret", key)

	_, err = os.Stat(filepath.Join(dir, signingKeyFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSigningSecret_WhenNoFile_GeneratesAndPersists(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")

	key, err := SigningSecret("", dir)
	require.NoError(t, err)
	assert.Len(t, key, 64, "key should be 64 hex chars (32 bytes)")
	assertHexString(t, key)

	info, err := os.Stat(filepath.Join(dir, signingKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSigningSecret_CalledTwice_ReturnsSameKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := SigningSecret("", dir)
	require.NoError(t, err)
	second, err := SigningSecret("", dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSigningSecret_WhenFileBlank_GeneratesNew(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, signingKeyFile), []byte("\n"), 0600))

	key, err := SigningSecret("", dir)
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestRotateSigningKey_InvalidatesOldTokens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	original, err := SigningSecret("", dir)
	require.NoError(t, err)
	token, err := MintToken(original, "", 7, 0)
	require.NoError(t, err)

	rotated, err := RotateSigningKey(dir)
	require.NoError(t, err)
	assert.NotEqual(t, original, rotated)

	_, err = NewVerifier(rotated, "").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func assertHexString(t *testing.T, s string) {
	t.Helper()
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("non-hex character %q in string %q", c, s)
			return
		}
	}
}
