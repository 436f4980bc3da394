package encryption

import (
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasupel-server/internal/kerrors"
)

func TestLoadGeneratesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsa.pem")

	svc, err := Load(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svc.PublicKeyPEM(), "-----BEGIN PUBLIC KEY-----"))

	// A second load picks up the same key rather than rotating it.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, svc.PublicKeyPEM(), again.PublicKeyPEM())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := Load(filepath.Join(t.TempDir(), "rsa.pem"))
	require.NoError(t, err)

	body := []byte(`{"username":"alice","password":"hunter2hunter2"}`)
	sealed, err := svc.Encrypt(body)
	require.NoError(t, err)

	opened, err := svc.DecryptRequest(sealed)
	require.NoError(t, err)
	assert.Equal(t, body, opened)
}

func TestDecryptRequestRejectsGarbage(t *testing.T) {
	svc, err := Load(filepath.Join(t.TempDir(), "rsa.pem"))
	require.NoError(t, err)

	_, err = svc.DecryptRequest([]byte("not base64!"))
	assert.True(t, kerrors.Is(err, kerrors.BadEncryption))

	// Valid base64 that was never encrypted with our key.
	junk := base64.StdEncoding.EncodeToString(make([]byte, 256))
	_, err = svc.DecryptRequest([]byte(junk))
	assert.True(t, kerrors.Is(err, kerrors.BadEncryption))
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	a, err := Load(filepath.Join(dir, "a.pem"))
	require.NoError(t, err)
	b, err := Load(filepath.Join(dir, "b.pem"))
	require.NoError(t, err)

	sealed, err := a.Encrypt([]byte("secret"))
	require.NoError(t, err)
	_, err = b.DecryptRequest(sealed)
	assert.True(t, kerrors.Is(err, kerrors.BadEncryption))
}
