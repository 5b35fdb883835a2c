package secure

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *XChaCha {
	t.Helper()
	hexKey, err := GenerateKey()
	require.NoError(t, err)
	key, err := ParseKey(hexKey)
	require.NoError(t, err)
	gw, err := NewXChaCha(key)
	require.NoError(t, err)
	return gw
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	gw := newTestGateway(t)

	for _, size := range []int{0, 1, 20, 576, 1500, 9000} {
		plain := bytes.Repeat([]byte{byte(size)}, size)

		sealed, err := gw.Encrypt(plain)
		require.NoError(t, err)
		assert.Len(t, sealed, size+Overhead)

		opened, err := gw.Decrypt(sealed)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plain, opened), "size %d", size)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	gw := newTestGateway(t)
	a, err := gw.Encrypt([]byte("same packet"))
	require.NoError(t, err)
	b, err := gw.Encrypt([]byte("same packet"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTampering(t *testing.T) {
	gw := newTestGateway(t)
	sealed, err := gw.Encrypt([]byte("IPv4 packet bytes"))
	require.NoError(t, err)

	for _, idx := range []int{0, 23, 24, len(sealed) - 1} {
		tampered := append([]byte(nil), sealed...)
		tampered[idx] ^= 0x01

		plain, err := gw.Decrypt(tampered)
		assert.Nil(t, plain, "byte %d", idx)

		var de *DecryptionError
		assert.True(t, errors.As(err, &de), "byte %d: got %v", idx, err)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	sealed, err := newTestGateway(t).Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestGateway(t).Decrypt(sealed)
	var de *DecryptionError
	assert.True(t, errors.As(err, &de))
}

func TestDecryptRejectsShortInput(t *testing.T) {
	gw := newTestGateway(t)
	for _, n := range []int{0, 3, Overhead - 1} {
		_, err := gw.Decrypt(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortCiphertext, "len %d", n)
	}
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey("correct horse battery staple")
	require.NoError(t, err)
	b, err := DeriveKey("correct horse battery staple")
	require.NoError(t, err)
	c, err := DeriveKey("another passphrase")
	require.NoError(t, err)

	assert.Len(t, a, KeySize)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = DeriveKey("")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestDerivedKeysInteroperate(t *testing.T) {
	key, err := DeriveKey("shared")
	require.NoError(t, err)
	server, err := NewXChaCha(key)
	require.NoError(t, err)
	client, err := NewXChaCha(key)
	require.NoError(t, err)

	sealed, err := client.Encrypt([]byte("ping"))
	require.NoError(t, err)
	opened, err := server.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), opened)
}

func TestParseKey(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f", false},
		{"valid with whitespace", " 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f\n", false},
		{"not hex", "zz", true},
		{"too short", "0001", true},
		{"too long", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParseKey(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestNewXChaChaRejectsBadKey(t *testing.T) {
	_, err := NewXChaCha([]byte("short"))
	assert.Error(t, err)
}
