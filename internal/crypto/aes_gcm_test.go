package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	a, err := s.Seal("p@ssw0rd")
	require.NoError(t, err)
	b, err := s.Seal("p@ssw0rd")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per call")

	plain, err := s.Open(a)
	require.NoError(t, err)
	assert.Equal(t, "p@ssw0rd", plain)
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	other, err := NewSealer(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = s.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewSealerKeySize(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
