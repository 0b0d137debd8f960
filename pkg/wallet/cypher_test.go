package wallet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIterations = 1 << 4

func TestEncryptDecrypt(t *testing.T) {
	plaintext := []byte("super secret message")
	key, salt, err := DeriveKey([]byte("supersecurekey"), nil, testIterations)
	require.NoError(t, err)
	require.Len(t, salt, SaltLength)

	cyphertext, err := Encrypt(EncryptOpts{PlainText: plaintext, Key: key})
	require.NoError(t, err)

	sameKey, _, err := DeriveKey([]byte("supersecurekey"), salt, testIterations)
	require.NoError(t, err)
	revealedtext, err := Decrypt(DecryptOpts{CypherText: cyphertext, Key: sameKey})
	require.NoError(t, err)
	assert.Equal(t, plaintext, revealedtext)

	wrongKey, _, err := DeriveKey([]byte("wrongkey"), salt, testIterations)
	require.NoError(t, err)
	_, err = Decrypt(DecryptOpts{CypherText: cyphertext, Key: wrongKey})
	assert.Equal(t, ErrAuthenticationFailed, err)
}

func TestFailingEncrypt(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeyLength)

	tests := []struct {
		opts EncryptOpts
		err  error
	}{
		{
			opts: EncryptOpts{PlainText: nil, Key: key},
			err:  ErrNullPlainText,
		},
		{
			opts: EncryptOpts{PlainText: []byte("super secret message"), Key: key[:16]},
			err:  ErrInvalidKey,
		},
	}
	for _, tt := range tests {
		_, err := Encrypt(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestFailingDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeyLength)

	tests := []struct {
		opts DecryptOpts
		err  error
	}{
		{
			opts: DecryptOpts{CypherText: nil, Key: key},
			err:  ErrNullCypherText,
		},
		{
			opts: DecryptOpts{CypherText: []byte("short"), Key: key},
			err:  ErrInvalidCypherText,
		},
		{
			opts: DecryptOpts{CypherText: bytes.Repeat([]byte{2}, 64), Key: nil},
			err:  ErrInvalidKey,
		},
		{
			opts: DecryptOpts{CypherText: bytes.Repeat([]byte{2}, 64), Key: key},
			err:  ErrAuthenticationFailed,
		},
	}
	for _, tt := range tests {
		_, err := Decrypt(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestFailingDeriveKey(t *testing.T) {
	tests := []struct {
		passphrase []byte
		iterations int
		err        error
	}{
		{nil, testIterations, ErrNullPassphrase},
		{[]byte("pass"), 0, ErrInvalidIterations},
		{[]byte("pass"), 1, ErrInvalidIterations},
		{[]byte("pass"), 1000, ErrInvalidIterations},
		{[]byte("pass"), MaxIterations << 1, ErrInvalidIterations},
		{[]byte("pass"), 1 << 40, ErrInvalidIterations},
	}
	for _, tt := range tests {
		_, _, err := DeriveKey(tt.passphrase, nil, tt.iterations)
		assert.Equal(t, tt.err, err)
	}
}

func TestFailingLegacyDeriveKey(t *testing.T) {
	salt := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		passphrase []byte
		salt       []byte
		rounds     int
		err        error
	}{
		{nil, salt, 1, ErrNullPassphrase},
		{[]byte("pass"), nil, 1, ErrNullSalt},
		{[]byte("pass"), salt, 0, ErrInvalidIterations},
		{[]byte("pass"), salt, MaxLegacyRounds + 1, ErrInvalidIterations},
		{[]byte("pass"), salt, 1 << 40, ErrInvalidIterations},
	}
	for _, tt := range tests {
		_, _, err := LegacyDeriveKey(tt.passphrase, tt.salt, tt.rounds)
		assert.Equal(t, tt.err, err)
	}
}

func TestLegacyEncryptDecrypt(t *testing.T) {
	salt := []byte{0xde, 0xad, 0xbe, 0xef, 0, 1, 2, 3}
	key, iv, err := LegacyDeriveKey([]byte("legacypass"), salt, 25000)
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.Len(t, iv, 16)

	for _, plaintext := range [][]byte{
		[]byte("a"),
		bytes.Repeat([]byte{7}, 16),
		bytes.Repeat([]byte{9}, 32),
	} {
		cypher, err := LegacyEncrypt(plaintext, key, iv)
		require.NoError(t, err)
		assert.Zero(t, len(cypher)%16)

		revealed, err := LegacyDecrypt(cypher, key, iv)
		require.NoError(t, err)
		assert.Equal(t, plaintext, revealed)
	}

	again, againIV, err := LegacyDeriveKey([]byte("legacypass"), salt, 25000)
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Equal(t, iv, againIV)

	other, _, err := LegacyDeriveKey([]byte("legacypass"), salt, 24999)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestFailingLegacyDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	iv := bytes.Repeat([]byte{2}, 16)

	tests := []struct {
		cypher []byte
		key    []byte
		err    error
	}{
		{nil, key, ErrNullCypherText},
		{[]byte("not a block"), key, ErrInvalidCypherText},
		{bytes.Repeat([]byte{3}, 16), key[:16], ErrInvalidKey},
	}
	for _, tt := range tests {
		_, err := LegacyDecrypt(tt.cypher, tt.key, iv)
		assert.Equal(t, tt.err, err)
	}

	_, _, err := LegacyDeriveKey([]byte("pass"), nil, 10)
	assert.Equal(t, ErrNullSalt, err)
}
