package keypairs

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	genesisSeed       = "snoPBrXtMeMyMHUVTgbuqAfg1SUTb"
	genesisPrivateKey = "1ACAAEDECE405B2A958212629E16F2EB46B153EEE94CDD350FDEFF52795525B7"
	genesisPublicKey  = "0330E7FC9D56BB25D6893BA3F317AE5BCF33B3291BD63DB32654A313222F7FD020"
	genesisAddress    = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
)

func TestDeriveKeyPairFromFamilySeed(t *testing.T) {
	kp, err := ParseSecret(genesisSeed)
	require.NoError(t, err)

	assert.Equal(t, genesisPrivateKey, strings.ToUpper(hex.EncodeToString(kp.PrivateKey)))
	assert.Equal(t, genesisPublicKey, strings.ToUpper(hex.EncodeToString(kp.PublicKey)))

	address, err := Address(kp.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, genesisAddress, address)
}

func TestParseHexSecret(t *testing.T) {
	kp, err := ParseSecret(strings.ToLower(genesisPrivateKey))
	require.NoError(t, err)
	assert.Equal(t, genesisPublicKey, strings.ToUpper(hex.EncodeToString(kp.PublicKey)))
}

func TestFailingParseSecret(t *testing.T) {
	tests := []struct {
		secret string
		err    error
	}{
		{"", ErrUnknownSecretFormat},
		{"not a secret", ErrUnknownSecretFormat},
		{"snoPBrXtMeMyMHUVTgbuqAfg1SUTc", ErrUnknownSecretFormat},
		{strings.Repeat("zz", 32), ErrUnknownSecretFormat},
		{strings.Repeat("00", 32), ErrInvalidPrivateKey},
		{strings.Repeat("ff", 32), ErrInvalidPrivateKey},
	}
	for _, tt := range tests {
		_, err := ParseSecret(tt.secret)
		assert.Equal(t, tt.err, err, tt.secret)
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := ParseSecret(genesisSeed)
	require.NoError(t, err)

	hash := SHA512Half([]byte("payment"))
	sig, err := Sign(kp.PrivateKey, hash)
	require.NoError(t, err)
	assert.True(t, Verify(kp.PublicKey, hash, sig))

	again, err := Sign(kp.PrivateKey, hash)
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	other := SHA512Half([]byte("another payment"))
	assert.False(t, Verify(kp.PublicKey, other, sig))

	_, err = Sign(kp.PrivateKey, []byte("short"))
	assert.Equal(t, ErrInvalidHash, err)
}

func TestNewSeedDerivesDistinctAccounts(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		seed, err := NewSeed()
		require.NoError(t, err)
		kp, err := DeriveKeyPair(seed)
		require.NoError(t, err)
		address, err := Address(kp.PublicKey)
		require.NoError(t, err)
		assert.False(t, seen[address])
		seen[address] = true
	}
}

func TestZero(t *testing.T) {
	kp, err := ParseSecret(genesisSeed)
	require.NoError(t, err)
	kp.Zero()
	assert.Equal(t, make([]byte, PrivateKeyLength), kp.PrivateKey)
}
