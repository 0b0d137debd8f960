package domain_test

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/pkg/keypairs"
	"github.com/ledgerdesk/ledgerdesk/pkg/wallet"
	"github.com/stretchr/testify/require"
)

const (
	testIterations = 1 << 4
	testPassword   = "Sup3rS3cr3t"
	genesisSeed    = "snoPBrXtMeMyMHUVTgbuqAfg1SUTb"
	genesisAddress = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
)

var hexSecret = strings.Repeat("11", 32)

func newTestVault(t *testing.T) *domain.KeyVault {
	path := filepath.Join(t.TempDir(), "wallet.json")
	v := domain.NewKeyVault(path, testIterations)
	require.NoError(t, v.Create(testPassword))
	return v
}

func accountIDs(entries []domain.KeyEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountID)
	}
	return ids
}

func TestKeyVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	_, err := v.GenerateNew()
	require.NoError(t, err)
	_, err = v.GenerateNew()
	require.NoError(t, err)
	entry, err := v.ImportSecret(genesisSeed)
	require.NoError(t, err)
	require.Equal(t, genesisAddress, entry.AccountID)
	require.Nil(t, entry.SecretKey)

	path, err := v.Save(true)
	require.NoError(t, err)
	require.Equal(t, v.Path(), path)

	other := domain.NewKeyVault(path, testIterations)
	require.NoError(t, other.Load())
	require.True(t, other.IsLocked())
	require.NoError(t, other.Unlock(testPassword))
	require.False(t, other.IsLocked())

	require.Equal(t, accountIDs(v.Entries()), accountIDs(other.Entries()))
	for _, e := range other.Entries() {
		require.Nil(t, e.SecretKey)
		require.NotEmpty(t, e.EncryptedSecret)
	}

	secret, err := other.ExportSecret(2)
	require.NoError(t, err)
	require.Equal(t, genesisSeed, secret)

	hash := keypairs.SHA512Half([]byte("hash"))
	sig, err := other.Sign(2, hash)
	require.NoError(t, err)
	require.True(t, keypairs.Verify(entry.PublicKey, hash, sig))

	other.Lock()
	require.True(t, other.IsLocked())
	require.Empty(t, other.Entries())
	_, err = other.Sign(2, hash)
	require.ErrorIs(t, err, domain.ErrVaultLocked)
}

func TestKeyVaultWrongPassword(t *testing.T) {
	v := newTestVault(t)
	_, err := v.GenerateNew()
	require.NoError(t, err)
	path, err := v.Save(true)
	require.NoError(t, err)

	other := domain.NewKeyVault(path, testIterations)
	require.NoError(t, other.Load())

	for _, password := range []string{"wrong", ""} {
		err = other.Unlock(password)
		require.ErrorIs(t, err, domain.ErrWrongPassword)
		require.True(t, other.IsLocked())
	}
}

func TestImportSecret(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ImportSecret(genesisSeed)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		err    error
	}{
		{"hex private key", hexSecret, nil},
		{"padded family seed duplicate", "  " + genesisSeed + "\n", domain.ErrAccountExists},
		{"hex duplicate", strings.ToUpper(hexSecret), domain.ErrAccountExists},
		{"bad checksum", "snoPBrXtMeMyMHUVTgbuqAfg1SUTc", domain.ErrInvalidKeyFormat},
		{"garbage", "hello", domain.ErrInvalidKeyFormat},
		{"zero key", strings.Repeat("00", 32), domain.ErrInvalidKeyFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ImportSecret(tt.secret)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}
	require.Len(t, v.Entries(), 2)

	secret, err := v.ExportSecret(1)
	require.NoError(t, err)
	require.Equal(t, hexSecret, secret)
}

func TestFailingExportSecret(t *testing.T) {
	v := newTestVault(t)
	_, err := v.GenerateNew()
	require.NoError(t, err)

	for _, index := range []int{-1, 1, 10} {
		_, err := v.ExportSecret(index)
		require.ErrorIs(t, err, domain.ErrNoSuchAccount)
	}

	v.Lock()
	_, err = v.ExportSecret(0)
	require.ErrorIs(t, err, domain.ErrVaultLocked)
	_, err = v.GenerateNew()
	require.ErrorIs(t, err, domain.ErrVaultLocked)
	_, err = v.Save(true)
	require.ErrorIs(t, err, domain.ErrVaultLocked)
}

func TestSaveWithoutOverwrite(t *testing.T) {
	v := newTestVault(t)
	_, err := v.GenerateNew()
	require.NoError(t, err)
	firstPath, err := v.Save(false)
	require.NoError(t, err)
	firstRaw, err := os.ReadFile(firstPath)
	require.NoError(t, err)

	added, err := v.GenerateNew()
	require.NoError(t, err)
	secondPath, err := v.Save(false)
	require.NoError(t, err)
	require.NotEqual(t, firstPath, secondPath)
	require.Equal(t, filepath.Dir(firstPath), filepath.Dir(secondPath))
	require.Equal(t, secondPath, v.Path())

	raw, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	require.Equal(t, firstRaw, raw)

	other := domain.NewKeyVault(secondPath, testIterations)
	require.NoError(t, other.Load())
	require.NoError(t, other.Unlock(testPassword))
	require.Equal(t, accountIDs(v.Entries()), accountIDs(other.Entries()))
	require.Len(t, other.Entries(), 2)

	for i := range v.Entries() {
		expected, err := v.ExportSecret(i)
		require.NoError(t, err)
		secret, err := other.ExportSecret(i)
		require.NoError(t, err)
		require.Equal(t, expected, secret)
	}
	hash := keypairs.SHA512Half([]byte("second copy"))
	sig, err := other.Sign(1, hash)
	require.NoError(t, err)
	require.True(t, keypairs.Verify(added.PublicKey, hash, sig))

	info, err := os.Stat(secondPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestChangePassword(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ImportSecret(genesisSeed)
	require.NoError(t, err)
	_, err = v.Save(true)
	require.NoError(t, err)

	err = v.ChangePassword("wrong", "newpassword")
	require.ErrorIs(t, err, domain.ErrWrongPassword)

	require.NoError(t, v.ChangePassword(testPassword, "newpassword"))
	require.False(t, v.IsLocked())
	path, err := v.Save(true)
	require.NoError(t, err)

	other := domain.NewKeyVault(path, testIterations)
	require.NoError(t, other.Load())
	require.ErrorIs(t, other.Unlock(testPassword), domain.ErrWrongPassword)
	require.NoError(t, other.Unlock("newpassword"))
	require.Equal(t, []string{genesisAddress}, accountIDs(other.Entries()))
}

func TestCorruptedWallet(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ImportSecret(genesisSeed)
	require.NoError(t, err)
	path, err := v.Save(true)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	blob := &domain.WalletBlob{}
	require.NoError(t, json.Unmarshal(raw, blob))
	blob.Entries[0].AccountID = "rrrrrrrrrrrrrrrrrrrrBZbvji"

	other := domain.NewKeyVault(path, testIterations)
	other.Restore(blob)
	err = other.Unlock(testPassword)
	require.ErrorIs(t, err, domain.ErrCorruptedWallet)
	require.True(t, other.IsLocked())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	require.ErrorIs(t, other.Load(), domain.ErrCorruptedWallet)
}

func TestWalletIterationCountOutOfRange(t *testing.T) {
	v := newTestVault(t)
	_, err := v.ImportSecret(genesisSeed)
	require.NoError(t, err)
	path, err := v.Save(true)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name       string
		iterations int
	}{
		{"huge", 1 << 40},
		{"above maximum", wallet.MaxIterations << 1},
		{"not power of 2", 1000},
		{"zero", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := &domain.WalletBlob{}
			require.NoError(t, json.Unmarshal(raw, blob))
			blob.IterationCount = tt.iterations
			tampered, err := json.Marshal(blob)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, tampered, 0600))

			other := domain.NewKeyVault(path, testIterations)
			require.ErrorIs(t, other.Load(), domain.ErrCorruptedWallet)

			other.Restore(blob)
			require.ErrorIs(t, other.Unlock(testPassword), domain.ErrCorruptedWallet)
			require.True(t, other.IsLocked())
		})
	}
}

func TestConvertLegacy(t *testing.T) {
	secrets := []string{genesisSeed, hexSecret}
	raw := newLegacyWallet(t, "legacypass", secrets)
	require.True(t, domain.IsLegacyWallet(raw))

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))

	v := domain.NewKeyVault(path, testIterations)
	require.ErrorIs(t, v.Load(), domain.ErrLegacyWallet)

	blob, err := v.ConvertLegacy(raw, "legacypass")
	require.NoError(t, err)
	require.Equal(t, domain.WalletBlobVersion, blob.Version)
	require.Equal(t, testIterations, blob.IterationCount)
	require.Len(t, blob.Entries, 2)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, raw, onDisk)

	v.Restore(blob)
	require.NoError(t, v.Unlock("legacypass"))

	expected := make([]string, 0, len(secrets))
	for _, s := range secrets {
		kp, err := keypairs.ParseSecret(s)
		require.NoError(t, err)
		addr, err := keypairs.Address(kp.PublicKey)
		require.NoError(t, err)
		expected = append(expected, addr)
	}
	require.Equal(t, expected, accountIDs(v.Entries()))

	for i, s := range secrets {
		exported, err := v.ExportSecret(i)
		require.NoError(t, err)
		require.Equal(t, s, exported)
	}
}

func TestFailingConvertLegacy(t *testing.T) {
	raw := newLegacyWallet(t, "legacypass", []string{genesisSeed})
	v := domain.NewKeyVault("", testIterations)

	tests := []struct {
		name     string
		raw      []byte
		password string
		err      error
	}{
		{"wrong password", raw, "wrongpass", domain.ErrWrongPassword},
		{"empty password", raw, "", domain.ErrWrongPassword},
		{"not json", []byte("garbage"), "legacypass", domain.ErrLegacyFormatUnsupported},
		{
			"current format",
			[]byte(`{"version":2,"salt":"00","wrappedKey":"AA==","entries":[]}`),
			"legacypass",
			domain.ErrLegacyFormatUnsupported,
		},
		{
			"bad salt",
			[]byte(`{"nDeriveIterations":10,"vchSalt":"zz","keys":[]}`),
			"legacypass",
			domain.ErrLegacyFormatUnsupported,
		},
		{
			"no iterations",
			[]byte(`{"nDeriveIterations":0,"vchSalt":"00","keys":[]}`),
			"legacypass",
			domain.ErrLegacyFormatUnsupported,
		},
		{
			"too many iterations",
			[]byte(`{"nDeriveIterations":1099511627776,"vchSalt":"00","keys":[]}`),
			"legacypass",
			domain.ErrLegacyFormatUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ConvertLegacy(tt.raw, tt.password)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func newLegacyWallet(t *testing.T, password string, secrets []string) []byte {
	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	rounds := 1000
	key, iv, err := wallet.LegacyDeriveKey([]byte(password), salt, rounds)
	require.NoError(t, err)

	legacy := domain.LegacyBlob{
		DeriveIterations: rounds,
		Salt:             hex.EncodeToString(salt),
	}
	for _, s := range secrets {
		kp, err := keypairs.ParseSecret(s)
		require.NoError(t, err)
		addr, err := keypairs.Address(kp.PublicKey)
		require.NoError(t, err)
		cypher, err := wallet.LegacyEncrypt([]byte(s), key, iv)
		require.NoError(t, err)
		legacy.Keys = append(legacy.Keys, domain.LegacyBlobKey{
			AccountID:    addr,
			EncryptedKey: hex.EncodeToString(cypher),
		})
	}

	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	return raw
}
