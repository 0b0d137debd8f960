package domain

import (
	"encoding/json"
	"errors"

	"github.com/ledgerdesk/ledgerdesk/pkg/wallet"
)

// WalletBlobVersion is the version written by this client.
const WalletBlobVersion = 2

// ErrLegacyWallet is returned by KeyVault.Load when the wallet file is in the
// legacy format and must be converted with ConvertLegacy first.
var ErrLegacyWallet = errors.New("wallet file is in legacy format")

// WalletBlob is the persisted form of a KeyVault. The master key that
// encrypts every entry is itself wrapped under a key derived from the
// password with scrypt.
type WalletBlob struct {
	Version        int               `json:"version"`
	IterationCount int               `json:"iterationCount"`
	Salt           string            `json:"salt"`
	WrappedKey     string            `json:"wrappedKey"`
	Entries        []WalletBlobEntry `json:"entries"`
}

// WalletBlobEntry is a single encrypted account.
type WalletBlobEntry struct {
	AccountID       string `json:"accountId"`
	PublicKey       string `json:"publicKey"`
	EncryptedSecret string `json:"encryptedSecret"`
}

// LegacyBlob is the wallet format written by older clients: every key is
// encrypted on its own with AES-256-CBC under a SHA-512 iterated key.
type LegacyBlob struct {
	DeriveIterations int             `json:"nDeriveIterations"`
	Salt             string          `json:"vchSalt"`
	Keys             []LegacyBlobKey `json:"keys"`
}

// LegacyBlobKey ...
type LegacyBlobKey struct {
	AccountID    string `json:"accountID"`
	EncryptedKey string `json:"encryptedKey"`
}

// IsLegacyWallet tells whether raw is a legacy wallet file.
func IsLegacyWallet(raw []byte) bool {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	_, hasWrappedKey := fields["wrappedKey"]
	_, hasSalt := fields["vchSalt"]
	_, hasKeys := fields["keys"]
	return !hasWrappedKey && hasSalt && hasKeys
}

func parseWalletBlob(raw []byte) (*WalletBlob, error) {
	if IsLegacyWallet(raw) {
		return nil, ErrLegacyWallet
	}
	blob := &WalletBlob{}
	if err := json.Unmarshal(raw, blob); err != nil {
		return nil, ErrCorruptedWallet.Wrap(err)
	}
	if blob.Version != WalletBlobVersion || blob.WrappedKey == "" || blob.Salt == "" {
		return nil, ErrCorruptedWallet.WithMessage(
			"wallet file has unsupported version %d", blob.Version,
		)
	}
	if !wallet.IsValidIterations(blob.IterationCount) {
		return nil, ErrCorruptedWallet.WithMessage(
			"wallet file has invalid iteration count %d", blob.IterationCount,
		)
	}
	return blob, nil
}

func parseLegacyBlob(raw []byte) (*LegacyBlob, error) {
	if !IsLegacyWallet(raw) {
		return nil, ErrLegacyFormatUnsupported
	}
	blob := &LegacyBlob{}
	if err := json.Unmarshal(raw, blob); err != nil {
		return nil, ErrLegacyFormatUnsupported.Wrap(err)
	}
	if blob.DeriveIterations < 1 || blob.DeriveIterations > wallet.MaxLegacyRounds ||
		blob.Salt == "" {
		return nil, ErrLegacyFormatUnsupported
	}
	return blob, nil
}
