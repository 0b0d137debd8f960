package domain

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/pkg/addresscodec"
	"github.com/ledgerdesk/ledgerdesk/pkg/keypairs"
	"github.com/ledgerdesk/ledgerdesk/pkg/wallet"
)

// KeyEntry is an account held by the vault. SecretKey is only populated in
// memory while the vault is unlocked and is never returned by Entries.
type KeyEntry struct {
	AccountID       string
	PublicKey       []byte
	SecretKey       []byte
	EncryptedSecret []byte
}

// keySlot is the in-memory state of an entry: the public KeyEntry plus the
// secret material it was imported from, needed for export and re-encryption.
type keySlot struct {
	entry    KeyEntry
	material []byte
}

func (s *keySlot) zero() {
	for i := range s.entry.SecretKey {
		s.entry.SecretKey[i] = 0
	}
	for i := range s.material {
		s.material[i] = 0
	}
	s.entry.SecretKey = nil
	s.material = nil
}

// KeyVault holds the accounts of a wallet file. It is locked until Create or
// Unlock succeed, and it never keeps the password around: only the master key
// unwrapped from it.
type KeyVault struct {
	lock *sync.RWMutex

	path       string
	iterations int
	blob       *WalletBlob
	masterKey  []byte
	slots      []*keySlot
}

// NewKeyVault returns a locked vault bound to the wallet file at path. New
// wallets and conversions use the given scrypt cost, or the default one if
// iterations is 0.
func NewKeyVault(path string, iterations int) *KeyVault {
	if iterations <= 0 {
		iterations = wallet.DefaultIterations
	}
	return &KeyVault{
		lock:       &sync.RWMutex{},
		path:       path,
		iterations: iterations,
	}
}

// Path returns the file the vault is bound to.
func (v *KeyVault) Path() string {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.path
}

// Exists tells whether the wallet file is present on disk.
func (v *KeyVault) Exists() bool {
	_, err := os.Stat(v.Path())
	return err == nil
}

// IsLocked ...
func (v *KeyVault) IsLocked() bool {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.masterKey == nil
}

// Create initializes an empty, unlocked wallet protected by password. Nothing
// is written until Save.
func (v *KeyVault) Create(password string) error {
	masterKey, err := wallet.NewMasterKey()
	if err != nil {
		return err
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	blob, err := wrapMasterKey(masterKey, password, v.iterations)
	if err != nil {
		return err
	}
	v.clear()
	v.blob = blob
	v.masterKey = masterKey
	return nil
}

// Load reads and parses the wallet file, leaving the vault locked. It returns
// ErrLegacyWallet if the file must be converted first.
func (v *KeyVault) Load() error {
	raw, err := os.ReadFile(v.Path())
	if err != nil {
		return err
	}
	blob, err := parseWalletBlob(raw)
	if err != nil {
		return err
	}
	v.Restore(blob)
	return nil
}

// Restore replaces the persisted state of the vault with blob and locks it.
func (v *KeyVault) Restore(blob *WalletBlob) {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.clear()
	v.blob = blob
}

// Unlock unwraps the master key with password and decrypts every entry. An
// entry whose account does not match its decrypted secret makes the whole
// wallet corrupted.
func (v *KeyVault) Unlock(password string) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.blob == nil {
		return ErrCorruptedWallet.WithMessage("wallet has not been loaded")
	}

	masterKey, err := unwrapMasterKey(v.blob, password)
	if err != nil {
		return err
	}

	slots := make([]*keySlot, 0, len(v.blob.Entries))
	for i, e := range v.blob.Entries {
		slot, err := openEntry(masterKey, e)
		if err != nil {
			for _, s := range slots {
				s.zero()
			}
			zero(masterKey)
			return ErrCorruptedWallet.WithMessage("entry %d: %s", i, err)
		}
		slots = append(slots, slot)
	}

	v.clear()
	v.masterKey = masterKey
	v.slots = slots
	return nil
}

// Lock wipes every secret from memory.
func (v *KeyVault) Lock() {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.clear()
}

// Entries returns the accounts of the vault without their secrets.
func (v *KeyVault) Entries() []KeyEntry {
	v.lock.RLock()
	defer v.lock.RUnlock()

	entries := make([]KeyEntry, 0, len(v.slots))
	for _, s := range v.slots {
		entries = append(entries, KeyEntry{
			AccountID:       s.entry.AccountID,
			PublicKey:       append([]byte{}, s.entry.PublicKey...),
			EncryptedSecret: append([]byte{}, s.entry.EncryptedSecret...),
		})
	}
	return entries
}

// Entry returns the account at index without its secret.
func (v *KeyVault) Entry(index int) (KeyEntry, error) {
	entries := v.Entries()
	if v.IsLocked() {
		return KeyEntry{}, ErrVaultLocked
	}
	if index < 0 || index >= len(entries) {
		return KeyEntry{}, ErrNoSuchAccount
	}
	return entries[index], nil
}

// GenerateNew creates a fresh account from new random seed entropy.
func (v *KeyVault) GenerateNew() (KeyEntry, error) {
	seed, err := keypairs.NewSeed()
	if err != nil {
		return KeyEntry{}, err
	}
	material, err := addresscodec.EncodeFamilySeed(seed)
	if err != nil {
		return KeyEntry{}, err
	}
	return v.add([]byte(material))
}

// ImportSecret adds the account of the given family seed or hex private key.
func (v *KeyVault) ImportSecret(material string) (KeyEntry, error) {
	return v.add([]byte(strings.TrimSpace(material)))
}

// ExportSecret returns the secret the account at index was created from.
func (v *KeyVault) ExportSecret(index int) (string, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	if v.masterKey == nil {
		return "", ErrVaultLocked
	}
	if index < 0 || index >= len(v.slots) {
		return "", ErrNoSuchAccount
	}
	return string(v.slots[index].material), nil
}

// Sign signs hash with the secret key of the account at index.
func (v *KeyVault) Sign(index int, hash []byte) ([]byte, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	if v.masterKey == nil {
		return nil, ErrVaultLocked
	}
	if index < 0 || index >= len(v.slots) {
		return nil, ErrNoSuchAccount
	}
	return keypairs.Sign(v.slots[index].entry.SecretKey, hash)
}

// ChangePassword re-encrypts every entry under a new master key wrapped by
// newPassword. The vault stays unlocked. Nothing is written until Save.
func (v *KeyVault) ChangePassword(oldPassword, newPassword string) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.blob == nil || v.masterKey == nil {
		return ErrVaultLocked
	}
	oldKey, err := unwrapMasterKey(v.blob, oldPassword)
	if err != nil {
		return err
	}
	zero(oldKey)

	masterKey, err := wallet.NewMasterKey()
	if err != nil {
		return err
	}
	blob, err := wrapMasterKey(masterKey, newPassword, v.blob.IterationCount)
	if err != nil {
		return err
	}
	for _, s := range v.slots {
		entry, err := sealEntry(masterKey, s)
		if err != nil {
			return err
		}
		blob.Entries = append(blob.Entries, entry)
	}
	for i, s := range v.slots {
		s.entry.EncryptedSecret, _ = base64.StdEncoding.DecodeString(
			blob.Entries[i].EncryptedSecret,
		)
	}

	zero(v.masterKey)
	v.masterKey = masterKey
	v.blob = blob
	return nil
}

// Save re-encrypts every entry under the master key and atomically writes the
// wallet file. If the file exists and overwrite is false, a new sibling file
// is written instead and the vault is rebound to it. The written path is
// returned.
func (v *KeyVault) Save(overwrite bool) (string, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.masterKey == nil {
		return "", ErrVaultLocked
	}

	blob := &WalletBlob{
		Version:        v.blob.Version,
		IterationCount: v.blob.IterationCount,
		Salt:           v.blob.Salt,
		WrappedKey:     v.blob.WrappedKey,
		Entries:        make([]WalletBlobEntry, 0, len(v.slots)),
	}
	for _, s := range v.slots {
		entry, err := sealEntry(v.masterKey, s)
		if err != nil {
			return "", err
		}
		s.entry.EncryptedSecret, _ = base64.StdEncoding.DecodeString(entry.EncryptedSecret)
		blob.Entries = append(blob.Entries, entry)
	}

	raw, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return "", err
	}

	path := v.path
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			path = siblingPath(path)
		}
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return "", err
	}

	v.blob = blob
	v.path = path
	return path, nil
}

// ConvertLegacy decrypts a legacy wallet file with password and re-wraps its
// accounts under the current format. The returned blob is not written nor
// loaded into the vault.
func (v *KeyVault) ConvertLegacy(raw []byte, password string) (*WalletBlob, error) {
	legacy, err := parseLegacyBlob(raw)
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(legacy.Salt)
	if err != nil {
		return nil, ErrLegacyFormatUnsupported.Wrap(err)
	}
	key, iv, err := wallet.LegacyDeriveKey([]byte(password), salt, legacy.DeriveIterations)
	if err != nil {
		if errors.Is(err, wallet.ErrNullPassphrase) {
			return nil, ErrWrongPassword
		}
		return nil, ErrLegacyFormatUnsupported.Wrap(err)
	}

	slots := make([]*keySlot, 0, len(legacy.Keys))
	defer func() {
		for _, s := range slots {
			s.zero()
		}
		zero(key)
	}()

	for _, k := range legacy.Keys {
		cypher, err := hex.DecodeString(k.EncryptedKey)
		if err != nil {
			return nil, ErrLegacyFormatUnsupported.Wrap(err)
		}
		material, err := wallet.LegacyDecrypt(cypher, key, iv)
		if err != nil {
			if errors.Is(err, wallet.ErrInvalidPadding) {
				return nil, ErrWrongPassword
			}
			return nil, ErrLegacyFormatUnsupported.Wrap(err)
		}
		slot, err := newKeySlot(material)
		if err != nil || slot.entry.AccountID != k.AccountID {
			return nil, ErrWrongPassword
		}
		slots = append(slots, slot)
	}

	v.lock.RLock()
	iterations := v.iterations
	v.lock.RUnlock()

	masterKey, err := wallet.NewMasterKey()
	if err != nil {
		return nil, err
	}
	defer zero(masterKey)

	blob, err := wrapMasterKey(masterKey, password, iterations)
	if err != nil {
		return nil, err
	}
	for _, s := range slots {
		entry, err := sealEntry(masterKey, s)
		if err != nil {
			return nil, err
		}
		blob.Entries = append(blob.Entries, entry)
	}
	return blob, nil
}

func (v *KeyVault) add(material []byte) (KeyEntry, error) {
	slot, err := newKeySlot(material)
	if err != nil {
		return KeyEntry{}, err
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if v.masterKey == nil {
		slot.zero()
		return KeyEntry{}, ErrVaultLocked
	}
	for _, s := range v.slots {
		if s.entry.AccountID == slot.entry.AccountID {
			slot.zero()
			return KeyEntry{}, ErrAccountExists
		}
	}
	v.slots = append(v.slots, slot)

	return KeyEntry{
		AccountID: slot.entry.AccountID,
		PublicKey: append([]byte{}, slot.entry.PublicKey...),
	}, nil
}

func (v *KeyVault) clear() {
	for _, s := range v.slots {
		s.zero()
	}
	v.slots = nil
	zero(v.masterKey)
	v.masterKey = nil
}

func newKeySlot(material []byte) (*keySlot, error) {
	kp, err := keypairs.ParseSecret(string(material))
	if err != nil {
		return nil, ErrInvalidKeyFormat.Wrap(err)
	}
	accountID, err := keypairs.Address(kp.PublicKey)
	if err != nil {
		return nil, ErrInvalidKeyFormat.Wrap(err)
	}
	return &keySlot{
		entry: KeyEntry{
			AccountID: accountID,
			PublicKey: kp.PublicKey,
			SecretKey: kp.PrivateKey,
		},
		material: append([]byte{}, material...),
	}, nil
}

func openEntry(masterKey []byte, e WalletBlobEntry) (*keySlot, error) {
	cypher, err := base64.StdEncoding.DecodeString(e.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	material, err := wallet.Decrypt(wallet.DecryptOpts{CypherText: cypher, Key: masterKey})
	if err != nil {
		return nil, err
	}
	slot, err := newKeySlot(material)
	zero(material)
	if err != nil {
		return nil, err
	}
	if slot.entry.AccountID != e.AccountID {
		slot.zero()
		return nil, fmt.Errorf("account %s does not match its secret", e.AccountID)
	}
	slot.entry.EncryptedSecret = cypher
	return slot, nil
}

func sealEntry(masterKey []byte, s *keySlot) (WalletBlobEntry, error) {
	cypher, err := wallet.Encrypt(wallet.EncryptOpts{PlainText: s.material, Key: masterKey})
	if err != nil {
		return WalletBlobEntry{}, err
	}
	return WalletBlobEntry{
		AccountID:       s.entry.AccountID,
		PublicKey:       hex.EncodeToString(s.entry.PublicKey),
		EncryptedSecret: base64.StdEncoding.EncodeToString(cypher),
	}, nil
}

func wrapMasterKey(masterKey []byte, password string, iterations int) (*WalletBlob, error) {
	passwordKey, salt, err := wallet.DeriveKey([]byte(password), nil, iterations)
	if err != nil {
		if errors.Is(err, wallet.ErrNullPassphrase) {
			return nil, ErrWrongPassword.WithMessage("password must not be empty")
		}
		return nil, err
	}
	defer zero(passwordKey)

	wrapped, err := wallet.Encrypt(wallet.EncryptOpts{PlainText: masterKey, Key: passwordKey})
	if err != nil {
		return nil, err
	}
	return &WalletBlob{
		Version:        WalletBlobVersion,
		IterationCount: iterations,
		Salt:           hex.EncodeToString(salt),
		WrappedKey:     base64.StdEncoding.EncodeToString(wrapped),
		Entries:        []WalletBlobEntry{},
	}, nil
}

func unwrapMasterKey(blob *WalletBlob, password string) ([]byte, error) {
	salt, err := hex.DecodeString(blob.Salt)
	if err != nil {
		return nil, ErrCorruptedWallet.Wrap(err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(blob.WrappedKey)
	if err != nil {
		return nil, ErrCorruptedWallet.Wrap(err)
	}

	passwordKey, _, err := wallet.DeriveKey([]byte(password), salt, blob.IterationCount)
	if err != nil {
		if errors.Is(err, wallet.ErrNullPassphrase) {
			return nil, ErrWrongPassword
		}
		return nil, ErrCorruptedWallet.Wrap(err)
	}
	defer zero(passwordKey)

	masterKey, err := wallet.Decrypt(wallet.DecryptOpts{CypherText: wrapped, Key: passwordKey})
	if err != nil {
		if errors.Is(err, wallet.ErrAuthenticationFailed) {
			return nil, ErrWrongPassword
		}
		return nil, ErrCorruptedWallet.Wrap(err)
	}
	return masterKey, nil
}

// siblingPath returns the first "name-N.ext" path next to path that does not
// exist yet.
func siblingPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
