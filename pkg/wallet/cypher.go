package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeyLength is the size of every symmetric key handled by this package.
	KeyLength = 32
	// SaltLength is the size of the random salt generated by DeriveKey.
	SaltLength = 32
	// DefaultIterations is the scrypt cost parameter N used for new wallets.
	DefaultIterations = 1 << 18
	// MaxIterations bounds N, scrypt needs 128*8*N bytes of memory.
	MaxIterations = 1 << 20
)

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText []byte
	Key       []byte
}

func (o EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Key) != KeyLength {
		return ErrInvalidKey
	}
	return nil
}

// Encrypt seals the plaintext with AES-256-GCM under the given key.
// The random nonce is prepended to the returned cypher.
func Encrypt(opts EncryptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	gcm, err := newGCM(opts.Key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, opts.PlainText, nil), nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	CypherText []byte
	Key        []byte
}

func (o DecryptOpts) validate() error {
	if len(o.CypherText) <= 0 {
		return ErrNullCypherText
	}
	if len(o.Key) != KeyLength {
		return ErrInvalidKey
	}
	return nil
}

// Decrypt opens a cypher produced by Encrypt. A wrong key or a tampered
// cypher both result in ErrAuthenticationFailed.
func Decrypt(opts DecryptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	gcm, err := newGCM(opts.Key)
	if err != nil {
		return nil, err
	}
	if len(opts.CypherText) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrInvalidCypherText
	}

	nonce, text := opts.CypherText[:gcm.NonceSize()], opts.CypherText[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// DeriveKey derives a 32 byte key from a passphrase with scrypt, using the
// given cost parameter N. If salt is nil a random one is generated and
// returned alongside the key.
func DeriveKey(passphrase, salt []byte, iterations int) ([]byte, []byte, error) {
	if len(passphrase) <= 0 {
		return nil, nil, ErrNullPassphrase
	}
	if !IsValidIterations(iterations) {
		return nil, nil, ErrInvalidIterations
	}
	if salt == nil {
		salt = make([]byte, SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	// check the doc for the recommended values of r and p:
	// https://godoc.org/golang.org/x/crypto/scrypt
	key, err := scrypt.Key(passphrase, salt, iterations, 8, 1, KeyLength)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// IsValidIterations tells whether n can be used as scrypt cost parameter: a
// power of 2 greater than 1 and not above MaxIterations.
func IsValidIterations(n int) bool {
	return n > 1 && n <= MaxIterations && n&(n-1) == 0
}

// NewMasterKey returns a fresh random key suitable for Encrypt.
func NewMasterKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}
