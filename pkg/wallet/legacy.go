package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
)

const (
	legacyKeyLength = 32
	legacyIVLength  = aes.BlockSize

	// MaxLegacyRounds bounds the SHA-512 rounds of LegacyDeriveKey.
	MaxLegacyRounds = 1 << 24
)

// LegacyDeriveKey derives the AES-256-CBC key and IV of the legacy wallet
// format: the passphrase and salt are hashed once with SHA-512 and the digest
// is then re-hashed rounds-1 times. Key and IV are the first 32 and the
// following 16 bytes of the final digest.
func LegacyDeriveKey(passphrase, salt []byte, rounds int) ([]byte, []byte, error) {
	if len(passphrase) <= 0 {
		return nil, nil, ErrNullPassphrase
	}
	if len(salt) <= 0 {
		return nil, nil, ErrNullSalt
	}
	if rounds < 1 || rounds > MaxLegacyRounds {
		return nil, nil, ErrInvalidIterations
	}

	h := sha512.New()
	h.Write(passphrase)
	h.Write(salt)
	digest := h.Sum(nil)
	for i := 1; i < rounds; i++ {
		sum := sha512.Sum512(digest)
		digest = sum[:]
	}

	key := make([]byte, legacyKeyLength)
	iv := make([]byte, legacyIVLength)
	copy(key, digest[:legacyKeyLength])
	copy(iv, digest[legacyKeyLength:legacyKeyLength+legacyIVLength])
	return key, iv, nil
}

// LegacyEncrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding.
func LegacyEncrypt(plaintext, key, iv []byte) ([]byte, error) {
	if len(plaintext) <= 0 {
		return nil, ErrNullPlainText
	}
	block, err := newLegacyCipher(key, iv)
	if err != nil {
		return nil, err
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(
		append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(padLen)}, padLen)...,
	)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// LegacyDecrypt reverses LegacyEncrypt. Malformed padding, the usual symptom
// of a wrong passphrase, results in ErrInvalidPadding.
func LegacyDecrypt(cypher, key, iv []byte) ([]byte, error) {
	if len(cypher) <= 0 {
		return nil, ErrNullCypherText
	}
	if len(cypher)%aes.BlockSize != 0 {
		return nil, ErrInvalidCypherText
	}
	block, err := newLegacyCipher(key, iv)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(cypher))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, cypher)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return out[:len(out)-padLen], nil
}

func newLegacyCipher(key, iv []byte) (cipher.Block, error) {
	if len(key) != legacyKeyLength {
		return nil, ErrInvalidKey
	}
	if len(iv) != legacyIVLength {
		return nil, ErrInvalidCypherText
	}
	return aes.NewCipher(key)
}
