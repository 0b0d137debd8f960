package keypairs

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ledgerdesk/ledgerdesk/pkg/addresscodec"
	"golang.org/x/crypto/ripemd160"
)

const (
	// PrivateKeyLength is the size of a raw secp256k1 secret scalar.
	PrivateKeyLength = 32
	// PublicKeyLength is the size of a compressed secp256k1 public key.
	PublicKeyLength = 33
)

var (
	// ErrInvalidSeed ...
	ErrInvalidSeed = errors.New("seed must be 16 bytes of entropy")
	// ErrInvalidPrivateKey ...
	ErrInvalidPrivateKey = errors.New("private key must be a 32 byte scalar in range [1, n-1]")
	// ErrInvalidPublicKey ...
	ErrInvalidPublicKey = errors.New("public key must be a 33 byte compressed secp256k1 point")
	// ErrInvalidHash ...
	ErrInvalidHash = errors.New("hash to sign must be 32 bytes")
	// ErrUnknownSecretFormat ...
	ErrUnknownSecretFormat = errors.New(
		"secret must be a family seed (s...) or a 64 char hex private key",
	)
)

// KeyPair holds a raw secp256k1 secret and its compressed public key.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// Zero wipes the private key bytes in place.
func (k *KeyPair) Zero() {
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}

// NewSeed returns fresh random entropy suitable for DeriveKeyPair.
func NewSeed() ([]byte, error) {
	seed := make([]byte, addresscodec.FamilySeedLength)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// DeriveKeyPair derives the first account keypair of the given family seed
// using the ledger's secp256k1 generator scheme:
//
//	root  = first valid SHA512Half(seed || seq)
//	child = first valid SHA512Half(rootPub || 0 || subseq)
//	priv  = (root + child) mod n
func DeriveKeyPair(seed []byte) (*KeyPair, error) {
	if len(seed) != addresscodec.FamilySeedLength {
		return nil, ErrInvalidSeed
	}

	root := deriveScalar(seed, nil)
	rootPub := scalarToPrivKey(root).PubKey().SerializeCompressed()

	account := uint32(0)
	accountBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(accountBuf, account)
	child := deriveScalar(rootPub, accountBuf)

	priv := new(btcec.ModNScalar).Set(root)
	priv.Add(child)
	if priv.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	privKey := scalarToPrivKey(priv)
	privBytes := priv.Bytes()
	return &KeyPair{
		PrivateKey: privBytes[:],
		PublicKey:  privKey.PubKey().SerializeCompressed(),
	}, nil
}

// KeyPairFromPrivateKey returns the keypair of a raw 32 byte secret.
func KeyPairFromPrivateKey(key []byte) (*KeyPair, error) {
	if len(key) != PrivateKeyLength {
		return nil, ErrInvalidPrivateKey
	}
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(key); overflow || scalar.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	priv := make([]byte, PrivateKeyLength)
	copy(priv, key)
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  scalarToPrivKey(&scalar).PubKey().SerializeCompressed(),
	}, nil
}

// ParseSecret accepts either a family seed or a hex encoded private key and
// returns the corresponding keypair.
func ParseSecret(secret string) (*KeyPair, error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "s") {
		seed, err := addresscodec.DecodeFamilySeed(secret)
		if err != nil {
			return nil, ErrUnknownSecretFormat
		}
		return DeriveKeyPair(seed)
	}
	if len(secret) == 2*PrivateKeyLength {
		key, err := hex.DecodeString(secret)
		if err != nil {
			return nil, ErrUnknownSecretFormat
		}
		return KeyPairFromPrivateKey(key)
	}
	return nil, ErrUnknownSecretFormat
}

// AccountID returns the 20 byte account identifier of a public key, that is
// RIPEMD160(SHA256(pubkey)).
func AccountID(publicKey []byte) ([]byte, error) {
	if len(publicKey) != PublicKeyLength {
		return nil, ErrInvalidPublicKey
	}
	sha := sha256.Sum256(publicKey)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil), nil
}

// Address returns the classic address of a public key.
func Address(publicKey []byte) (string, error) {
	accountID, err := AccountID(publicKey)
	if err != nil {
		return "", err
	}
	return addresscodec.EncodeAccountID(accountID)
}

// Sign returns the DER encoded, low-S, deterministic (RFC6979) signature of
// the given 32 byte hash.
func Sign(privateKey, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHash
	}
	kp, err := KeyPairFromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(kp.PrivateKey)
	defer priv.Zero()

	return ecdsa.Sign(priv, hash).Serialize(), nil
}

// Verify checks a DER signature of hash against a compressed public key.
func Verify(publicKey, hash, signature []byte) bool {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pub)
}

// SHA512Half returns the first 32 bytes of SHA-512 over the concatenation of
// the given buffers.
func SHA512Half(bufs ...[]byte) []byte {
	h := sha512.New()
	for _, b := range bufs {
		h.Write(b)
	}
	return h.Sum(nil)[:32]
}

func deriveScalar(data, discriminator []byte) *btcec.ModNScalar {
	seq := make([]byte, 4)
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(seq, i)
		var candidate []byte
		if discriminator != nil {
			candidate = SHA512Half(data, discriminator, seq)
		} else {
			candidate = SHA512Half(data, seq)
		}

		var scalar btcec.ModNScalar
		if overflow := scalar.SetByteSlice(candidate); !overflow && !scalar.IsZero() {
			return &scalar
		}
	}
}

func scalarToPrivKey(scalar *btcec.ModNScalar) *btcec.PrivateKey {
	buf := scalar.Bytes()
	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	return priv
}
