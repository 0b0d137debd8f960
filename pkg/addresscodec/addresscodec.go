package addresscodec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	// AccountIDLength is the size in bytes of a decoded account identifier.
	AccountIDLength = 20
	// FamilySeedLength is the size in bytes of the entropy of a family seed.
	FamilySeedLength = 16

	accountIDPrefix  byte = 0x00
	familySeedPrefix byte = 0x21
	checksumLength        = 4

	// RippleAlphabet is the base58 dictionary used by the ledger network for
	// every human readable identifier.
	RippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
)

var (
	// ErrInvalidChecksum ...
	ErrInvalidChecksum = errors.New("checksum does not match")
	// ErrInvalidPrefix ...
	ErrInvalidPrefix = errors.New("unexpected version prefix")
	// ErrInvalidLength ...
	ErrInvalidLength = errors.New("unexpected payload length")
	// ErrInvalidEncoding ...
	ErrInvalidEncoding = errors.New("string is not valid base58")

	alphabet = base58.NewAlphabet(RippleAlphabet)
)

// EncodeAccountID returns the classic address ("r...") of the given
// 20 byte account identifier.
func EncodeAccountID(accountID []byte) (string, error) {
	if len(accountID) != AccountIDLength {
		return "", ErrInvalidLength
	}
	return encodeCheck(accountIDPrefix, accountID), nil
}

// DecodeAccountID returns the 20 byte account identifier of a classic
// address.
func DecodeAccountID(address string) ([]byte, error) {
	return decodeCheck(address, accountIDPrefix, AccountIDLength)
}

// IsValidAddress returns whether the given string is a well-formed classic
// address.
func IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "r") {
		return false
	}
	_, err := DecodeAccountID(address)
	return err == nil
}

// EncodeFamilySeed returns the "s..." representation of 16 bytes of seed
// entropy.
func EncodeFamilySeed(seed []byte) (string, error) {
	if len(seed) != FamilySeedLength {
		return "", ErrInvalidLength
	}
	return encodeCheck(familySeedPrefix, seed), nil
}

// DecodeFamilySeed returns the seed entropy of an "s..." family seed.
func DecodeFamilySeed(seed string) ([]byte, error) {
	return decodeCheck(seed, familySeedPrefix, FamilySeedLength)
}

func encodeCheck(prefix byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLength)
	buf = append(buf, prefix)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf)...)
	return base58.FastBase58EncodingAlphabet(buf, alphabet)
}

func decodeCheck(str string, prefix byte, payloadLen int) ([]byte, error) {
	if len(str) == 0 {
		return nil, ErrInvalidEncoding
	}
	buf, err := base58.FastBase58DecodingAlphabet(str, alphabet)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(buf) != 1+payloadLen+checksumLength {
		return nil, ErrInvalidLength
	}

	body, sum := buf[:len(buf)-checksumLength], buf[len(buf)-checksumLength:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, ErrInvalidChecksum
	}
	if body[0] != prefix {
		return nil, ErrInvalidPrefix
	}

	payload := make([]byte, payloadLen)
	copy(payload, body[1:])
	return payload, nil
}

func checksum(buf []byte) []byte {
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
