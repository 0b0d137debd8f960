package wallet

import (
	"errors"
)

var (
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullSalt ...
	ErrNullSalt = errors.New("salt must not be null")

	// ErrInvalidKey ...
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
	// ErrInvalidIterations ...
	ErrInvalidIterations = errors.New("iteration count is out of range")
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher is too short to be valid")
	// ErrInvalidPadding is returned by LegacyDecrypt when the plaintext
	// padding is malformed, which is the usual outcome of a wrong passphrase.
	ErrInvalidPadding = errors.New("invalid block padding")
	// ErrAuthenticationFailed is returned by Decrypt when the cypher tag does
	// not match, either because of a wrong key or a tampered cypher.
	ErrAuthenticationFailed = errors.New("cypher authentication failed")
)
