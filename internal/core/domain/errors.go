package domain

import (
	"errors"
	"fmt"
)

// Severity tells a consumer how to surface an error.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorKind identifies a class of failure independently of its message.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindWrongPassword
	KindNoSuchAccount
	KindInvalidKeyFormat
	KindLegacyFormatUnsupported
	KindInvalidDestination
	KindStaleSequence
	KindConnectionLost
	KindSubmitRejected
	KindVaultLocked
	KindAccountExists
	KindInsufficientFunds
	KindInvalidAmount
	KindFeeTooLow
	KindCorruptedWallet
	KindSessionClosed
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                 "Unknown",
	KindWrongPassword:           "WrongPassword",
	KindNoSuchAccount:           "NoSuchAccount",
	KindInvalidKeyFormat:        "InvalidKeyFormat",
	KindLegacyFormatUnsupported: "LegacyFormatUnsupported",
	KindInvalidDestination:      "InvalidDestination",
	KindStaleSequence:           "StaleSequence",
	KindConnectionLost:          "ConnectionLost",
	KindSubmitRejected:          "SubmitRejected",
	KindVaultLocked:             "VaultLocked",
	KindAccountExists:           "AccountExists",
	KindInsufficientFunds:       "InsufficientFunds",
	KindInvalidAmount:           "InvalidAmount",
	KindFeeTooLow:               "FeeTooLow",
	KindCorruptedWallet:         "CorruptedWallet",
	KindSessionClosed:           "SessionClosed",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the typed error surfaced by the wallet core. Two errors match with
// errors.Is when they share the same Kind, regardless of their messages.
type Error struct {
	Kind     ErrorKind
	Severity Severity
	Caption  string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Wrap returns a copy of the error carrying the given cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of the error with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

var (
	// ErrWrongPassword is returned when the wallet password does not open the
	// wallet key.
	ErrWrongPassword = &Error{
		Kind: KindWrongPassword, Severity: SeverityWarning,
		Caption: "Wrong password", Message: "the password does not unlock this wallet",
	}
	// ErrNoSuchAccount ...
	ErrNoSuchAccount = &Error{
		Kind: KindNoSuchAccount, Severity: SeverityWarning,
		Caption: "No such account", Message: "account index is out of range",
	}
	// ErrInvalidKeyFormat ...
	ErrInvalidKeyFormat = &Error{
		Kind: KindInvalidKeyFormat, Severity: SeverityWarning,
		Caption: "Invalid key", Message: "secret must be a family seed or a 64 char hex private key",
	}
	// ErrLegacyFormatUnsupported ...
	ErrLegacyFormatUnsupported = &Error{
		Kind: KindLegacyFormatUnsupported, Severity: SeverityFatal,
		Caption: "Unsupported wallet", Message: "wallet file is in an unrecognized legacy format",
	}
	// ErrInvalidDestination ...
	ErrInvalidDestination = &Error{
		Kind: KindInvalidDestination, Severity: SeverityWarning,
		Caption: "Invalid destination", Message: "destination is not a valid account address",
	}
	// ErrStaleSequence ...
	ErrStaleSequence = &Error{
		Kind: KindStaleSequence, Severity: SeverityWarning,
		Caption: "Stale sequence", Message: "sequence is lower than the account's current sequence",
	}
	// ErrConnectionLost ...
	ErrConnectionLost = &Error{
		Kind: KindConnectionLost, Severity: SeverityInfo,
		Caption: "Offline", Message: "connection to the ledger server was lost",
	}
	// ErrSubmitRejected ...
	ErrSubmitRejected = &Error{
		Kind: KindSubmitRejected, Severity: SeverityWarning,
		Caption: "Transaction rejected", Message: "the server rejected the transaction",
	}
	// ErrVaultLocked ...
	ErrVaultLocked = &Error{
		Kind: KindVaultLocked, Severity: SeverityWarning,
		Caption: "Wallet locked", Message: "wallet must be unlocked to perform this operation",
	}
	// ErrAccountExists ...
	ErrAccountExists = &Error{
		Kind: KindAccountExists, Severity: SeverityInfo,
		Caption: "Duplicate account", Message: "account is already in the wallet",
	}
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = &Error{
		Kind: KindInsufficientFunds, Severity: SeverityWarning,
		Caption: "Insufficient funds", Message: "amount plus fee would leave the account below its reserve",
	}
	// ErrInvalidAmount ...
	ErrInvalidAmount = &Error{
		Kind: KindInvalidAmount, Severity: SeverityWarning,
		Caption: "Invalid amount", Message: "amount must be greater than zero",
	}
	// ErrFeeTooLow ...
	ErrFeeTooLow = &Error{
		Kind: KindFeeTooLow, Severity: SeverityWarning,
		Caption: "Fee too low", Message: "fee is below the network reference fee",
	}
	// ErrCorruptedWallet ...
	ErrCorruptedWallet = &Error{
		Kind: KindCorruptedWallet, Severity: SeverityFatal,
		Caption: "Corrupted wallet", Message: "wallet file is corrupted",
	}
	// ErrSessionClosed ...
	ErrSessionClosed = &Error{
		Kind: KindSessionClosed, Severity: SeverityInfo,
		Caption: "Session closed", Message: "session has been closed",
	}
)

// Notification is the UI facing view of an error.
type Notification struct {
	Kind     ErrorKind
	Severity Severity
	Caption  string
	Message  string
}

// NotificationFromError maps any error to a Notification. Errors that are not
// a domain *Error are reported as fatal with their plain message.
func NotificationFromError(err error) Notification {
	var e *Error
	if errors.As(err, &e) {
		return Notification{
			Kind:     e.Kind,
			Severity: e.Severity,
			Caption:  e.Caption,
			Message:  e.Error(),
		}
	}
	return Notification{
		Kind:     KindUnknown,
		Severity: SeverityFatal,
		Caption:  "Error",
		Message:  err.Error(),
	}
}
