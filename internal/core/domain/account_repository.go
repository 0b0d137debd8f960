package domain

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned by an AccountRepository that has no state for
// the requested account.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository persists the last known AccountState of every account so
// that balances and history are available before the session connects.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (*AccountState, error)
	GetAllAccounts(ctx context.Context) ([]AccountState, error)
	UpsertAccount(ctx context.Context, state AccountState) error
	DeleteAccount(ctx context.Context, accountID string) error
	Close() error
}
