package dbbadger

import (
	"context"
	"errors"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type accountRepositoryImpl struct {
	db *DbManager
}

// NewAccountRepositoryImpl returns an AccountRepository backed by the store
// of db. Closing the repository closes db.
func NewAccountRepositoryImpl(db *DbManager) domain.AccountRepository {
	return &accountRepositoryImpl{db}
}

func (r *accountRepositoryImpl) GetAccount(
	_ context.Context, accountID string,
) (*domain.AccountState, error) {
	var state domain.AccountState
	if err := r.db.Store.Get(accountID, &state); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &state, nil
}

func (r *accountRepositoryImpl) GetAllAccounts(
	_ context.Context,
) ([]domain.AccountState, error) {
	var states []domain.AccountState
	query := (&badgerhold.Query{}).SortBy("AccountID")
	if err := r.db.Store.Find(&states, query); err != nil {
		return nil, err
	}
	return states, nil
}

func (r *accountRepositoryImpl) UpsertAccount(
	_ context.Context, state domain.AccountState,
) error {
	return r.db.Store.Upsert(state.AccountID, state)
}

func (r *accountRepositoryImpl) DeleteAccount(
	_ context.Context, accountID string,
) error {
	if err := r.db.Store.Delete(accountID, domain.AccountState{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (r *accountRepositoryImpl) Close() error {
	return r.db.Close()
}
