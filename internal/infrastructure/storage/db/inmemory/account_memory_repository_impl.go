package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
)

type accountInmemoryStore struct {
	accounts map[string]domain.AccountState
	locker   *sync.RWMutex
}

type accountRepositoryImpl struct {
	store *accountInmemoryStore
}

// NewAccountRepositoryImpl returns a new inmemory AccountRepository
// implementation.
func NewAccountRepositoryImpl() domain.AccountRepository {
	return &accountRepositoryImpl{&accountInmemoryStore{
		accounts: make(map[string]domain.AccountState),
		locker:   &sync.RWMutex{},
	}}
}

func (r *accountRepositoryImpl) GetAccount(
	_ context.Context, accountID string,
) (*domain.AccountState, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	state, ok := r.store.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	state = copyState(state)
	return &state, nil
}

func (r *accountRepositoryImpl) GetAllAccounts(
	_ context.Context,
) ([]domain.AccountState, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	states := make([]domain.AccountState, 0, len(r.store.accounts))
	for _, s := range r.store.accounts {
		states = append(states, copyState(s))
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].AccountID < states[j].AccountID
	})
	return states, nil
}

func (r *accountRepositoryImpl) UpsertAccount(
	_ context.Context, state domain.AccountState,
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	r.store.accounts[state.AccountID] = copyState(state)
	return nil
}

func (r *accountRepositoryImpl) DeleteAccount(
	_ context.Context, accountID string,
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.accounts[accountID]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.store.accounts, accountID)
	return nil
}

func (r *accountRepositoryImpl) Close() error {
	return nil
}

func copyState(s domain.AccountState) domain.AccountState {
	if s.Transactions != nil {
		s.Transactions = append([]domain.TxSummary{}, s.Transactions...)
	}
	return s
}
