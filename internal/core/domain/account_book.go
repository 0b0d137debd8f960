package domain

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of transactions kept per account when no
// limit is configured.
const DefaultHistoryLimit = 200

// TxSummary is the condensed view of a transaction touching an account.
type TxSummary struct {
	Hash        string
	Type        string
	Account     string
	Destination string
	Amount      uint64
	Fee         uint64
	Sequence    uint32
	LedgerIndex uint32
	Result      string
	Date        time.Time
	Validated   bool
}

// IsOutgoing tells whether the transaction was sent by accountID.
func (t TxSummary) IsOutgoing(accountID string) bool {
	return t.Account == accountID
}

// AccountState is the last known ledger state of an account.
type AccountState struct {
	AccountID    string
	Balance      uint64
	Sequence     uint32
	Funded       bool
	Transactions []TxSummary
	UpdatedAt    time.Time
}

func (a AccountState) copy() AccountState {
	cp := a
	cp.Transactions = append([]TxSummary{}, a.Transactions...)
	return cp
}

// AccountBook holds the AccountState of every vault entry, in the same order
// as the vault. Readers always get copies.
type AccountBook struct {
	lock *sync.RWMutex

	accounts     []*AccountState
	current      int
	historyLimit int
}

// NewAccountBook ...
func NewAccountBook(historyLimit int) *AccountBook {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &AccountBook{
		lock:         &sync.RWMutex{},
		historyLimit: historyLimit,
	}
}

// Sync aligns the book with the given ordered account list, keeping the known
// state of accounts that are still present.
func (b *AccountBook) Sync(accountIDs []string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	byID := make(map[string]*AccountState, len(b.accounts))
	for _, a := range b.accounts {
		byID[a.AccountID] = a
	}

	accounts := make([]*AccountState, 0, len(accountIDs))
	for _, id := range accountIDs {
		if a, ok := byID[id]; ok {
			accounts = append(accounts, a)
			continue
		}
		accounts = append(accounts, &AccountState{AccountID: id})
	}
	b.accounts = accounts
	if b.current >= len(accounts) {
		b.current = 0
	}
}

// Restore merges previously persisted states into the book. Only accounts
// already tracked by the book are restored. A state fetched after the
// persisted one is kept as is, and the sequence never goes backwards.
func (b *AccountBook) Restore(states []AccountState) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, s := range states {
		a := b.find(s.AccountID)
		if a == nil {
			continue
		}
		sequence := a.Sequence
		if s.Sequence > sequence {
			sequence = s.Sequence
		}
		if !a.UpdatedAt.After(s.UpdatedAt) {
			*a = s.copy()
			b.trimHistory(a)
		}
		a.Sequence = sequence
	}
}

// Accounts returns a copy of every tracked account state.
func (b *AccountBook) Accounts() []AccountState {
	b.lock.RLock()
	defer b.lock.RUnlock()

	accounts := make([]AccountState, 0, len(b.accounts))
	for _, a := range b.accounts {
		accounts = append(accounts, a.copy())
	}
	return accounts
}

// AccountIDs returns the tracked accounts in vault order.
func (b *AccountBook) AccountIDs() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()

	ids := make([]string, 0, len(b.accounts))
	for _, a := range b.accounts {
		ids = append(ids, a.AccountID)
	}
	return ids
}

// Account returns the state of the account with the given id.
func (b *AccountBook) Account(accountID string) (AccountState, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	a := b.find(accountID)
	if a == nil {
		return AccountState{}, false
	}
	return a.copy(), true
}

// Tracks tells whether accountID belongs to the book.
func (b *AccountBook) Tracks(accountID string) bool {
	_, ok := b.Account(accountID)
	return ok
}

// SetInfo records the balance and sequence reported by the network. The
// sequence never goes backwards.
func (b *AccountBook) SetInfo(accountID string, balance uint64, sequence uint32) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.find(accountID)
	if a == nil {
		return false
	}
	a.Balance = balance
	if sequence > a.Sequence {
		a.Sequence = sequence
	}
	a.Funded = true
	a.UpdatedAt = time.Now()
	return true
}

// SetUnfunded marks an account the network does not know about.
func (b *AccountBook) SetUnfunded(accountID string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.find(accountID)
	if a == nil {
		return false
	}
	a.Balance = 0
	a.Funded = false
	a.UpdatedAt = time.Now()
	return true
}

// SetHistory replaces the transaction history of an account.
func (b *AccountBook) SetHistory(accountID string, txs []TxSummary) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.find(accountID)
	if a == nil {
		return false
	}

	seen := make(map[string]bool, len(txs))
	history := make([]TxSummary, 0, len(txs))
	for _, tx := range txs {
		if seen[tx.Hash] {
			continue
		}
		seen[tx.Hash] = true
		history = append(history, tx)
	}
	a.Transactions = history
	b.trimHistory(a)
	return true
}

// AddTransaction prepends tx to the history of an account, unless a
// transaction with the same hash is already there.
func (b *AccountBook) AddTransaction(accountID string, tx TxSummary) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.find(accountID)
	if a == nil {
		return false
	}
	for _, t := range a.Transactions {
		if t.Hash == tx.Hash {
			return false
		}
	}
	a.Transactions = append([]TxSummary{tx}, a.Transactions...)
	b.trimHistory(a)
	return true
}

// KnownSequence returns the last sequence reported for the account, if any.
func (b *AccountBook) KnownSequence(accountID string) (uint32, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	a := b.find(accountID)
	if a == nil || !a.Funded {
		return 0, false
	}
	return a.Sequence, true
}

// Balance returns the last balance reported for the account, if any.
func (b *AccountBook) Balance(accountID string) (uint64, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	a := b.find(accountID)
	if a == nil || !a.Funded {
		return 0, false
	}
	return a.Balance, true
}

// SwitchAccount makes the account at index the current one.
func (b *AccountBook) SwitchAccount(index int) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if index < 0 || index >= len(b.accounts) {
		return ErrNoSuchAccount
	}
	b.current = index
	return nil
}

// Current returns the index of the current account.
func (b *AccountBook) Current() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.current
}

func (b *AccountBook) find(accountID string) *AccountState {
	for _, a := range b.accounts {
		if a.AccountID == accountID {
			return a
		}
	}
	return nil
}

func (b *AccountBook) trimHistory(a *AccountState) {
	// Transactions not yet in a ledger are the newest.
	rank := func(tx TxSummary) uint32 {
		if tx.LedgerIndex == 0 {
			return math.MaxUint32
		}
		return tx.LedgerIndex
	}
	sort.SliceStable(a.Transactions, func(i, j int) bool {
		return rank(a.Transactions[i]) > rank(a.Transactions[j])
	})
	if len(a.Transactions) > b.historyLimit {
		a.Transactions = a.Transactions[:b.historyLimit]
	}
}
