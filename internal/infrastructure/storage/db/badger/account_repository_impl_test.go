package dbbadger_test

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	dbbadger "github.com/ledgerdesk/ledgerdesk/internal/infrastructure/storage/db/badger"
	"github.com/stretchr/testify/require"
)

func newTestState(accountID string, balance uint64) domain.AccountState {
	return domain.AccountState{
		AccountID: accountID,
		Balance:   balance,
		Sequence:  7,
		Funded:    true,
		Transactions: []domain.TxSummary{
			{
				Hash:        "AA11",
				Type:        "Payment",
				Account:     accountID,
				Destination: "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe",
				Amount:      1000000,
				Fee:         12,
				LedgerIndex: 90,
				Result:      "tesSUCCESS",
				Date:        time.Unix(1700000000, 0).UTC(),
				Validated:   true,
			},
		},
		UpdatedAt: time.Unix(1700000100, 0).UTC(),
	}
}

func TestAccountRepository(t *testing.T) {
	t.Run("InMemory", func(t *testing.T) {
		db, err := dbbadger.NewDbManager("", nil)
		require.NoError(t, err)
		testAccountRepository(t, dbbadger.NewAccountRepositoryImpl(db))
	})

	t.Run("OnDisk", func(t *testing.T) {
		dir := t.TempDir()
		db, err := dbbadger.NewDbManager(dir, nil)
		require.NoError(t, err)
		repo := dbbadger.NewAccountRepositoryImpl(db)

		ctx := context.Background()
		state := newTestState("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", 25000000)
		require.NoError(t, repo.UpsertAccount(ctx, state))
		require.NoError(t, repo.Close())

		db, err = dbbadger.NewDbManager(dir, nil)
		require.NoError(t, err)
		repo = dbbadger.NewAccountRepositoryImpl(db)
		defer repo.Close()

		got, err := repo.GetAccount(ctx, state.AccountID)
		require.NoError(t, err)
		require.Equal(t, state, *got)
	})
}

func testAccountRepository(t *testing.T, repo domain.AccountRepository) {
	ctx := context.Background()
	defer repo.Close()

	_, err := repo.GetAccount(ctx, "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	first := newTestState("rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", 25000000)
	second := newTestState("rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe", 5000000)
	require.NoError(t, repo.UpsertAccount(ctx, second))
	require.NoError(t, repo.UpsertAccount(ctx, first))

	got, err := repo.GetAccount(ctx, first.AccountID)
	require.NoError(t, err)
	require.Equal(t, first, *got)

	first.Balance = 30000000
	first.Sequence = 8
	require.NoError(t, repo.UpsertAccount(ctx, first))

	all, err := repo.GetAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first, all[0])
	require.Equal(t, second, all[1])

	require.NoError(t, repo.DeleteAccount(ctx, second.AccountID))
	require.ErrorIs(t, repo.DeleteAccount(ctx, second.AccountID), domain.ErrAccountNotFound)

	all, err = repo.GetAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
