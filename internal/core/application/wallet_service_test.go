package application_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/core/application"
	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/internal/infrastructure/storage/db/inmemory"
	"github.com/ledgerdesk/ledgerdesk/pkg/keypairs"
	"github.com/ledgerdesk/ledgerdesk/pkg/wallet"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type serviceFixture struct {
	path       string
	accounts   *domain.AccountBook
	repository domain.AccountRepository
	service    application.WalletService
}

func newServiceFixture(
	t *testing.T, path string, repo domain.AccountRepository, session ports.LedgerSession,
) *serviceFixture {
	if repo == nil {
		repo = inmemory.NewAccountRepositoryImpl()
	}
	vault := domain.NewKeyVault(path, testIterations)
	accounts := domain.NewAccountBook(0)
	svc := application.NewWalletService(
		vault, accounts, domain.NewLedgerCache(), repo, session,
	)
	return &serviceFixture{
		path:       path,
		accounts:   accounts,
		repository: repo,
		service:    svc,
	}
}

func accountIDs(states []domain.AccountState) []string {
	ids := make([]string, 0, len(states))
	for _, s := range states {
		ids = append(ids, s.AccountID)
	}
	return ids
}

func TestWalletService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	f := newServiceFixture(t, path, nil, nil)

	written, err := f.service.Create(ctx, testPassword)
	require.NoError(t, err)
	require.Equal(t, path, written)

	generated, err := f.service.GenerateAccount(ctx)
	require.NoError(t, err)
	imported, err := f.service.ImportAccount(ctx, genesisSeed)
	require.NoError(t, err)
	require.Equal(t, genesisAddress, imported.AccountID)

	_, err = f.service.ImportAccount(ctx, genesisSeed)
	require.ErrorIs(t, err, domain.ErrAccountExists)
	_, err = f.service.ImportAccount(ctx, "not a secret")
	require.ErrorIs(t, err, domain.ErrInvalidKeyFormat)

	states, current := f.service.Accounts(ctx)
	require.Equal(t, []string{generated.AccountID, genesisAddress}, accountIDs(states))
	require.Zero(t, current)

	require.NoError(t, f.service.SwitchAccount(ctx, 1))
	_, current = f.service.Accounts(ctx)
	require.Equal(t, 1, current)
	require.ErrorIs(t, f.service.SwitchAccount(ctx, 2), domain.ErrNoSuchAccount)

	secret, err := f.service.ExportSecret(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, genesisSeed, secret)
	_, err = f.service.ExportSecret(ctx, 2)
	require.ErrorIs(t, err, domain.ErrNoSuchAccount)

	_, err = f.service.Save(ctx, true)
	require.NoError(t, err)

	f.service.Lock(ctx)
	_, err = f.service.ExportSecret(ctx, 0)
	require.ErrorIs(t, err, domain.ErrVaultLocked)

	reopened := newServiceFixture(t, path, nil, nil)
	require.ErrorIs(t, reopened.service.Unlock(ctx, "wrong"), domain.ErrWrongPassword)
	require.NoError(t, reopened.service.Unlock(ctx, testPassword))

	states, _ = reopened.service.Accounts(ctx)
	require.Equal(t, []string{generated.AccountID, genesisAddress}, accountIDs(states))
	secret, err = reopened.service.ExportSecret(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, genesisSeed, secret)
}

func TestWalletServiceCreateKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")

	first := newServiceFixture(t, path, nil, nil)
	_, err := first.service.Create(ctx, testPassword)
	require.NoError(t, err)

	second := newServiceFixture(t, path, nil, nil)
	written, err := second.service.Create(ctx, "another password")
	require.NoError(t, err)
	require.NotEqual(t, path, written)

	require.NoError(t, newServiceFixture(t, path, nil, nil).service.Unlock(ctx, testPassword))
	require.NoError(t, newServiceFixture(t, written, nil, nil).service.Unlock(ctx, "another password"))
}

func TestWalletServiceChangePassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	f := newServiceFixture(t, path, nil, nil)

	_, err := f.service.Create(ctx, testPassword)
	require.NoError(t, err)
	_, err = f.service.ImportAccount(ctx, genesisSeed)
	require.NoError(t, err)
	_, err = f.service.Save(ctx, true)
	require.NoError(t, err)

	require.ErrorIs(t,
		f.service.ChangePassword(ctx, "wrong", "n3wP4ssw0rd"), domain.ErrWrongPassword,
	)
	require.NoError(t, f.service.ChangePassword(ctx, testPassword, "n3wP4ssw0rd"))

	reopened := newServiceFixture(t, path, nil, nil)
	require.ErrorIs(t, reopened.service.Unlock(ctx, testPassword), domain.ErrWrongPassword)
	require.NoError(t, reopened.service.Unlock(ctx, "n3wP4ssw0rd"))

	secret, err := reopened.service.ExportSecret(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, genesisSeed, secret)
}

func TestWalletServiceUnlockMissingWallet(t *testing.T) {
	f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), nil, nil)
	require.ErrorIs(t, f.service.Unlock(ctx, testPassword), application.ErrWalletNotFound)
}

func TestWalletServiceRestoresPersistedAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	repo := inmemory.NewAccountRepositoryImpl()

	f := newServiceFixture(t, path, repo, nil)
	_, err := f.service.Create(ctx, testPassword)
	require.NoError(t, err)
	_, err = f.service.ImportAccount(ctx, genesisSeed)
	require.NoError(t, err)
	_, err = f.service.Save(ctx, true)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertAccount(ctx, domain.AccountState{
		AccountID: genesisAddress,
		Balance:   25000000,
		Sequence:  9,
		Funded:    true,
	}))

	reopened := newServiceFixture(t, path, repo, nil)
	require.NoError(t, reopened.service.Unlock(ctx, testPassword))

	states, _ := reopened.service.Accounts(ctx)
	require.Len(t, states, 1)
	require.Equal(t, uint64(25000000), states[0].Balance)
	sequence, ok := reopened.accounts.KnownSequence(genesisAddress)
	require.True(t, ok)
	require.Equal(t, uint32(9), sequence)
}

func TestWalletServiceKeepsReportedSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	repo := inmemory.NewAccountRepositoryImpl()
	f := newServiceFixture(t, path, repo, nil)

	_, err := f.service.Create(ctx, testPassword)
	require.NoError(t, err)
	_, err = f.service.ImportAccount(ctx, genesisSeed)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertAccount(ctx, domain.AccountState{
		AccountID: genesisAddress,
		Balance:   25000000,
		Sequence:  5,
		Funded:    true,
		UpdatedAt: time.Now().Add(-time.Hour),
	}))
	require.True(t, f.accounts.SetInfo(genesisAddress, 50000000, 10))

	// every account change restores the persisted states again
	generated, err := f.service.GenerateAccount(ctx)
	require.NoError(t, err)

	sequence, ok := f.accounts.KnownSequence(genesisAddress)
	require.True(t, ok)
	require.Equal(t, uint32(10), sequence)

	req := application.PaymentRequest{
		SenderIndex: 0,
		Destination: generated.AccountID,
		Amount:      1000000,
		Fee:         12,
		Sequence:    6,
	}
	_, err = f.service.PreparePayment(ctx, req)
	require.ErrorIs(t, err, domain.ErrStaleSequence)

	req.Sequence = 10
	signed, err := f.service.PreparePayment(ctx, req)
	require.NoError(t, err)
	require.Equal(t, uint32(10), signed.TxJSON.Sequence)
}

func TestWalletServicePrunesStaleAccountStates(t *testing.T) {
	const foreignAccount = "rrrrrrrrrrrrrrrrrrrrBZbvji"

	path := filepath.Join(t.TempDir(), "wallet.json")
	repo := inmemory.NewAccountRepositoryImpl()

	f := newServiceFixture(t, path, repo, nil)
	_, err := f.service.Create(ctx, testPassword)
	require.NoError(t, err)
	_, err = f.service.ImportAccount(ctx, genesisSeed)
	require.NoError(t, err)
	_, err = f.service.Save(ctx, true)
	require.NoError(t, err)

	for _, id := range []string{genesisAddress, foreignAccount} {
		require.NoError(t, repo.UpsertAccount(ctx, domain.AccountState{
			AccountID: id,
			Balance:   1000,
			Sequence:  3,
			Funded:    true,
		}))
	}

	reopened := newServiceFixture(t, path, repo, nil)
	require.NoError(t, reopened.service.Unlock(ctx, testPassword))

	_, err = repo.GetAccount(ctx, foreignAccount)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	state, err := repo.GetAccount(ctx, genesisAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), state.Balance)

	states, _ := reopened.service.Accounts(ctx)
	require.Equal(t, []string{genesisAddress}, accountIDs(states))
}

func TestWalletServiceMigratesLegacyWallet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.json")
	hexSecret := "1111111111111111111111111111111111111111111111111111111111111111"

	raw := newLegacyWallet(t, testPassword, []string{genesisSeed, hexSecret})
	require.NoError(t, os.WriteFile(path, raw, 0600))
	// an earlier backup is never overwritten
	require.NoError(t, os.WriteFile(path+".legacy.bak", []byte("old"), 0600))

	f := newServiceFixture(t, path, nil, nil)
	require.ErrorIs(t, f.service.Unlock(ctx, "wrong"), domain.ErrWrongPassword)
	_, err := os.Stat(path + ".legacy.bak.1")
	require.True(t, os.IsNotExist(err))

	require.NoError(t, f.service.Unlock(ctx, testPassword))

	states, _ := f.service.Accounts(ctx)
	require.Len(t, states, 2)
	require.Equal(t, genesisAddress, states[0].AccountID)
	secret, err := f.service.ExportSecret(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, hexSecret, secret)

	backup, err := os.ReadFile(path + ".legacy.bak.1")
	require.NoError(t, err)
	require.Equal(t, raw, backup)
	old, err := os.ReadFile(path + ".legacy.bak")
	require.NoError(t, err)
	require.Equal(t, []byte("old"), old)

	converted, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, domain.IsLegacyWallet(converted))

	reopened := newServiceFixture(t, path, nil, nil)
	require.NoError(t, reopened.service.Unlock(ctx, testPassword))
	states, _ = reopened.service.Accounts(ctx)
	require.Len(t, states, 2)
}

func TestWalletServiceSendPayment(t *testing.T) {
	payment := &application.SignedPayment{SignedBlobHex: "120000", Hash: "ABCD"}

	tests := []struct {
		name        string
		event       ports.SessionEvent
		expectedErr error
	}{
		{
			name: "accepted",
			event: ports.EventSubmitResult{
				RequestID: 7, Accepted: true, EngineResult: "tesSUCCESS", Hash: "ABCD",
			},
		},
		{
			name: "rejected",
			event: ports.EventSubmitResult{
				RequestID: 7, EngineResult: "tefPAST_SEQ", Err: domain.ErrSubmitRejected,
			},
			expectedErr: domain.ErrSubmitRejected,
		},
		{
			name: "connection lost",
			event: ports.EventRequestFailed{
				Request: ports.PendingRequest{RequestID: 7, Kind: ports.KindSubmit},
				Err:     domain.ErrConnectionLost,
			},
			expectedErr: domain.ErrConnectionLost,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			session := newMockSession()
			session.On("Submit", mock.Anything, payment.SignedBlobHex).Return(uint64(7), nil)

			f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), nil, session)

			listenCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				//nolint
				f.service.Listen(listenCtx, nil)
			}()

			session.events <- tt.event
			res, err := f.service.SendPayment(ctx, payment)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				require.True(t, res.Accepted)
			}
			require.Equal(t, uint64(7), res.RequestID)
			session.AssertExpectations(t)
		})
	}

	t.Run("offline", func(t *testing.T) {
		f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), nil, nil)
		_, err := f.service.SendPayment(ctx, payment)
		require.ErrorIs(t, err, domain.ErrConnectionLost)
		require.ErrorIs(t, f.service.Listen(ctx, nil), domain.ErrConnectionLost)
	})

	t.Run("submit fails", func(t *testing.T) {
		session := newMockSession()
		session.On("Submit", mock.Anything, payment.SignedBlobHex).
			Return(nil, domain.ErrConnectionLost)

		f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), nil, session)
		_, err := f.service.SendPayment(ctx, payment)
		require.ErrorIs(t, err, domain.ErrConnectionLost)
	})

	t.Run("context canceled", func(t *testing.T) {
		session := newMockSession()
		session.On("Submit", mock.Anything, payment.SignedBlobHex).Return(uint64(1), nil)

		f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), nil, session)
		timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := f.service.SendPayment(timeoutCtx, payment)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWalletServiceListen(t *testing.T) {
	session := newMockSession()
	repo := inmemory.NewAccountRepositoryImpl()
	f := newServiceFixture(t, filepath.Join(t.TempDir(), "wallet.json"), repo, session)

	received := make(chan ports.SessionEvent, 8)
	done := make(chan error, 1)
	go func() {
		done <- f.service.Listen(ctx, func(e ports.SessionEvent) { received <- e })
	}()

	state := domain.AccountState{AccountID: genesisAddress, Balance: 42, Funded: true}
	session.events <- ports.EventStateChanged{State: ports.StateSubscribed, Endpoint: "wss://ledger.test"}
	session.events <- ports.EventAccountInfo{Account: state}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			require.FailNow(t, "event not forwarded")
		}
	}

	persisted, err := repo.GetAccount(ctx, genesisAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(42), persisted.Balance)

	close(session.events)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "listen did not return")
	}
}

func newLegacyWallet(t *testing.T, password string, secrets []string) []byte {
	salt := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	rounds := 500
	key, iv, err := wallet.LegacyDeriveKey([]byte(password), salt, rounds)
	require.NoError(t, err)

	legacy := domain.LegacyBlob{
		DeriveIterations: rounds,
		Salt:             hex.EncodeToString(salt),
	}
	for _, s := range secrets {
		kp, err := keypairs.ParseSecret(s)
		require.NoError(t, err)
		addr, err := keypairs.Address(kp.PublicKey)
		require.NoError(t, err)
		cypher, err := wallet.LegacyEncrypt([]byte(s), key, iv)
		require.NoError(t, err)
		legacy.Keys = append(legacy.Keys, domain.LegacyBlobKey{
			AccountID:    addr,
			EncryptedKey: hex.EncodeToString(cypher),
		})
	}

	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	return raw
}
