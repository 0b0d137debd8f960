package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const legacyBackupSuffix = ".legacy.bak"

// ErrWalletNotFound is returned when unlocking a wallet file that does not
// exist.
var ErrWalletNotFound = errors.New("wallet file not found")

// EventHandler is notified of every session event once the service has
// processed it.
type EventHandler func(event ports.SessionEvent)

type WalletService interface {
	Create(ctx context.Context, password string) (string, error)
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	GenerateAccount(ctx context.Context) (domain.KeyEntry, error)
	ImportAccount(ctx context.Context, secret string) (domain.KeyEntry, error)
	ExportSecret(ctx context.Context, index int) (string, error)
	Accounts(ctx context.Context) ([]domain.AccountState, int)
	SwitchAccount(ctx context.Context, index int) error
	Save(ctx context.Context, overwrite bool) (string, error)
	Ledger(ctx context.Context) domain.LedgerState
	PreparePayment(ctx context.Context, req PaymentRequest) (*SignedPayment, error)
	SendPayment(ctx context.Context, payment *SignedPayment) (ports.EventSubmitResult, error)
	Listen(ctx context.Context, handler EventHandler) error
}

type walletService struct {
	vault      *domain.KeyVault
	accounts   *domain.AccountBook
	ledger     *domain.LedgerCache
	repository domain.AccountRepository
	session    ports.LedgerSession
	builder    *PaymentBuilder

	lock      *sync.Mutex
	waiters   map[uint64]chan ports.EventSubmitResult
	results   map[uint64]unclaimedResult
	abandoned map[uint64]uint64
	online    bool
	outages   uint64
}

// unclaimedResult is a submission outcome that arrived before anybody waited
// for it.
type unclaimedResult struct {
	res     ports.EventSubmitResult
	outages uint64
}

// NewWalletService returns the service driving the given vault. session may
// be nil for offline use, in which case SendPayment fails with
// domain.ErrConnectionLost.
func NewWalletService(
	vault *domain.KeyVault,
	accounts *domain.AccountBook,
	ledger *domain.LedgerCache,
	repository domain.AccountRepository,
	session ports.LedgerSession,
) WalletService {
	return &walletService{
		vault:      vault,
		accounts:   accounts,
		ledger:     ledger,
		repository: repository,
		session:    session,
		builder:    NewPaymentBuilder(vault, ledger, accounts),
		lock:       &sync.Mutex{},
		waiters:    make(map[uint64]chan ports.EventSubmitResult),
		results:    make(map[uint64]unclaimedResult),
		abandoned:  make(map[uint64]uint64),
	}
}

// Create initializes a new empty wallet and writes it, next to the existing
// one if the configured file is already taken.
func (w *walletService) Create(ctx context.Context, password string) (string, error) {
	if err := w.vault.Create(password); err != nil {
		return "", err
	}
	path, err := w.vault.Save(false)
	if err != nil {
		return "", err
	}
	w.syncAccounts(ctx)
	log.WithField("path", path).Info("wallet created")
	return path, nil
}

// Unlock loads the wallet file and decrypts its accounts. A legacy wallet is
// converted, backed up and rewritten in the current format first.
func (w *walletService) Unlock(ctx context.Context, password string) error {
	if !w.vault.Exists() {
		return ErrWalletNotFound
	}

	if err := w.vault.Load(); err != nil {
		if !errors.Is(err, domain.ErrLegacyWallet) {
			return err
		}
		if err := w.migrateLegacy(password); err != nil {
			return err
		}
	} else if err := w.vault.Unlock(password); err != nil {
		return err
	}

	w.syncAccounts(ctx)
	log.WithField("accounts", len(w.vault.Entries())).Info("wallet unlocked")
	return nil
}

func (w *walletService) Lock(_ context.Context) {
	w.vault.Lock()
	log.Info("wallet locked")
}

// ChangePassword re-encrypts the wallet under newPassword and rewrites it.
func (w *walletService) ChangePassword(
	_ context.Context, oldPassword, newPassword string,
) error {
	if err := w.vault.ChangePassword(oldPassword, newPassword); err != nil {
		return err
	}
	if _, err := w.vault.Save(true); err != nil {
		return err
	}
	log.Info("wallet password changed")
	return nil
}

func (w *walletService) GenerateAccount(ctx context.Context) (domain.KeyEntry, error) {
	entry, err := w.vault.GenerateNew()
	if err != nil {
		return domain.KeyEntry{}, err
	}
	w.syncAccounts(ctx)
	log.WithField("account", entry.AccountID).Info("account generated")
	return entry, nil
}

func (w *walletService) ImportAccount(
	ctx context.Context, secret string,
) (domain.KeyEntry, error) {
	entry, err := w.vault.ImportSecret(secret)
	if err != nil {
		return domain.KeyEntry{}, err
	}
	w.syncAccounts(ctx)
	log.WithField("account", entry.AccountID).Info("account imported")
	return entry, nil
}

func (w *walletService) ExportSecret(_ context.Context, index int) (string, error) {
	return w.vault.ExportSecret(index)
}

func (w *walletService) Accounts(_ context.Context) ([]domain.AccountState, int) {
	return w.accounts.Accounts(), w.accounts.Current()
}

func (w *walletService) SwitchAccount(_ context.Context, index int) error {
	return w.accounts.SwitchAccount(index)
}

func (w *walletService) Save(_ context.Context, overwrite bool) (string, error) {
	path, err := w.vault.Save(overwrite)
	if err != nil {
		return "", err
	}
	log.WithField("path", path).Debug("wallet saved")
	return path, nil
}

func (w *walletService) Ledger(_ context.Context) domain.LedgerState {
	return w.ledger.Current()
}

func (w *walletService) PreparePayment(
	_ context.Context, req PaymentRequest,
) (*SignedPayment, error) {
	return w.builder.BuildPayment(req)
}

// SendPayment submits a signed payment and waits for its outcome. Listen must
// be running to receive it. A rejected payment returns the result along with
// an error matching domain.ErrSubmitRejected.
func (w *walletService) SendPayment(
	ctx context.Context, payment *SignedPayment,
) (ports.EventSubmitResult, error) {
	if w.session == nil {
		return ports.EventSubmitResult{}, domain.ErrConnectionLost
	}

	id, err := w.session.Submit(ctx, payment.SignedBlobHex)
	if err != nil {
		return ports.EventSubmitResult{}, err
	}
	log.WithFields(log.Fields{
		"id":   id,
		"hash": payment.Hash,
	}).Info("payment submitted")

	w.lock.Lock()
	if r, ok := w.results[id]; ok {
		delete(w.results, id)
		w.lock.Unlock()
		return r.res, r.res.Err
	}
	ch := make(chan ports.EventSubmitResult, 1)
	w.waiters[id] = ch
	w.lock.Unlock()

	select {
	case res := <-ch:
		return res, res.Err
	case <-ctx.Done():
		w.lock.Lock()
		if _, ok := w.waiters[id]; ok {
			delete(w.waiters, id)
			w.abandoned[id] = w.outages
		}
		w.lock.Unlock()
		return ports.EventSubmitResult{}, ctx.Err()
	}
}

// Listen consumes the session events until the session stops or ctx is done.
// Account updates are persisted to the repository and submission outcomes
// are delivered to the pending SendPayment calls.
func (w *walletService) Listen(ctx context.Context, handler EventHandler) error {
	if w.session == nil {
		return domain.ErrConnectionLost
	}

	events := w.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
			if handler != nil {
				handler(event)
			}
		}
	}
}

func (w *walletService) handleEvent(ctx context.Context, event ports.SessionEvent) {
	switch e := event.(type) {
	case ports.EventAccountInfo:
		w.persist(ctx, e.Account)
	case ports.EventAccountTx:
		w.persist(ctx, e.Account)
	case ports.EventSubmitResult:
		w.resolve(e)
	case ports.EventRequestFailed:
		if e.Request.Kind == ports.KindSubmit {
			w.resolve(ports.EventSubmitResult{
				RequestID: e.Request.RequestID,
				Err:       e.Err,
			})
		}
	case ports.EventStateChanged:
		w.trackOnline(e.State)
		if e.State == ports.StateSubscribed {
			log.WithField("endpoint", e.Endpoint).Info("online")
		} else if !e.State.IsOnline() && e.Reason != "" {
			log.WithField("reason", e.Reason).Info("offline")
		}
	}
}

func (w *walletService) resolve(res ports.EventSubmitResult) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if ch, ok := w.waiters[res.RequestID]; ok {
		delete(w.waiters, res.RequestID)
		ch <- res
		return
	}
	if _, ok := w.abandoned[res.RequestID]; ok {
		delete(w.abandoned, res.RequestID)
		return
	}
	w.results[res.RequestID] = unclaimedResult{res, w.outages}
}

// trackOnline drops, on every disconnection, the unclaimed results and the
// ids abandoned by SendPayment that already survived the previous one. A
// result landing right before a disconnection is kept for the SendPayment
// call still registering for it.
func (w *walletService) trackOnline(state ports.SessionState) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if state.IsOnline() {
		w.online = true
		return
	}
	if !w.online {
		return
	}
	w.online = false
	for id, r := range w.results {
		if r.outages < w.outages {
			delete(w.results, id)
		}
	}
	for id, outages := range w.abandoned {
		if outages < w.outages {
			delete(w.abandoned, id)
		}
	}
	w.outages++
}

func (w *walletService) persist(ctx context.Context, state domain.AccountState) {
	if w.repository == nil {
		return
	}
	if err := w.repository.UpsertAccount(ctx, state); err != nil {
		log.WithError(err).WithField("account", state.AccountID).Warn(
			"unable to persist account state",
		)
	}
}

// syncAccounts aligns the account book with the vault entries, seeds it with
// the persisted states and asks the session to fetch fresh ones. Persisted
// states of accounts no longer in the vault are deleted.
func (w *walletService) syncAccounts(ctx context.Context) {
	entries := w.vault.Entries()
	ids := make([]string, 0, len(entries))
	inVault := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountID)
		inVault[e.AccountID] = true
	}
	w.accounts.Sync(ids)

	if w.repository != nil {
		states, err := w.repository.GetAllAccounts(ctx)
		if err != nil {
			log.WithError(err).Warn("unable to restore persisted account states")
		} else {
			kept := make([]domain.AccountState, 0, len(states))
			for _, s := range states {
				if inVault[s.AccountID] {
					kept = append(kept, s)
					continue
				}
				if err := w.repository.DeleteAccount(ctx, s.AccountID); err != nil {
					log.WithError(err).WithField("account", s.AccountID).Warn(
						"unable to delete stale account state",
					)
				}
			}
			w.accounts.Restore(kept)
		}
	}

	if w.session != nil && w.session.State().IsOnline() {
		if err := w.session.Refresh(ctx); err != nil {
			log.WithError(err).Debug("unable to refresh accounts")
		}
	}
}

// migrateLegacy converts the legacy wallet file, keeps a backup of it and
// overwrites it with the converted one.
func (w *walletService) migrateLegacy(password string) error {
	path := w.vault.Path()
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	blob, err := w.vault.ConvertLegacy(raw, password)
	if err != nil {
		return err
	}

	backup, err := writeBackup(path, raw)
	if err != nil {
		return fmt.Errorf("unable to back up legacy wallet: %w", err)
	}

	w.vault.Restore(blob)
	if err := w.vault.Unlock(password); err != nil {
		return err
	}
	if _, err := w.vault.Save(true); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":   path,
		"backup": backup,
	}).Info("legacy wallet converted")
	return nil
}

// writeBackup writes raw next to path without ever replacing an existing
// file.
func writeBackup(path string, raw []byte) (string, error) {
	for i := 0; ; i++ {
		backup := path + legacyBackupSuffix
		if i > 0 {
			backup = fmt.Sprintf("%s.%d", backup, i)
		}

		f, err := os.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", err
		}
		if _, err := f.Write(raw); err != nil {
			//nolint
			f.Close()
			return "", err
		}
		if err := f.Sync(); err != nil {
			//nolint
			f.Close()
			return "", err
		}
		return backup, f.Close()
	}
}
