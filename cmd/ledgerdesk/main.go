package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/core/application"
	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/internal/infrastructure/rpc"
	dbbadger "github.com/ledgerdesk/ledgerdesk/internal/infrastructure/storage/db/badger"
	"github.com/ledgerdesk/ledgerdesk/internal/infrastructure/storage/db/inmemory"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const passwordFileFlagName = "password-file"

var version = "dev"

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "ledgerdesk"
	app.Usage = "Command line wallet for the XRP Ledger"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    passwordFileFlagName,
			Usage:   "the path of the file containing the wallet password, if not set the password is prompted",
			EnvVars: []string{"LEDGERDESK_" + config.WalletUnlockPasswordFileKey},
		},
	}
	app.Before = func(_ *cli.Context) error {
		if err := config.InitConfig(); err != nil {
			return err
		}
		log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
		return nil
	}
	app.Commands = append(
		app.Commands,
		&create,
		&changepassword,
		&convert,
		&generate,
		&importaccount,
		&exportaccount,
		&listaccounts,
		&balance,
		&send,
		&watch,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// walletApp bundles the wallet service with the resources it owns.
type walletApp struct {
	service application.WalletService
	session *rpc.Session
	repo    domain.AccountRepository
}

// newWalletApp wires the wallet service. The ledger session is created only
// when online is set.
func newWalletApp(online bool) (*walletApp, error) {
	ledger := domain.NewLedgerCache()
	accounts := domain.NewAccountBook(config.GetInt(config.TxHistoryLimitKey))
	vault := domain.NewKeyVault(
		config.GetWalletPath(), config.GetInt(config.KDFIterationsKey),
	)

	repo, err := newAccountRepository()
	if err != nil {
		return nil, err
	}

	app := &walletApp{repo: repo}
	var session ports.LedgerSession
	if online {
		s, err := rpc.NewSession(rpc.Opts{
			Endpoints:          config.GetServers(),
			Ledger:             ledger,
			Accounts:           accounts,
			BaseDelay:          config.GetDuration(config.ReconnectBaseDelayKey),
			MaxDelay:           config.GetDuration(config.ReconnectMaxDelayKey),
			MaxExponent:        config.GetInt(config.ReconnectMaxExponentKey),
			IdleTimeout:        config.GetDuration(config.IdleTimeoutKey),
			RequestsPerSecond:  config.GetInt(config.RequestsPerSecondKey),
			HistoryLimit:       config.GetInt(config.TxHistoryLimitKey),
			BreakerMaxFailures: uint32(config.GetInt(config.BreakerMaxFailuresKey)),
			BreakerTimeout:     config.GetDuration(config.BreakerTimeoutKey),
		})
		if err != nil {
			//nolint
			repo.Close()
			return nil, err
		}
		app.session = s
		session = s
	}

	app.service = application.NewWalletService(vault, accounts, ledger, repo, session)
	return app, nil
}

func newAccountRepository() (domain.AccountRepository, error) {
	switch config.GetString(config.DBTypeKey) {
	case config.DBInMemory:
		return inmemory.NewAccountRepositoryImpl(), nil
	default:
		db, err := dbbadger.NewDbManager(config.GetDbDir(), log.StandardLogger())
		if err != nil {
			return nil, err
		}
		return dbbadger.NewAccountRepositoryImpl(db), nil
	}
}

func (a *walletApp) close() {
	if a.session != nil {
		a.session.Close()
	}
	a.service.Lock(context.Background())
	if err := a.repo.Close(); err != nil {
		log.WithError(err).Warn("unable to close account db")
	}
}

// unlockedWallet returns a wallet app with the wallet already unlocked.
func unlockedWallet(ctx *cli.Context, online bool) (*walletApp, error) {
	password, err := readPassword(ctx, "Wallet password: ")
	if err != nil {
		return nil, err
	}
	return openWallet(ctx, online, password)
}

func openWallet(ctx *cli.Context, online bool, password string) (*walletApp, error) {
	app, err := newWalletApp(online)
	if err != nil {
		return nil, err
	}
	if err := app.service.Unlock(ctx.Context, password); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var usageErr *invalidUsageError
	var walletErr *domain.Error
	switch {
	case errors.As(err, &usageErr):
		_ = cli.ShowCommandHelp(usageErr.ctx, usageErr.command)
	case errors.As(err, &walletErr):
		_, _ = fmt.Fprintf(
			os.Stderr, "[ledgerdesk] %s: %v\n", walletErr.Caption, err,
		)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "[ledgerdesk] %v\n", err)
	}
	os.Exit(1)
}
