package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/urfave/cli/v2"
)

var balance = cli.Command{
	Name:   "balance",
	Usage:  "connect to the ledger and print the balance of every wallet account",
	Flags:  []cli.Flag{timeoutFlag},
	Action: balanceAction,
}

func balanceAction(ctx *cli.Context) error {
	app, err := unlockedWallet(ctx, true)
	if err != nil {
		return err
	}
	defer app.close()

	accounts, _ := app.service.Accounts(ctx.Context)
	if len(accounts) <= 0 {
		fmt.Println("no accounts, use 'generate' or 'import' to add one")
		return nil
	}

	waiting := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		waiting[a.AccountID] = struct{}{}
	}
	ready := make(chan struct{})
	once := &sync.Once{}

	onEvent := func(event ports.SessionEvent) bool {
		if e, ok := event.(ports.EventAccountInfo); ok {
			delete(waiting, e.Account.AccountID)
			if len(waiting) == 0 {
				once.Do(func() { close(ready) })
			}
		}
		return false
	}

	return runOnline(ctx.Context, app, onEvent, func(gctx context.Context) error {
		if err := waitFor(gctx, ready, ctx.Duration(timeoutFlagName)); err != nil {
			return err
		}

		accounts, current := app.service.Accounts(gctx)
		for i, a := range accounts {
			line := formatAccount(i, a)
			if i == current {
				line += "  *"
			}
			fmt.Println(line)
		}
		if ledger := app.service.Ledger(gctx); ledger.IsKnown() {
			fmt.Printf("ledger %d\n", ledger.LedgerIndex)
		}
		return nil
	})
}
