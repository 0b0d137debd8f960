package main

import (
	"fmt"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/pkg/binarycodec"
	"github.com/urfave/cli/v2"
)

const (
	accountFlagName    = "account"
	secretFileFlagName = "secret-file"
)

var accountFlag = &cli.IntFlag{
	Name:  accountFlagName,
	Usage: "the index of the wallet account to use",
	Value: 0,
}

var generate = cli.Command{
	Name:   "generate",
	Usage:  "generate a new account and add it to the wallet",
	Action: generateAction,
}

var importaccount = cli.Command{
	Name:      "import",
	Usage:     "import an account from its family seed or hex private key",
	ArgsUsage: "[secret]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  secretFileFlagName,
			Usage: "the path of the file containing the secret, if neither this nor the argument is set the secret is prompted",
		},
	},
	Action: importAction,
}

var exportaccount = cli.Command{
	Name:   "export",
	Usage:  "print the secret of a wallet account",
	Flags:  []cli.Flag{accountFlag},
	Action: exportAction,
}

var listaccounts = cli.Command{
	Name:   "list",
	Usage:  "list the wallet accounts with their last known balance",
	Action: listAction,
}

func generateAction(ctx *cli.Context) error {
	app, err := unlockedWallet(ctx, false)
	if err != nil {
		return err
	}
	defer app.close()

	entry, err := app.service.GenerateAccount(ctx.Context)
	if err != nil {
		return err
	}
	if _, err := app.service.Save(ctx.Context, true); err != nil {
		return err
	}

	fmt.Println(entry.AccountID)
	return nil
}

func importAction(ctx *cli.Context) error {
	secret, err := readSecret(ctx)
	if err != nil {
		return err
	}

	app, err := unlockedWallet(ctx, false)
	if err != nil {
		return err
	}
	defer app.close()

	entry, err := app.service.ImportAccount(ctx.Context, secret)
	if err != nil {
		return err
	}
	if _, err := app.service.Save(ctx.Context, true); err != nil {
		return err
	}

	fmt.Println(entry.AccountID)
	return nil
}

func exportAction(ctx *cli.Context) error {
	app, err := unlockedWallet(ctx, false)
	if err != nil {
		return err
	}
	defer app.close()

	secret, err := app.service.ExportSecret(ctx.Context, ctx.Int(accountFlagName))
	if err != nil {
		return err
	}

	fmt.Println(secret)
	return nil
}

func listAction(ctx *cli.Context) error {
	app, err := unlockedWallet(ctx, false)
	if err != nil {
		return err
	}
	defer app.close()

	accounts, _ := app.service.Accounts(ctx.Context)
	if len(accounts) <= 0 {
		fmt.Println("no accounts, use 'generate' or 'import' to add one")
		return nil
	}
	for i, a := range accounts {
		fmt.Println(formatAccount(i, a))
	}
	return nil
}

func readSecret(ctx *cli.Context) (string, error) {
	if secret := ctx.Args().First(); secret != "" {
		return secret, nil
	}
	if path := ctx.String(secretFileFlagName); path != "" {
		return readPasswordFile(path)
	}
	return promptPassword("Secret: ")
}

func formatAccount(index int, a domain.AccountState) string {
	return fmt.Sprintf("%d  %s", index, accountSummary(a))
}

func accountSummary(a domain.AccountState) string {
	switch {
	case a.UpdatedAt.IsZero():
		return fmt.Sprintf("%s  unknown", a.AccountID)
	case !a.Funded:
		return fmt.Sprintf("%s  not funded", a.AccountID)
	default:
		return fmt.Sprintf(
			"%s  %s XRP  seq %d", a.AccountID, binarycodec.DropsToXRP(a.Balance), a.Sequence,
		)
	}
}
