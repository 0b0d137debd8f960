package main

import (
	"errors"
	"fmt"

	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/urfave/cli/v2"
)

const newPwdFileFlagName = "new-password-file"

var create = cli.Command{
	Name:   "create",
	Usage:  "create a new empty wallet protected by a password",
	Action: createAction,
}

var changepassword = cli.Command{
	Name:  "change-password",
	Usage: "re-encrypt the wallet with a new password",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  newPwdFileFlagName,
			Usage: "the path of the file containing the new password, if not set the password is prompted",
		},
	},
	Action: changePasswordAction,
}

var convert = cli.Command{
	Name:   "convert",
	Usage:  "convert a legacy wallet file to the current format, keeping a backup of the original",
	Action: convertAction,
}

func createAction(ctx *cli.Context) error {
	password, err := readNewPassword(ctx, "New wallet password: ")
	if err != nil {
		return err
	}

	app, err := newWalletApp(false)
	if err != nil {
		return err
	}
	defer app.close()

	path, err := app.service.Create(ctx.Context, password)
	if err != nil {
		return err
	}

	fmt.Printf("wallet created at %s\n", path)
	if path != config.GetWalletPath() {
		fmt.Printf("set LEDGERDESK_%s=%s to use it\n", config.WalletFileKey, path)
	}
	return nil
}

func changePasswordAction(ctx *cli.Context) error {
	oldPassword, err := readPassword(ctx, "Current password: ")
	if err != nil {
		return err
	}

	app, err := openWallet(ctx, false, oldPassword)
	if err != nil {
		return err
	}
	defer app.close()

	var newPassword string
	if path := ctx.String(newPwdFileFlagName); path != "" {
		newPassword, err = readPasswordFile(path)
	} else {
		newPassword, err = promptNewPassword("New password: ")
	}
	if err != nil {
		return err
	}

	if err := app.service.ChangePassword(ctx.Context, oldPassword, newPassword); err != nil {
		return err
	}

	fmt.Println("Done")
	return nil
}

func convertAction(ctx *cli.Context) error {
	vault := domain.NewKeyVault(config.GetWalletPath(), config.GetInt(config.KDFIterationsKey))
	if err := vault.Load(); err == nil {
		fmt.Println("wallet is already in the current format")
		return nil
	} else if !errors.Is(err, domain.ErrLegacyWallet) {
		return err
	}

	// unlocking a legacy wallet converts it
	app, err := unlockedWallet(ctx, false)
	if err != nil {
		return err
	}
	defer app.close()

	accounts, _ := app.service.Accounts(ctx.Context)
	fmt.Printf("wallet converted, %d accounts\n", len(accounts))
	return nil
}
