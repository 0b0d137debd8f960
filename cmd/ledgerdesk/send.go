package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/internal/core/application"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/pkg/binarycodec"
	"github.com/urfave/cli/v2"
)

const (
	toFlagName       = "to"
	amountFlagName   = "amount"
	feeFlagName      = "fee"
	tagFlagName      = "tag"
	sequenceFlagName = "sequence"
	yesFlagName      = "yes"
)

// ErrAborted is returned when the payment is not confirmed.
var ErrAborted = errors.New("payment aborted")

var send = cli.Command{
	Name:  "send",
	Usage: "sign and submit a payment from a wallet account",
	Flags: []cli.Flag{
		accountFlag,
		&cli.StringFlag{
			Name:     toFlagName,
			Usage:    "the destination address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     amountFlagName,
			Usage:    "the amount in XRP",
			Required: true,
		},
		&cli.StringFlag{
			Name:  feeFlagName,
			Usage: "the fee in XRP, defaults to the current minimum fee",
		},
		&cli.UintFlag{
			Name:  tagFlagName,
			Usage: "the destination tag",
		},
		&cli.UintFlag{
			Name:  sequenceFlagName,
			Usage: "the sequence to sign with, defaults to the account sequence",
		},
		&cli.BoolFlag{
			Name:  yesFlagName,
			Usage: "do not ask for confirmation",
		},
		timeoutFlag,
	},
	Action: sendAction,
}

func sendAction(ctx *cli.Context) error {
	req, err := paymentRequestFromFlags(ctx)
	if err != nil {
		return err
	}

	app, err := unlockedWallet(ctx, true)
	if err != nil {
		return err
	}
	defer app.close()

	accounts, _ := app.service.Accounts(ctx.Context)
	if req.SenderIndex < 0 || req.SenderIndex >= len(accounts) {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	sender := accounts[req.SenderIndex].AccountID

	// the sender state and the ledger fees must be fresh before signing
	ready := make(chan struct{})
	once := &sync.Once{}
	subscribed, infoReceived := false, false
	onEvent := func(event ports.SessionEvent) bool {
		switch e := event.(type) {
		case ports.EventStateChanged:
			subscribed = e.State == ports.StateSubscribed
		case ports.EventAccountInfo:
			if e.Account.AccountID == sender {
				infoReceived = true
			}
		}
		if subscribed && infoReceived {
			once.Do(func() { close(ready) })
		}
		return false
	}

	return runOnline(ctx.Context, app, onEvent, func(gctx context.Context) error {
		if err := waitFor(gctx, ready, ctx.Duration(timeoutFlagName)); err != nil {
			return err
		}

		if !ctx.IsSet(feeFlagName) {
			req.Fee = app.service.Ledger(gctx).MinimumFee()
		}
		payment, err := app.service.PreparePayment(gctx, req)
		if err != nil {
			return err
		}

		fmt.Print(payment.PreviewText)
		if !ctx.Bool(yesFlagName) && !confirm("Submit this payment? [y/N] ") {
			return ErrAborted
		}

		res, err := app.service.SendPayment(gctx, payment)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", res.EngineResult, payment.Hash)
		return nil
	})
}

func paymentRequestFromFlags(ctx *cli.Context) (application.PaymentRequest, error) {
	amount, err := binarycodec.ParseXRP(ctx.String(amountFlagName))
	if err != nil {
		return application.PaymentRequest{}, fmt.Errorf("invalid amount: %w", err)
	}

	req := application.PaymentRequest{
		SenderIndex: ctx.Int(accountFlagName),
		Destination: strings.TrimSpace(ctx.String(toFlagName)),
		Amount:      amount,
		Sequence:    uint32(ctx.Uint(sequenceFlagName)),
	}
	if ctx.IsSet(feeFlagName) {
		fee, err := binarycodec.ParseXRP(ctx.String(feeFlagName))
		if err != nil {
			return application.PaymentRequest{}, fmt.Errorf("invalid fee: %w", err)
		}
		req.Fee = fee
	}
	if ctx.IsSet(tagFlagName) {
		tag := uint32(ctx.Uint(tagFlagName))
		req.DestinationTag = &tag
	}
	return req, nil
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
