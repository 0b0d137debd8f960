package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/pkg/binarycodec"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var watch = cli.Command{
	Name:   "watch",
	Usage:  "stay connected to the ledger and print account activity until interrupted",
	Action: watchAction,
}

func watchAction(ctx *cli.Context) error {
	app, err := unlockedWallet(ctx, true)
	if err != nil {
		return err
	}
	defer app.close()

	var task func(context.Context) error
	if addr := config.GetString(config.MetricsAddrKey); addr != "" {
		task = func(gctx context.Context) error {
			return serveMetrics(gctx, addr)
		}
	}

	return runOnline(ctx.Context, app, printEvent, task)
}

func printEvent(event ports.SessionEvent) bool {
	switch e := event.(type) {
	case ports.EventStateChanged:
		if e.Reason != "" {
			fmt.Printf("%s %s (%s)\n", e.State, e.Endpoint, e.Reason)
		} else {
			fmt.Printf("%s %s\n", e.State, e.Endpoint)
		}
	case ports.EventLedgerClosed:
		log.WithFields(log.Fields{
			"index": e.Ledger.LedgerIndex,
			"txs":   e.Ledger.TransactionCount,
		}).Debug("ledger closed")
	case ports.EventAccountInfo:
		fmt.Println(accountSummary(e.Account))
	case ports.EventAccountTx:
		if !e.Pushed || len(e.Account.Transactions) <= 0 {
			return false
		}
		tx := e.Account.Transactions[0]
		direction := "in "
		if tx.IsOutgoing(e.Account.AccountID) {
			direction = "out"
		}
		fmt.Printf(
			"%s %s %s XRP %s %s\n", direction, e.Account.AccountID,
			binarycodec.DropsToXRP(tx.Amount), tx.Result, tx.Hash,
		)
	}
	return false
}

// serveMetrics exposes the prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
