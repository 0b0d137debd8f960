package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const timeoutFlagName = "timeout"

var timeoutFlag = &cli.DurationFlag{
	Name:  timeoutFlagName,
	Usage: "how long to wait for the ledger before giving up",
	Value: 30 * time.Second,
}

// ErrTimeout is returned when the ledger did not answer in time.
var ErrTimeout = errors.New("timed out waiting for the ledger")

// eventFunc is called for every session event, in order. Returning true
// stops the session.
type eventFunc func(event ports.SessionEvent) bool

// runOnline runs the ledger session and the wallet listener along with task,
// until task returns, onEvent asks to stop, or the process is interrupted.
func runOnline(
	ctx context.Context, app *walletApp, onEvent eventFunc,
	task func(ctx context.Context) error,
) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.session.Run(gctx)
	})
	g.Go(func() error {
		return app.service.Listen(gctx, func(event ports.SessionEvent) {
			if onEvent != nil && onEvent(event) {
				cancel()
			}
		})
	})
	if task != nil {
		g.Go(func() error {
			defer cancel()
			return task(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// waitFor blocks until ready is closed or the timeout expires.
func waitFor(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
