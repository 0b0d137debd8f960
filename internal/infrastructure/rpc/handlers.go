package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// handleFrame routes a frame either to the handler of the pending request it
// answers, or to the handler of its stream type. Only write failures are
// returned; anything else is logged and dropped.
func (s *Session) handleFrame(ctx context.Context, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.WithError(err).Warn("dropping malformed frame")
		metrics.ErrorsCount.WithLabelValues("malformed_frame").Inc()
		return nil
	}

	if env.isResponse() {
		if env.ID == nil {
			s.logger.Warn("dropping response without id")
			return nil
		}
		req, ok := s.requests[*env.ID]
		if !ok {
			s.logger.WithField("id", *env.ID).Warn("dropping response to unknown request")
			metrics.ErrorsCount.WithLabelValues("unknown_request").Inc()
			return nil
		}
		delete(s.requests, *env.ID)
		s.updatePending()

		status := "success"
		if env.isError() {
			status = statusError
		}
		metrics.ResponsesCount.WithLabelValues(string(req.Kind), status).Inc()

		handler, ok := s.handlers[req.Kind]
		if !ok {
			s.logger.WithField("kind", req.Kind).Warn("no handler for request kind")
			return nil
		}
		return handler(ctx, req, env)
	}

	switch env.Type {
	case pushLedgerClosed:
		return s.handleLedgerClosed(ctx, data)
	case pushTransaction:
		return s.handleTransaction(ctx, data)
	default:
		s.logger.WithField("type", env.Type).Debug("ignoring stream message")
		return nil
	}
}

func (s *Session) handleAccountInfo(
	ctx context.Context, req ports.PendingRequest, env envelope,
) error {
	if env.isError() {
		if env.Error == errActNotFound {
			s.opts.Accounts.SetUnfunded(req.Account)
			if state, ok := s.opts.Accounts.Account(req.Account); ok {
				s.emit(ctx, ports.EventAccountInfo{Account: state})
			}
			return nil
		}
		s.requestFailed(ctx, req, fmt.Errorf("%s", env.errorText()))
		return nil
	}

	var res accountInfoResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		s.requestFailed(ctx, req, err)
		return nil
	}
	balance, err := strconv.ParseUint(res.AccountData.Balance, 10, 64)
	if err != nil {
		s.requestFailed(ctx, req, fmt.Errorf("invalid balance %q", res.AccountData.Balance))
		return nil
	}

	if !s.opts.Accounts.SetInfo(req.Account, balance, res.AccountData.Sequence) {
		s.logger.WithField("account", req.Account).Debug("account is no longer tracked")
		return nil
	}
	state, _ := s.opts.Accounts.Account(req.Account)
	s.emit(ctx, ports.EventAccountInfo{Account: state})
	return nil
}

func (s *Session) handleAccountTx(
	ctx context.Context, req ports.PendingRequest, env envelope,
) error {
	if env.isError() {
		if env.Error != errActNotFound {
			s.requestFailed(ctx, req, fmt.Errorf("%s", env.errorText()))
		}
		return nil
	}

	var res accountTxResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		s.requestFailed(ctx, req, err)
		return nil
	}

	txs := make([]domain.TxSummary, 0, len(res.Transactions))
	for _, item := range res.Transactions {
		txs = append(txs, item.Tx.summary(item.Meta.TransactionResult, 0, item.Validated))
	}
	if !s.opts.Accounts.SetHistory(req.Account, txs) {
		return nil
	}
	state, _ := s.opts.Accounts.Account(req.Account)
	s.emit(ctx, ports.EventAccountTx{Account: state})
	return nil
}

func (s *Session) handleSubmit(
	ctx context.Context, req ports.PendingRequest, env envelope,
) error {
	event := ports.EventSubmitResult{RequestID: req.RequestID}

	if env.isError() {
		event.Message = env.errorText()
		event.Err = domain.ErrSubmitRejected.WithMessage("transaction rejected: %s", event.Message)
	} else {
		var res submitResult
		if err := json.Unmarshal(env.Result, &res); err != nil {
			event.Err = domain.ErrSubmitRejected.Wrap(err)
		} else {
			event.EngineResult = res.EngineResult
			event.EngineResultCode = res.EngineResultCode
			event.Message = res.EngineResultMessage
			event.Hash = res.TxJSON.Hash
			event.Accepted = isAcceptedResult(res.EngineResult)
			if res.Accepted != nil {
				event.Accepted = *res.Accepted
			}
			if !event.Accepted {
				event.Err = domain.ErrSubmitRejected.WithMessage(
					"%s: %s", res.EngineResult, res.EngineResultMessage,
				)
			}
		}
	}

	label := event.EngineResult
	if label == "" {
		label = statusError
	}
	metrics.SubmitResultsCount.WithLabelValues(label).Inc()
	s.logger.WithFields(log.Fields{
		"id":            req.RequestID,
		"engine_result": event.EngineResult,
		"accepted":      event.Accepted,
	}).Info("transaction submitted")

	s.emit(ctx, event)
	return nil
}

func (s *Session) handleSubscribe(
	ctx context.Context, req ports.PendingRequest, env envelope,
) error {
	if env.isError() {
		s.requestFailed(ctx, req, fmt.Errorf("%s", env.errorText()))
		return nil
	}

	var ledger ledgerJSON
	if err := json.Unmarshal(env.Result, &ledger); err != nil {
		s.requestFailed(ctx, req, err)
		return nil
	}
	if ledger.LedgerIndex > 0 {
		s.applyLedger(ctx, ledger)
	}
	s.setState(ctx, ports.StateSubscribed, s.endpoint, "")
	return nil
}

func (s *Session) handleLedgerClosed(ctx context.Context, data []byte) error {
	var ledger ledgerJSON
	if err := json.Unmarshal(data, &ledger); err != nil {
		s.logger.WithError(err).Warn("dropping malformed ledger message")
		return nil
	}
	s.applyLedger(ctx, ledger)
	return nil
}

// handleTransaction records a streamed transaction in the history of every
// tracked account it touches and refreshes their balance and sequence.
func (s *Session) handleTransaction(ctx context.Context, data []byte) error {
	var push transactionPush
	if err := json.Unmarshal(data, &push); err != nil {
		s.logger.WithError(err).Warn("dropping malformed transaction message")
		return nil
	}

	result := push.EngineResult
	if result == "" {
		result = push.Meta.TransactionResult
	}
	summary := push.Transaction.summary(result, push.LedgerIndex, push.Validated)

	touched := []string{summary.Account}
	if summary.Destination != "" && summary.Destination != summary.Account {
		touched = append(touched, summary.Destination)
	}

	for _, account := range touched {
		if !s.opts.Accounts.Tracks(account) {
			continue
		}
		if s.opts.Accounts.AddTransaction(account, summary) {
			state, _ := s.opts.Accounts.Account(account)
			s.emit(ctx, ports.EventAccountTx{Account: state, Pushed: true})
		}
		if _, err := s.send(ports.KindAccountInfo, account, accountInfoRequest(account)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) applyLedger(ctx context.Context, ledger ledgerJSON) {
	state := ledger.toDomain()
	s.opts.Ledger.ApplyLedgerClose(state)
	metrics.LedgerIndex.Set(float64(state.LedgerIndex))
	s.emit(ctx, ports.EventLedgerClosed{Ledger: s.opts.Ledger.Current()})
}

func (s *Session) requestFailed(ctx context.Context, req ports.PendingRequest, err error) {
	s.logger.WithError(err).WithFields(log.Fields{
		"id":   req.RequestID,
		"kind": req.Kind,
	}).Warn("request failed")
	metrics.ErrorsCount.WithLabelValues(string(req.Kind)).Inc()
	s.emit(ctx, ports.EventRequestFailed{Request: req, Err: err})
}
