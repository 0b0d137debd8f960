package ports

import (
	"context"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
)

// SessionState is the connection state of a LedgerSession.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsOnline tells whether requests can be sent in this state.
func (s SessionState) IsOnline() bool {
	return s == StateConnected || s == StateSubscribed
}

// RequestKind identifies the command of a pending request and selects the
// handler of its response.
type RequestKind string

const (
	KindAccountInfo RequestKind = "account_info"
	KindAccountTx   RequestKind = "account_tx"
	KindSubmit      RequestKind = "submit"
	KindSubscribe   RequestKind = "subscribe"
)

// PendingRequest is a request awaiting its response.
type PendingRequest struct {
	RequestID uint64
	Kind      RequestKind
	Account   string
	IssuedAt  time.Time
}

// SessionEvent is anything a LedgerSession reports to its consumer.
type SessionEvent interface {
	isSessionEvent()
}

// EventStateChanged is emitted on every state transition.
type EventStateChanged struct {
	State    SessionState
	Endpoint string
	Reason   string
}

// EventAccountInfo carries a fresh balance and sequence for an account.
type EventAccountInfo struct {
	Account domain.AccountState
}

// EventAccountTx carries the updated history of an account. Pushed is set
// when it comes from the transaction stream rather than from account_tx.
type EventAccountTx struct {
	Account domain.AccountState
	Pushed  bool
}

// EventSubmitResult reports the outcome of a Submit. Err is nil when the
// transaction was accepted, otherwise it matches domain.ErrSubmitRejected.
type EventSubmitResult struct {
	RequestID        uint64
	Accepted         bool
	EngineResult     string
	EngineResultCode int
	Message          string
	Hash             string
	Err              error
}

// EventLedgerClosed carries the new LedgerState.
type EventLedgerClosed struct {
	Ledger domain.LedgerState
}

// EventRequestFailed reports a request that will never get a response.
type EventRequestFailed struct {
	Request PendingRequest
	Err     error
}

func (EventStateChanged) isSessionEvent()  {}
func (EventAccountInfo) isSessionEvent()   {}
func (EventAccountTx) isSessionEvent()     {}
func (EventSubmitResult) isSessionEvent()  {}
func (EventLedgerClosed) isSessionEvent()  {}
func (EventRequestFailed) isSessionEvent() {}

// LedgerSession is a resilient connection to a ledger server.
type LedgerSession interface {
	// Run connects and keeps the session alive until Close is called or ctx
	// is done. It blocks.
	Run(ctx context.Context) error
	// Events returns the channel of session events. It is closed when Run
	// returns.
	Events() <-chan SessionEvent
	// Submit sends a signed transaction blob and returns its request id. The
	// outcome is reported with an EventSubmitResult.
	Submit(ctx context.Context, blobHex string) (uint64, error)
	// Refresh requests account info and history for every tracked account.
	Refresh(ctx context.Context) error
	// State returns the current state.
	State() SessionState
	// Pending returns the number of requests awaiting a response.
	Pending() int
	// Close stops the session. No event is dispatched after it returns.
	Close()
}
