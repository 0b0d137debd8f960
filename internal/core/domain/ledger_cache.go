package domain

import (
	"sync/atomic"
	"time"
)

const (
	// DefaultBaseFee is the cost in drops of the reference transaction until
	// the first ledger close is received.
	DefaultBaseFee uint64 = 10
	// DefaultReferenceFeeUnits ...
	DefaultReferenceFeeUnits uint64 = 10
	// DefaultReserveBase is the account reserve in drops.
	DefaultReserveBase uint64 = 10000000
	// DefaultReserveIncrement is the owner reserve in drops.
	DefaultReserveIncrement uint64 = 2000000
)

// LedgerState is the network state as of the latest closed ledger. BaseFee is
// the cost in drops of the reference transaction, which costs ReferenceFee fee
// units.
type LedgerState struct {
	LedgerIndex      uint32
	LedgerHash       string
	CloseTime        time.Time
	TransactionCount int
	BaseFee          uint64
	ReferenceFee     uint64
	ReserveBase      uint64
	ReserveIncrement uint64
}

// DefaultLedgerState is reported by a LedgerCache that has not seen any ledger
// close yet.
func DefaultLedgerState() LedgerState {
	return LedgerState{
		BaseFee:          DefaultBaseFee,
		ReferenceFee:     DefaultReferenceFeeUnits,
		ReserveBase:      DefaultReserveBase,
		ReserveIncrement: DefaultReserveIncrement,
	}
}

// MinimumFee is the lowest fee in drops a simple payment may pay.
func (s LedgerState) MinimumFee() uint64 {
	return s.BaseFee
}

// IsKnown tells whether the state comes from an actual ledger.
func (s LedgerState) IsKnown() bool {
	return s.LedgerIndex > 0
}

// LedgerCache is the process wide snapshot of the network state. The zero
// value is ready to use.
type LedgerCache struct {
	state atomic.Pointer[LedgerState]
}

// NewLedgerCache ...
func NewLedgerCache() *LedgerCache {
	return &LedgerCache{}
}

// ApplyLedgerClose replaces the whole snapshot. Zero fee or reserve values are
// filled from the previous snapshot.
func (c *LedgerCache) ApplyLedgerClose(state LedgerState) {
	prev := c.Current()
	if state.BaseFee == 0 {
		state.BaseFee = prev.BaseFee
	}
	if state.ReferenceFee == 0 {
		state.ReferenceFee = prev.ReferenceFee
	}
	if state.ReserveBase == 0 {
		state.ReserveBase = prev.ReserveBase
	}
	if state.ReserveIncrement == 0 {
		state.ReserveIncrement = prev.ReserveIncrement
	}
	c.state.Store(&state)
}

// Current returns the latest snapshot without blocking.
func (c *LedgerCache) Current() LedgerState {
	if s := c.state.Load(); s != nil {
		return *s
	}
	return DefaultLedgerState()
}
