package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
	// MaxConsecutiveFailures ...
	MaxConsecutiveFailures uint32 = 3
	// OpenTimeout ...
	OpenTimeout = 30 * time.Second
)

// Opts is the struct given to NewCircuitBreaker. Zero fields fall back to the
// package defaults.
type Opts struct {
	Name                   string
	MaxConsecutiveFailures uint32
	OpenTimeout            time.Duration
	OnStateChange          func(name string, from, to gobreaker.State)
}

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// whose state-changing function activates either after MaxConsecutiveFailures
// failures in a row, or if the overall number of failing requests have reached
// a tweakable MaxNumOfFailingRequests cap and the failing ratio has met the
// FailingRatio.
func NewCircuitBreaker(opts Opts) *gobreaker.CircuitBreaker {
	name := opts.Name
	if name == "" {
		name = "circuitbreaker"
	}
	maxConsecutive := opts.MaxConsecutiveFailures
	if maxConsecutive == 0 {
		maxConsecutive = MaxConsecutiveFailures
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = OpenTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= maxConsecutive {
				return true
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: opts.OnStateChange,
	})
}
