package rpc

import "time"

// Backoff returns the delay before the given reconnection attempt:
// base*2^min(attempts-1, maxExponent), capped at maxDelay.
func Backoff(attempts int, base, maxDelay time.Duration, maxExponent int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	exp := attempts - 1
	if exp > maxExponent {
		exp = maxExponent
	}
	// keep the shift in range, overflow is caught below
	if exp > 62 {
		exp = 62
	}

	delay := base * time.Duration(int64(1)<<uint(exp))
	if delay <= 0 || delay/time.Duration(int64(1)<<uint(exp)) != base || delay > maxDelay {
		return maxDelay
	}
	return delay
}
