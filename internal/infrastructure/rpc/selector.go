package rpc

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ledgerdesk/ledgerdesk/pkg/circuitbreaker"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var errConnectionDropped = errors.New("connection dropped")

// selector picks the endpoint of the next connection attempt. Every endpoint
// has its own circuit breaker so that a server failing repeatedly is skipped
// until its breaker half-opens again.
type selector struct {
	lock *sync.Mutex

	endpoints []string
	breakers  map[string]*gobreaker.CircuitBreaker
	rand      *rand.Rand
}

func newSelector(
	endpoints []string, maxFailures uint32, openTimeout time.Duration, seed int64,
) *selector {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(endpoints))
	for _, e := range endpoints {
		breakers[e] = circuitbreaker.NewCircuitBreaker(circuitbreaker.Opts{
			Name:                   e,
			MaxConsecutiveFailures: maxFailures,
			OpenTimeout:            openTimeout,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithField("endpoint", name).Debugf(
					"circuit breaker changed state from %s to %s", from, to,
				)
			},
		})
	}
	return &selector{
		lock:      &sync.Mutex{},
		endpoints: endpoints,
		breakers:  breakers,
		rand:      rand.New(rand.NewSource(seed)),
	}
}

// next returns a random endpoint whose breaker is not open. With at least two
// endpoints configured, the previously failed one is never returned.
func (s *selector) next(previous string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	candidates := make([]string, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		if len(s.endpoints) > 1 && e == previous {
			continue
		}
		if s.breakers[e].State() == gobreaker.StateOpen {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[s.rand.Intn(len(candidates))], true
}

// dial opens a connection through the endpoint's breaker, so that dial
// failures are accounted for.
func (s *selector) dial(ctx context.Context, dialer Dialer, endpoint string) (Conn, error) {
	res, err := s.breakers[endpoint].Execute(func() (interface{}, error) {
		return dialer.Dial(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return res.(Conn), nil
}

// reportDrop records an established connection that failed.
func (s *selector) reportDrop(endpoint string) {
	//nolint
	s.breakers[endpoint].Execute(func() (interface{}, error) {
		return nil, errConnectionDropped
	})
}

func (s *selector) state(endpoint string) gobreaker.State {
	return s.breakers[endpoint].State()
}
