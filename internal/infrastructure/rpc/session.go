package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/ledgerdesk/ledgerdesk/internal/metrics"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

const (
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 2 * time.Minute
	DefaultMaxExponent       = 7
	DefaultDialTimeout       = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultRequestsPerSecond = 20
	DefaultEventBufferSize   = 64
)

var (
	// ErrNullEndpoints ...
	ErrNullEndpoints = errors.New("at least one endpoint must be configured")
	// ErrInvalidEndpoint ...
	ErrInvalidEndpoint = errors.New("endpoint must be a ws:// or wss:// url")
	// ErrNullLedgerCache ...
	ErrNullLedgerCache = errors.New("ledger cache must not be null")
	// ErrNullAccountBook ...
	ErrNullAccountBook = errors.New("account book must not be null")
	// ErrAlreadyRunning ...
	ErrAlreadyRunning = errors.New("session is already running")

	errIdleTimeout = errors.New("no message received within idle timeout")
)

// Opts is the struct given to NewSession. Zero durations and limits fall
// back to the package defaults.
type Opts struct {
	Endpoints          []string
	Dialer             Dialer
	Ledger             *domain.LedgerCache
	Accounts           *domain.AccountBook
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	MaxExponent        int
	DialTimeout        time.Duration
	IdleTimeout        time.Duration
	RequestsPerSecond  int
	HistoryLimit       int
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	EventBufferSize    int
	RandSeed           int64
}

func (o Opts) validate() error {
	if len(o.Endpoints) <= 0 {
		return ErrNullEndpoints
	}
	for _, e := range o.Endpoints {
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("%w: %s", ErrInvalidEndpoint, e)
		}
	}
	if o.Ledger == nil {
		return ErrNullLedgerCache
	}
	if o.Accounts == nil {
		return ErrNullAccountBook
	}
	return nil
}

func (o *Opts) setDefaults() {
	if o.Dialer == nil {
		o.Dialer = NewWebsocketDialer(DefaultDialTimeout)
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxExponent <= 0 {
		o.MaxExponent = DefaultMaxExponent
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = domain.DefaultHistoryLimit
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = DefaultEventBufferSize
	}
	if o.RandSeed == 0 {
		o.RandSeed = time.Now().UnixNano()
	}
}

type submitCall struct {
	blobHex string
	reply   chan submitReply
}

type submitReply struct {
	id  uint64
	err error
}

type frame struct {
	data []byte
	err  error
}

type responseHandler func(ctx context.Context, req ports.PendingRequest, env envelope) error

// Session keeps a connection to one of the configured ledger servers. A single
// loop goroutine owns the connection writes, the pending requests and the
// state transitions; public methods talk to it through channels.
type Session struct {
	id       string
	opts     Opts
	selector *selector
	limiter  ratelimit.Limiter
	logger   *log.Entry

	events    chan ports.SessionEvent
	submitCh  chan submitCall
	refreshCh chan struct{}
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce *sync.Once
	running   atomic.Bool
	state     atomic.Int32
	pending   atomic.Int64

	conn     Conn
	endpoint string
	nextID   uint64
	requests map[uint64]ports.PendingRequest
	handlers map[ports.RequestKind]responseHandler
}

// NewSession returns a disconnected session. Call Run to start it.
func NewSession(opts Opts) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()

	limiter := ratelimit.NewUnlimited()
	if opts.RequestsPerSecond > 0 {
		limiter = ratelimit.New(opts.RequestsPerSecond)
	}

	id := uuid.New().String()
	s := &Session{
		id:        id,
		opts:      opts,
		selector:  newSelector(opts.Endpoints, opts.BreakerMaxFailures, opts.BreakerTimeout, opts.RandSeed),
		limiter:   limiter,
		logger:    log.WithField("session", id),
		events:    make(chan ports.SessionEvent, opts.EventBufferSize),
		submitCh:  make(chan submitCall),
		refreshCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
		closeOnce: &sync.Once{},
		requests:  make(map[uint64]ports.PendingRequest),
	}
	s.handlers = map[ports.RequestKind]responseHandler{
		ports.KindAccountInfo: s.handleAccountInfo,
		ports.KindAccountTx:   s.handleAccountTx,
		ports.KindSubmit:      s.handleSubmit,
		ports.KindSubscribe:   s.handleSubscribe,
	}
	return s, nil
}

// ID returns the identifier the session logs with.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Events() <-chan ports.SessionEvent {
	return s.events
}

func (s *Session) State() ports.SessionState {
	return ports.SessionState(s.state.Load())
}

func (s *Session) Pending() int {
	return int(s.pending.Load())
}

// Run connects to the ledger and keeps reconnecting with capped exponential
// backoff until Close is called or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.doneCh)
	defer close(s.events)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closeCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	s.logger.WithField("endpoints", s.opts.Endpoints).Info("starting ledger session")

	attempts := 0
	previous := ""
	for {
		if loopCtx.Err() != nil {
			return s.shutdown(ctx)
		}

		endpoint, ok := s.selector.next(previous)
		var err error
		if ok {
			var connected bool
			connected, err = s.connect(loopCtx, endpoint)
			if loopCtx.Err() != nil {
				return s.shutdown(ctx)
			}
			if connected {
				attempts = 0
				s.selector.reportDrop(endpoint)
			}
			previous = endpoint
			metrics.ReconnectsCount.WithLabelValues(endpoint).Inc()
		} else {
			err = errors.New("no endpoint available")
			previous = ""
		}

		attempts++
		delay := Backoff(attempts, s.opts.BaseDelay, s.opts.MaxDelay, s.opts.MaxExponent)
		s.logger.WithError(err).WithFields(log.Fields{
			"endpoint": endpoint,
			"attempts": attempts,
		}).Warnf("connection lost, retrying in %s", delay)
		s.setState(loopCtx, ports.StateReconnecting, endpoint, err.Error())

		if err := s.wait(loopCtx, delay); err != nil {
			return s.shutdown(ctx)
		}
	}
}

// Submit sends a signed transaction blob. It fails with ErrConnectionLost
// when the session is not online: nothing is queued.
func (s *Session) Submit(ctx context.Context, blobHex string) (uint64, error) {
	select {
	case <-s.closeCh:
		return 0, domain.ErrSessionClosed
	default:
	}
	if !s.State().IsOnline() {
		return 0, domain.ErrConnectionLost
	}

	req := submitCall{blobHex: blobHex, reply: make(chan submitReply, 1)}
	select {
	case s.submitCh <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.doneCh:
		return 0, domain.ErrSessionClosed
	}

	select {
	case r := <-req.reply:
		return r.id, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.doneCh:
		return 0, domain.ErrSessionClosed
	}
}

// Refresh asks the session to request info and history of every tracked
// account again, typically after the account list changed.
func (s *Session) Refresh(ctx context.Context) error {
	select {
	case <-s.closeCh:
		return domain.ErrSessionClosed
	default:
	}
	if !s.State().IsOnline() {
		return domain.ErrConnectionLost
	}

	select {
	case s.refreshCh <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// a refresh is already scheduled
	}
	return nil
}

// Close stops the session and waits for the loop to exit. Pending requests
// are dropped and no event is dispatched once Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	if s.running.Load() {
		<-s.doneCh
	}
}

func (s *Session) connect(ctx context.Context, endpoint string) (bool, error) {
	s.setState(ctx, ports.StateConnecting, endpoint, "")

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	conn, err := s.selector.dial(dialCtx, s.opts.Dialer, endpoint)
	cancel()
	if err != nil {
		return false, err
	}

	s.conn = conn
	s.endpoint = endpoint
	err = s.serve(ctx)
	s.conn = nil
	//nolint
	conn.Close()

	if ctx.Err() != nil {
		s.dropPending()
	} else {
		s.failPending(ctx, domain.ErrConnectionLost)
	}
	return true, err
}

func (s *Session) serve(ctx context.Context) error {
	frames := make(chan frame)
	stop := make(chan struct{})
	defer close(stop)
	go s.read(s.conn, frames, stop)

	s.logger.WithField("endpoint", s.endpoint).Info("connected")
	s.setState(ctx, ports.StateConnected, s.endpoint, "")

	if err := s.requestAccounts(); err != nil {
		return err
	}
	subscribe := subscribeRequest(s.opts.Accounts.AccountIDs())
	if _, err := s.send(ports.KindSubscribe, "", subscribe); err != nil {
		return err
	}

	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return errIdleTimeout
		case f := <-frames:
			if f.err != nil {
				return f.err
			}
			resetTimer(idle, s.opts.IdleTimeout)
			if err := s.handleFrame(ctx, f.data); err != nil {
				return err
			}
		case req := <-s.submitCh:
			id, err := s.send(ports.KindSubmit, "", submitRequest(req.blobHex))
			if err != nil {
				req.reply <- submitReply{err: domain.ErrConnectionLost.Wrap(err)}
				return err
			}
			req.reply <- submitReply{id: id}
		case <-s.refreshCh:
			if err := s.requestAccounts(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) read(conn Conn, frames chan<- frame, stop <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil && isUnexpectedClose(err) {
			s.logger.WithError(err).Debug("connection closed by server")
		}
		select {
		case frames <- frame{data: data, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// wait sleeps for the backoff delay. Submissions received meanwhile are
// rejected right away.
func (s *Session) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.submitCh:
			req.reply <- submitReply{err: domain.ErrConnectionLost}
		case <-s.refreshCh:
		}
	}
}

func (s *Session) shutdown(ctx context.Context) error {
	s.dropPending()

	s.state.Store(int32(ports.StateClosed))
	metrics.SessionState.Set(float64(ports.StateClosed))
	select {
	case s.events <- ports.EventStateChanged{State: ports.StateClosed, Reason: "session closed"}:
	default:
	}
	s.logger.Info("ledger session closed")

	if err := ctx.Err(); err != nil && !s.isClosed() {
		return err
	}
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Session) requestAccounts() error {
	for _, account := range s.opts.Accounts.AccountIDs() {
		if _, err := s.send(ports.KindAccountInfo, account, accountInfoRequest(account)); err != nil {
			return err
		}
		if _, err := s.send(
			ports.KindAccountTx, account, accountTxRequest(account, s.opts.HistoryLimit),
		); err != nil {
			return err
		}
	}
	return nil
}

// send assigns the next request id, writes the request and records it as
// pending.
func (s *Session) send(
	kind ports.RequestKind, account string, payload map[string]interface{},
) (uint64, error) {
	s.nextID++
	id := s.nextID
	payload["id"] = id

	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	s.limiter.Take()
	if err := s.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return 0, err
	}

	s.requests[id] = ports.PendingRequest{
		RequestID: id,
		Kind:      kind,
		Account:   account,
		IssuedAt:  time.Now(),
	}
	s.updatePending()
	metrics.RequestsCount.WithLabelValues(string(kind)).Inc()
	s.logger.WithFields(log.Fields{"id": id, "kind": kind}).Trace("request sent")
	return id, nil
}

func (s *Session) failPending(ctx context.Context, err error) {
	ids := make([]uint64, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	requests := s.requests
	s.requests = make(map[uint64]ports.PendingRequest)
	s.updatePending()

	for _, id := range ids {
		s.emit(ctx, ports.EventRequestFailed{Request: requests[id], Err: err})
	}
}

// dropPending forgets the pending requests without reporting them. Used once
// the session is stopping.
func (s *Session) dropPending() {
	s.requests = make(map[uint64]ports.PendingRequest)
	s.updatePending()
}

func (s *Session) updatePending() {
	s.pending.Store(int64(len(s.requests)))
	metrics.PendingRequests.Set(float64(len(s.requests)))
}

func (s *Session) setState(
	ctx context.Context, state ports.SessionState, endpoint, reason string,
) {
	prev := ports.SessionState(s.state.Swap(int32(state)))
	if prev == state && reason == "" {
		return
	}
	metrics.SessionState.Set(float64(state))
	s.logger.WithFields(log.Fields{
		"from":     prev,
		"to":       state,
		"endpoint": endpoint,
	}).Debug("session state changed")
	s.emit(ctx, ports.EventStateChanged{State: state, Endpoint: endpoint, Reason: reason})
}

// emit delivers an event, blocking until the consumer reads it or the
// session stops.
func (s *Session) emit(ctx context.Context, event ports.SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
