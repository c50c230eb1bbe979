package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"certflow/internal/platform/config"
	"certflow/internal/platform/metrics"
	dErrors "certflow/pkg/domain-errors"
)

// State is the session lifecycle: Idle -> Creating -> Polling -> terminal.
type State string

const (
	StateIdle      State = "idle"
	StateCreating  State = "creating"
	StatePolling   State = "polling"
	StateApproved  State = "approved"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
	// StateTimedOut means the polling cap elapsed with no terminal status
	// from the provider; distinct from provider-declared expiry.
	StateTimedOut State = "timed_out"
)

// Outcome is delivered to the orchestrator when polling reaches a terminal
// state or the elapsed cap.
type Outcome struct {
	State  State
	Record Record
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Session owns at most one polling loop at a time. A new Create cancels any
// existing loop before starting its own; Cancel guarantees no status update
// is applied after it returns, even with a request in flight.
type Session struct {
	client    ProviderClient
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     Clock
	onOutcome func(Outcome)

	grace      time.Duration
	interval   time.Duration
	maxElapsed time.Duration

	mu     sync.Mutex
	state  State
	record *Record
	// generation fences stale poll results: every Create/Cancel bumps it and
	// apply discards updates carrying an old generation.
	generation int
	cancelPoll context.CancelFunc
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithClock(clock Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOutcomeFunc registers the terminal-outcome callback. The callback runs
// outside the session lock; it may call back into the session.
func WithOutcomeFunc(fn func(Outcome)) Option {
	return func(s *Session) {
		s.onOutcome = fn
	}
}

func New(client ProviderClient, cfg config.Payment, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	s := &Session{
		client:     client,
		logger:     slog.Default(),
		clock:      time.Now,
		grace:      cfg.GraceDelay,
		interval:   cfg.PollInterval,
		maxElapsed: cfg.MaxElapsed,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecordSnapshot returns a copy of the current payment record, or nil when
// no charge has been created.
func (s *Session) RecordSnapshot() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil
	}
	rec := *s.record
	return &rec
}

// Create mints a new charge and starts the polling loop. Any previous loop
// is cancelled first; exactly one loop is active per session.
func (s *Session) Create(ctx context.Context, req ChargeRequest) (*Record, error) {
	s.mu.Lock()
	s.stopLocked()
	s.state = StateCreating
	// A Cancel (or a newer Create) landing while CreateCharge is in flight
	// bumps the generation; the continuation below checks it and discards
	// the charge instead of overriding the cancel.
	creatingGen := s.generation
	s.mu.Unlock()

	resp, err := s.client.CreateCharge(ctx, req)
	if err != nil {
		s.mu.Lock()
		if s.state == StateCreating && s.generation == creatingGen {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "payment creation failed")
	}

	now := s.clock()
	rec := &Record{
		TransactionID: resp.TransactionID,
		Amount:        req.Amount,
		PayCode:       resp.PayCode,
		QRImage:       resp.QRImageURL,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	if s.state != StateCreating || s.generation != creatingGen {
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "payment cancelled during creation")
	}
	s.record = rec
	s.state = StatePolling
	s.generation++
	gen := s.generation
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancelPoll = cancel
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PaymentsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "payment created",
		"transaction_id", rec.TransactionID,
		"amount", rec.Amount,
	)

	go s.poll(pollCtx, gen, rec.TransactionID, now)

	out := *rec
	return &out, nil
}

// Cancel stops polling immediately. Idempotent; calling it when not polling
// is a no-op. After Cancel returns, no status update is applied even if a
// request was in flight.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePolling && s.state != StateCreating {
		return
	}
	s.stopLocked()
	s.state = StateCancelled
	s.logger.Info("payment polling cancelled")
}

// CheckNow performs an out-of-band status check. It does not alter the
// polling schedule, but a terminal result is applied.
func (s *Session) CheckNow(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return "", dErrors.New(dErrors.CodePrecondition, "no payment to check")
	}
	gen := s.generation
	txID := s.record.TransactionID
	s.mu.Unlock()

	raw, err := s.client.GetChargeStatus(ctx, txID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "payment status check failed")
	}
	status := Normalize(raw.StatusCode, raw.StatusAlias)
	s.apply(gen, status, raw.StatusCode)
	return status, nil
}

// poll waits out the grace delay, then checks status on a fixed interval
// until a terminal status, the elapsed cap, or cancellation.
func (s *Session) poll(ctx context.Context, gen int, txID string, started time.Time) {
	if !sleepCtx(ctx, s.grace) {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.clock().Sub(started) >= s.maxElapsed {
			s.timeout(gen)
			return
		}

		if s.metrics != nil {
			s.metrics.PaymentPolls.Inc()
		}
		raw, err := s.client.GetChargeStatus(ctx, txID)
		if err != nil {
			// Transient failures don't stop the loop; the next tick retries.
			s.logger.Warn("payment status poll failed",
				"transaction_id", txID,
				"error", err,
			)
			continue
		}

		status := Normalize(raw.StatusCode, raw.StatusAlias)
		if s.apply(gen, status, raw.StatusCode) {
			return
		}
	}
}

// apply records a polled status. Returns true when the loop must stop.
// Updates carrying a stale generation are discarded: that is the cancel
// guarantee.
func (s *Session) apply(gen int, status Status, rawCode int) bool {
	s.mu.Lock()
	if gen != s.generation || s.state != StatePolling || s.record == nil {
		s.mu.Unlock()
		return true
	}

	s.record.Status = status
	s.record.RawStatusCode = rawCode
	s.record.UpdatedAt = s.clock()

	if !status.stopsPolling() {
		s.mu.Unlock()
		return false
	}

	switch status {
	case StatusApproved:
		s.state = StateApproved
	case StatusCancelled:
		s.state = StateCancelled
	case StatusExpired:
		s.state = StateExpired
	}
	s.stopLocked()
	outcome := Outcome{State: s.state, Record: *s.record}
	s.mu.Unlock()

	s.finish(outcome)
	return true
}

// timeout ends the session with TimedOut when the cap elapses.
func (s *Session) timeout(gen int) {
	s.mu.Lock()
	if gen != s.generation || s.state != StatePolling {
		s.mu.Unlock()
		return
	}
	s.state = StateTimedOut
	s.stopLocked()
	outcome := Outcome{State: StateTimedOut}
	if s.record != nil {
		outcome.Record = *s.record
	}
	s.mu.Unlock()

	s.finish(outcome)
}

func (s *Session) finish(outcome Outcome) {
	if s.metrics != nil {
		s.metrics.PaymentOutcomes.WithLabelValues(string(outcome.State)).Inc()
	}
	s.logger.Info("payment session finished",
		"state", string(outcome.State),
		"transaction_id", outcome.Record.TransactionID,
	)
	if s.onOutcome != nil {
		s.onOutcome(outcome)
	}
}

// stopLocked cancels the active loop and fences stale results. Callers hold
// the lock.
func (s *Session) stopLocked() {
	s.generation++
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
}

// sleepCtx waits d unless the context is cancelled first; reports whether
// the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
