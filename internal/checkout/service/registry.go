package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"certflow/internal/checkout/store"
	"certflow/internal/identity"
	"certflow/internal/intake"
	"certflow/internal/payment"
	"certflow/internal/platform/config"
	"certflow/internal/platform/metrics"
	"certflow/internal/protocol"
)

// Deps bundles the shared collaborators the registry needs to assemble a
// session. Clients are shared; gate and payment session are per session so
// limiter state and polling loops never leak across holders.
type Deps struct {
	Cfg       config.Config
	Store     store.Store
	Biometric identity.BiometricClient
	Registry  identity.RegistryClient
	Issuer    protocol.IssuerClient
	Provider  payment.ProviderClient
	Intake    intake.Client
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Registry owns the live orchestrators, one per checkout session.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Store == nil || deps.Biometric == nil || deps.Registry == nil ||
		deps.Issuer == nil || deps.Provider == nil || deps.Intake == nil {
		return nil, errors.New("all collaborators are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Orchestrator),
	}, nil
}

// Get returns the orchestrator for a session, or nil when none exists.
func (r *Registry) Get(sessionID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// Create assembles a fresh orchestrator for the session: its own gate, its
// own payment session, shared clients and store.
func (r *Registry) Create(sessionID string) (*Orchestrator, error) {
	gate, err := identity.New(r.deps.Biometric, r.deps.Registry, r.deps.Cfg.Identity,
		identity.WithLogger(r.deps.Logger),
		identity.WithMetrics(r.deps.Metrics))
	if err != nil {
		return nil, err
	}

	issuer, err := protocol.New(r.deps.Issuer, r.deps.Cfg.Product,
		protocol.WithLogger(r.deps.Logger),
		protocol.WithMetrics(r.deps.Metrics))
	if err != nil {
		return nil, err
	}

	// The closure lets the payment session deliver outcomes to an
	// orchestrator that does not exist yet at session construction time.
	var orch *Orchestrator
	payments, err := payment.New(r.deps.Provider, r.deps.Cfg.Payment,
		payment.WithLogger(r.deps.Logger),
		payment.WithMetrics(r.deps.Metrics),
		payment.WithOutcomeFunc(func(out payment.Outcome) {
			if orch != nil {
				orch.handlePaymentOutcome(out)
			}
		}))
	if err != nil {
		return nil, err
	}

	orch, err = New(sessionID, r.deps.Cfg.Product, r.deps.Store, gate, issuer, payments, r.deps.Intake,
		WithLogger(r.deps.Logger),
		WithMetrics(r.deps.Metrics))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sessionID] = orch
	r.mu.Unlock()
	return orch, nil
}

// Shutdown flushes every live session: polling stopped, snapshots written.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Orchestrator, 0, len(r.sessions))
	for _, orch := range r.sessions {
		sessions = append(sessions, orch)
	}
	r.mu.Unlock()

	for _, orch := range sessions {
		orch.Shutdown(ctx)
	}
}
