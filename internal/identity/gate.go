// Package identity implements the verification gate: biometric and registry
// checks behind a query rate limiter.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"certflow/internal/checkout/models"
	"certflow/internal/platform/config"
	"certflow/internal/platform/metrics"
	dErrors "certflow/pkg/domain-errors"
)

// ThrottledError signals the minimum spacing between checks has not elapsed.
// The collaborator is never called on a throttled attempt.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("identity check throttled, retry in %s", e.RetryAfter.Round(time.Millisecond))
}

// BiometricResult is the outcome of a biometric lookup.
type BiometricResult struct {
	HasBiometric bool
}

// RegistryDecision interprets the registry reason code. Valid is true only
// for code 0; the legal name travels in the code-0 message.
type RegistryDecision struct {
	Valid      bool
	ReasonCode int
	LegalName  string
	Message    string
}

// FallbackOutcome resolves the no-biometric sub-decision. Eligible is false
// when the holder has no alternative credential; that path is terminal.
type FallbackOutcome struct {
	Eligible              bool
	RequiresAltCredential bool
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Gate fronts the biometric and registry collaborators. Limiter state is
// process-lifetime: the distinct-ID block does not reset between sessions.
type Gate struct {
	biometric BiometricClient
	registry  RegistryClient
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     Clock

	minSpacing  time.Duration
	maxDistinct int

	mu          sync.Mutex
	queriedIDs  map[string]struct{}
	attemptedID map[string]struct{}
	lastQueryAt time.Time
	blocked     bool
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func New(biometric BiometricClient, registry RegistryClient, cfg config.Identity, opts ...Option) (*Gate, error) {
	if biometric == nil {
		return nil, errors.New("biometric client is required")
	}
	if registry == nil {
		return nil, errors.New("registry client is required")
	}
	g := &Gate{
		biometric:   biometric,
		registry:    registry,
		logger:      slog.Default(),
		clock:       time.Now,
		minSpacing:  cfg.MinQuerySpacing,
		maxDistinct: cfg.MaxDistinctIDs,
		queriedIDs:  make(map[string]struct{}),
		attemptedID: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CheckBiometric asks the collaborator whether the ID has facial biometrics.
// Every call is fresh; results are never cached, so a re-check after editing
// the field reflects registry-side changes.
func (g *Gate) CheckBiometric(ctx context.Context, nationalID string) (BiometricResult, error) {
	id := models.DigitsOnly(nationalID)
	if len(id) != 11 {
		return BiometricResult{}, dErrors.New(dErrors.CodeBadRequest, "national id must have 11 digits")
	}

	if err := g.admit(ctx, id); err != nil {
		return BiometricResult{}, err
	}

	has, err := g.biometric.HasBiometric(ctx, id)
	if err != nil {
		g.observe("biometric", "error")
		return BiometricResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "biometric check failed")
	}

	g.mu.Lock()
	g.attemptedID[id] = struct{}{}
	g.mu.Unlock()

	if has {
		g.observe("biometric", "present")
	} else {
		g.observe("biometric", "absent")
	}
	g.logger.InfoContext(ctx, "biometric check completed",
		"has_biometric", has,
	)
	return BiometricResult{HasBiometric: has}, nil
}

// CheckRegistry validates the ID and birth date against the registry of
// record. A biometric attempt for the same ID must have happened first.
func (g *Gate) CheckRegistry(ctx context.Context, nationalID, birthDate string) (RegistryDecision, error) {
	id := models.DigitsOnly(nationalID)
	if len(id) != 11 {
		return RegistryDecision{}, dErrors.New(dErrors.CodeBadRequest, "national id must have 11 digits")
	}

	g.mu.Lock()
	_, attempted := g.attemptedID[id]
	g.mu.Unlock()
	if !attempted {
		return RegistryDecision{}, dErrors.New(dErrors.CodePrecondition, "biometric check must run before the registry check")
	}

	finding, err := g.registry.Lookup(ctx, id, birthDate)
	if err != nil {
		g.observe("registry", "error")
		return RegistryDecision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "registry lookup failed")
	}
	if finding.ReasonCode == ReasonRegistryError {
		g.observe("registry", "error")
		return RegistryDecision{}, dErrors.New(dErrors.CodeUnavailable, "registry could not complete the check")
	}

	decision := interpret(finding)
	if decision.Valid {
		g.observe("registry", "valid")
	} else {
		g.observe("registry", "invalid")
	}
	g.logger.InfoContext(ctx, "registry check completed",
		"reason_code", decision.ReasonCode,
		"valid", decision.Valid,
	)
	return decision, nil
}

// ResolveFallback settles what happens when the holder has no biometrics:
// with an alternative identity credential the flow continues and the
// credential number becomes required; without one the purchase cannot
// proceed.
func (g *Gate) ResolveFallback(ctx context.Context, hasAltCredential bool) (FallbackOutcome, error) {
	if hasAltCredential {
		g.observe("fallback", "alt_credential")
		return FallbackOutcome{Eligible: true, RequiresAltCredential: true}, nil
	}
	g.observe("fallback", "ineligible")
	g.logger.InfoContext(ctx, "holder ineligible, no biometrics and no alternative credential")
	return FallbackOutcome{Eligible: false}, nil
}

// ResetID drops the biometric-attempt marker for an ID, so the registry
// precondition applies again after the holder edits the field. Limiter
// state is untouched.
func (g *Gate) ResetID(nationalID string) {
	id := models.DigitsOnly(nationalID)
	g.mu.Lock()
	delete(g.attemptedID, id)
	g.mu.Unlock()
}

// Blocked reports whether the distinct-ID cap has been hit.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

// admit enforces the limiter: terminal block, then spacing, then the
// distinct-ID cap. Throttled attempts do not touch the spacing window.
func (g *Gate) admit(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.blocked {
		g.observeLocked("blocked")
		return dErrors.New(dErrors.CodeBlocked, "identity checks are blocked for this session")
	}

	now := g.clock()
	if !g.lastQueryAt.IsZero() {
		if elapsed := now.Sub(g.lastQueryAt); elapsed < g.minSpacing {
			retryAfter := g.minSpacing - elapsed
			g.observeLocked("throttled")
			return dErrors.Wrap(&ThrottledError{RetryAfter: retryAfter}, dErrors.CodeThrottled, "too many identity checks")
		}
	}

	if _, seen := g.queriedIDs[id]; !seen {
		if len(g.queriedIDs) >= g.maxDistinct {
			g.blocked = true
			g.observeLocked("blocked")
			g.logger.WarnContext(ctx, "distinct-id cap reached, blocking identity checks",
				"distinct_ids", len(g.queriedIDs),
			)
			return dErrors.New(dErrors.CodeBlocked, "too many distinct ids queried")
		}
		g.queriedIDs[id] = struct{}{}
	}
	g.lastQueryAt = now
	return nil
}

func interpret(finding RegistryFinding) RegistryDecision {
	d := RegistryDecision{ReasonCode: finding.ReasonCode}
	switch finding.ReasonCode {
	case ReasonValid:
		d.Valid = true
		d.LegalName = strings.ToUpper(strings.TrimSpace(finding.Message))
		d.Message = "national id validated"
	case ReasonMalformed:
		d.Message = "national id is malformed"
	case ReasonNotOnFile:
		d.Message = "national id not on file at the registry"
	case ReasonCancelled:
		d.Message = "registration is cancelled at the registry"
	case ReasonBirthDate:
		d.Message = "birth date does not match the registry"
	case ReasonNull:
		d.Message = "registration is null at the registry"
	case ReasonNameDeferred:
		// The registry accepted the ID but defers the name check; not enough
		// to mark the holder validated.
		d.Message = "name will be validated later"
	default:
		d.Message = finding.Message
		if d.Message == "" {
			d.Message = fmt.Sprintf("unrecognized registry code %d", finding.ReasonCode)
		}
	}
	return d
}

func (g *Gate) observe(kind, outcome string) {
	if g.metrics == nil {
		return
	}
	switch outcome {
	case "throttled", "blocked":
		g.metrics.RateLimitEvents.WithLabelValues(outcome).Inc()
	default:
		g.metrics.IdentityChecks.WithLabelValues(kind, outcome).Inc()
	}
}

func (g *Gate) observeLocked(outcome string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RateLimitEvents.WithLabelValues(outcome).Inc()
}
