// Package service holds the checkout orchestrator: the state machine that
// owns the aggregate, decides step transitions and invokes the identity,
// protocol, payment and intake collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certflow/internal/checkout/models"
	"certflow/internal/checkout/store"
	"certflow/internal/identity"
	"certflow/internal/intake"
	"certflow/internal/payment"
	"certflow/internal/platform/config"
	"certflow/internal/platform/metrics"
	"certflow/internal/protocol"
	dErrors "certflow/pkg/domain-errors"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Orchestrator drives one checkout session. All mutation is serialized: a
// second command while one is outstanding is rejected, never queued.
type Orchestrator struct {
	sessionID string
	product   models.ProductInfo
	store     store.Store
	gate      *identity.Gate
	issuer    *protocol.Issuer
	payments  *payment.Session
	intake    intake.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     Clock

	// op is the in-progress latch: TryLock rejects concurrent commands so a
	// double-click can never issue two tickets or two charges.
	op sync.Mutex

	mu        sync.Mutex
	state     *models.CheckoutState
	lastErr   string
	observers []func(StateView)
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New wires an orchestrator for one session. The payment session's outcome
// callback must deliver into handlePaymentOutcome; the Registry sets that up.
func New(sessionID string, product config.Product, st store.Store, gate *identity.Gate,
	issuer *protocol.Issuer, payments *payment.Session, intakeClient intake.Client,
	opts ...Option) (*Orchestrator, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if st == nil || gate == nil || issuer == nil || payments == nil || intakeClient == nil {
		return nil, errors.New("all collaborators are required")
	}
	o := &Orchestrator{
		sessionID: sessionID,
		product: models.ProductInfo{
			Code:  product.Code,
			Name:  product.Name,
			Kind:  product.Kind,
			Price: product.Price,
		},
		store:    st,
		gate:     gate,
		issuer:   issuer,
		payments: payments,
		intake:   intakeClient,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start loads a fresh snapshot when one exists, otherwise initializes a new
// state at step 1.
func (o *Orchestrator) Start(ctx context.Context) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	snap, err := o.store.Load(ctx, o.sessionID)
	if err != nil {
		o.logger.WarnContext(ctx, "snapshot load failed, starting fresh",
			"session_id", o.sessionID, "error", err)
		snap = nil
	}

	o.mu.Lock()
	if snap != nil && snap.State != nil {
		o.state = snap.State
		o.state.CurrentStep = snap.CurrentStep
		o.logger.InfoContext(ctx, "checkout resumed",
			"session_id", o.sessionID, "step", o.state.CurrentStep.String())
	} else {
		o.state = models.NewCheckoutState(o.sessionID, o.product, o.clock())
		if o.metrics != nil {
			o.metrics.CheckoutsStarted.Inc()
		}
		o.logger.InfoContext(ctx, "checkout started", "session_id", o.sessionID)
	}
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// Advance validates the current step, runs its side effect and moves on.
// Validation failures and side-effect failures both leave the step where it
// was.
func (o *Orchestrator) Advance(ctx context.Context, input AdvanceInput) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "checkout not started")
	}
	o.applyInput(input)
	if !stepValid(o.state) {
		o.lastErr = fmt.Sprintf("step %s is not complete", o.state.CurrentStep.String())
		o.mu.Unlock()
		view := o.notify()
		return view, dErrors.New(dErrors.CodeBadRequest, view.LastError)
	}
	o.lastErr = ""
	step := o.state.CurrentStep
	o.mu.Unlock()

	var err error
	switch step {
	case models.StepSlot:
		err = o.transition(ctx, models.StepCustomer)
	case models.StepCustomer:
		err = o.issueProtocol(ctx)
	case models.StepPayer:
		err = o.transition(ctx, models.StepSummary)
	case models.StepSummary:
		err = o.enterPayment(ctx)
	case models.StepPayment:
		// stepValid already required an approved payment; the outcome
		// callback normally jumps first, this covers a missed or failed
		// handoff by minting the upload link here.
		err = o.handoffToIntake(ctx)
	case models.StepUpload:
		err = o.finish(ctx)
	}

	view := o.notify()
	return view, err
}

// Retreat steps back one position, floored at step 1, and stops any active
// payment polling.
func (o *Orchestrator) Retreat(ctx context.Context) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.payments.Cancel()

	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "checkout not started")
	}
	if o.state.CurrentStep > models.StepSlot {
		o.setStepLocked(o.state.CurrentStep - 1)
	}
	o.lastErr = ""
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// JumpTo moves to an arbitrary step, persisting first. Used by the summary
// page's edit-payer link; the two branch jumps go through
// ResolvePayerChoice.
func (o *Orchestrator) JumpTo(ctx context.Context, step models.StepIndex) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	if step < models.StepSlot || step > models.StepUpload {
		return StateView{}, dErrors.Newf(dErrors.CodeBadRequest, "step %d out of range", step)
	}

	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "checkout not started")
	}
	o.mu.Unlock()
	o.persist(ctx)

	o.mu.Lock()
	o.setStepLocked(step)
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// ResolvePayerChoice settles the post-protocol confirmation: the customer
// pays (jump to summary) or someone else does (detour to the payer form).
func (o *Orchestrator) ResolvePayerChoice(ctx context.Context, decision models.PayerDecision) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil || o.state.Protocol == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "payer decision requires an issued protocol")
	}

	switch decision {
	case models.DecisionSamePayer:
		o.state.Payer = models.SamePayer()
		o.setStepLocked(models.StepSummary)
	case models.DecisionDistinctPayer:
		if o.state.Payer == nil || o.state.Payer.SameAsCustomer {
			o.state.Payer = &models.PayerChoice{}
		}
		o.setStepLocked(models.StepPayer)
	default:
		o.mu.Unlock()
		return StateView{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown payer decision %q", decision)
	}
	o.lastErr = ""
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// VerifyBiometric runs the gate's biometric check for the form's current ID
// and records the outcome on the aggregate. Editing the ID resets previous
// verification results.
func (o *Orchestrator) VerifyBiometric(ctx context.Context, nationalID string) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "checkout not started")
	}
	if o.state.Protocol != nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodeConflict, "customer data is frozen after protocol issuance")
	}
	if o.state.Customer == nil {
		o.state.Customer = &models.Customer{}
	}
	customer := o.state.Customer
	previous := customer.NationalID
	if models.DigitsOnly(previous) != models.DigitsOnly(nationalID) && previous != "" {
		o.gate.ResetID(previous)
		customer.Verification = models.Verification{}
	}
	customer.NationalID = nationalID
	o.mu.Unlock()

	result, err := o.gate.CheckBiometric(ctx, nationalID)
	if err != nil {
		o.setError(err)
		return o.notify(), err
	}

	o.mu.Lock()
	has := result.HasBiometric
	customer.Verification.BiometricChecked = true
	customer.Verification.HasBiometric = &has
	o.lastErr = ""
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// VerifyRegistry runs the registry-of-record check. A valid result adopts
// the registry's legal name; reason-specific messages (birth-date mismatch
// in particular) surface through LastError.
func (o *Orchestrator) VerifyRegistry(ctx context.Context, birthDate string) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil || o.state.Customer == nil {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "biometric check must run first")
	}
	customer := o.state.Customer
	nationalID := customer.NationalID
	customer.BirthDate = birthDate
	o.mu.Unlock()

	decision, err := o.gate.CheckRegistry(ctx, nationalID, birthDate)
	if err != nil {
		o.setError(err)
		return o.notify(), err
	}

	o.mu.Lock()
	customer.Verification.RegistryValidated = decision.Valid
	if decision.Valid {
		customer.Verification.RegistryName = decision.LegalName
		customer.LegalName = decision.LegalName
		o.lastErr = ""
	} else {
		customer.Verification.RegistryName = ""
		o.lastErr = decision.Message
	}
	o.mu.Unlock()

	o.persist(ctx)
	view := o.notify()
	if !decision.Valid {
		return view, dErrors.New(dErrors.CodeBadRequest, decision.Message)
	}
	return view, nil
}

// ResolveNoBiometric settles the fallback sub-decision after a "no
// biometrics on file" result.
func (o *Orchestrator) ResolveNoBiometric(ctx context.Context, hasAltCredential bool) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil || o.state.Customer == nil || !o.state.Customer.Verification.BiometricChecked {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "biometric check must run first")
	}
	customer := o.state.Customer
	o.mu.Unlock()

	outcome, err := o.gate.ResolveFallback(ctx, hasAltCredential)
	if err != nil {
		o.setError(err)
		return o.notify(), err
	}

	o.mu.Lock()
	customer.Verification.RequiresAltCredential = outcome.RequiresAltCredential
	customer.Verification.Ineligible = !outcome.Eligible
	if outcome.Eligible {
		o.lastErr = ""
	} else {
		o.lastErr = "certificate issuance requires biometrics or an alternative identity credential"
	}
	o.mu.Unlock()

	o.persist(ctx)
	return o.notify(), nil
}

// CancelPayment stops polling and records the cancelled state. The user can
// regenerate a charge by advancing from the summary again.
func (o *Orchestrator) CancelPayment(ctx context.Context) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.payments.Cancel()
	o.syncPaymentRecord()
	o.persist(ctx)
	return o.notify(), nil
}

// CheckPaymentNow performs the user-triggered out-of-band status check.
func (o *Orchestrator) CheckPaymentNow(ctx context.Context) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	status, err := o.payments.CheckNow(ctx)
	if err != nil {
		o.setError(err)
		return o.notify(), err
	}
	o.syncPaymentRecord()
	o.persist(ctx)
	o.logger.InfoContext(ctx, "manual payment check", "status", string(status))
	return o.notify(), nil
}

// Subscribe registers a view observer. Every observer receives the current
// view immediately and again after each mutation.
func (o *Orchestrator) Subscribe(fn func(StateView)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
	fn(o.View())
}

// View returns the current read model.
func (o *Orchestrator) View() StateView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// Slots lists the bookable videoconference slots: fixed business hours over
// the next week. Availability is advisory; there is no reservation.
func (o *Orchestrator) Slots() []models.ScheduleSlot {
	times := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}
	var slots []models.ScheduleSlot
	day := o.clock()
	for len(slots) < len(times)*5 {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		date := day.Format("2006-01-02")
		for _, t := range times {
			slots = append(slots, models.ScheduleSlot{Time: t, Date: date, Available: true})
		}
	}
	return slots
}

// Shutdown stops polling and flushes the snapshot. Called on server
// teardown.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.payments.Cancel()
	o.syncPaymentRecord()
	o.persist(ctx)
}

// applyInput merges the step's form data into the aggregate. Caller holds
// o.mu.
func (o *Orchestrator) applyInput(input AdvanceInput) {
	switch o.state.CurrentStep {
	case models.StepSlot:
		if input.Slot != nil {
			slot := *input.Slot
			o.state.Schedule = &slot
		}
	case models.StepCustomer:
		if input.Customer != nil && o.state.Protocol == nil {
			if o.state.Customer == nil {
				o.state.Customer = &models.Customer{}
			}
			c := o.state.Customer
			in := input.Customer
			if in.LegalName != "" && !c.Verification.RegistryValidated {
				c.LegalName = in.LegalName
			}
			if in.BirthDate != "" {
				c.BirthDate = in.BirthDate
			}
			c.Email = in.Email
			c.Phone = in.Phone
			c.Address = in.Address
			c.Verification.AltCredentialNumber = in.AltCredentialNumber
		}
	case models.StepPayer:
		if input.Payer != nil {
			details := *input.Payer
			details.Document = models.DigitsOnly(details.Document)
			o.state.Payer = models.DistinctPayer(&details)
		}
	}
}

// issueProtocol is step 2's side effect: one synchronous issuance attempt.
// Success freezes the customer and waits for the payer decision; failure
// stays on step 2.
func (o *Orchestrator) issueProtocol(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Protocol != nil {
		// Re-advancing after issuance re-prompts the payer decision instead
		// of issuing a second ticket.
		o.mu.Unlock()
		return nil
	}
	customer := o.state.Customer
	o.mu.Unlock()

	ticket, err := o.issuer.Issue(ctx, customer)
	if err != nil {
		o.setError(err)
		return err
	}

	o.mu.Lock()
	o.state.Protocol = ticket
	o.lastErr = ""
	o.mu.Unlock()

	o.persist(ctx)
	o.logger.InfoContext(ctx, "protocol stored, awaiting payer decision",
		"session_id", o.sessionID, "protocol", ticket.Number)
	return nil
}

// enterPayment is step 4's side effect: move to the payment step and mint
// the charge. Creation failure keeps the user on step 5 with the error
// surfaced and no active polling.
func (o *Orchestrator) enterPayment(ctx context.Context) error {
	if err := o.transition(ctx, models.StepPayment); err != nil {
		return err
	}
	return o.createCharge(ctx)
}

// RetryPayment regenerates a charge after a terminal non-approved outcome.
func (o *Orchestrator) RetryPayment(ctx context.Context) (StateView, error) {
	if !o.op.TryLock() {
		return StateView{}, errInProgress()
	}
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state == nil || o.state.CurrentStep != models.StepPayment {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodePrecondition, "no payment step in progress")
	}
	if o.state.Payment != nil && o.state.Payment.Status == payment.StatusApproved {
		o.mu.Unlock()
		return StateView{}, dErrors.New(dErrors.CodeConflict, "payment already approved")
	}
	o.mu.Unlock()

	err := o.createCharge(ctx)
	return o.notify(), err
}

func (o *Orchestrator) createCharge(ctx context.Context) error {
	o.mu.Lock()
	if !o.state.ReadyForPayment() {
		o.mu.Unlock()
		return dErrors.New(dErrors.CodePrecondition, "payment requires a protocol and a resolved payer")
	}
	req := o.chargeRequestLocked()
	o.mu.Unlock()

	rec, err := o.payments.Create(ctx, req)
	if err != nil {
		o.setError(err)
		o.persist(ctx)
		return err
	}

	o.mu.Lock()
	o.state.Payment = rec
	o.lastErr = ""
	o.mu.Unlock()

	o.persist(ctx)
	return nil
}

// chargeRequestLocked assembles provider billing data from the resolved
// payer. Caller holds o.mu.
func (o *Orchestrator) chargeRequestLocked() payment.ChargeRequest {
	req := payment.ChargeRequest{
		Amount:    o.state.Product.Price,
		Reference: o.state.Protocol.Number,
	}
	if o.state.Payer.SameAsCustomer {
		c := o.state.Customer
		req.PayerName = c.LegalName
		req.PayerDocument = models.DigitsOnly(c.NationalID)
		req.PayerEmail = c.Email
		req.PayerPhone = models.DigitsOnly(c.Phone)
	} else {
		d := o.state.Payer.Details
		req.PayerName = d.Name
		req.PayerDocument = models.DigitsOnly(d.Document)
		req.PayerEmail = d.Email
		req.PayerPhone = models.DigitsOnly(d.Phone)
	}
	return req
}

// handlePaymentOutcome runs on the payment session's goroutine when polling
// ends. Approval mints the upload link, marks the ticket used and jumps to
// the upload step; every other outcome leaves the user on the payment step.
func (o *Orchestrator) handlePaymentOutcome(out payment.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return
	}
	rec := out.Record
	o.state.Payment = &rec
	o.mu.Unlock()

	if out.State != payment.StateApproved {
		o.logger.Info("payment ended without approval",
			"session_id", o.sessionID, "outcome", string(out.State))
		o.persist(ctx)
		o.notify()
		return
	}

	if err := o.handoffToIntake(ctx); err != nil {
		// The payment is approved either way; the user re-triggers the
		// handoff by advancing.
		o.notify()
		return
	}
	o.logger.Info("payment approved, handed off to document intake",
		"session_id", o.sessionID)
	o.notify()
}

// handoffToIntake mints the upload link for the issued protocol, marks the
// ticket used and jumps to the upload step. Idempotent: a link already
// minted is kept.
func (o *Orchestrator) handoffToIntake(ctx context.Context) error {
	o.mu.Lock()
	if o.state.UploadURL != "" {
		o.setStepLocked(models.StepUpload)
		o.mu.Unlock()
		o.persist(ctx)
		return nil
	}
	protocolNumber := ""
	if o.state.Protocol != nil {
		protocolNumber = o.state.Protocol.Number
	}
	o.mu.Unlock()

	link, err := o.intake.CreateUploadLink(ctx, protocolNumber)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeUnavailable, "upload link creation failed")
		o.logger.ErrorContext(ctx, "upload link creation failed",
			"session_id", o.sessionID, "error", err)
		o.setError(err)
		o.persist(ctx)
		return err
	}

	o.mu.Lock()
	o.state.UploadURL = link.URL
	if o.state.Protocol != nil {
		o.state.Protocol.Status = models.ProtocolUsed
	}
	o.setStepLocked(models.StepUpload)
	o.lastErr = ""
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.CheckoutsCompleted.Inc()
	}
	o.persist(ctx)
	return nil
}

// finish is the terminal step's reset: clear persistence, fresh state at
// step 1.
func (o *Orchestrator) finish(ctx context.Context) error {
	if err := o.store.Clear(ctx, o.sessionID); err != nil {
		o.logger.WarnContext(ctx, "snapshot clear failed", "session_id", o.sessionID, "error", err)
	}
	o.mu.Lock()
	o.state = models.NewCheckoutState(o.sessionID, o.product, o.clock())
	o.lastErr = ""
	o.mu.Unlock()
	o.logger.InfoContext(ctx, "checkout finished and reset", "session_id", o.sessionID)
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, to models.StepIndex) error {
	o.mu.Lock()
	o.setStepLocked(to)
	o.mu.Unlock()
	o.persist(ctx)
	return nil
}

// setStepLocked records the transition. Caller holds o.mu.
func (o *Orchestrator) setStepLocked(to models.StepIndex) {
	if o.state.CurrentStep == to {
		return
	}
	o.state.CurrentStep = to
	if o.metrics != nil {
		o.metrics.StepTransitions.WithLabelValues(to.String()).Inc()
	}
}

// syncPaymentRecord copies the payment session's record into the aggregate.
func (o *Orchestrator) syncPaymentRecord() {
	rec := o.payments.RecordSnapshot()
	if rec == nil {
		return
	}
	o.mu.Lock()
	if o.state != nil {
		o.state.Payment = rec
	}
	o.mu.Unlock()
}

// persist writes the snapshot. Failures are logged, not propagated; the
// in-memory aggregate stays authoritative for the session.
func (o *Orchestrator) persist(ctx context.Context) {
	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return
	}
	snap := &store.Snapshot{
		CurrentStep: o.state.CurrentStep,
		State:       o.state,
		SavedAt:     o.clock(),
	}
	o.mu.Unlock()

	if err := o.store.Save(ctx, o.sessionID, snap); err != nil {
		o.logger.WarnContext(ctx, "snapshot save failed",
			"session_id", o.sessionID, "error", err)
	}
}

func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.lastErr = dErrors.UserMessage(err)
	o.mu.Unlock()
}

// notify snapshots the view and fans it out to observers.
func (o *Orchestrator) notify() StateView {
	o.mu.Lock()
	view := o.viewLocked()
	observers := make([]func(StateView), len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
	return view
}

// viewLocked builds the read model. Caller holds o.mu.
func (o *Orchestrator) viewLocked() StateView {
	view := StateView{
		SessionID:    o.sessionID,
		Product:      o.product,
		LastError:    o.lastErr,
		PaymentState: o.payments.State(),
	}
	if o.state == nil {
		return view
	}
	view.CurrentStep = o.state.CurrentStep
	view.StepLabel = o.state.CurrentStep.String()
	view.CanAdvance = stepValid(o.state)
	view.AwaitingPayerDecision = o.state.CurrentStep == models.StepCustomer &&
		o.state.Protocol != nil && o.state.Payer == nil
	view.Schedule = o.state.Schedule
	view.Customer = o.state.Customer
	view.Payer = o.state.Payer
	view.Payment = o.state.Payment
	view.UploadURL = o.state.UploadURL
	if o.state.Protocol != nil {
		view.ProtocolNumber = o.state.Protocol.Number
	}
	return view
}

func errInProgress() error {
	return dErrors.New(dErrors.CodeConflict, "operation in progress")
}
