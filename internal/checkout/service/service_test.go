package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certflow/internal/checkout/models"
	"certflow/internal/checkout/store"
	"certflow/internal/identity"
	"certflow/internal/intake"
	"certflow/internal/payment"
	"certflow/internal/platform/config"
	"certflow/internal/protocol"
	dErrors "certflow/pkg/domain-errors"
)

type OrchestratorTestSuite struct {
	suite.Suite

	store     *store.MemoryStore
	biometric *identity.MockBiometricClient
	registry  *identity.MockRegistryClient
	issuer    *protocol.MockIssuerClient
	provider  *payment.MockProviderClient
	intake    *intake.MockClient
	sessions  *Registry
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) SetupTest() {
	cipher, err := store.NewCipher("test-secret")
	s.Require().NoError(err)
	s.store = store.NewMemoryStore(cipher, 24*time.Hour)

	s.biometric = identity.NewMockBiometricClient()
	s.registry = identity.NewMockRegistryClient()
	s.issuer = protocol.NewMockIssuerClient()
	s.provider = payment.NewMockProviderClient()
	s.intake, err = intake.NewMockClient("https://intake.example.com", []byte("test-key"))
	s.Require().NoError(err)

	s.rebuildRegistry()
}

func (s *OrchestratorTestSuite) rebuildRegistry() {
	sessions, err := NewRegistry(Deps{
		Cfg: config.Config{
			Product: config.Product{Code: "ecpf-a1", Name: "e-CPF A1 (1 year)", Kind: "e-CPF", Price: 109.00},
			Identity: config.Identity{
				MinQuerySpacing: 0,
				MaxDistinctIDs:  5,
			},
			Payment: config.Payment{
				GraceDelay:   time.Millisecond,
				PollInterval: 5 * time.Millisecond,
				MaxElapsed:   2 * time.Second,
			},
		},
		Store:     s.store,
		Biometric: s.biometric,
		Registry:  s.registry,
		Issuer:    s.issuer,
		Provider:  s.provider,
		Intake:    s.intake,
	})
	s.Require().NoError(err)
	s.sessions = sessions
}

func (s *OrchestratorTestSuite) newSession(id string) *Orchestrator {
	orch, err := s.sessions.Create(id)
	s.Require().NoError(err)
	_, err = orch.Start(context.Background())
	s.Require().NoError(err)
	return orch
}

func (s *OrchestratorTestSuite) customerInput() *CustomerInput {
	return &CustomerInput{
		Email: "maria@example.com",
		Phone: "11988887777",
		Address: models.Address{
			PostalCode: "01310100",
			Street:     "Avenida Paulista",
			Number:     "1000",
			District:   "Bela Vista",
			City:       "São Paulo",
			Region:     "SP",
		},
	}
}

// completeCustomerStep walks a fresh session through slot selection and the
// full identity verification, leaving it at the payer decision.
func (s *OrchestratorTestSuite) completeCustomerStep(orch *Orchestrator) StateView {
	ctx := context.Background()

	view, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)
	s.Require().Equal(models.StepCustomer, view.CurrentStep)

	_, err = orch.VerifyBiometric(ctx, "529.982.247-25")
	s.Require().NoError(err)
	_, err = orch.VerifyRegistry(ctx, "1990-01-15")
	s.Require().NoError(err)

	view, err = orch.Advance(ctx, AdvanceInput{Customer: s.customerInput()})
	s.Require().NoError(err)
	s.Require().Equal(models.StepCustomer, view.CurrentStep)
	s.Require().True(view.AwaitingPayerDecision)
	return view
}

func (s *OrchestratorTestSuite) TestStartFresh() {
	orch := s.newSession("sess-1")
	view := orch.View()
	s.Equal(models.StepSlot, view.CurrentStep)
	s.False(view.CanAdvance)
	s.Equal("ecpf-a1", view.Product.Code)
}

func (s *OrchestratorTestSuite) TestAdvanceRejectsInvalidStep() {
	orch := s.newSession("sess-1")

	view, err := orch.Advance(context.Background(), AdvanceInput{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeBadRequest, dErrors.GetCode(err))
	s.Equal(models.StepSlot, view.CurrentStep)
	s.NotEmpty(view.LastError)
}

func (s *OrchestratorTestSuite) TestUnavailableSlotRejected() {
	orch := s.newSession("sess-1")

	_, err := orch.Advance(context.Background(), AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: false},
	})
	s.Require().Error(err)
	s.Equal(models.StepSlot, orch.View().CurrentStep)
}

func (s *OrchestratorTestSuite) TestRegistryAdoptsLegalName() {
	orch := s.newSession("sess-1")
	view := s.completeCustomerStep(orch)
	s.Equal("MARIA DE SOUZA", view.Customer.LegalName)
	s.True(view.Customer.Verification.RegistryValidated)
}

// Birth-date divergence keeps the session on the customer step with the
// mismatch message surfaced.
func (s *OrchestratorTestSuite) TestBirthDateMismatchStaysOnCustomerStep() {
	s.registry.Default = identity.RegistryFinding{ReasonCode: identity.ReasonBirthDate}
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)

	_, err = orch.VerifyBiometric(ctx, "11111111111")
	s.Require().NoError(err)

	view, err := orch.VerifyRegistry(ctx, "1991-01-15")
	s.Require().Error(err)
	s.Contains(view.LastError, "birth date")
	s.Equal(models.StepCustomer, view.CurrentStep)
	s.False(view.CanAdvance)
}

func (s *OrchestratorTestSuite) TestNoBiometricFallback() {
	s.biometric.Default = false
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)

	view, err := orch.VerifyBiometric(ctx, "52998224725")
	s.Require().NoError(err)
	s.Require().NotNil(view.Customer.Verification.HasBiometric)
	s.False(*view.Customer.Verification.HasBiometric)

	view, err = orch.ResolveNoBiometric(ctx, true)
	s.Require().NoError(err)
	s.True(view.Customer.Verification.RequiresAltCredential)

	_, err = orch.VerifyRegistry(ctx, "1990-01-15")
	s.Require().NoError(err)

	// Without the credential number the step stays incomplete.
	input := s.customerInput()
	_, err = orch.Advance(ctx, AdvanceInput{Customer: input})
	s.Require().Error(err)

	input.AltCredentialNumber = "01234567890"
	view, err = orch.Advance(ctx, AdvanceInput{Customer: input})
	s.Require().NoError(err)
	s.True(view.AwaitingPayerDecision)
}

func (s *OrchestratorTestSuite) TestNoCredentialIsTerminal() {
	s.biometric.Default = false
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)
	_, err = orch.VerifyBiometric(ctx, "52998224725")
	s.Require().NoError(err)

	view, err := orch.ResolveNoBiometric(ctx, false)
	s.Require().NoError(err)
	s.True(view.Customer.Verification.Ineligible)
	s.NotEmpty(view.LastError)
	s.False(view.CanAdvance)
}

func (s *OrchestratorTestSuite) TestEditingIDResetsVerification() {
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)

	_, err = orch.VerifyBiometric(ctx, "52998224725")
	s.Require().NoError(err)
	_, err = orch.VerifyRegistry(ctx, "1990-01-15")
	s.Require().NoError(err)

	view, err := orch.VerifyBiometric(ctx, "15350946056")
	s.Require().NoError(err)
	s.False(view.Customer.Verification.RegistryValidated)
	s.True(view.Customer.Verification.BiometricChecked)
}

// Same payer jumps straight to the summary; a distinct payer detours
// through the payer form, which always leads to the summary.
func (s *OrchestratorTestSuite) TestPayerBranchSamePayer() {
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)

	view, err := orch.ResolvePayerChoice(context.Background(), models.DecisionSamePayer)
	s.Require().NoError(err)
	s.Equal(models.StepSummary, view.CurrentStep)
	s.True(view.Payer.SameAsCustomer)
	s.True(view.CanAdvance)
}

func (s *OrchestratorTestSuite) TestPayerBranchDistinctPayer() {
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	view, err := orch.ResolvePayerChoice(ctx, models.DecisionDistinctPayer)
	s.Require().NoError(err)
	s.Equal(models.StepPayer, view.CurrentStep)
	s.False(view.CanAdvance)

	view, err = orch.Advance(ctx, AdvanceInput{
		Payer: &models.PayerDetails{
			Kind:     models.EntityOrganization,
			Document: "19.131.243/0001-97",
			Name:     "ACME LTDA",
			Email:    "billing@acme.example.com",
			Address: models.Address{
				PostalCode: "01310100",
				Street:     "Avenida Paulista",
				Number:     "2000",
				District:   "Bela Vista",
				City:       "São Paulo",
				Region:     "SP",
			},
		},
	})
	s.Require().NoError(err)
	s.Equal(models.StepSummary, view.CurrentStep)
	s.Equal("19131243000197", view.Payer.Details.Document)
}

func (s *OrchestratorTestSuite) TestPayerDecisionRequiresProtocol() {
	orch := s.newSession("sess-1")
	_, err := orch.ResolvePayerChoice(context.Background(), models.DecisionSamePayer)
	s.Require().Error(err)
	s.Equal(dErrors.CodePrecondition, dErrors.GetCode(err))
}

func (s *OrchestratorTestSuite) TestEditPayerSideLink() {
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)

	view, err := orch.JumpTo(ctx, models.StepPayer)
	s.Require().NoError(err)
	s.Equal(models.StepPayer, view.CurrentStep)
	// Other state survives the detour.
	s.NotEmpty(view.ProtocolNumber)
	s.NotNil(view.Schedule)
}

// Only one protocol is issued per checkout even when the customer step is
// advanced twice.
func (s *OrchestratorTestSuite) TestAdvanceTwiceIssuesOneProtocol() {
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)

	view, err := orch.Advance(context.Background(), AdvanceInput{Customer: s.customerInput()})
	s.Require().NoError(err)
	s.True(view.AwaitingPayerDecision)
	s.Equal(1, s.issuer.Calls())
}

func (s *OrchestratorTestSuite) TestConcurrentAdvanceRejected() {
	s.issuer.Latency = 100 * time.Millisecond
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)
	_, err = orch.VerifyBiometric(ctx, "52998224725")
	s.Require().NoError(err)
	_, err = orch.VerifyRegistry(ctx, "1990-01-15")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = orch.Advance(ctx, AdvanceInput{Customer: s.customerInput()})
	}()
	time.Sleep(20 * time.Millisecond)

	_, err = orch.Advance(ctx, AdvanceInput{Customer: s.customerInput()})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.GetCode(err))
	wg.Wait()

	s.True(orch.View().AwaitingPayerDecision)
}

// A verification call landing while step 2's issuance is in flight must be
// rejected, not mutate the customer the ticket is being issued for.
func (s *OrchestratorTestSuite) TestVerifyDuringIssuanceRejected() {
	s.issuer.Latency = 100 * time.Millisecond
	orch := s.newSession("sess-1")
	ctx := context.Background()

	_, err := orch.Advance(ctx, AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)
	_, err = orch.VerifyBiometric(ctx, "52998224725")
	s.Require().NoError(err)
	_, err = orch.VerifyRegistry(ctx, "1990-01-15")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = orch.Advance(ctx, AdvanceInput{Customer: s.customerInput()})
	}()
	time.Sleep(20 * time.Millisecond)

	_, err = orch.VerifyBiometric(ctx, "153.509.460-56")
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.GetCode(err))
	wg.Wait()

	// The issued ticket matches the customer it was minted for.
	view := orch.View()
	s.NotEmpty(view.ProtocolNumber)
	s.Equal("52998224725", models.DigitsOnly(view.Customer.NationalID))
}

// Payment approval discovered by polling mints the upload link, marks the
// ticket used and jumps to the upload step.
func (s *OrchestratorTestSuite) TestPaymentApprovalHandsOff() {
	s.provider.SetScript(
		payment.ChargeStatus{StatusCode: 1},
		payment.ChargeStatus{StatusCode: 1},
		payment.ChargeStatus{StatusAlias: "paid"},
	)
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)

	view, err := orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)
	s.Equal(models.StepPayment, view.CurrentStep)
	s.Require().NotNil(view.Payment)
	s.NotEmpty(view.Payment.PayCode)

	s.Require().Eventually(func() bool {
		return orch.View().CurrentStep == models.StepUpload
	}, time.Second, 5*time.Millisecond)

	view = orch.View()
	s.Contains(view.UploadURL, "https://intake.example.com/upload?token=")
	s.Equal(payment.StatusApproved, view.Payment.Status)
}

// Polling that never resolves ends in TimedOut and the user stays on the
// payment step with a retry available.
func (s *OrchestratorTestSuite) TestPaymentTimeoutStaysOnPaymentStep() {
	s.provider.SetScript(payment.ChargeStatus{StatusCode: 1})
	s.sessions.deps.Cfg.Payment.MaxElapsed = 30 * time.Millisecond
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)
	_, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return orch.View().PaymentState == payment.StateTimedOut
	}, time.Second, 5*time.Millisecond)

	view := orch.View()
	s.Equal(models.StepPayment, view.CurrentStep)
	s.Empty(view.UploadURL)

	// Retry regenerates a charge.
	s.provider.SetScript(payment.ChargeStatus{StatusAlias: "paid"})
	_, err = orch.RetryPayment(ctx)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		return orch.View().CurrentStep == models.StepUpload
	}, time.Second, 5*time.Millisecond)
}

// An intake outage during the approval callback leaves the session on the
// payment step; advancing afterwards mints the link before the jump.
func (s *OrchestratorTestSuite) TestAdvanceMintsUploadLinkAfterIntakeOutage() {
	s.provider.SetScript(payment.ChargeStatus{StatusAlias: "paid"})
	s.intake.Err = errors.New("intake down")
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)
	_, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		v := orch.View()
		return v.Payment != nil && v.Payment.Status == payment.StatusApproved
	}, time.Second, 5*time.Millisecond)

	view := orch.View()
	s.Equal(models.StepPayment, view.CurrentStep)
	s.Empty(view.UploadURL)
	s.NotEmpty(view.LastError)

	// Intake still down: advancing surfaces the failure and stays put.
	view, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.GetCode(err))
	s.Equal(models.StepPayment, view.CurrentStep)

	// Recovered intake: advancing completes the handoff.
	s.intake.Err = nil
	view, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)
	s.Equal(models.StepUpload, view.CurrentStep)
	s.Contains(view.UploadURL, "/upload?token=")
}

func (s *OrchestratorTestSuite) TestRetreatCancelsPolling() {
	s.provider.SetScript(payment.ChargeStatus{StatusCode: 1})
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)
	_, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)

	view, err := orch.Retreat(ctx)
	s.Require().NoError(err)
	s.Equal(models.StepSummary, view.CurrentStep)
	s.Equal(payment.StateCancelled, view.PaymentState)
}

func (s *OrchestratorTestSuite) TestRetreatFloorsAtStepOne() {
	orch := s.newSession("sess-1")
	view, err := orch.Retreat(context.Background())
	s.Require().NoError(err)
	s.Equal(models.StepSlot, view.CurrentStep)
}

func (s *OrchestratorTestSuite) TestChargeCreationFailureStaysOnPayment() {
	s.provider.CreateErr = errors.New("provider down")
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)

	view, err := orch.Advance(ctx, AdvanceInput{})
	s.Require().Error(err)
	s.Equal(models.StepPayment, view.CurrentStep)
	s.NotEmpty(view.LastError)
	s.Nil(view.Payment)

	// Clearing the fault lets a retry succeed.
	s.provider.CreateErr = nil
	view, err = orch.RetryPayment(ctx)
	s.Require().NoError(err)
	s.NotNil(view.Payment)
}

func (s *OrchestratorTestSuite) TestDistinctPayerBillsPayerDocument() {
	s.provider.SetScript(payment.ChargeStatus{StatusCode: 1})
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionDistinctPayer)
	s.Require().NoError(err)
	_, err = orch.Advance(ctx, AdvanceInput{
		Payer: &models.PayerDetails{
			Kind:     models.EntityIndividual,
			Document: "153.509.460-56",
			Name:     "JOSE PAGADOR",
			Address: models.Address{
				PostalCode: "01310100", Street: "Rua A", Number: "1",
				District: "Centro", City: "São Paulo", Region: "SP",
			},
		},
	})
	s.Require().NoError(err)

	_, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)

	req := s.provider.LastCharge()
	s.Require().NotNil(req)
	s.Equal("15350946056", req.PayerDocument)
	s.Equal("JOSE PAGADOR", req.PayerName)
	s.InDelta(109.00, req.Amount, 0.001)
}

func (s *OrchestratorTestSuite) TestResumeFromSnapshot() {
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	_, err := orch.ResolvePayerChoice(context.Background(), models.DecisionSamePayer)
	s.Require().NoError(err)

	// A new registry over the same store simulates a process restart.
	s.rebuildRegistry()
	resumed, err := s.sessions.Create("sess-1")
	s.Require().NoError(err)
	view, err := resumed.Start(context.Background())
	s.Require().NoError(err)

	s.Equal(models.StepSummary, view.CurrentStep)
	s.Equal("52998224725", models.DigitsOnly(view.Customer.NationalID))
	s.NotEmpty(view.ProtocolNumber)
	s.True(view.Payer.SameAsCustomer)
}

func (s *OrchestratorTestSuite) TestFinishResetsSession() {
	s.provider.SetScript(payment.ChargeStatus{StatusAlias: "paid"})
	orch := s.newSession("sess-1")
	s.completeCustomerStep(orch)
	ctx := context.Background()

	_, err := orch.ResolvePayerChoice(ctx, models.DecisionSamePayer)
	s.Require().NoError(err)
	_, err = orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return orch.View().CurrentStep == models.StepUpload
	}, time.Second, 5*time.Millisecond)

	view, err := orch.Advance(ctx, AdvanceInput{})
	s.Require().NoError(err)
	s.Equal(models.StepSlot, view.CurrentStep)
	s.Nil(view.Customer)
	s.Empty(view.ProtocolNumber)

	snap, err := s.store.Load(ctx, "sess-1")
	s.Require().NoError(err)
	// finish clears and then persists the fresh state.
	if snap != nil {
		s.Equal(models.StepSlot, snap.CurrentStep)
	}
}

func (s *OrchestratorTestSuite) TestObserverReceivesUpdates() {
	orch := s.newSession("sess-1")

	var mu sync.Mutex
	var steps []models.StepIndex
	orch.Subscribe(func(v StateView) {
		mu.Lock()
		steps = append(steps, v.CurrentStep)
		mu.Unlock()
	})

	_, err := orch.Advance(context.Background(), AdvanceInput{
		Slot: &models.ScheduleSlot{Time: "10:00", Date: "2024-06-03", Available: true},
	})
	s.Require().NoError(err)

	mu.Lock()
	defer mu.Unlock()
	s.Require().GreaterOrEqual(len(steps), 2)
	s.Equal(models.StepSlot, steps[0])
	s.Equal(models.StepCustomer, steps[len(steps)-1])
}

func (s *OrchestratorTestSuite) TestSlotsSkipWeekends() {
	orch := s.newSession("sess-1")
	slots := orch.Slots()
	s.Require().NotEmpty(slots)
	for _, slot := range slots {
		day, err := time.Parse("2006-01-02", slot.Date)
		s.Require().NoError(err)
		s.NotEqual(time.Saturday, day.Weekday())
		s.NotEqual(time.Sunday, day.Weekday())
		s.True(slot.Available)
	}
}
