// Package models holds the checkout aggregate and its value types. All
// mutation goes through the orchestrator service; these types carry no
// behavior beyond validation and (de)serialization helpers.
package models

import (
	"time"

	"certflow/internal/payment"
)

// StepIndex identifies a wizard step. Steps are 1-based; the payer step is
// only reachable through the post-protocol branch.
type StepIndex int

const (
	StepSlot     StepIndex = 1 // videoconference slot selection
	StepCustomer StepIndex = 2 // customer data + identity verification
	StepPayer    StepIndex = 3 // distinct payer form (branch only)
	StepSummary  StepIndex = 4 // order summary / confirmation
	StepPayment  StepIndex = 5 // PIX payment
	StepUpload   StepIndex = 6 // document upload handoff (terminal)
)

// String returns a stable label used in logs and metrics.
func (s StepIndex) String() string {
	switch s {
	case StepSlot:
		return "slot"
	case StepCustomer:
		return "customer"
	case StepPayer:
		return "payer"
	case StepSummary:
		return "summary"
	case StepPayment:
		return "payment"
	case StepUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// ProductInfo describes the certificate being purchased.
type ProductInfo struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	Price float64 `json:"price"`
}

// ScheduleSlot is the selected videoconference slot. Availability is
// advisory metadata from the fetched schedule; there is no server-side
// reservation to race against.
type ScheduleSlot struct {
	Time      string `json:"time"`
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// CheckoutState is the aggregate root, owned exclusively by the
// orchestrator. Payer must be resolved and Protocol present before Payment
// may be created.
type CheckoutState struct {
	SessionID   string          `json:"sessionId"`
	Product     ProductInfo     `json:"product"`
	Schedule    *ScheduleSlot   `json:"schedule,omitempty"`
	Customer    *Customer       `json:"customer,omitempty"`
	Payer       *PayerChoice    `json:"payer,omitempty"`
	Protocol    *ProtocolTicket `json:"protocol,omitempty"`
	Payment     *payment.Record `json:"payment,omitempty"`
	CurrentStep StepIndex       `json:"currentStep"`
	UploadURL   string          `json:"uploadUrl,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewCheckoutState returns a fresh state positioned at step 1.
func NewCheckoutState(sessionID string, product ProductInfo, now time.Time) *CheckoutState {
	return &CheckoutState{
		SessionID:   sessionID,
		Product:     product,
		CurrentStep: StepSlot,
		CreatedAt:   now,
	}
}

// PayerResolved reports whether the payer decision has been taken, either
// as "same as customer" or as a fully populated distinct payer.
func (s *CheckoutState) PayerResolved() bool {
	if s.Payer == nil {
		return false
	}
	if s.Payer.SameAsCustomer {
		return true
	}
	return s.Payer.Details != nil && s.Payer.Details.Valid()
}

// ReadyForPayment enforces the aggregate invariant gating charge creation.
func (s *CheckoutState) ReadyForPayment() bool {
	return s.Protocol != nil && s.Protocol.Status == ProtocolActive && s.PayerResolved()
}
