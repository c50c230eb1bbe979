package service

import (
	"certflow/internal/checkout/models"
	"certflow/internal/payment"
)

// StateView is the read model exposed to the presentation layer. Observers
// receive one after every mutation.
type StateView struct {
	SessionID             string                `json:"sessionId"`
	CurrentStep           models.StepIndex      `json:"currentStep"`
	StepLabel             string                `json:"stepLabel"`
	CanAdvance            bool                  `json:"canAdvance"`
	AwaitingPayerDecision bool                  `json:"awaitingPayerDecision"`
	LastError             string                `json:"lastError,omitempty"`
	Product               models.ProductInfo    `json:"product"`
	Schedule              *models.ScheduleSlot  `json:"schedule,omitempty"`
	Customer              *models.Customer      `json:"customer,omitempty"`
	Payer                 *models.PayerChoice   `json:"payer,omitempty"`
	ProtocolNumber        string                `json:"protocolNumber,omitempty"`
	Payment               *payment.Record       `json:"payment,omitempty"`
	PaymentState          payment.State         `json:"paymentState,omitempty"`
	UploadURL             string                `json:"uploadUrl,omitempty"`
}

// AdvanceInput carries the form data for the step being completed. Only the
// field matching the current step is consulted.
type AdvanceInput struct {
	Slot     *models.ScheduleSlot `json:"slot,omitempty"`
	Customer *CustomerInput       `json:"customer,omitempty"`
	Payer    *models.PayerDetails `json:"payer,omitempty"`
}

// CustomerInput is the editable subset of the customer form. Verification
// flags are never accepted from the caller; they are owned by the gate.
type CustomerInput struct {
	NationalID          string         `json:"nationalId"`
	LegalName           string         `json:"legalName"`
	BirthDate           string         `json:"birthDate"`
	Email               string         `json:"email"`
	Phone               string         `json:"phone"`
	Address             models.Address `json:"address"`
	AltCredentialNumber string         `json:"altCredentialNumber,omitempty"`
}
