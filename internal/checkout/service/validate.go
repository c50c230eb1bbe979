package service

import (
	"github.com/asaskevich/govalidator"

	"certflow/internal/checkout/models"
	"certflow/internal/payment"
)

// stepValid is the pure per-step predicate. It gates Advance and feeds the
// CanAdvance observable; no predicate touches a collaborator.
func stepValid(state *models.CheckoutState) bool {
	switch state.CurrentStep {
	case models.StepSlot:
		return slotValid(state.Schedule)
	case models.StepCustomer:
		return customerValid(state.Customer)
	case models.StepPayer:
		return payerValid(state.Payer)
	case models.StepSummary:
		return state.ReadyForPayment()
	case models.StepPayment:
		return state.Payment != nil && state.Payment.Status == payment.StatusApproved
	case models.StepUpload:
		return true
	default:
		return false
	}
}

func slotValid(slot *models.ScheduleSlot) bool {
	return slot != nil && slot.Available && slot.Time != "" && slot.Date != ""
}

// customerValid requires complete identity data plus a settled verification:
// either biometrics confirmed and the registry check passed, or the
// alternative-credential fallback with its number filled in.
func customerValid(c *models.Customer) bool {
	if !c.IdentityComplete() {
		return false
	}
	if !govalidator.IsEmail(c.Email) {
		return false
	}
	if len(models.DigitsOnly(c.Phone)) < 10 {
		return false
	}

	v := c.Verification
	if v.Ineligible || !v.BiometricChecked {
		return false
	}
	if v.HasBiometric != nil && *v.HasBiometric {
		return v.RegistryValidated
	}
	return v.RequiresAltCredential && v.AltCredentialNumber != "" && v.RegistryValidated
}

func payerValid(choice *models.PayerChoice) bool {
	if choice == nil || choice.SameAsCustomer {
		return false
	}
	d := choice.Details
	if d == nil || !d.Valid() {
		return false
	}
	if d.Email != "" && !govalidator.IsEmail(d.Email) {
		return false
	}
	return true
}
