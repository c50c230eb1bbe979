package models

import "strings"

// Address is the customer's (or payer's) postal address. Street, district,
// city and region are prefilled from the postal-code lookup but remain
// editable.
type Address struct {
	PostalCode string `json:"postalCode"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	Region     string `json:"region"`
}

// Complete reports whether every required address field is filled.
func (a Address) Complete() bool {
	return a.PostalCode != "" && a.Street != "" && a.Number != "" &&
		a.District != "" && a.City != "" && a.Region != ""
}

// Verification tracks the outcome of the two sequential identity checks
// plus the fallback-credential sub-decision.
type Verification struct {
	BiometricChecked bool  `json:"biometricChecked"`
	HasBiometric     *bool `json:"hasBiometric,omitempty"`
	// RequiresAltCredential is set when the user has no enrolled biometric
	// but holds a driver's license for fallback validation.
	RequiresAltCredential bool   `json:"requiresAltCredential"`
	AltCredentialNumber   string `json:"altCredentialNumber,omitempty"`
	RegistryValidated     bool   `json:"registryValidated"`
	RegistryName          string `json:"registryName,omitempty"`
	// Ineligible is terminal: no biometrics on file and no alternative
	// credential to fall back on.
	Ineligible bool `json:"ineligible,omitempty"`
}

// Customer is the certificate holder. Created empty, filled field by field
// as the form progresses; the orchestrator freezes it once a protocol is
// issued.
type Customer struct {
	NationalID   string       `json:"nationalId"`
	LegalName    string       `json:"legalName"`
	BirthDate    string       `json:"birthDate"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	Address      Address      `json:"address"`
	Verification Verification `json:"verification"`
}

// DigitsOnly strips everything but digits; national IDs, phones and postal
// codes arrive masked from the form layer.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IdentityComplete reports whether every field required for protocol
// issuance is present.
func (c *Customer) IdentityComplete() bool {
	if c == nil {
		return false
	}
	return len(DigitsOnly(c.NationalID)) == 11 &&
		c.LegalName != "" &&
		c.BirthDate != "" &&
		c.Email != "" &&
		c.Phone != "" &&
		c.Address.Complete()
}
