package models

// LegalEntityKind distinguishes individual from organization payers; the
// two carry different document lengths and name labels.
type LegalEntityKind string

const (
	EntityIndividual   LegalEntityKind = "individual"
	EntityOrganization LegalEntityKind = "organization"
)

// PayerDetails identifies a distinct bill payer. Document is digits only;
// 11 for individuals, 14 for organizations.
type PayerDetails struct {
	Kind     LegalEntityKind `json:"kind"`
	Document string          `json:"document"`
	// Name holds the full name for individuals, the legal name for
	// organizations.
	Name    string  `json:"name"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// Valid reports whether the payer details are complete enough to bill.
func (d *PayerDetails) Valid() bool {
	if d == nil {
		return false
	}
	doc := DigitsOnly(d.Document)
	switch d.Kind {
	case EntityIndividual:
		if len(doc) != 11 {
			return false
		}
	case EntityOrganization:
		if len(doc) != 14 {
			return false
		}
	default:
		return false
	}
	return d.Name != "" && d.Address.Complete()
}

// PayerChoice is the resolved payer decision: either the customer pays, or
// a distinct payer with full details does. Replaces the duck-typed
// {usarDadosUsuario, tipoPessoa, dados} shape of the legacy front end.
type PayerChoice struct {
	SameAsCustomer bool          `json:"sameAsCustomer"`
	Details        *PayerDetails `json:"details,omitempty"`
}

// SamePayer returns the choice that bills the certificate holder.
func SamePayer() *PayerChoice {
	return &PayerChoice{SameAsCustomer: true}
}

// DistinctPayer returns the choice that bills someone else.
func DistinctPayer(details *PayerDetails) *PayerChoice {
	return &PayerChoice{SameAsCustomer: false, Details: details}
}

// PayerDecision is the value the presentation layer feeds back after the
// post-protocol confirmation prompt.
type PayerDecision string

const (
	DecisionSamePayer     PayerDecision = "same"
	DecisionDistinctPayer PayerDecision = "distinct"
)
