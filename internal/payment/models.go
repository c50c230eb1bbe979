// Package payment implements the PIX payment session: charge creation and
// the cancellable status-polling loop.
package payment

import (
	"strings"
	"time"
)

// Status is the normalized charge status. Provider responses carry both a
// numeric code and sometimes a free-form alias; both are folded into this
// enum at the boundary and raw provider fields never travel past it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusUnknown    Status = "unknown"
)

// Terminal reports whether the record can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// stopsPolling reports whether the polling loop halts on this status.
// Rejected keeps polling: the provider can still move a rejected PIX charge
// to approved on retry within the same transaction.
func (s Status) stopsPolling() bool {
	switch s {
	case StatusApproved, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Provider status codes, per the upstream charge API.
const (
	codePending       = 1
	codeProcessing    = 2
	codeApproved      = 3
	codeCancelled     = 4
	codeRejected      = 5
	codeRefunded      = 6
	codeRefundPending = 7
	codePreAuthorized = 8
	codeExpired       = 9
)

// Normalize folds the provider's numeric code and optional string alias
// into a Status. The alias wins when recognized; the upstream API is
// inconsistent about which field carries the truth.
func Normalize(code int, alias string) Status {
	switch strings.ToLower(strings.TrimSpace(alias)) {
	case "autorizado", "approved", "paid", "pago":
		return StatusApproved
	case "pendente", "pending":
		return StatusPending
	case "processando", "processing":
		return StatusProcessing
	case "cancelado", "cancelled", "canceled":
		return StatusCancelled
	case "expirado", "expired":
		return StatusExpired
	case "rejeitado", "rejected":
		return StatusRejected
	}

	switch code {
	case codePending:
		return StatusPending
	case codeProcessing, codeRefundPending, codePreAuthorized:
		return StatusProcessing
	case codeApproved:
		return StatusApproved
	case codeCancelled, codeRefunded:
		return StatusCancelled
	case codeRejected:
		return StatusRejected
	case codeExpired:
		return StatusExpired
	default:
		return StatusUnknown
	}
}

// Record is the payment aggregate: created once per charge, mutated only by
// polling responses, terminal once approved/rejected/cancelled/expired.
type Record struct {
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	PayCode       string    `json:"payCode"`
	QRImage       string    `json:"qrImage,omitempty"`
	Status        Status    `json:"status"`
	// RawStatusCode keeps the last provider code for support tickets when
	// Status is unknown.
	RawStatusCode int       `json:"rawStatusCode,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
