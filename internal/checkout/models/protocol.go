package models

import "time"

// ProtocolStatus tracks the service-request ticket lifecycle.
type ProtocolStatus string

const (
	ProtocolActive    ProtocolStatus = "active"
	ProtocolUsed      ProtocolStatus = "used"
	ProtocolCancelled ProtocolStatus = "cancelled"
)

// ProtocolTicket is the opaque service-request number issued by the
// identity registry. Required before payment; marked Used when the upload
// link is minted.
type ProtocolTicket struct {
	Number      string         `json:"number"`
	ProductCode string         `json:"productCode"`
	IssuedAt    time.Time      `json:"issuedAt"`
	Status      ProtocolStatus `json:"status"`
}
