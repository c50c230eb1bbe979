package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		alias string
		want  Status
	}{
		{"pending code", codePending, "", StatusPending},
		{"processing code", codeProcessing, "", StatusProcessing},
		{"approved code", codeApproved, "", StatusApproved},
		{"cancelled code", codeCancelled, "", StatusCancelled},
		{"rejected code", codeRejected, "", StatusRejected},
		{"refunded folds to cancelled", codeRefunded, "", StatusCancelled},
		{"refund pending folds to processing", codeRefundPending, "", StatusProcessing},
		{"pre-authorized folds to processing", codePreAuthorized, "", StatusProcessing},
		{"expired code", codeExpired, "", StatusExpired},
		{"unknown code", 42, "", StatusUnknown},
		{"alias autorizado beats pending code", codePending, "autorizado", StatusApproved},
		{"alias pago beats pending code", codePending, "pago", StatusApproved},
		{"alias paid", 0, "paid", StatusApproved},
		{"alias is case-insensitive", codePending, "  AUTORIZADO ", StatusApproved},
		{"alias cancelado", codePending, "cancelado", StatusCancelled},
		{"alias canceled spelling", codePending, "canceled", StatusCancelled},
		{"alias expirado", codePending, "expirado", StatusExpired},
		{"unrecognized alias falls back to code", codeApproved, "whatever", StatusApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.code, tt.alias))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusUnknown.Terminal())
}

func TestStatusStopsPolling(t *testing.T) {
	assert.True(t, StatusApproved.stopsPolling())
	assert.True(t, StatusCancelled.stopsPolling())
	assert.True(t, StatusExpired.stopsPolling())
	// Rejected charges can still be retried within the same transaction.
	assert.False(t, StatusRejected.stopsPolling())
	assert.False(t, StatusPending.stopsPolling())
	assert.False(t, StatusUnknown.stopsPolling())
}
