// Package address wraps the postal-code lookup used to prefill address
// forms. Results are advisory; every field stays editable.
package address

import (
	"context"
	"time"

	"certflow/internal/checkout/models"
	dErrors "certflow/pkg/domain-errors"
)

// Client resolves a postal code into a partial address.
type Client interface {
	Lookup(ctx context.Context, postalCode string) (models.Address, error)
}

// MockClient answers from a fixture map with configurable latency.
type MockClient struct {
	Latency time.Duration
	// ByCode overrides the default answer per 8-digit postal code.
	ByCode map[string]models.Address
	Err    error
}

func NewMockClient() *MockClient {
	return &MockClient{
		ByCode: map[string]models.Address{
			"01310100": {
				PostalCode: "01310100",
				Street:     "Avenida Paulista",
				District:   "Bela Vista",
				City:       "São Paulo",
				Region:     "SP",
			},
		},
	}
}

func (c *MockClient) Lookup(ctx context.Context, postalCode string) (models.Address, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.Address{}, ctx.Err()
		case <-timer.C:
		}
	}
	if c.Err != nil {
		return models.Address{}, c.Err
	}

	code := models.DigitsOnly(postalCode)
	if len(code) != 8 {
		return models.Address{}, dErrors.New(dErrors.CodeBadRequest, "postal code must have 8 digits")
	}
	if addr, ok := c.ByCode[code]; ok {
		return addr, nil
	}
	return models.Address{}, dErrors.New(dErrors.CodeNotFound, "postal code not found")
}
