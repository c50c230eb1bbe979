package identity

import (
	"context"
	"time"
)

// Registry reason codes, per the upstream pre-check API.
const (
	ReasonValid         = 0
	ReasonMalformed     = 1
	ReasonNotOnFile     = 2
	ReasonCancelled     = 3
	ReasonBirthDate     = 4
	ReasonNull          = 5
	ReasonNameDeferred  = 700
	ReasonRegistryError = 999
)

// RegistryFinding is the raw registry response: a reason code plus a message
// that carries the legal name when the code is 0.
type RegistryFinding struct {
	ReasonCode int
	Message    string
}

// BiometricClient answers whether a national ID has facial biometrics on
// file.
type BiometricClient interface {
	HasBiometric(ctx context.Context, nationalID string) (bool, error)
}

// RegistryClient checks a national ID and birth date against the registry
// of record.
type RegistryClient interface {
	Lookup(ctx context.Context, nationalID, birthDate string) (RegistryFinding, error)
}

// MockBiometricClient answers from a fixture map with configurable latency.
type MockBiometricClient struct {
	Latency time.Duration
	// ByID overrides the default answer per national ID.
	ByID    map[string]bool
	Default bool
	Err     error
}

func NewMockBiometricClient() *MockBiometricClient {
	return &MockBiometricClient{Default: true}
}

func (c *MockBiometricClient) HasBiometric(ctx context.Context, nationalID string) (bool, error) {
	if err := mockWait(ctx, c.Latency); err != nil {
		return false, err
	}
	if c.Err != nil {
		return false, c.Err
	}
	if v, ok := c.ByID[nationalID]; ok {
		return v, nil
	}
	return c.Default, nil
}

// MockRegistryClient answers from a fixture map with configurable latency.
type MockRegistryClient struct {
	Latency time.Duration
	// ByID overrides the default finding per national ID.
	ByID    map[string]RegistryFinding
	Default RegistryFinding
	Err     error
}

func NewMockRegistryClient() *MockRegistryClient {
	return &MockRegistryClient{
		Default: RegistryFinding{ReasonCode: ReasonValid, Message: "Maria de Souza"},
	}
}

func (c *MockRegistryClient) Lookup(ctx context.Context, nationalID, birthDate string) (RegistryFinding, error) {
	if err := mockWait(ctx, c.Latency); err != nil {
		return RegistryFinding{}, err
	}
	if c.Err != nil {
		return RegistryFinding{}, c.Err
	}
	if f, ok := c.ByID[nationalID]; ok {
		return f, nil
	}
	return c.Default, nil
}

func mockWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
