package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChargeRequest carries the payer data the provider needs to mint a PIX
// charge.
type ChargeRequest struct {
	PayerName     string
	PayerDocument string
	PayerEmail    string
	PayerPhone    string
	Amount        float64
	// Reference is the protocol number tying the charge to the certificate
	// request.
	Reference string
}

// ChargeResponse is the provider's creation result.
type ChargeResponse struct {
	TransactionID string
	PayCode       string
	QRImageURL    string
}

// ChargeStatus is the raw provider status; Normalize folds it into Status.
type ChargeStatus struct {
	StatusCode  int
	StatusAlias string
	Amount      float64
	PaidAt      *time.Time
}

// ProviderClient talks to the PIX payment provider. Mock implementations
// use deterministic data and a configurable latency to mimic real-world
// calls.
type ProviderClient interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
	GetChargeStatus(ctx context.Context, transactionID string) (ChargeStatus, error)
}

// MockProviderClient scripts status responses per transaction. Each
// GetChargeStatus pops the next scripted status; the last one repeats.
type MockProviderClient struct {
	Latency time.Duration

	mu       sync.Mutex
	script   []ChargeStatus
	position int
	last     *ChargeRequest
	// CreateErr forces CreateCharge failures for tests.
	CreateErr error
}

// NewMockProviderClient scripts the given status sequence.
func NewMockProviderClient(script ...ChargeStatus) *MockProviderClient {
	if len(script) == 0 {
		script = []ChargeStatus{{StatusCode: codePending}}
	}
	return &MockProviderClient{script: script}
}

// SetScript replaces the status sequence and rewinds it.
func (c *MockProviderClient) SetScript(script ...ChargeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(script) == 0 {
		script = []ChargeStatus{{StatusCode: codePending}}
	}
	c.script = script
	c.position = 0
}

// LastCharge returns the most recent creation request, or nil.
func (c *MockProviderClient) LastCharge() *ChargeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	req := *c.last
	return &req
}

func (c *MockProviderClient) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	if err := c.wait(ctx); err != nil {
		return ChargeResponse{}, err
	}
	if c.CreateErr != nil {
		return ChargeResponse{}, c.CreateErr
	}
	c.mu.Lock()
	c.last = &req
	c.mu.Unlock()
	return ChargeResponse{
		TransactionID: uuid.NewString(),
		PayCode:       "00020126580014br.gov.bcb.pix0136" + uuid.NewString() + "6304ABCD",
		QRImageURL:    "https://example.invalid/qr/" + req.Reference + ".png",
	}, nil
}

func (c *MockProviderClient) GetChargeStatus(ctx context.Context, transactionID string) (ChargeStatus, error) {
	if err := c.wait(ctx); err != nil {
		return ChargeStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.script[c.position]
	if c.position < len(c.script)-1 {
		c.position++
	}
	return status, nil
}

func (c *MockProviderClient) wait(ctx context.Context) error {
	if c.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(c.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
