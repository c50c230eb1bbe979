package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockIssuerClient mints sequential protocol numbers with configurable
// latency.
type MockIssuerClient struct {
	Latency time.Duration
	Err     error

	mu    sync.Mutex
	next  int
	calls int
}

func NewMockIssuerClient() *MockIssuerClient {
	return &MockIssuerClient{next: 1}
}

// Calls returns how many registrations succeeded.
func (c *MockIssuerClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *MockIssuerClient) Register(ctx context.Context, req IssueRequest) (string, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if c.Err != nil {
		return "", c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	number := fmt.Sprintf("%d-%06d", time.Now().Year(), c.next)
	c.next++
	c.calls++
	return number, nil
}
