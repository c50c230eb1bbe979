// Package intake hands the paid checkout over to the document-collection
// flow via a signed upload link.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadLink points the holder at the document-upload flow for a paid
// protocol.
type UploadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client mints upload links once payment is approved.
type Client interface {
	CreateUploadLink(ctx context.Context, protocolNumber string) (UploadLink, error)
}

const linkTTL = 72 * time.Hour

// MockClient signs a short-lived JWT into the upload URL so the link is
// self-describing, the way the real intake service does.
type MockClient struct {
	BaseURL    string
	SigningKey []byte
	Latency    time.Duration
	Err        error

	clock func() time.Time
}

func NewMockClient(baseURL string, signingKey []byte) (*MockClient, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	return &MockClient{
		BaseURL:    baseURL,
		SigningKey: signingKey,
		clock:      time.Now,
	}, nil
}

func (c *MockClient) CreateUploadLink(ctx context.Context, protocolNumber string) (UploadLink, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return UploadLink{}, ctx.Err()
		case <-timer.C:
		}
	}
	if c.Err != nil {
		return UploadLink{}, c.Err
	}
	if protocolNumber == "" {
		return UploadLink{}, errors.New("protocol number is required")
	}

	now := c.clock()
	expiresAt := now.Add(linkTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"protocol": protocolNumber,
		"iss":      "certflow",
		"iat":      now.Unix(),
		"exp":      expiresAt.Unix(),
	})
	signed, err := token.SignedString(c.SigningKey)
	if err != nil {
		return UploadLink{}, fmt.Errorf("signing upload link: %w", err)
	}

	return UploadLink{
		URL:       fmt.Sprintf("%s/upload?token=%s", c.BaseURL, signed),
		ExpiresAt: expiresAt,
	}, nil
}
