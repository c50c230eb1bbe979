package intake

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUploadLinkSignsProtocol(t *testing.T) {
	key := []byte("test-signing-key")
	client, err := NewMockClient("https://intake.example.com", key)
	require.NoError(t, err)

	link, err := client.CreateUploadLink(context.Background(), "2024-000123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "https://intake.example.com/upload?token="))
	assert.False(t, link.ExpiresAt.IsZero())

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	tokenString := parsed.Query().Get("token")
	require.NotEmpty(t, tokenString)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-000123", claims["protocol"])
	assert.Equal(t, "certflow", claims["iss"])
}

func TestCreateUploadLinkRequiresProtocol(t *testing.T) {
	client, err := NewMockClient("https://intake.example.com", []byte("k"))
	require.NoError(t, err)

	_, err = client.CreateUploadLink(context.Background(), "")
	assert.Error(t, err)
}

func TestNewMockClientRequiresKey(t *testing.T) {
	_, err := NewMockClient("https://intake.example.com", nil)
	assert.Error(t, err)
}
