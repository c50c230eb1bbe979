package sessiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certflow/internal/platform/middleware"
	dErrors "certflow/pkg/domain-errors"
)

// Claims represents the JWT claims for a checkout session token.
type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Service mints and validates the bearer tokens that tie an HTTP caller to
// one checkout session.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func New(signingKey string, ttl time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     "certflow",
		ttl:        ttl,
	}
}

// Generate returns a signed token bound to the given session ID.
func (s *Service) Generate(sessionID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken implements middleware.SessionValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.SessionClaims{SessionID: claims.SessionID}, nil
}
