package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the single error surfaced for any verification
// failure. Callers must not learn whether a token was tampered with or
// merely expired.
var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	JTI    string `json:"jti"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewManager(secret string, tokenTTL time.Duration) *Manager {
	return &Manager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// TokenTTL is the configured lifetime of issued tokens (3 days unless
// overridden). Exposed so cookie max-age can match token expiry.
func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

// GenerateToken signs a bearer credential carrying the user id and role.
func (m *Manager) GenerateToken(userID, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.tokenTTL)

	claims := Claims{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err := token.SignedString(m.secret)

	if err != nil {
		return "", time.Time{}, err
	}

	return raw, expiresAt, nil
}

func (m *Manager) VerifyToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
