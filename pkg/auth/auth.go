// Package auth issues and validates shop-scoped access tokens. A token proves
// the caller was authenticated for one specific shop; it grants nothing
// beyond that shop's replays.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = time.Hour

// ErrShopMismatch reports a valid token presented for a different shop.
var ErrShopMismatch = errors.New("token not issued for this shop")

// Claims carries the shop identity inside a signed token.
type Claims struct {
	Shop string `json:"shop"`
	jwt.RegisteredClaims
}

// Manager signs and validates shop tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a Manager. A zero ttl falls back to DefaultTTL.
func NewManager(secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: secret, ttl: ttl}, nil
}

// Generate signs a token scoped to one shop.
func (m *Manager) Generate(shop string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Shop: shop,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   shop,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing shop token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the shop it was issued for.
func (m *Manager) Validate(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Shop == "" {
		return "", errors.New("invalid token")
	}
	return claims.Shop, nil
}

// ValidateForShop validates a token and checks it was issued for the given
// shop. Returns ErrShopMismatch when the shop differs.
func (m *Manager) ValidateForShop(tokenString, shop string) error {
	tokenShop, err := m.Validate(tokenString)
	if err != nil {
		return err
	}
	if tokenShop != shop {
		return ErrShopMismatch
	}
	return nil
}
