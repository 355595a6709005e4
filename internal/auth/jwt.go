package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/tareeqk/towing/internal/towing"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by the bearer token handed out at login.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// Manager signs and verifies HS256 bearer tokens.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewManager(secret string, tokenTTL time.Duration) *Manager {
	return &Manager{secret: []byte(secret), tokenTTL: tokenTTL}
}

func (m *Manager) GenerateToken(userID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.tokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken verifies the signature and expiry and maps the claims onto
// a domain actor. Tokens with an unknown role come back anonymous, which
// the guards treat as unauthorized for driver operations.
func (m *Manager) ParseToken(tokenString string) (towing.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return towing.Anonymous(), ErrInvalidToken
	}
	return towing.Actor{ID: claims.UserID, Role: towing.ParseRole(claims.Role)}, nil
}
