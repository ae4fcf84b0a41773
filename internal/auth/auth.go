// Package auth provides password hashing and the bearer tokens guarding the
// HTTP and WebSocket surfaces.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken indicates the token failed verification.
var ErrInvalidToken = errors.New("invalid authentication token")

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID int64
	Email  string
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 bearer tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a token manager. A zero ttl means DefaultTokenTTL.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given user.
func (m *Manager) Issue(userID int64, email string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token, returning the identity it carries.
func (m *Manager) Verify(token string) (*Claims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: userID, Email: claims.Email}, nil
}
