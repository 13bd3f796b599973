package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

var (
	ErrInvalidToken       = errors.New("invalid capability token")
	ErrInsufficientRole   = errors.New("capability does not grant admin access")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSecret           = errors.New("jwt secret not configured")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authority issues and verifies admin capability tokens.
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthority(secret string, ttl time.Duration) (*Authority, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Authority{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (a *Authority) Issue(subject string) (string, error) {
	now := a.now()
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// RequireAdmin verifies the token and that it carries the admin role.
func (a *Authority) RequireAdmin(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Role != RoleAdmin {
		return nil, ErrInsufficientRole
	}
	return claims, nil
}

// Credentials is the single static administrator login.
type Credentials struct {
	Username     string
	PasswordHash string
}

func (c Credentials) Check(username, password string) error {
	if c.PasswordHash == "" || username != c.Username {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
