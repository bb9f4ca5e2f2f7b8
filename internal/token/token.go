// Package token mints and validates the bearer tokens handed to clients
// after a successful login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("invalid token")
)

// Claims identify the user a token was issued to.
type Claims struct {
	UserID   string  `json:"user_id"`
	ChatID   string  `json:"chat_id"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

func NewIssuer(secret, algorithm string) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is empty")
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	return &Issuer{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}, nil
}

// Issue signs claims under a fresh token id. A positive ttl sets the expiry;
// zero leaves the token without one.
func (i *Issuer) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := i.now()
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = nil
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw. Expired tokens yield
// ErrExpired; anything else wrong with the token yields ErrInvalid.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalid)
	}

	return &claims, nil
}

func (i *Issuer) Algorithm() string {
	return i.method.Alg()
}
