package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose tags a token with the only use it is valid for.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

type Claims struct {
	UID     string  `json:"uid"`
	Purpose Purpose `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens for a single purpose.
// Session and reset issuers are built with different secrets.
type Issuer struct {
	secret  []byte
	issuer  string
	purpose Purpose
	now     func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock overrides the time source used for iat/exp and for validation.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret, issuer string, purpose Purpose, opts ...IssuerOption) *Issuer {
	i := &Issuer{secret: []byte(secret), issuer: issuer, purpose: purpose, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

func (i *Issuer) Purpose() Purpose { return i.purpose }

func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := i.now()
	c := Claims{
		UID:     subject,
		Purpose: i.purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return t.SignedString(i.secret)
}

// Verify returns ErrTokenExpired for a well-formed token past its exp and
// ErrTokenInvalid (wrapped) for everything else, including a purpose mismatch.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !t.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != i.purpose {
		return nil, fmt.Errorf("%w: purpose %q, want %q", ErrTokenInvalid, claims.Purpose, i.purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
