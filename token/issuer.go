// Package token issues and verifies signed, time-limited session tokens.
//
// Tokens are HMAC-signed JWTs whose subject is the user's email. They are
// stateless: nothing is persisted, and rotating the secret invalidates every
// outstanding token.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codevault/codevault/internal/ids"
)

// DefaultTTL is the lifetime used when Issue is called with ttl <= 0.
const DefaultTTL = 60 * time.Minute

// Config holds configuration for the issuer.
type Config struct {
	// Secret is the HMAC signing key.
	Secret string

	// SigningMethod is HS256, HS384 or HS512. Empty selects HS256.
	SigningMethod string

	// TTL is the default token lifetime.
	TTL time.Duration

	// Issuer is written to and required in the iss claim when set.
	Issuer string

	// Now overrides the clock. Used by tests.
	Now func() time.Time
}

// Token is a freshly issued session token.
type Token struct {
	Value     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn returns the token lifetime in whole seconds.
func (t *Token) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// Issuer signs and verifies session tokens. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg *Config) (*Issuer, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.SigningMethod {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, cfg.SigningMethod)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// TTL returns the default token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for subject that expires ttl from now. A ttl <= 0
// uses the configured default.
func (i *Issuer) Issue(subject string, ttl time.Duration) (*Token, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	now := i.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	jti, err := ids.NewULID(now)
	if err != nil {
		return nil, err
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	return &Token{
		Value:     signed,
		ID:        jti,
		Subject:   subject,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Verify checks the signature, algorithm, expiry and subject of tokenString.
// There is no clock-skew leeway: a token is rejected from the instant its
// expiry is reached. Every failure matches ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalidSig
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
