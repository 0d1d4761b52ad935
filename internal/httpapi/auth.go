package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sitcomledger/pkg/domain"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid bearer token")

// CallerResolver maps a request to the identity of its caller. A request
// without credentials resolves to the zero identity.
type CallerResolver interface {
	Resolve(r *http.Request) (domain.Identity, error)
}

// CallerResolverFunc adapts a function to CallerResolver.
type CallerResolverFunc func(r *http.Request) (domain.Identity, error)

// Resolve implements CallerResolver.
func (f CallerResolverFunc) Resolve(r *http.Request) (domain.Identity, error) { return f(r) }

// JWTResolver verifies HS256 bearer tokens and uses the subject claim as the caller.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver builds a resolver for secret. A non-empty issuer is enforced.
func NewJWTResolver(secret []byte, issuer string) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret required")
	}
	return &JWTResolver{secret: secret, issuer: issuer}, nil
}

// Resolve implements CallerResolver.
func (j *JWTResolver) Resolve(r *http.Request) (domain.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Identity(claims.Subject), nil
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret []byte, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
