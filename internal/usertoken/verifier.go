package usertoken

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultAudience = "authenticated"
	defaultLeeway   = 30 * time.Second
)

// ErrUnauthenticated covers every verification failure: bad signature,
// expiry, wrong audience, malformed token. Callers that require identity
// map it to HTTP 401 without distinguishing the cause.
var ErrUnauthenticated = errors.New("unauthenticated")

// Config configures bearer-token verification.
type Config struct {
	Secret   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates HS256 access tokens issued by the identity provider
// and extracts the subject id.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a signing secret")
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   leeway,
	}, nil
}

// VerifySubject validates the token and returns the subject id.
func (v *Verifier) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		return "", ErrUnauthenticated
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrUnauthenticated
	}
	return subject, nil
}

// SubjectFromRequest extracts and verifies the bearer token on a request.
// Endpoints that require identity use this and return 401 on error.
func (v *Verifier) SubjectFromRequest(r *http.Request) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		return "", ErrUnauthenticated
	}
	return v.VerifySubject(token)
}

// OptionalSubject returns the verified subject id, or "" when the request
// carries no usable credential. Invalid and expired tokens degrade to
// anonymous here; they never fail the request.
func (v *Verifier) OptionalSubject(r *http.Request) string {
	token, ok := BearerToken(r)
	if !ok {
		return ""
	}
	subject, err := v.VerifySubject(token)
	if err != nil {
		return ""
	}
	return subject
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
