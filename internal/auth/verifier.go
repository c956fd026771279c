// Package auth verifies bearer tokens issued by the configured identity
// provider. Verification is stateless: nothing about a token is stored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken    = errors.New("no authorization token was found")
	ErrMalformedHeader = errors.New("authorization header must be in the format: Bearer <token>")
	ErrInvalidToken    = errors.New("invalid token")
)

const DefaultLeeway = 30 * time.Second

// Claims are the decoded claims attached to an authenticated request.
type Claims struct {
	Scope           string   `json:"scope,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
	AuthorizedParty string   `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the space separated scope claim contains scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

type VerifierConfig struct {
	Issuer    string
	Audience  string
	Algorithm string
	Leeway    time.Duration
}

type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

func NewVerifier(cfg VerifierConfig, keys KeySource) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("auth: key source is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("auth: audience is required")
	}
	if cfg.Algorithm == "none" || jwt.GetSigningMethod(cfg.Algorithm) == nil {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.Algorithm}),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Verifier{keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// NewFromConfig builds a verifier backed by the JWKS endpoint for RS*
// algorithms or by the shared secret for HS256.
func NewFromConfig(cfg config.AuthConfig, client *http.Client) (*Verifier, error) {
	var keys KeySource
	switch {
	case strings.HasPrefix(cfg.Algorithm, "RS"):
		if cfg.JWKSURL == "" {
			return nil, errors.New("auth: JWKS URL is required for " + cfg.Algorithm)
		}
		jwks, err := NewJWKS(cfg.JWKSURL, cfg.JWKSCacheTTL, client)
		if err != nil {
			return nil, err
		}
		keys = jwks
	case cfg.Algorithm == "HS256":
		if cfg.JWTSecret == "" {
			return nil, errors.New("auth: JWT secret is required for HS256")
		}
		keys = NewStaticKey([]byte(cfg.JWTSecret))
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %q", cfg.Algorithm)
	}

	v, err := NewVerifier(VerifierConfig{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		Algorithm: cfg.Algorithm,
	}, keys)
	if err != nil {
		if c, ok := keys.(interface{ Close() }); ok {
			c.Close()
		}
		return nil, err
	}
	return v, nil
}

// Verify checks the token signature, algorithm, audience, issuer and expiry.
// Every failure wraps ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keys.KeyfuncCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Close releases the key source's background refresh, if it has one.
func (v *Verifier) Close() {
	if c, ok := v.keys.(interface{ Close() }); ok {
		c.Close()
	}
}

// TokenFromHeader extracts the token from an Authorization header value.
func TokenFromHeader(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return "", ErrMalformedHeader
	}
	return token, nil
}
