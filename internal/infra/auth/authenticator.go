// Package auth turns request credentials into a domain.Principal.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"vermietify/internal/config"
	"vermietify/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderSubject = "X-Principal-Subject"
	HeaderRoles   = "X-Principal-Roles"
	HeaderScopes  = "X-Principal-Scopes"
)

// HeaderAuthenticator trusts identity headers set by an upstream proxy.
type HeaderAuthenticator struct{}

func NewHeaderAuthenticator() *HeaderAuthenticator {
	return &HeaderAuthenticator{}
}

func (h *HeaderAuthenticator) Authenticate(_ context.Context, creds domain.Credentials) (domain.Principal, error) {
	principal := domain.Principal{
		Subject: strings.TrimSpace(creds.Headers[HeaderSubject]),
	}
	if principal.Subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if roles := strings.TrimSpace(creds.Headers[HeaderRoles]); roles != "" {
		principal.Roles = splitCSV(roles)
	}
	if scopes := strings.TrimSpace(creds.Headers[HeaderScopes]); scopes != "" {
		principal.Scopes = splitCSV(scopes)
	}
	return principal, nil
}

// JWTAuthenticator validates HS256 bearer tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

func NewJWTAuthenticator(secret, issuer, audience string) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &JWTAuthenticator{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		leeway:   30 * time.Second,
	}, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, creds domain.Credentials) (domain.Principal, error) {
	tokenString := strings.TrimSpace(creds.BearerToken)
	if a == nil || tokenString == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	principal := principalFromClaims(claims)
	if principal.Subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return principal, nil
}

// New picks the authenticator for AUTH_MODE.
func New(cfg config.Config) (domain.Authenticator, error) {
	switch cfg.AuthMode {
	case "", "header":
		return NewHeaderAuthenticator(), nil
	case "jwt":
		return NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	}
	return nil, errors.New("unsupported AUTH_MODE " + cfg.AuthMode)
}

func principalFromClaims(claims jwt.MapClaims) domain.Principal {
	principal := domain.Principal{}
	if subject, _ := claims["sub"].(string); subject != "" {
		principal.Subject = subject
	}
	principal.Roles = extractRoles(claims)
	principal.Scopes = extractScopes(claims)
	return principal
}

func extractRoles(claims jwt.MapClaims) []string {
	var roles []string
	switch raw := claims["roles"].(type) {
	case []any:
		roles = append(roles, stringsOf(raw)...)
	case string:
		roles = append(roles, splitCSV(raw)...)
	}
	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		if rawRoles, ok := realmAccess["roles"].([]any); ok {
			roles = append(roles, stringsOf(rawRoles)...)
		}
	}
	return dedupeStrings(roles)
}

func extractScopes(claims jwt.MapClaims) []string {
	var scopes []string
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		scopes = append(scopes, strings.Fields(scope)...)
	}
	if raw, ok := claims["scp"].([]any); ok {
		scopes = append(scopes, stringsOf(raw)...)
	}
	return dedupeStrings(scopes)
}

func stringsOf(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
