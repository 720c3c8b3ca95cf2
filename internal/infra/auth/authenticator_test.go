package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"vermietify/internal/config"
	"vermietify/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestHeaderAuthenticator(t *testing.T) {
	a := NewHeaderAuthenticator()
	principal, err := a.Authenticate(context.Background(), domain.Credentials{Headers: map[string]string{
		HeaderSubject: " alice ",
		HeaderRoles:   "vermietify_operator, ,viewer",
		HeaderScopes:  "sweep:run",
	}})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Subject != "alice" || len(principal.Roles) != 2 || principal.Scopes[0] != "sweep:run" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if _, err := a.Authenticate(context.Background(), domain.Credentials{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without subject, got %v", err)
	}
}

func TestJWTAuthenticator(t *testing.T) {
	a, err := NewJWTAuthenticator("s3cret", "vermietify", "operators")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exp := time.Now().Add(time.Hour).Unix()
	token := signToken(t, "s3cret", jwt.MapClaims{
		"sub":          "bob",
		"iss":          "vermietify",
		"aud":          "operators",
		"exp":          exp,
		"roles":        []any{"vermietify_operator"},
		"realm_access": map[string]any{"roles": []any{"vermietify_operator", "extra"}},
		"scope":        "audit:export queue:read",
	})
	principal, err := a.Authenticate(context.Background(), domain.Credentials{BearerToken: token})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Subject != "bob" || len(principal.Roles) != 2 || len(principal.Scopes) != 2 {
		t.Fatalf("unexpected principal %+v", principal)
	}

	cases := map[string]string{
		"wrong secret":   signToken(t, "other", jwt.MapClaims{"sub": "bob", "iss": "vermietify", "aud": "operators", "exp": exp}),
		"wrong issuer":   signToken(t, "s3cret", jwt.MapClaims{"sub": "bob", "iss": "x", "aud": "operators", "exp": exp}),
		"expired":        signToken(t, "s3cret", jwt.MapClaims{"sub": "bob", "iss": "vermietify", "aud": "operators", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":      signToken(t, "s3cret", jwt.MapClaims{"sub": "bob", "iss": "vermietify", "aud": "operators"}),
		"no subject":     signToken(t, "s3cret", jwt.MapClaims{"iss": "vermietify", "aud": "operators", "exp": exp}),
		"garbage":        "not-a-token",
		"missing header": "",
	}
	for name, tok := range cases {
		if _, err := a.Authenticate(context.Background(), domain.Credentials{BearerToken: tok}); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
}

func TestNewSelectsMode(t *testing.T) {
	if _, err := New(config.Config{AuthMode: "header"}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := New(config.Config{AuthMode: "jwt"}); err == nil {
		t.Fatalf("expected jwt without secret to fail")
	}
	if _, err := New(config.Config{AuthMode: "jwt", JWTSecret: "x"}); err != nil {
		t.Fatalf("jwt: %v", err)
	}
	if _, err := New(config.Config{AuthMode: "saml"}); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}
