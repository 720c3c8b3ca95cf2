package policyopa

import (
	"context"
	"errors"
	"testing"

	"vermietify/internal/domain"
	"vermietify/internal/infra/auth/rbac"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngineDecisions(t *testing.T) {
	engine := newEngine(t)
	if engine.PolicyHash() == "" {
		t.Fatalf("expected policy hash")
	}
	tests := []struct {
		name  string
		input domain.AuthzInput
		allow bool
		code  string
	}{
		{name: "anonymous", input: domain.AuthzInput{Roles: []string{}, Scopes: []string{}, Permission: domain.PermSubmissionRead}, code: "UNAUTHENTICATED"},
		{name: "admin role", input: domain.AuthzInput{Subject: "a", Roles: []string{rbac.DefaultAdminRole}, Scopes: []string{}, Permission: domain.PermBatchRun}, allow: true},
		{name: "admin scope", input: domain.AuthzInput{Subject: "a", Roles: []string{}, Scopes: []string{rbac.DefaultAdminScope}, Permission: domain.PermSweepRun}, allow: true},
		{name: "direct scope", input: domain.AuthzInput{Subject: "a", Roles: []string{}, Scopes: []string{domain.PermSubmissionMigrate}, Permission: domain.PermSubmissionMigrate}, allow: true},
		{name: "operator submit", input: domain.AuthzInput{Subject: "o", Roles: []string{rbac.OperatorRole}, Scopes: []string{}, Permission: domain.PermSubmissionSubmit}, allow: true},
		{name: "viewer write", input: domain.AuthzInput{Subject: "v", Roles: []string{rbac.ViewerRole}, Scopes: []string{}, Permission: domain.PermSubmissionWrite}, code: "MISSING_PERMISSION"},
		{name: "unknown role", input: domain.AuthzInput{Subject: "v", Roles: []string{"guest"}, Scopes: []string{}, Permission: domain.PermQueueRead}, code: "MISSING_PERMISSION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Evaluate(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if decision.Allow != tc.allow {
				t.Fatalf("allow = %v, want %v (%+v)", decision.Allow, tc.allow, decision)
			}
			if tc.code != "" && (len(decision.Deny) != 1 || decision.Deny[0].Code != tc.code) {
				t.Fatalf("expected deny %s, got %+v", tc.code, decision.Deny)
			}
		})
	}
}

func TestEngineMatchesStaticAuthorizer(t *testing.T) {
	engine := newEngine(t)
	static := rbac.NewAuthorizer()
	permissions := []string{
		domain.PermSubmissionRead, domain.PermSubmissionWrite, domain.PermSubmissionProcess,
		domain.PermSubmissionSubmit, domain.PermSubmissionArchive, domain.PermSubmissionMigrate,
		domain.PermOutcomeRecord, domain.PermAuditExport, domain.PermBackupWrite,
		domain.PermBackupRead, domain.PermQueueRead, domain.PermBatchRun, domain.PermSweepRun,
	}
	principals := []domain.Principal{
		{Subject: "admin", Roles: []string{rbac.DefaultAdminRole}},
		{Subject: "op", Roles: []string{rbac.OperatorRole}},
		{Subject: "viewer", Roles: []string{rbac.ViewerRole}},
		{Subject: "sweeper", Scopes: []string{domain.PermSweepRun}},
		{Subject: "nobody"},
	}
	for _, p := range principals {
		for _, perm := range permissions {
			opaErr := engine.Require(context.Background(), p, perm)
			staticErr := static.Require(context.Background(), p, perm)
			if (opaErr == nil) != (staticErr == nil) {
				t.Fatalf("%s/%s: opa=%v static=%v", p.Subject, perm, opaErr, staticErr)
			}
			if opaErr != nil && !errors.Is(opaErr, domain.ErrForbidden) {
				t.Fatalf("%s/%s: expected forbidden, got %v", p.Subject, perm, opaErr)
			}
		}
	}
}

func TestEngineRequireWithoutSubject(t *testing.T) {
	err := newEngine(t).Require(context.Background(), domain.Principal{}, domain.PermQueueRead)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestEngineRejectsForbiddenBuiltins(t *testing.T) {
	source := `package vermietify.authz

decision := {"allow": true} {
	http.send({"method": "get", "url": "http://example.invalid"})
}
`
	if _, err := NewEngineFromSource(context.Background(), "bad.rego", source, nil); err == nil {
		t.Fatalf("expected policy using http.send to be rejected")
	}
}
