package rbac

import (
	"context"
	"errors"
	"testing"

	"vermietify/internal/domain"
)

func TestAuthorizerRequire(t *testing.T) {
	authz := NewAuthorizer()
	cases := []struct {
		name       string
		principal  domain.Principal
		permission string
		wantErr    error
		wantCode   string
	}{
		{name: "anonymous", principal: domain.Principal{}, permission: domain.PermSubmissionRead, wantErr: domain.ErrUnauthorized},
		{name: "admin role", principal: domain.Principal{Subject: "a", Roles: []string{DefaultAdminRole}}, permission: domain.PermBatchRun},
		{name: "admin scope", principal: domain.Principal{Subject: "a", Scopes: []string{DefaultAdminScope}}, permission: domain.PermSubmissionMigrate},
		{name: "exact scope", principal: domain.Principal{Subject: "a", Scopes: []string{domain.PermSweepRun}}, permission: domain.PermSweepRun},
		{name: "operator submits", principal: domain.Principal{Subject: "o", Roles: []string{OperatorRole}}, permission: domain.PermSubmissionSubmit},
		{name: "operator cannot batch", principal: domain.Principal{Subject: "o", Roles: []string{OperatorRole}}, permission: domain.PermBatchRun, wantErr: domain.ErrForbidden, wantCode: "MISSING_PERMISSION"},
		{name: "viewer cannot write", principal: domain.Principal{Subject: "v", Roles: []string{ViewerRole}}, permission: domain.PermSubmissionWrite, wantErr: domain.ErrForbidden, wantCode: "MISSING_PERMISSION"},
		{name: "admin namespace", principal: domain.Principal{Subject: "v", Roles: []string{OperatorRole}}, permission: "admin:keys", wantErr: domain.ErrForbidden, wantCode: "MISSING_ROLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := authz.Require(context.Background(), tc.principal, tc.permission)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantCode != "" {
				authzErr, ok := domain.IsAuthzError(err)
				if !ok || authzErr.Code != tc.wantCode {
					t.Fatalf("expected code %s, got %v", tc.wantCode, err)
				}
			}
		})
	}
}
