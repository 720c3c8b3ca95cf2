package rbac

import (
	"context"
	"strings"

	"vermietify/internal/domain"
)

const (
	DefaultAdminRole  = "vermietify_admin"
	DefaultAdminScope = "admin:*"
	OperatorRole      = "vermietify_operator"
	ViewerRole        = "vermietify_viewer"
)

var rolePermissions = map[string][]string{
	OperatorRole: {
		domain.PermSubmissionRead,
		domain.PermSubmissionWrite,
		domain.PermSubmissionProcess,
		domain.PermSubmissionSubmit,
		domain.PermSubmissionArchive,
		domain.PermOutcomeRecord,
		domain.PermAuditExport,
		domain.PermBackupRead,
		domain.PermBackupWrite,
		domain.PermQueueRead,
	},
	ViewerRole: {
		domain.PermSubmissionRead,
		domain.PermAuditExport,
		domain.PermBackupRead,
		domain.PermQueueRead,
	},
}

// Authorizer is the static role/scope check used when no rego policy is configured.
type Authorizer struct {
	adminRole  string
	adminScope string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{
		adminRole:  DefaultAdminRole,
		adminScope: DefaultAdminScope,
	}
}

func (a *Authorizer) Require(_ context.Context, principal domain.Principal, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if permission == "" {
		return nil
	}
	if a.hasAdmin(principal) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return &domain.AuthzError{Code: "MISSING_ROLE", Permission: permission, Err: domain.ErrForbidden}
	}
	if hasScope(principal, permission) || roleGrants(principal, permission) {
		return nil
	}
	return &domain.AuthzError{Code: "MISSING_PERMISSION", Permission: permission, Err: domain.ErrForbidden}
}

func (a *Authorizer) hasAdmin(principal domain.Principal) bool {
	if hasRole(principal, a.adminRole) {
		return true
	}
	return hasScope(principal, a.adminScope)
}

func roleGrants(principal domain.Principal, permission string) bool {
	for _, role := range principal.Roles {
		for _, p := range rolePermissions[role] {
			if p == permission {
				return true
			}
		}
	}
	return false
}

func hasRole(principal domain.Principal, role string) bool {
	for _, r := range principal.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func hasScope(principal domain.Principal, scope string) bool {
	if scope == "" {
		return false
	}
	for _, s := range principal.Scopes {
		if s == scope || s == DefaultAdminScope {
			return true
		}
	}
	return false
}
