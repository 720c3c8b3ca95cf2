package domain

import "errors"

// AuthzInput is the document evaluated by the authorization policy.
type AuthzInput struct {
	Subject    string   `json:"subject"`
	Roles      []string `json:"roles"`
	Scopes     []string `json:"scopes"`
	Permission string   `json:"permission"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type AuthzDecision struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

// AuthzError is a refused permission check. Code is safe to return to callers.
type AuthzError struct {
	Code       string
	Permission string
	Err        error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil || e.Err == nil {
		return ErrForbidden
	}
	return e.Err
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

func (p Principal) AuthzInput(permission string) AuthzInput {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return AuthzInput{Subject: p.Subject, Roles: roles, Scopes: scopes, Permission: permission}
}
