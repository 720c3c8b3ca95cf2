package domain

import "context"

const (
	PermSubmissionRead    = "submission:read"
	PermSubmissionWrite   = "submission:write"
	PermSubmissionProcess = "submission:process"
	PermSubmissionSubmit  = "submission:submit"
	PermSubmissionArchive = "submission:archive"
	PermSubmissionMigrate = "submission:migrate"
	PermOutcomeRecord     = "submission:outcome"
	PermAuditExport       = "audit:export"
	PermBackupWrite       = "backup:write"
	PermBackupRead        = "backup:read"
	PermQueueRead         = "queue:read"
	PermBatchRun          = "batch:run"
	PermSweepRun          = "sweep:run"
)

type Principal struct {
	Subject string
	Roles   []string
	Scopes  []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, credentials Credentials) (Principal, error)
}

// Credentials carries what the transport extracted from a request.
type Credentials struct {
	BearerToken string
	Headers     map[string]string
}

type Authorizer interface {
	Require(ctx context.Context, principal Principal, permission string) error
}
