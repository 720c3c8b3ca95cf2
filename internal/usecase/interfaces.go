package usecase

import (
	"context"

	"vermietify/internal/domain"
)

// MutateFunc receives a fresh copy of the stored submission inside the store's
// atomic section. Returning an error aborts without writing anything; the
// returned event, if any, is appended in the same atomic step.
type MutateFunc func(sub *domain.Submission) (*domain.AuditEvent, error)

type SubmissionRepository interface {
	Create(ctx context.Context, sub domain.Submission, event domain.AuditEvent) (domain.Submission, error)
	Get(ctx context.Context, id string) (domain.Submission, error)
	List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error)
	FindActiveByKey(ctx context.Context, key domain.NaturalKey) (domain.Submission, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (domain.Submission, error)
}

type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	Get(ctx context.Context, id string) (domain.AuditEvent, error)
	ListByEntity(ctx context.Context, entityID string) ([]domain.AuditEvent, error)
}

type BackupRepository interface {
	Create(ctx context.Context, snapshot domain.BackupSnapshot) (domain.BackupSnapshot, error)
	Get(ctx context.Context, id string) (domain.BackupSnapshot, error)
	List(ctx context.Context, filter domain.BackupFilter) ([]domain.BackupSnapshot, error)
	Delete(ctx context.Context, id string) error
}

type Canonicalizer interface {
	CanonicalizeAny(payload any) ([]byte, error)
}

type TransmissionResult struct {
	Accepted       bool
	TransferTicket string
	Error          string
}

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

type OutcomeResult struct {
	Outcome Outcome
	Message string
}

// Gateway transmits rendered payloads to the tax authority. Submit is not idempotent.
type Gateway interface {
	Submit(ctx context.Context, xmlPayload string, mode domain.SubmissionMode) (TransmissionResult, error)
	Status(ctx context.Context, transferTicket string, mode domain.SubmissionMode) (OutcomeResult, error)
}

type DraftInput struct {
	SubmissionID string
	BuildingID   string
	FormType     string
	TaxYear      int
	LegalForm    string
	FormData     domain.FormData
}

type DraftResult struct {
	FormData         domain.FormData
	ConfidenceScore  int
	ValidationErrors []domain.ValidationIssue
}

type Drafter interface {
	Draft(ctx context.Context, input DraftInput) (DraftResult, error)
}

type Validator interface {
	Validate(ctx context.Context, sub domain.Submission) ([]domain.ValidationIssue, error)
}

type PayloadRenderer interface {
	Render(sub domain.Submission) (string, error)
}

type Metrics interface {
	Transition(ctx context.Context, action domain.AuditAction)
	SweepCompleted(ctx context.Context, submitted, withheld, failed int)
	GatewayFailure(ctx context.Context, op string)
	BatchCompleted(ctx context.Context, operation string, success, failed int)
}

type noopMetrics struct{}

func (noopMetrics) Transition(context.Context, domain.AuditAction)   {}
func (noopMetrics) SweepCompleted(context.Context, int, int, int)    {}
func (noopMetrics) GatewayFailure(context.Context, string)           {}
func (noopMetrics) BatchCompleted(context.Context, string, int, int) {}
