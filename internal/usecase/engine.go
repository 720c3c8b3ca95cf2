package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vermietify/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultClaimTTL = 10 * time.Minute

// Engine owns submission status. Every transition re-reads the record inside
// the store's atomic section, checks its guard against that copy and writes
// the new state together with exactly one audit event.
type Engine struct {
	Submissions SubmissionRepository
	Backups     *BackupService
	Gateway     Gateway
	Drafter     Drafter
	Validator   Validator
	Renderer    PayloadRenderer
	Gate        Gate
	Queues      QueuePolicy
	ClaimTTL    time.Duration
	Metrics     Metrics
	Clock       func() time.Time
	NewToken    func() string
	Logger      *zap.Logger
}

func NewEngine(submissions SubmissionRepository, gateway Gateway, gate Gate) *Engine {
	return &Engine{
		Submissions: submissions,
		Gateway:     gateway,
		Gate:        gate,
		Queues:      DefaultQueuePolicy(),
		ClaimTTL:    DefaultClaimTTL,
		Metrics:     noopMetrics{},
		Clock:       time.Now,
		NewToken:    uuid.NewString,
		Logger:      zap.NewNop(),
	}
}

type CreateInput struct {
	BuildingID string
	FormType   string
	TaxYear    int
	FormData   domain.FormData
	Mode       domain.SubmissionMode
	LegalForm  string
	Owner      string
	Actor      string
}

func (e *Engine) Create(ctx context.Context, input CreateInput) (domain.Submission, error) {
	input.BuildingID = strings.TrimSpace(input.BuildingID)
	input.FormType = strings.TrimSpace(input.FormType)
	if input.BuildingID == "" || input.FormType == "" {
		return domain.Submission{}, fmt.Errorf("building_id and form_type are required: %w", domain.ErrInvalidArgument)
	}
	if err := checkTaxYear(input.TaxYear); err != nil {
		return domain.Submission{}, err
	}
	if input.Mode == "" {
		input.Mode = domain.ModeTest
	}
	if _, ok := domain.ParseSubmissionMode(string(input.Mode)); !ok {
		return domain.Submission{}, fmt.Errorf("unknown submission mode %q: %w", input.Mode, domain.ErrInvalidArgument)
	}
	actor := actorOrSystem(input.Actor)
	owner := input.Owner
	if owner == "" {
		owner = actor
	}
	now := e.now()
	sub := domain.Submission{
		ID:         uuid.NewString(),
		BuildingID: input.BuildingID,
		FormType:   input.FormType,
		TaxYear:    input.TaxYear,
		Status:     domain.StatusDraft,
		FormData:   input.FormData.Clone(),
		Mode:       input.Mode,
		LegalForm:  input.LegalForm,
		Owner:      owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := e.Submissions.Create(ctx, sub, domain.AuditEvent{
		EntityID:  sub.ID,
		Action:    domain.ActionCreated,
		Actor:     actor,
		Timestamp: now,
		Detail: map[string]any{
			"building_id":     sub.BuildingID,
			"form_type":       sub.FormType,
			"tax_year":        sub.TaxYear,
			"submission_mode": string(sub.Mode),
			"to":              string(domain.StatusDraft),
		},
	})
	if err != nil {
		return domain.Submission{}, err
	}
	e.metrics().Transition(ctx, domain.ActionCreated)
	e.logger().Info("submission created",
		zap.String("submission_id", created.ID),
		zap.String("natural_key", created.Key().String()),
		zap.String("actor", actor),
	)
	return created, nil
}

func (e *Engine) Get(ctx context.Context, id string) (domain.Submission, error) {
	return e.Submissions.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	return e.Submissions.List(ctx, filter)
}

// Process asks the drafting collaborator for form content and applies it.
func (e *Engine) Process(ctx context.Context, id, actor string) (domain.Submission, error) {
	if e.Drafter == nil {
		return domain.Submission{}, fmt.Errorf("drafter not configured: %w", domain.ErrInternal)
	}
	sub, err := e.Submissions.Get(ctx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if sub.Status != domain.StatusDraft {
		return domain.Submission{}, &domain.TransitionError{SubmissionID: id, Action: domain.ActionAIProcessed, From: sub.Status, Reason: "status must be DRAFT"}
	}
	draft, err := e.Drafter.Draft(ctx, DraftInput{
		SubmissionID: sub.ID,
		BuildingID:   sub.BuildingID,
		FormType:     sub.FormType,
		TaxYear:      sub.TaxYear,
		LegalForm:    sub.LegalForm,
		FormData:     sub.FormData.Clone(),
	})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("draft submission %s: %w", id, err)
	}
	return e.ApplyDraft(ctx, id, draft, actor)
}

// ApplyDraft performs DRAFT -> AI_PROCESSED with a drafting result.
func (e *Engine) ApplyDraft(ctx context.Context, id string, draft DraftResult, actor string) (domain.Submission, error) {
	if draft.ConfidenceScore < 0 || draft.ConfidenceScore > 100 {
		return domain.Submission{}, fmt.Errorf("confidence score %d out of range: %w", draft.ConfidenceScore, domain.ErrInvalidArgument)
	}
	return e.transition(ctx, id, domain.ActionAIProcessed, actor,
		func(sub domain.Submission) string {
			if sub.Status != domain.StatusDraft {
				return "status must be DRAFT"
			}
			if len(draft.FormData) == 0 {
				return "drafted form_data is empty"
			}
			return ""
		},
		func(sub *domain.Submission) map[string]any {
			score := draft.ConfidenceScore
			sub.Status = domain.StatusAIProcessed
			sub.FormData = draft.FormData.Clone()
			sub.ConfidenceScore = &score
			sub.ValidationErrors = append([]domain.ValidationIssue(nil), draft.ValidationErrors...)
			return map[string]any{
				"confidence_score": score,
				"field_count":      len(draft.FormData),
				"issue_count":      len(draft.ValidationErrors),
			}
		},
	)
}

// Validate performs AI_PROCESSED -> VALIDATED. The rule pass may find errors;
// the transition happens regardless and the errors block transmission instead.
func (e *Engine) Validate(ctx context.Context, id, actor string) (domain.Submission, error) {
	sub, err := e.Submissions.Get(ctx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if sub.Status != domain.StatusAIProcessed {
		return domain.Submission{}, &domain.TransitionError{SubmissionID: id, Action: domain.ActionValidated, From: sub.Status, Reason: "status must be AI_PROCESSED"}
	}
	var ruleIssues []domain.ValidationIssue
	if e.Validator != nil {
		ruleIssues, err = e.Validator.Validate(ctx, sub)
		if err != nil {
			return domain.Submission{}, fmt.Errorf("validate submission %s: %w", id, err)
		}
	}
	issues := mergeIssues(sub.ValidationErrors, ruleIssues)
	checked := sub.Clone()
	checked.ValidationErrors = issues
	payload := ""
	if e.Renderer != nil {
		payload, err = e.Renderer.Render(checked)
		if err != nil {
			return domain.Submission{}, fmt.Errorf("render payload for %s: %w", id, err)
		}
	}
	return e.transition(ctx, id, domain.ActionValidated, actor,
		func(current domain.Submission) string {
			if current.Status != domain.StatusAIProcessed {
				return "status must be AI_PROCESSED"
			}
			return ""
		},
		func(current *domain.Submission) map[string]any {
			current.Status = domain.StatusValidated
			current.ValidationErrors = issues
			if payload != "" {
				current.XMLPayload = payload
			}
			return map[string]any{
				"error_count":   countSeverity(issues, domain.SeverityError),
				"warning_count": countSeverity(issues, domain.SeverityWarning),
				"auto_eligible": e.Gate.CanAutoSubmit(*current),
			}
		},
	)
}

// Submit transmits a VALIDATED submission on behalf of an authorized actor.
// The confidence gate does not apply to manual submission.
func (e *Engine) Submit(ctx context.Context, id, actor string) (domain.Submission, error) {
	return e.submit(ctx, id, actorOrSystem(actor), false)
}

// submit claims, transmits and records in three steps. Claims are stamped and
// judged only with the engine clock.
func (e *Engine) submit(ctx context.Context, id, actor string, auto bool) (domain.Submission, error) {
	if e.Gateway == nil {
		return domain.Submission{}, fmt.Errorf("gateway not configured: %w", domain.ErrInternal)
	}
	token := e.newToken()
	claimed, err := e.Submissions.Mutate(ctx, id, func(sub *domain.Submission) (*domain.AuditEvent, error) {
		now := e.now()
		if reason := e.submitGuard(*sub, now, auto); reason != "" {
			return nil, &domain.TransitionError{SubmissionID: id, Action: domain.ActionSubmitted, From: sub.Status, Reason: reason}
		}
		sub.Claim = &domain.TransmissionClaim{Token: token, ClaimedAt: now}
		return nil, nil
	})
	if err != nil {
		return domain.Submission{}, err
	}

	payload := claimed.XMLPayload
	if payload == "" && e.Renderer != nil {
		payload, err = e.Renderer.Render(claimed)
		if err != nil {
			e.releaseClaim(ctx, id, token)
			return domain.Submission{}, fmt.Errorf("render payload for %s: %w", id, err)
		}
	}
	if payload == "" {
		e.releaseClaim(ctx, id, token)
		return domain.Submission{}, fmt.Errorf("submission %s has no xml payload: %w", id, domain.ErrInvalidArgument)
	}

	result, err := e.Gateway.Submit(ctx, payload, claimed.Mode)
	if err != nil || !result.Accepted || result.TransferTicket == "" {
		e.releaseClaim(ctx, id, token)
		e.metrics().GatewayFailure(ctx, "submit")
		failure := transmissionFailure(id, result, err)
		e.logger().Warn("transmission failed; submission stays VALIDATED",
			zap.String("submission_id", id),
			zap.Bool("auto", auto),
			zap.Error(failure),
		)
		return domain.Submission{}, failure
	}

	submitted, err := e.transition(ctx, id, domain.ActionSubmitted, actor,
		func(sub domain.Submission) string {
			if sub.Claim == nil || sub.Claim.Token != token {
				return "transmission claim lost"
			}
			if sub.Status != domain.StatusValidated || sub.TransferTicket != "" {
				return "status changed during transmission"
			}
			return ""
		},
		func(sub *domain.Submission) map[string]any {
			sub.Status = domain.StatusSubmitted
			sub.TransferTicket = result.TransferTicket
			sub.XMLPayload = payload
			sub.Claim = nil
			detail := map[string]any{
				"transfer_ticket": result.TransferTicket,
				"submission_mode": string(sub.Mode),
				"auto":            auto,
			}
			if sub.ConfidenceScore != nil {
				detail["confidence_score"] = *sub.ConfidenceScore
			}
			return detail
		},
	)
	if err != nil {
		e.logger().Error("gateway accepted submission but state write failed",
			zap.String("submission_id", id),
			zap.String("transfer_ticket", result.TransferTicket),
			zap.Error(err),
		)
		return domain.Submission{}, err
	}
	return submitted, nil
}

func (e *Engine) submitGuard(sub domain.Submission, now time.Time, auto bool) string {
	switch {
	case sub.Status != domain.StatusValidated:
		return "status must be VALIDATED"
	case sub.TransferTicket != "":
		return "transfer ticket already set"
	case sub.Claim.Live(now, e.claimTTL()):
		return "transmission already in flight"
	case domain.HasBlockingIssues(sub.ValidationErrors):
		return "validation errors present"
	}
	if auto {
		return e.Gate.Evaluate(sub)
	}
	return ""
}

func (e *Engine) releaseClaim(ctx context.Context, id, token string) {
	_, err := e.Submissions.Mutate(context.WithoutCancel(ctx), id, func(sub *domain.Submission) (*domain.AuditEvent, error) {
		if sub.Claim == nil || sub.Claim.Token != token {
			return nil, errClaimGone
		}
		sub.Claim = nil
		return nil, nil
	})
	if err != nil && !errors.Is(err, errClaimGone) {
		e.logger().Error("release transmission claim", zap.String("submission_id", id), zap.Error(err))
	}
}

var errClaimGone = errors.New("claim no longer held")

func transmissionFailure(id string, result TransmissionResult, err error) error {
	if err != nil {
		var gwErr *domain.GatewayError
		if errors.As(err, &gwErr) {
			return gwErr
		}
		return &domain.GatewayError{Op: "submit", Err: err}
	}
	if !result.Accepted {
		reason := result.Error
		if reason == "" {
			reason = "not accepted"
		}
		return &domain.RefusedError{SubmissionID: id, Reason: reason}
	}
	return &domain.GatewayError{Op: "submit", Err: errors.New("accepted without transfer ticket")}
}

// RecordOutcome applies the gateway's final verdict to a SUBMITTED submission.
func (e *Engine) RecordOutcome(ctx context.Context, id string, accepted bool, message, actor string) (domain.Submission, error) {
	action, target := domain.ActionRejected, domain.StatusRejected
	if accepted {
		action, target = domain.ActionAccepted, domain.StatusAccepted
	}
	return e.transition(ctx, id, action, actor,
		func(sub domain.Submission) string {
			if sub.Status != domain.StatusSubmitted {
				return "status must be SUBMITTED"
			}
			return ""
		},
		func(sub *domain.Submission) map[string]any {
			sub.Status = target
			return map[string]any{
				"transfer_ticket": sub.TransferTicket,
				"message":         message,
			}
		},
	)
}

// Archive retires a DRAFT or VALIDATED submission after snapshotting it.
// The record holds a claim while the snapshot is written; submits are
// refused until the archive completes or releases it.
func (e *Engine) Archive(ctx context.Context, id, reason, actor string) (domain.Submission, error) {
	actor = actorOrSystem(actor)
	token := e.newToken()
	held, err := e.Submissions.Mutate(ctx, id, func(sub *domain.Submission) (*domain.AuditEvent, error) {
		now := e.now()
		if why := e.archiveGuard(*sub, now); why != "" {
			return nil, &domain.TransitionError{SubmissionID: id, Action: domain.ActionArchived, From: sub.Status, Reason: why}
		}
		sub.Claim = &domain.TransmissionClaim{Token: token, ClaimedAt: now}
		return nil, nil
	})
	if err != nil {
		return domain.Submission{}, err
	}

	backupID := ""
	if e.Backups != nil {
		snapshot := held.Clone()
		snapshot.Claim = nil
		snap, err := e.Backups.Snapshot(ctx, snapshot, BackupReasonArchive, actor)
		if err != nil {
			e.releaseClaim(ctx, id, token)
			return domain.Submission{}, fmt.Errorf("snapshot before archive: %w", err)
		}
		backupID = snap.ID
	}
	archived, err := e.transition(ctx, id, domain.ActionArchived, actor,
		func(current domain.Submission) string {
			if current.Claim == nil || current.Claim.Token != token {
				return "archive hold lost"
			}
			if current.Status != domain.StatusDraft && current.Status != domain.StatusValidated {
				return "status must be DRAFT or VALIDATED"
			}
			return ""
		},
		func(current *domain.Submission) map[string]any {
			current.Status = domain.StatusArchived
			current.Claim = nil
			return map[string]any{
				"reason":    reason,
				"backup_id": backupID,
			}
		},
	)
	if err != nil {
		e.releaseClaim(ctx, id, token)
		return domain.Submission{}, err
	}
	return archived, nil
}

func (e *Engine) archiveGuard(sub domain.Submission, now time.Time) string {
	if sub.Status != domain.StatusDraft && sub.Status != domain.StatusValidated {
		return "status must be DRAFT or VALIDATED"
	}
	if sub.Claim.Live(now, e.claimTTL()) {
		return "transmission in flight"
	}
	return ""
}

// QueueView classifies all open submissions at now.
func (e *Engine) QueueView(ctx context.Context, now time.Time) (domain.QueueView, error) {
	subs, err := e.Submissions.List(ctx, domain.SubmissionFilter{
		Statuses: []domain.Status{domain.StatusDraft, domain.StatusAIProcessed, domain.StatusValidated},
	})
	if err != nil {
		return domain.QueueView{}, err
	}
	return ClassifyQueues(subs, now, e.Queues), nil
}

type transitionGuard func(sub domain.Submission) string

type transitionApply func(sub *domain.Submission) map[string]any

func (e *Engine) transition(ctx context.Context, id string, action domain.AuditAction, actor string, guard transitionGuard, apply transitionApply) (domain.Submission, error) {
	actor = actorOrSystem(actor)
	out, err := e.Submissions.Mutate(ctx, id, func(sub *domain.Submission) (*domain.AuditEvent, error) {
		now := e.now()
		if reason := guard(*sub); reason != "" {
			return nil, &domain.TransitionError{SubmissionID: id, Action: action, From: sub.Status, Reason: reason}
		}
		from := sub.Status
		detail := apply(sub)
		if detail == nil {
			detail = map[string]any{}
		}
		detail["from"] = string(from)
		detail["to"] = string(sub.Status)
		sub.UpdatedAt = now
		if err := sub.CheckInvariants(); err != nil {
			return nil, err
		}
		return &domain.AuditEvent{
			EntityID:  id,
			Action:    action,
			Actor:     actor,
			Timestamp: now,
			Detail:    detail,
		}, nil
	})
	if err != nil {
		if te, ok := domain.IsTransitionError(err); ok {
			e.logger().Info("transition rejected",
				zap.String("submission_id", id),
				zap.String("action", string(action)),
				zap.String("from", string(te.From)),
				zap.String("reason", te.Reason),
			)
		}
		return domain.Submission{}, err
	}
	e.metrics().Transition(ctx, action)
	e.logger().Info("submission transitioned",
		zap.String("submission_id", id),
		zap.String("action", string(action)),
		zap.String("status", string(out.Status)),
		zap.String("actor", actor),
	)
	return out, nil
}

func mergeIssues(existing, added []domain.ValidationIssue) []domain.ValidationIssue {
	out := make([]domain.ValidationIssue, 0, len(existing)+len(added))
	seen := make(map[domain.ValidationIssue]struct{}, len(existing)+len(added))
	for _, group := range [][]domain.ValidationIssue{existing, added} {
		for _, issue := range group {
			if _, ok := seen[issue]; ok {
				continue
			}
			seen[issue] = struct{}{}
			out = append(out, issue)
		}
	}
	return out
}

func countSeverity(issues []domain.ValidationIssue, severity domain.Severity) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == severity {
			n++
		}
	}
	return n
}

func checkTaxYear(year int) error {
	if year < 2000 || year > 2200 {
		return fmt.Errorf("tax year %d out of range: %w", year, domain.ErrInvalidArgument)
	}
	return nil
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return domain.ActorSystem
	}
	return actor
}

func (e *Engine) claimTTL() time.Duration {
	if e.ClaimTTL <= 0 {
		return DefaultClaimTTL
	}
	return e.ClaimTTL
}

func (e *Engine) newToken() string {
	if e.NewToken == nil {
		return uuid.NewString()
	}
	return e.NewToken()
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock().UTC()
}

func (e *Engine) metrics() Metrics {
	if e.Metrics == nil {
		return noopMetrics{}
	}
	return e.Metrics
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
