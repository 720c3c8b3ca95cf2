package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activeKeyConstraint is the partial unique index over non-archived submissions.
const activeKeyConstraint = "submissions_active_key_idx"

type SubmissionRepository struct {
	db    *gorm.DB
	canon usecase.Canonicalizer
}

func NewSubmissionRepository(db *gorm.DB, canon usecase.Canonicalizer) *SubmissionRepository {
	return &SubmissionRepository{db: db, canon: canon}
}

func (r *SubmissionRepository) Create(ctx context.Context, sub domain.Submission, event domain.AuditEvent) (domain.Submission, error) {
	if r.db == nil {
		return domain.Submission{}, errDBUnavailable
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if err := sub.CheckInvariants(); err != nil {
		return domain.Submission{}, err
	}
	sub.CreatedAt = sub.CreatedAt.UTC().Truncate(time.Microsecond)
	sub.UpdatedAt = sub.UpdatedAt.UTC().Truncate(time.Microsecond)
	model, err := submissionModelFromDomain(sub)
	if err != nil {
		return domain.Submission{}, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		event.EntityID = sub.ID
		_, err := appendEventTx(ctx, tx, r.canon, event)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, activeKeyConstraint) {
			existing, findErr := r.FindActiveByKey(ctx, sub.Key())
			if findErr != nil {
				return domain.Submission{}, &domain.ConflictError{Key: sub.Key()}
			}
			return domain.Submission{}, &domain.ConflictError{Key: sub.Key(), ExistingID: existing.ID}
		}
		if isUniqueViolation(err, "") {
			return domain.Submission{}, fmt.Errorf("submission %s already exists: %w", sub.ID, domain.ErrConflict)
		}
		return domain.Submission{}, err
	}
	return sub.Clone(), nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id string) (domain.Submission, error) {
	if r.db == nil {
		return domain.Submission{}, errDBUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.Submission{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	var model SubmissionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return domain.Submission{}, notFound(err, "submission "+id)
	}
	return submissionFromModel(model)
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Model(&SubmissionModel{})
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.BuildingID != "" {
		query = query.Where("building_id = ?", filter.BuildingID)
	}
	if filter.FormType != "" {
		query = query.Where("form_type = ?", filter.FormType)
	}
	if filter.TaxYear != 0 {
		query = query.Where("tax_year = ?", filter.TaxYear)
	}
	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}
	query = query.Order("created_at ASC").Order("id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var models []SubmissionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(models))
	for _, model := range models {
		sub, err := submissionFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (r *SubmissionRepository) FindActiveByKey(ctx context.Context, key domain.NaturalKey) (domain.Submission, error) {
	if r.db == nil {
		return domain.Submission{}, errDBUnavailable
	}
	var model SubmissionModel
	err := r.db.WithContext(ctx).
		Where("building_id = ? AND form_type = ? AND tax_year = ? AND status <> ?",
			key.BuildingID, key.FormType, key.TaxYear, string(domain.StatusArchived)).
		Take(&model).Error
	if err != nil {
		return domain.Submission{}, notFound(err, "submission for "+key.String())
	}
	return submissionFromModel(model)
}

// Mutate locks the row, applies fn to a fresh copy and writes the result and
// its audit event in one transaction.
func (r *SubmissionRepository) Mutate(ctx context.Context, id string, fn usecase.MutateFunc) (domain.Submission, error) {
	if r.db == nil {
		return domain.Submission{}, errDBUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.Submission{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	var out domain.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SubmissionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&model).Error; err != nil {
			return notFound(err, "submission "+id)
		}
		current, err := submissionFromModel(model)
		if err != nil {
			return err
		}
		next := current.Clone()
		event, err := fn(&next)
		if err != nil {
			return err
		}
		if next.ID != current.ID || next.Key() != current.Key() {
			return &domain.InvariantError{SubmissionID: id, Reason: "identity and natural key are immutable"}
		}
		if err := next.CheckInvariants(); err != nil {
			return err
		}
		next.UpdatedAt = next.UpdatedAt.UTC().Truncate(time.Microsecond)
		updated, err := submissionModelFromDomain(next)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		if event != nil {
			event.EntityID = id
			if _, err := appendEventTx(ctx, tx, r.canon, *event); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out, nil
}

func submissionModelFromDomain(sub domain.Submission) (SubmissionModel, error) {
	form, err := json.Marshal(sub.FormData)
	if err != nil {
		return SubmissionModel{}, fmt.Errorf("encode form_data: %w", err)
	}
	if sub.FormData == nil {
		form = []byte("{}")
	}
	issues := sub.ValidationErrors
	if issues == nil {
		issues = []domain.ValidationIssue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return SubmissionModel{}, fmt.Errorf("encode validation_errors: %w", err)
	}
	model := SubmissionModel{
		ID:               sub.ID,
		BuildingID:       sub.BuildingID,
		FormType:         sub.FormType,
		TaxYear:          sub.TaxYear,
		Status:           string(sub.Status),
		FormData:         form,
		XMLPayload:       stringPtrIfNotEmpty(sub.XMLPayload),
		ConfidenceScore:  sub.ConfidenceScore,
		ValidationErrors: issuesJSON,
		TransferTicket:   stringPtrIfNotEmpty(sub.TransferTicket),
		Mode:             string(sub.Mode),
		LegalForm:        sub.LegalForm,
		Owner:            sub.Owner,
		CreatedAt:        sub.CreatedAt.UTC(),
		UpdatedAt:        sub.UpdatedAt.UTC(),
	}
	if sub.Claim != nil {
		claimedAt := sub.Claim.ClaimedAt.UTC()
		model.ClaimToken = stringPtrIfNotEmpty(sub.Claim.Token)
		model.ClaimedAt = &claimedAt
	}
	return model, nil
}

func submissionFromModel(model SubmissionModel) (domain.Submission, error) {
	var form domain.FormData
	if len(model.FormData) > 0 {
		if err := json.Unmarshal(model.FormData, &form); err != nil {
			return domain.Submission{}, fmt.Errorf("decode form_data %s: %w", model.ID, err)
		}
	}
	var issues []domain.ValidationIssue
	if len(model.ValidationErrors) > 0 {
		if err := json.Unmarshal(model.ValidationErrors, &issues); err != nil {
			return domain.Submission{}, fmt.Errorf("decode validation_errors %s: %w", model.ID, err)
		}
	}
	sub := domain.Submission{
		ID:               model.ID,
		BuildingID:       model.BuildingID,
		FormType:         model.FormType,
		TaxYear:          model.TaxYear,
		Status:           domain.Status(model.Status),
		FormData:         form,
		XMLPayload:       stringValue(model.XMLPayload),
		ConfidenceScore:  model.ConfidenceScore,
		ValidationErrors: issues,
		TransferTicket:   stringValue(model.TransferTicket),
		Mode:             domain.SubmissionMode(model.Mode),
		LegalForm:        model.LegalForm,
		Owner:            model.Owner,
		CreatedAt:        model.CreatedAt.UTC(),
		UpdatedAt:        model.UpdatedAt.UTC(),
	}
	if model.ClaimToken != nil && model.ClaimedAt != nil {
		sub.Claim = &domain.TransmissionClaim{Token: *model.ClaimToken, ClaimedAt: model.ClaimedAt.UTC()}
	}
	return sub, nil
}
