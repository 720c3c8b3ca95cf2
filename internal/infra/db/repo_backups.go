package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vermietify/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BackupRepository struct {
	db *gorm.DB
}

func NewBackupRepository(db *gorm.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

func (r *BackupRepository) Create(ctx context.Context, snap domain.BackupSnapshot) (domain.BackupSnapshot, error) {
	if r.db == nil {
		return domain.BackupSnapshot{}, errDBUnavailable
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.CapturedAt = snap.CapturedAt.UTC().Truncate(time.Microsecond)
	snap.SourceCreated = snap.SourceCreated.UTC().Truncate(time.Microsecond)
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("encode backup payload: %w", err)
	}
	model := BackupModel{
		ID:              snap.ID,
		SourceID:        snap.SourceID,
		SourceKind:      string(snap.SourceKind),
		CapturedAt:      snap.CapturedAt,
		Reason:          snap.Reason,
		CapturedBy:      snap.CapturedBy,
		PayloadJSON:     payload,
		SourceCreatedAt: snap.SourceCreated,
		ImmutableHash:   snap.ImmutableHash,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err, "") {
			return domain.BackupSnapshot{}, fmt.Errorf("backup %s already exists: %w", snap.ID, domain.ErrConflict)
		}
		return domain.BackupSnapshot{}, err
	}
	return snap, nil
}

func (r *BackupRepository) Get(ctx context.Context, id string) (domain.BackupSnapshot, error) {
	if r.db == nil {
		return domain.BackupSnapshot{}, errDBUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	var model BackupModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return domain.BackupSnapshot{}, notFound(err, "backup "+id)
	}
	return backupFromModel(model)
}

func (r *BackupRepository) List(ctx context.Context, filter domain.BackupFilter) ([]domain.BackupSnapshot, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Model(&BackupModel{})
	if filter.SourceID != "" {
		query = query.Where("original_id = ?", filter.SourceID)
	}
	if filter.CapturedBefore != nil {
		query = query.Where("backup_timestamp < ?", filter.CapturedBefore.UTC())
	}
	query = query.Order("backup_timestamp ASC").Order("id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var models []BackupModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.BackupSnapshot, 0, len(models))
	for _, model := range models {
		snap, err := backupFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (r *BackupRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&BackupModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func backupFromModel(model BackupModel) (domain.BackupSnapshot, error) {
	payload, err := domain.DecodeDocument(model.PayloadJSON)
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("decode backup payload %s: %w", model.ID, err)
	}
	return domain.BackupSnapshot{
		ID:            model.ID,
		SourceID:      model.SourceID,
		SourceKind:    domain.EntityKind(model.SourceKind),
		CapturedAt:    model.CapturedAt.UTC(),
		Reason:        model.Reason,
		CapturedBy:    model.CapturedBy,
		Payload:       payload,
		SourceCreated: model.SourceCreatedAt.UTC(),
		ImmutableHash: model.ImmutableHash,
	}, nil
}
