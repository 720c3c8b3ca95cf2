package db

import (
	"context"
	"encoding/json"
	"fmt"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEventRepository struct {
	db    *gorm.DB
	canon usecase.Canonicalizer
}

func NewAuditEventRepository(db *gorm.DB, canon usecase.Canonicalizer) *AuditEventRepository {
	return &AuditEventRepository{db: db, canon: canon}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	var out domain.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sealed, err := appendEventTx(ctx, tx, r.canon, event)
		if err != nil {
			return err
		}
		out = sealed
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return out, nil
}

func (r *AuditEventRepository) Get(ctx context.Context, id string) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("audit event %s: %w", id, domain.ErrNotFound)
	}
	var model AuditEventModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return domain.AuditEvent{}, notFound(err, "audit event "+id)
	}
	return auditEventFromModel(model)
}

func (r *AuditEventRepository) ListByEntity(ctx context.Context, entityID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		event, err := auditEventFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

// appendEventTx locks the entity's sequence row, seals event after the
// current tail and inserts it inside tx.
func appendEventTx(ctx context.Context, tx *gorm.DB, canon usecase.Canonicalizer, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO entity_audit_seq (entity_id, seq) VALUES (?, 0) ON CONFLICT (entity_id) DO NOTHING",
		event.EntityID,
	).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM entity_audit_seq WHERE entity_id = ? FOR UPDATE",
		event.EntityID,
	).Scan(&currentSeq).Error; err != nil {
		return domain.AuditEvent{}, err
	}

	var prev *domain.AuditEvent
	if currentSeq > 0 {
		var model AuditEventModel
		if err := tx.WithContext(ctx).
			Where("entity_id = ? AND seq = ?", event.EntityID, currentSeq).
			Take(&model).Error; err != nil {
			return domain.AuditEvent{}, fmt.Errorf("load audit tail for %s: %w", event.EntityID, err)
		}
		tail, err := auditEventFromModel(model)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		prev = &tail
	}

	sealed, err := usecase.SealAuditEvent(canon, prev, event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	model, err := auditEventModelFromDomain(sealed)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	if err := tx.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	if err := tx.WithContext(ctx).Exec(
		"UPDATE entity_audit_seq SET seq = ? WHERE entity_id = ?",
		sealed.Seq,
		event.EntityID,
	).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	return sealed, nil
}

func auditEventModelFromDomain(event domain.AuditEvent) (AuditEventModel, error) {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return AuditEventModel{}, fmt.Errorf("encode audit detail: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return AuditEventModel{}, fmt.Errorf("encode audit metadata: %w", err)
	}
	return AuditEventModel{
		ID:            event.ID,
		EntityID:      event.EntityID,
		Seq:           event.Seq,
		Action:        string(event.Action),
		Actor:         event.Actor,
		DetailJSON:    detail,
		MetadataJSON:  metadata,
		PayloadHash:   event.PayloadHash,
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.Timestamp.UTC(),
	}, nil
}

func auditEventFromModel(model AuditEventModel) (domain.AuditEvent, error) {
	detail, err := domain.DecodeDocument(model.DetailJSON)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode audit detail %s: %w", model.ID, err)
	}
	metadata, err := domain.DecodeDocument(model.MetadataJSON)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode audit metadata %s: %w", model.ID, err)
	}
	return domain.AuditEvent{
		ID:            model.ID,
		EntityID:      model.EntityID,
		Seq:           model.Seq,
		Action:        domain.AuditAction(model.Action),
		Actor:         model.Actor,
		Timestamp:     model.CreatedAt.UTC(),
		Detail:        detail,
		Metadata:      metadata,
		PayloadHash:   model.PayloadHash,
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
	}, nil
}
