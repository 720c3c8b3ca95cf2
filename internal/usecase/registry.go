package usecase

import (
	"context"
	"fmt"
	"time"

	"vermietify/internal/domain"
)

// EntityRecord is a loaded record of any registered kind in document form.
type EntityRecord struct {
	Kind      domain.EntityKind
	ID        string
	CreatedAt time.Time
	Document  map[string]any
}

type EntityLoader func(ctx context.Context, id string) (EntityRecord, error)

// Registry maps the closed set of entity kinds to their loaders.
type Registry struct {
	loaders map[domain.EntityKind]EntityLoader
}

func NewRegistry(submissions SubmissionRepository, events AuditRepository, backups BackupRepository) (*Registry, error) {
	r := &Registry{loaders: make(map[domain.EntityKind]EntityLoader, len(domain.EntityKinds))}
	if submissions != nil {
		r.loaders[domain.KindSubmission] = func(ctx context.Context, id string) (EntityRecord, error) {
			sub, err := submissions.Get(ctx, id)
			if err != nil {
				return EntityRecord{}, err
			}
			return EntityRecord{Kind: domain.KindSubmission, ID: sub.ID, CreatedAt: sub.CreatedAt, Document: sub.Document()}, nil
		}
	}
	if events != nil {
		r.loaders[domain.KindAuditEvent] = func(ctx context.Context, id string) (EntityRecord, error) {
			event, err := events.Get(ctx, id)
			if err != nil {
				return EntityRecord{}, err
			}
			return EntityRecord{Kind: domain.KindAuditEvent, ID: event.ID, CreatedAt: event.Timestamp, Document: event.Document()}, nil
		}
	}
	if backups != nil {
		r.loaders[domain.KindBackup] = func(ctx context.Context, id string) (EntityRecord, error) {
			snap, err := backups.Get(ctx, id)
			if err != nil {
				return EntityRecord{}, err
			}
			return EntityRecord{Kind: domain.KindBackup, ID: snap.ID, CreatedAt: snap.CapturedAt, Document: snap.Document()}, nil
		}
	}
	for _, kind := range domain.EntityKinds {
		if _, ok := r.loaders[kind]; !ok {
			return nil, fmt.Errorf("no loader registered for entity kind %s", kind)
		}
	}
	return r, nil
}

func (r *Registry) Loader(kind domain.EntityKind) (EntityLoader, error) {
	if r == nil {
		return nil, fmt.Errorf("registry not configured: %w", domain.ErrInternal)
	}
	loader, ok := r.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q: %w", kind, domain.ErrInvalidArgument)
	}
	return loader, nil
}

func (r *Registry) Load(ctx context.Context, kind domain.EntityKind, id string) (EntityRecord, error) {
	loader, err := r.Loader(kind)
	if err != nil {
		return EntityRecord{}, err
	}
	return loader(ctx, id)
}
