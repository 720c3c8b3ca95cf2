package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"vermietify/internal/domain"

	"go.uber.org/zap"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportJSON:
		return ExportJSON, nil
	case ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q: %w", raw, domain.ErrInvalidArgument)
}

// Trail is the read view handed to renderers. Submission is nil when the
// entity is not a submission.
type Trail struct {
	EntityID    string
	Submission  *domain.Submission
	Events      []domain.AuditEvent
	GeneratedAt time.Time
}

type TrailRenderer interface {
	Render(trail Trail) ([]byte, error)
	ContentType() string
}

type ExportedTrail struct {
	Format      ExportFormat
	ContentType string
	Body        []byte
	EventCount  int
}

type AuditRecorder struct {
	Events      AuditRepository
	Submissions SubmissionRepository
	Renderers   map[ExportFormat]TrailRenderer
	Canon       Canonicalizer
	Clock       func() time.Time
	Logger      *zap.Logger
}

func NewAuditRecorder(events AuditRepository, submissions SubmissionRepository, canon Canonicalizer, renderers map[ExportFormat]TrailRenderer) *AuditRecorder {
	return &AuditRecorder{
		Events:      events,
		Submissions: submissions,
		Renderers:   renderers,
		Canon:       canon,
		Clock:       time.Now,
		Logger:      zap.NewNop(),
	}
}

// Record appends one side-effect event. Transition events are written by the
// submission store together with the state change instead.
func (r *AuditRecorder) Record(ctx context.Context, entityID string, action domain.AuditAction, actor string, detail map[string]any) (domain.AuditEvent, error) {
	if r.Events == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if strings.TrimSpace(entityID) == "" || action == "" {
		return domain.AuditEvent{}, domain.ErrInvalidArgument
	}
	if actor == "" {
		actor = domain.ActorSystem
	}
	return r.Events.Append(ctx, domain.AuditEvent{
		EntityID:  entityID,
		Action:    action,
		Actor:     actor,
		Timestamp: r.now(),
		Detail:    detail,
	})
}

// Trail returns the entity's events ascending by timestamp, ties broken by seq.
func (r *AuditRecorder) Trail(ctx context.Context, entityID string) ([]domain.AuditEvent, error) {
	if r.Events == nil {
		return nil, errors.New("audit repository required")
	}
	events, err := r.Events.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})
	return events, nil
}

func (r *AuditRecorder) ExportTrail(ctx context.Context, entityID string, format ExportFormat) (ExportedTrail, error) {
	renderer, ok := r.Renderers[format]
	if !ok || renderer == nil {
		return ExportedTrail{}, fmt.Errorf("unsupported export format %q: %w", format, domain.ErrInvalidArgument)
	}
	events, err := r.Trail(ctx, entityID)
	if err != nil {
		return ExportedTrail{}, err
	}
	trail := Trail{EntityID: entityID, Events: events, GeneratedAt: r.now()}
	if r.Submissions != nil {
		sub, err := r.Submissions.Get(ctx, entityID)
		switch {
		case err == nil:
			trail.Submission = &sub
		case errors.Is(err, domain.ErrNotFound):
			if len(events) == 0 {
				return ExportedTrail{}, err
			}
		default:
			return ExportedTrail{}, err
		}
	}
	body, err := renderer.Render(trail)
	if err != nil {
		return ExportedTrail{}, fmt.Errorf("render %s trail: %w", format, err)
	}
	r.logger().Info("audit trail exported",
		zap.String("entity_id", entityID),
		zap.String("format", string(format)),
		zap.Int("events", len(events)),
	)
	return ExportedTrail{
		Format:      format,
		ContentType: renderer.ContentType(),
		Body:        body,
		EventCount:  len(events),
	}, nil
}

// VerifyTrail recomputes the hash chain of the entity's stored events.
func (r *AuditRecorder) VerifyTrail(ctx context.Context, entityID string) (int, error) {
	if r.Events == nil {
		return 0, errors.New("audit repository required")
	}
	events, err := r.Events.ListByEntity(ctx, entityID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	if err := VerifyAuditChain(r.Canon, entityID, events); err != nil {
		r.logger().Warn("audit chain verification failed", zap.String("entity_id", entityID), zap.Error(err))
		return len(events), err
	}
	return len(events), nil
}

func (r *AuditRecorder) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock().UTC()
}

func (r *AuditRecorder) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
