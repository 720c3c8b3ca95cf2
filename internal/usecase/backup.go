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

const (
	BackupReasonArchive   = "before_archive"
	BackupReasonMigration = "before_year_migration"
	BackupReasonBatch     = "before_batch"
	BackupReasonManual    = "manual"
)

// StampImmutable digests document content together with the source's
// original creation time. Equal inputs always give equal digests.
func StampImmutable(canon Canonicalizer, content map[string]any, createdAt time.Time) (string, error) {
	if canon == nil {
		return "", errors.New("canonicalizer required")
	}
	return digest(canon, map[string]any{
		"content":    orEmpty(content),
		"created_at": createdAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	})
}

type BackupService struct {
	Backups  BackupRepository
	Audit    *AuditRecorder
	Registry *Registry
	Canon    Canonicalizer
	Clock    func() time.Time
	Logger   *zap.Logger
}

func NewBackupService(backups BackupRepository, audit *AuditRecorder, registry *Registry, canon Canonicalizer) *BackupService {
	return &BackupService{
		Backups:  backups,
		Audit:    audit,
		Registry: registry,
		Canon:    canon,
		Clock:    time.Now,
		Logger:   zap.NewNop(),
	}
}

// Snapshot stores a full copy of sub with its id stripped from the payload.
func (s *BackupService) Snapshot(ctx context.Context, sub domain.Submission, reason, actor string) (domain.BackupSnapshot, error) {
	return s.store(ctx, EntityRecord{
		Kind:      domain.KindSubmission,
		ID:        sub.ID,
		CreatedAt: sub.CreatedAt,
		Document:  sub.Document(),
	}, reason, actor)
}

// SnapshotEntity loads any registered entity kind and snapshots it.
func (s *BackupService) SnapshotEntity(ctx context.Context, kind domain.EntityKind, id, reason, actor string) (domain.BackupSnapshot, error) {
	record, err := s.Registry.Load(ctx, kind, id)
	if err != nil {
		return domain.BackupSnapshot{}, err
	}
	return s.store(ctx, record, reason, actor)
}

func (s *BackupService) store(ctx context.Context, record EntityRecord, reason, actor string) (domain.BackupSnapshot, error) {
	if s.Backups == nil {
		return domain.BackupSnapshot{}, errors.New("backup repository required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return domain.BackupSnapshot{}, domain.ErrInvalidArgument
	}
	if reason == "" {
		reason = BackupReasonManual
	}
	if actor == "" {
		actor = domain.ActorSystem
	}
	payload := make(map[string]any, len(record.Document))
	for k, v := range record.Document {
		if k == "id" {
			continue
		}
		payload[k] = v
	}
	created := record.CreatedAt.UTC().Truncate(time.Microsecond)
	hash, err := StampImmutable(s.Canon, payload, created)
	if err != nil {
		return domain.BackupSnapshot{}, fmt.Errorf("stamp snapshot: %w", err)
	}
	snap, err := s.Backups.Create(ctx, domain.BackupSnapshot{
		SourceID:      record.ID,
		SourceKind:    record.Kind,
		CapturedAt:    s.now(),
		Reason:        reason,
		CapturedBy:    actor,
		Payload:       payload,
		SourceCreated: created,
		ImmutableHash: hash,
	})
	if err != nil {
		return domain.BackupSnapshot{}, err
	}
	if record.Kind == domain.KindSubmission && s.Audit != nil {
		if _, err := s.Audit.Record(ctx, record.ID, domain.ActionBackupCreated, actor, map[string]any{
			"backup_id":      snap.ID,
			"backup_reason":  reason,
			"immutable_hash": hash,
		}); err != nil {
			return snap, fmt.Errorf("record backup event: %w", err)
		}
	}
	s.logger().Info("snapshot stored",
		zap.String("backup_id", snap.ID),
		zap.String("source_id", record.ID),
		zap.String("kind", string(record.Kind)),
		zap.String("reason", reason),
	)
	return snap, nil
}

// VerifySnapshot recomputes the immutable stamp of a stored snapshot.
func (s *BackupService) VerifySnapshot(ctx context.Context, id string) (domain.BackupSnapshot, error) {
	snap, err := s.Backups.Get(ctx, id)
	if err != nil {
		return domain.BackupSnapshot{}, err
	}
	hash, err := StampImmutable(s.Canon, snap.Payload, snap.SourceCreated)
	if err != nil {
		return snap, err
	}
	if hash != snap.ImmutableHash {
		return snap, fmt.Errorf("snapshot %s digest mismatch: %w", id, domain.ErrIntegrity)
	}
	return snap, nil
}

// ListVersions returns the snapshots of one source, oldest first.
func (s *BackupService) ListVersions(ctx context.Context, sourceID string) ([]domain.BackupSnapshot, error) {
	snaps, err := s.Backups.List(ctx, domain.BackupFilter{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].CapturedAt.Equal(snaps[j].CapturedAt) {
			return snaps[i].CapturedAt.Before(snaps[j].CapturedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps, nil
}

type PruneReport struct {
	Deleted []string          `json:"deleted"`
	Kept    []string          `json:"kept"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Prune deletes snapshots captured before now-retention, always keeping the
// newest snapshot of every source.
func (s *BackupService) Prune(ctx context.Context, now time.Time, retention time.Duration) (PruneReport, error) {
	report := PruneReport{Failed: map[string]string{}}
	if retention <= 0 {
		return report, fmt.Errorf("retention must be positive: %w", domain.ErrInvalidArgument)
	}
	cutoff := now.Add(-retention)
	candidates, err := s.Backups.List(ctx, domain.BackupFilter{CapturedBefore: &cutoff})
	if err != nil {
		return report, err
	}
	newest := map[string]string{}
	for _, snap := range candidates {
		if _, ok := newest[snap.SourceID]; ok {
			continue
		}
		versions, err := s.ListVersions(ctx, snap.SourceID)
		if err != nil {
			return report, err
		}
		if len(versions) > 0 {
			newest[snap.SourceID] = versions[len(versions)-1].ID
		}
	}
	for _, snap := range candidates {
		if newest[snap.SourceID] == snap.ID {
			report.Kept = append(report.Kept, snap.ID)
			continue
		}
		if err := s.Backups.Delete(ctx, snap.ID); err != nil {
			report.Failed[snap.ID] = err.Error()
			continue
		}
		report.Deleted = append(report.Deleted, snap.ID)
	}
	s.logger().Info("backup retention pass",
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("kept", len(report.Kept)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *BackupService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *BackupService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
