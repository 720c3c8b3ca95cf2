// Package memstore is the in-process entity store used in no-db mode and tests.
// One mutex guards all kinds so a transition and its audit event land together.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vermietify/internal/domain"
	cryptoinfra "vermietify/internal/infra/crypto"
	"vermietify/internal/usecase"

	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	canon       usecase.Canonicalizer
	submissions map[string]domain.Submission
	events      map[string][]domain.AuditEvent
	eventIndex  map[string]eventRef
	backups     map[string]domain.BackupSnapshot
}

type eventRef struct {
	entityID string
	pos      int
}

func New() *Store {
	return &Store{
		canon:       cryptoinfra.NewService(),
		submissions: map[string]domain.Submission{},
		events:      map[string][]domain.AuditEvent{},
		eventIndex:  map[string]eventRef{},
		backups:     map[string]domain.BackupSnapshot{},
	}
}

func (s *Store) Submissions() *SubmissionRepository { return &SubmissionRepository{s: s} }

func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

func (s *Store) Backups() *BackupRepository { return &BackupRepository{s: s} }

// appendEventLocked seals and stores event after the entity's last event.
func (s *Store) appendEventLocked(event domain.AuditEvent) (domain.AuditEvent, error) {
	var prev *domain.AuditEvent
	if trail := s.events[event.EntityID]; len(trail) > 0 {
		last := trail[len(trail)-1]
		prev = &last
	}
	sealed, err := usecase.SealAuditEvent(s.canon, prev, event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	if sealed.ID == "" {
		sealed.ID = uuid.NewString()
	}
	if _, exists := s.eventIndex[sealed.ID]; exists {
		return domain.AuditEvent{}, fmt.Errorf("audit event %s already exists: %w", sealed.ID, domain.ErrConflict)
	}
	s.events[sealed.EntityID] = append(s.events[sealed.EntityID], sealed)
	s.eventIndex[sealed.ID] = eventRef{entityID: sealed.EntityID, pos: len(s.events[sealed.EntityID]) - 1}
	return sealed, nil
}

func (s *Store) activeByKeyLocked(key domain.NaturalKey) (domain.Submission, bool) {
	for _, sub := range s.submissions {
		if sub.Status != domain.StatusArchived && sub.Key() == key {
			return sub, true
		}
	}
	return domain.Submission{}, false
}

type SubmissionRepository struct {
	s *Store
}

func (r *SubmissionRepository) Create(_ context.Context, sub domain.Submission, event domain.AuditEvent) (domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if _, ok := r.s.submissions[sub.ID]; ok {
		return domain.Submission{}, fmt.Errorf("submission %s already exists: %w", sub.ID, domain.ErrConflict)
	}
	if sub.Status != domain.StatusArchived {
		if existing, ok := r.s.activeByKeyLocked(sub.Key()); ok {
			return domain.Submission{}, &domain.ConflictError{Key: sub.Key(), ExistingID: existing.ID}
		}
	}
	if err := sub.CheckInvariants(); err != nil {
		return domain.Submission{}, err
	}
	event.EntityID = sub.ID
	if _, err := r.s.appendEventLocked(event); err != nil {
		return domain.Submission{}, err
	}
	stored := sub.Clone()
	r.s.submissions[sub.ID] = stored
	return stored.Clone(), nil
}

func (r *SubmissionRepository) Get(_ context.Context, id string) (domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	return sub.Clone(), nil
}

func (r *SubmissionRepository) List(_ context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Submission, 0)
	for _, sub := range r.s.submissions {
		if filter.Matches(sub) {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *SubmissionRepository) FindActiveByKey(_ context.Context, key domain.NaturalKey) (domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.activeByKeyLocked(key)
	if !ok {
		return domain.Submission{}, fmt.Errorf("submission for %s: %w", key, domain.ErrNotFound)
	}
	return sub.Clone(), nil
}

func (r *SubmissionRepository) Mutate(_ context.Context, id string, fn usecase.MutateFunc) (domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.submissions[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	next := current.Clone()
	event, err := fn(&next)
	if err != nil {
		return domain.Submission{}, err
	}
	if next.ID != current.ID || next.Key() != current.Key() {
		return domain.Submission{}, &domain.InvariantError{SubmissionID: id, Reason: "identity and natural key are immutable"}
	}
	if err := next.CheckInvariants(); err != nil {
		return domain.Submission{}, err
	}
	if event != nil {
		event.EntityID = id
		if _, err := r.s.appendEventLocked(*event); err != nil {
			return domain.Submission{}, err
		}
	}
	r.s.submissions[id] = next.Clone()
	return next, nil
}

type AuditRepository struct {
	s *Store
}

func (r *AuditRepository) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendEventLocked(event)
}

func (r *AuditRepository) Get(_ context.Context, id string) (domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ref, ok := r.s.eventIndex[id]
	if !ok {
		return domain.AuditEvent{}, fmt.Errorf("audit event %s: %w", id, domain.ErrNotFound)
	}
	return r.s.events[ref.entityID][ref.pos], nil
}

func (r *AuditRepository) ListByEntity(_ context.Context, entityID string) ([]domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	trail := r.s.events[entityID]
	out := make([]domain.AuditEvent, len(trail))
	copy(out, trail)
	return out, nil
}

type BackupRepository struct {
	s *Store
}

func (r *BackupRepository) Create(_ context.Context, snap domain.BackupSnapshot) (domain.BackupSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if _, ok := r.s.backups[snap.ID]; ok {
		return domain.BackupSnapshot{}, fmt.Errorf("backup %s already exists: %w", snap.ID, domain.ErrConflict)
	}
	r.s.backups[snap.ID] = snap
	return snap, nil
}

func (r *BackupRepository) Get(_ context.Context, id string) (domain.BackupSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.backups[id]
	if !ok {
		return domain.BackupSnapshot{}, fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	return snap, nil
}

func (r *BackupRepository) List(_ context.Context, filter domain.BackupFilter) ([]domain.BackupSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.BackupSnapshot, 0)
	for _, snap := range r.s.backups {
		if filter.SourceID != "" && snap.SourceID != filter.SourceID {
			continue
		}
		if filter.CapturedBefore != nil && !snap.CapturedAt.Before(*filter.CapturedBefore) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *BackupRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.backups[id]; !ok {
		return fmt.Errorf("backup %s: %w", id, domain.ErrNotFound)
	}
	delete(r.s.backups, id)
	return nil
}
