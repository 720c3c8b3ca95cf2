package usecase

import (
	"errors"
	"fmt"
	"time"

	"vermietify/internal/domain"
)

// SealAuditEvent assigns the chain position of event after prev (nil for the
// first event of an entity) and computes its payload and event hashes.
// Timestamps are truncated to microseconds to survive a postgres round trip and
// clamped so an entity's trail never goes back in time.
func SealAuditEvent(canon Canonicalizer, prev *domain.AuditEvent, event domain.AuditEvent) (domain.AuditEvent, error) {
	if canon == nil {
		return domain.AuditEvent{}, errors.New("canonicalizer required")
	}
	if event.EntityID == "" || event.Action == "" {
		return domain.AuditEvent{}, fmt.Errorf("audit event missing entity_id or action: %w", domain.ErrInvalidArgument)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)
	if event.Detail == nil {
		event.Detail = map[string]any{}
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	event.Seq = 1
	event.PrevEventHash = domain.ZeroAuditHash()
	if prev != nil {
		event.Seq = prev.Seq + 1
		event.PrevEventHash = prev.EventHash
		if event.Timestamp.Before(prev.Timestamp) {
			event.Timestamp = prev.Timestamp
		}
	}

	payloadHash, err := auditPayloadHash(canon, event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.PayloadHash = payloadHash
	eventHash, err := computeChainHash(canon, event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.EventHash = eventHash
	return event, nil
}

// VerifyAuditChain checks seq continuity, hash links and timestamp order of one entity's trail.
func VerifyAuditChain(canon Canonicalizer, entityID string, events []domain.AuditEvent) error {
	if canon == nil {
		return errors.New("canonicalizer required")
	}
	expectedSeq := int64(1)
	prevHash := domain.ZeroAuditHash()
	var prevTime time.Time
	for _, event := range events {
		if event.EntityID != entityID {
			return fmt.Errorf("audit chain entity mismatch at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d: %w", expectedSeq, event.Seq, domain.ErrIntegrity)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		if event.Timestamp.IsZero() {
			return fmt.Errorf("audit chain missing timestamp at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		if event.Timestamp.Before(prevTime) {
			return fmt.Errorf("audit chain timestamp regression at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		payloadHash, err := auditPayloadHash(canon, event)
		if err != nil {
			return fmt.Errorf("audit chain payload encode failed at seq %d: %w", event.Seq, err)
		}
		if payloadHash != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		expectedHash, err := computeChainHash(canon, event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d: %w", event.Seq, domain.ErrIntegrity)
		}
		prevHash = event.EventHash
		prevTime = event.Timestamp
		expectedSeq++
	}
	return nil
}

func auditPayloadHash(canon Canonicalizer, event domain.AuditEvent) (string, error) {
	return digest(canon, map[string]any{
		"actor":    event.Actor,
		"detail":   orEmpty(event.Detail),
		"metadata": orEmpty(event.Metadata),
	})
}

func computeChainHash(canon Canonicalizer, event domain.AuditEvent) (string, error) {
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	return digest(canon, map[string]any{
		"v":               domain.AuditChainVersion,
		"entity_id":       event.EntityID,
		"seq":             event.Seq,
		"action":          string(event.Action),
		"payload_hash":    event.PayloadHash,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
