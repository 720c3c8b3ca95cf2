package domain

import "time"

const (
	AuditChainVersion = "audit_chain_v1"

	// ActorSystem is the actor recorded for scheduler-driven transitions.
	ActorSystem = "system"
)

type AuditAction string

const (
	ActionCreated       AuditAction = "created"
	ActionAIProcessed   AuditAction = "ai_processed"
	ActionValidated     AuditAction = "validated"
	ActionSubmitted     AuditAction = "submitted"
	ActionAccepted      AuditAction = "accepted"
	ActionRejected      AuditAction = "rejected"
	ActionArchived      AuditAction = "archived"
	ActionMigrated      AuditAction = "migrated"
	ActionBackupCreated AuditAction = "backup_created"
	ActionTransmitError AuditAction = "transmission_failed"
)

// AuditEvent is append-only. Seq and the hash fields are assigned by the repository.
type AuditEvent struct {
	ID            string
	EntityID      string
	Seq           int64
	Action        AuditAction
	Actor         string
	Timestamp     time.Time
	Detail        map[string]any
	Metadata      map[string]any
	PayloadHash   string
	PrevEventHash string
	EventHash     string
}

func ZeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

func (e AuditEvent) Document() map[string]any {
	return map[string]any{
		"id":              e.ID,
		"entity_id":       e.EntityID,
		"seq":             e.Seq,
		"action":          string(e.Action),
		"actor":           e.Actor,
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"detail":          e.Detail,
		"metadata":        e.Metadata,
		"payload_hash":    e.PayloadHash,
		"prev_event_hash": e.PrevEventHash,
		"event_hash":      e.EventHash,
	}
}
