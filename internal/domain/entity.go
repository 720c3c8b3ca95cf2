package domain

import "fmt"

// EntityKind is the closed set of record kinds held by the entity store.
type EntityKind string

const (
	KindSubmission EntityKind = "submission"
	KindAuditEvent EntityKind = "audit_event"
	KindBackup     EntityKind = "backup"
)

var EntityKinds = []EntityKind{KindSubmission, KindAuditEvent, KindBackup}

func ParseEntityKind(raw string) (EntityKind, error) {
	for _, kind := range EntityKinds {
		if string(kind) == raw {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q: %w", raw, ErrInvalidArgument)
}
