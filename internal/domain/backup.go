package domain

import "time"

type BackupSnapshot struct {
	ID            string
	SourceID      string
	SourceKind    EntityKind
	CapturedAt    time.Time
	Reason        string
	CapturedBy    string
	Payload       map[string]any
	SourceCreated time.Time
	ImmutableHash string
}

type BackupFilter struct {
	SourceID       string
	CapturedBefore *time.Time
	Limit          int
}

// Document renders the persisted backup artifact shape.
func (b BackupSnapshot) Document() map[string]any {
	doc := map[string]any{
		"id":               b.ID,
		"original_id":      b.SourceID,
		"source_kind":      string(b.SourceKind),
		"backup_timestamp": b.CapturedAt.UTC().Format(time.RFC3339Nano),
		"backup_reason":    b.Reason,
		"backup_by":        b.CapturedBy,
		"data":             b.Payload,
	}
	if b.ImmutableHash != "" {
		doc["immutable_hash"] = b.ImmutableHash
	}
	return doc
}
