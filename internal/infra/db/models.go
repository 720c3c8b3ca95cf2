package db

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	BuildingID string `gorm:"not null"`
	FormType   string `gorm:"not null"`
	TaxYear    int    `gorm:"not null"`
	Status     string `gorm:"index;not null"`
	// json rather than jsonb so field order survives.
	FormData         datatypes.JSON `gorm:"type:json;not null"`
	XMLPayload       *string
	ConfidenceScore  *int
	ValidationErrors datatypes.JSON `gorm:"type:jsonb;not null"`
	TransferTicket   *string
	Mode             string `gorm:"column:submission_mode;not null"`
	LegalForm        string
	Owner            string
	ClaimToken       *string
	ClaimedAt        *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (SubmissionModel) TableName() string { return "submissions" }

type AuditEventModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	EntityID      string         `gorm:"index;not null"`
	Seq           int64          `gorm:"not null"`
	Action        string         `gorm:"not null"`
	Actor         string         `gorm:"not null"`
	DetailJSON    datatypes.JSON `gorm:"column:detail;type:jsonb;not null"`
	MetadataJSON  datatypes.JSON `gorm:"column:metadata;type:jsonb;not null"`
	PayloadHash   string         `gorm:"not null"`
	PrevEventHash string         `gorm:"not null"`
	EventHash     string         `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

type BackupModel struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	SourceID        string         `gorm:"column:original_id;index;not null"`
	SourceKind      string         `gorm:"not null"`
	CapturedAt      time.Time      `gorm:"column:backup_timestamp;not null"`
	Reason          string         `gorm:"column:backup_reason;not null"`
	CapturedBy      string         `gorm:"column:backup_by;not null"`
	PayloadJSON     datatypes.JSON `gorm:"column:data;type:jsonb;not null"`
	SourceCreatedAt time.Time      `gorm:"not null"`
	ImmutableHash   string         `gorm:"not null"`
}

func (BackupModel) TableName() string { return "backups" }
