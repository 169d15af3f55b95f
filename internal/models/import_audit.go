package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AuditStatusRunning = "running"
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// ImportAudit is the operational trail of one import attempt. A row is
// created when the request is accepted and finalized exactly once with a
// terminal status; it is never mutated afterward.
type ImportAudit struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Uploader      *string        `gorm:"size:128;index" json:"uploader,omitempty"`
	Filename      string         `gorm:"size:128;not null" json:"filename"`
	Checksum      *string        `gorm:"size:128" json:"checksum,omitempty"`
	SchemaVersion string         `gorm:"size:32;not null;default:'v1'" json:"schema_version"`
	ReportID      *string        `gorm:"type:uuid;index" json:"report_id,omitempty"`
	Status        string         `gorm:"size:16;not null;default:'running';index" json:"status"`
	ErrorMessage  *string        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt     time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	RawPayload    datatypes.JSON `gorm:"type:jsonb" json:"-"`
}
