package models

import (
	"time"
)

// PickHistory is the denormalized read-model behind the public historical
// picks table. It is rebuilt wholesale after each successful import, so it
// may be briefly stale relative to the source tables.
type PickHistory struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	ReportDate      time.Time `gorm:"type:date;not null;index" json:"report_date"`
	ReportWeek      int       `gorm:"not null;index" json:"report_week"`
	Ticker          string    `gorm:"size:16;not null;index" json:"ticker"`
	Exchange        string    `gorm:"size:16;not null" json:"exchange"`
	Side            string    `gorm:"size:8;not null;index" json:"side"`
	TargetChangePct float64   `gorm:"type:numeric(7,2);not null" json:"target_change_pct"`
	ReportID        string    `gorm:"type:uuid;not null" json:"report_id"`
	RebuiltAt       time.Time `gorm:"autoCreateTime" json:"-"`
}
