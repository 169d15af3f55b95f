package models

import (
	"time"
)

// Report is one weekly publication of stock picks. At most one report may
// exist per UTC calendar date; the slug is derived from that date.
type Report struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ReportID       string    `gorm:"type:uuid;not null;uniqueIndex" json:"report_id"`
	ReportDate     time.Time `gorm:"type:date;not null;uniqueIndex" json:"report_date"`
	Slug           string    `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	PublishedAt    time.Time `gorm:"not null" json:"published_at"`
	Version        string    `gorm:"size:32;not null;default:'v1'" json:"version"`
	SourceChecksum *string   `gorm:"size:128" json:"source_checksum,omitempty"`
	Title          string    `gorm:"size:255;not null" json:"title"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	Picks          []Pick    `gorm:"foreignKey:ReportID;references:ReportID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"picks,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Pick is one recommendation inside a Report. A report cannot list the same
// ticker on the same side twice.
type Pick struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	PickID          string    `gorm:"type:uuid;not null;uniqueIndex" json:"pick_id"`
	ReportID        string    `gorm:"type:uuid;not null;uniqueIndex:uidx_picks_report_ticker_side" json:"report_id"`
	Ticker          string    `gorm:"size:16;not null;uniqueIndex:uidx_picks_report_ticker_side" json:"ticker"`
	Exchange        string    `gorm:"size:16;not null" json:"exchange"`
	Side            string    `gorm:"size:8;not null;uniqueIndex:uidx_picks_report_ticker_side;check:side IN ('long','short')" json:"side"`
	TargetChangePct float64   `gorm:"type:numeric(7,2);not null;check:target_change_pct BETWEEN -1000 AND 1000" json:"target_change_pct"`
	Rationale       string    `gorm:"type:text;not null" json:"rationale"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	SideLong  = "long"
	SideShort = "short"
)

// SlugSuffix is appended to the report date to form the permalink fragment.
const SlugSuffix = "-us-market-report"

// SlugForDate derives the unique report slug from a publication timestamp.
// The derivation is pure: the same published_at always yields the same slug.
func SlugForDate(publishedAt time.Time) string {
	return publishedAt.UTC().Format("2006-01-02") + SlugSuffix
}

// DateOf truncates a publication timestamp to its UTC calendar date.
func DateOf(publishedAt time.Time) time.Time {
	y, m, d := publishedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
