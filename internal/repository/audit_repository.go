package repository

import (
	"context"
	"time"

	"reportdesk/internal/models"

	"gorm.io/gorm"
)

// AuditFilter narrows the admin audit listing.
type AuditFilter struct {
	Status   string
	Uploader string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

type AuditRepository interface {
	Create(ctx context.Context, audit *models.ImportAudit) error
	// Finalize writes the terminal status exactly once; rows already
	// finalized are left untouched.
	Finalize(ctx context.Context, id uint, status string, errorMessage *string, reportID *string) error
	Update(ctx context.Context, audit *models.ImportAudit) error
	GetByID(ctx context.Context, id uint) (*models.ImportAudit, error)
	List(ctx context.Context, filter AuditFilter) ([]models.ImportAudit, int64, error)
	Count(ctx context.Context) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, audit *models.ImportAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *auditRepository) Finalize(ctx context.Context, id uint, status string, errorMessage *string, reportID *string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	if reportID != nil {
		updates["report_id"] = *reportID
	}
	return r.db.WithContext(ctx).
		Model(&models.ImportAudit{}).
		Where("id = ? AND status = ?", id, models.AuditStatusRunning).
		Updates(updates).
		Error
}

func (r *auditRepository) Update(ctx context.Context, audit *models.ImportAudit) error {
	return r.db.WithContext(ctx).Save(audit).Error
}

func (r *auditRepository) GetByID(ctx context.Context, id uint) (*models.ImportAudit, error) {
	var audit models.ImportAudit
	err := r.db.WithContext(ctx).First(&audit, id).Error
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]models.ImportAudit, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&models.ImportAudit{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Uploader != "" {
		query = query.Where("uploader = ?", filter.Uploader)
	}
	if !filter.From.IsZero() {
		query = query.Where("started_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("started_at <= ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var audits []models.ImportAudit
	err := query.
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&audits).
		Error
	return audits, total, err
}

func (r *auditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ImportAudit{}).
		Count(&count).
		Error
	return count, err
}
