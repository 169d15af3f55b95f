package repository

import (
	"context"
	"errors"

	"reportdesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateChecksum marks a payload whose source checksum was already
// imported successfully under a different report_id.
var ErrDuplicateChecksum = errors.New("duplicate checksum: payload already imported under a different report_id")

type ReportRepository interface {
	// ImportReport atomically upserts the report row and all of its picks.
	// Any constraint failure rolls back the whole write set.
	ImportReport(ctx context.Context, report *models.Report, picks []models.Pick) error
	GetBySlug(ctx context.Context, slug string) (*models.Report, error)
	GetByReportID(ctx context.Context, reportID string) (*models.Report, error)
	List(ctx context.Context, page, pageSize int) ([]models.Report, int64, error)
	Count(ctx context.Context) (int64, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) ImportReport(ctx context.Context, report *models.Report, picks []models.Pick) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Duplicate-submission guard: the same checksum under a different
		// report_id means the file was already imported, not retried.
		if report.SourceChecksum != nil && *report.SourceChecksum != "" {
			var count int64
			err := tx.Model(&models.Report{}).
				Where("source_checksum = ? AND report_id <> ?", *report.SourceChecksum, report.ReportID).
				Count(&count).
				Error
			if err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateChecksum
			}
		}

		// Retrying the same report_id updates in place; a different
		// report_id on an occupied date trips the report_date unique
		// index and aborts the transaction.
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "report_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"published_at",
				"report_date",
				"slug",
				"version",
				"source_checksum",
				"title",
				"summary",
				"updated_at",
			}),
		}).Create(report).Error
		if err != nil {
			return err
		}

		for i := range picks {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "report_id"},
					{Name: "ticker"},
					{Name: "side"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"exchange",
					"target_change_pct",
					"rationale",
					"updated_at",
				}),
			}).Create(&picks[i]).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *reportRepository) GetBySlug(ctx context.Context, slug string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Preload("Picks").
		Where("slug = ?", slug).
		First(&report).
		Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) GetByReportID(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Preload("Picks").
		Where("report_id = ?", reportID).
		First(&report).
		Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) List(ctx context.Context, page, pageSize int) ([]models.Report, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []models.Report
	err := r.db.WithContext(ctx).
		Order("report_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reports).
		Error
	return reports, total, err
}

func (r *reportRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Count(&count).
		Error
	return count, err
}
