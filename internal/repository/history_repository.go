package repository

import (
	"context"

	"reportdesk/internal/models"

	"gorm.io/gorm"
)

// HistoryFilter narrows the public picks-history listing.
type HistoryFilter struct {
	Ticker   string
	Side     string
	Page     int
	PageSize int
}

type HistoryRepository interface {
	// RebuildAll replaces the whole projection in one transaction. The
	// week number is computed in Go so the rebuild stays portable.
	RebuildAll(ctx context.Context) error
	List(ctx context.Context, filter HistoryFilter) ([]models.PickHistory, int64, error)
	Count(ctx context.Context) (int64, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) RebuildAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reports []models.Report
		if err := tx.Preload("Picks").Find(&reports).Error; err != nil {
			return err
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.PickHistory{}).Error; err != nil {
			return err
		}

		var rows []models.PickHistory
		for _, report := range reports {
			_, week := report.ReportDate.ISOWeek()
			for _, pick := range report.Picks {
				rows = append(rows, models.PickHistory{
					ReportDate:      report.ReportDate,
					ReportWeek:      week,
					Ticker:          pick.Ticker,
					Exchange:        pick.Exchange,
					Side:            pick.Side,
					TargetChangePct: pick.TargetChangePct,
					ReportID:        report.ReportID,
				})
			}
		}

		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

func (r *historyRepository) List(ctx context.Context, filter HistoryFilter) ([]models.PickHistory, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).Model(&models.PickHistory{})
	if filter.Ticker != "" {
		query = query.Where("ticker = ?", filter.Ticker)
	}
	if filter.Side != "" {
		query = query.Where("side = ?", filter.Side)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.PickHistory
	err := query.
		Order("report_date DESC, ticker ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).
		Error
	return rows, total, err
}

func (r *historyRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PickHistory{}).
		Count(&count).
		Error
	return count, err
}
