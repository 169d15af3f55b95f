package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"reportdesk/internal/models"
	"reportdesk/internal/repository"
)

// Page is the envelope shared by all paginated listings.
type Page struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalItems int64       `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

func NewPage(items interface{}, page, pageSize int, total int64) *Page {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return &Page{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

type ReportService interface {
	ListReports(ctx context.Context, page, pageSize int) (*Page, error)
	GetReportBySlug(ctx context.Context, slug string) (*models.Report, error)
	ListPicksHistory(ctx context.Context, filter repository.HistoryFilter) (*Page, error)
	RefreshPicksHistory(ctx context.Context) error
	Counts(ctx context.Context) (reports, picks int64, err error)
}

type reportService struct {
	reports  repository.ReportRepository
	history  repository.HistoryRepository
	cache    repository.CacheRepository
	cacheTTL time.Duration
}

func NewReportService(
	reports repository.ReportRepository,
	history repository.HistoryRepository,
	cache repository.CacheRepository,
	cacheTTL time.Duration,
) ReportService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &reportService{
		reports:  reports,
		history:  history,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (s *reportService) ListReports(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	cacheKey := fmt.Sprintf("reports:list:%d:%d", page, pageSize)
	if s.cache != nil {
		var cached Page
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	reports, total, err := s.reports.List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	result := NewPage(reports, page, pageSize, total)
	s.cacheSet(ctx, cacheKey, result)
	return result, nil
}

func (s *reportService) GetReportBySlug(ctx context.Context, slug string) (*models.Report, error) {
	cacheKey := "reports:slug:" + slug
	if s.cache != nil {
		var cached models.Report
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	report, err := s.reports.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

func (s *reportService) ListPicksHistory(ctx context.Context, filter repository.HistoryFilter) (*Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	cacheKey := fmt.Sprintf("picks:list:%s:%s:%d:%d",
		filter.Ticker, filter.Side, filter.Page, filter.PageSize)
	if s.cache != nil {
		var cached Page
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	rows, total, err := s.history.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := NewPage(rows, filter.Page, filter.PageSize, total)
	s.cacheSet(ctx, cacheKey, result)
	return result, nil
}

func (s *reportService) RefreshPicksHistory(ctx context.Context) error {
	return s.history.RebuildAll(ctx)
}

func (s *reportService) Counts(ctx context.Context) (int64, int64, error) {
	reports, err := s.reports.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	picks, err := s.history.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return reports, picks, nil
}

func (s *reportService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, value, s.cacheTTL); err != nil {
		log.Printf("Failed to cache %s: %v", key, err)
	}
}
