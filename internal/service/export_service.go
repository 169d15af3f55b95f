package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"reportdesk/internal/models"
	"reportdesk/internal/repository"
	"reportdesk/internal/utils"
)

type ExportService interface {
	// ExportPicksHistory writes the whole read-model to a CSV or Excel
	// file and returns its path.
	ExportPicksHistory(ctx context.Context, format string) (string, error)
}

type exportService struct {
	history   repository.HistoryRepository
	outputDir string
}

func NewExportService(history repository.HistoryRepository, outputDir string) ExportService {
	if outputDir == "" {
		outputDir = "./data/exports"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Printf("Failed to create export directory: %v", err)
	}
	return &exportService{
		history:   history,
		outputDir: outputDir,
	}
}

func (s *exportService) ExportPicksHistory(ctx context.Context, format string) (string, error) {
	rows, _, err := s.history.List(ctx, repository.HistoryFilter{Page: 1, PageSize: 200})
	if err != nil {
		return "", fmt.Errorf("failed to load picks history: %w", err)
	}
	// Export everything, not just the first page.
	all := rows
	page := 2
	for len(rows) == 200 {
		rows, _, err = s.history.List(ctx, repository.HistoryFilter{Page: page, PageSize: 200})
		if err != nil {
			return "", fmt.Errorf("failed to load picks history: %w", err)
		}
		all = append(all, rows...)
		page++
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case "excel", "xlsx":
		path := filepath.Join(s.outputDir, fmt.Sprintf("picks_history_%s.xlsx", timestamp))
		if err := utils.CreatePicksHistoryWorkbook(path, all); err != nil {
			return "", fmt.Errorf("failed to write workbook: %w", err)
		}
		return path, nil
	case "csv", "":
		path := filepath.Join(s.outputDir, fmt.Sprintf("picks_history_%s.csv", timestamp))
		if err := saveHistoryCSV(path, all); err != nil {
			return "", fmt.Errorf("failed to write CSV: %w", err)
		}
		return path, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

func saveHistoryCSV(path string, rows []models.PickHistory) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"report_date", "report_week", "ticker", "exchange", "side", "target_change_pct", "report_id"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.ReportDate.Format("2006-01-02"),
			strconv.Itoa(row.ReportWeek),
			row.Ticker,
			row.Exchange,
			row.Side,
			strconv.FormatFloat(row.TargetChangePct, 'f', 2, 64),
			row.ReportID,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
