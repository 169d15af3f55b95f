package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportdesk/internal/models"
	"reportdesk/internal/repository"
	"reportdesk/internal/validation"
)

// maxStoredPayloadBytes caps the raw payload copy kept on the audit row.
const maxStoredPayloadBytes = 5 << 20

// ImportRequest carries one upload through the pipeline.
type ImportRequest struct {
	Filename string
	Raw      []byte
	Uploader *string
	// MaxBytes is the size cap for this entry path (JSON body or
	// multipart upload); zero means the stored-payload cap applies.
	MaxBytes int
}

// ImportResult is the success shape returned to the HTTP facade.
type ImportResult struct {
	ImportID   uint   `json:"import_id"`
	Status     string `json:"status"`
	ReportID   string `json:"report_id"`
	ReportSlug string `json:"report_slug"`
}

type ImportService interface {
	// Import runs the whole pipeline for one upload: audit start,
	// validation, the atomic report+picks transaction, audit finish and
	// the best-effort read-model refresh. Exactly one audit row reaches
	// a terminal status per call, wherever the attempt stops.
	Import(ctx context.Context, req ImportRequest) (*ImportResult, *ImportError)
	ListAudits(ctx context.Context, filter repository.AuditFilter) ([]models.ImportAudit, int64, error)
}

type importService struct {
	reports repository.ReportRepository
	audits  repository.AuditRepository
	history repository.HistoryRepository
	cache   repository.CacheRepository
}

func NewImportService(
	reports repository.ReportRepository,
	audits repository.AuditRepository,
	history repository.HistoryRepository,
	cache repository.CacheRepository,
) ImportService {
	return &importService{
		reports: reports,
		audits:  audits,
		history: history,
		cache:   cache,
	}
}

func (s *importService) Import(ctx context.Context, req ImportRequest) (*ImportResult, *ImportError) {
	maxBytes := req.MaxBytes
	if maxBytes <= 0 {
		maxBytes = maxStoredPayloadBytes
	}

	audit := &models.ImportAudit{
		Uploader:  req.Uploader,
		Filename:  req.Filename,
		Status:    models.AuditStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	attachPayloadMeta(audit, req.Raw)
	if err := s.audits.Create(ctx, audit); err != nil {
		// Without an audit row there is no attempt to finalize; the
		// database is unreachable and the whole import is off.
		log.Printf("Failed to create audit record: %v", err)
		return nil, &ImportError{Code: CodeServerError, Message: "failed to record import attempt"}
	}

	validated, verr := validation.ValidateImportRequest(req.Filename, req.Raw, maxBytes)
	if verr != nil {
		s.finalizeFailed(ctx, audit.ID, verr.Error(), nil)
		return nil, fromValidation(verr)
	}

	// Replace the lenient pre-parse metadata with the validated,
	// canonicalized values.
	audit.SchemaVersion = validated.Version
	audit.ReportID = &validated.ReportID
	if validated.SourceChecksum != "" {
		checksum := validated.SourceChecksum
		audit.Checksum = &checksum
	}
	if err := s.audits.Update(ctx, audit); err != nil {
		log.Printf("Failed to enrich audit record %d: %v", audit.ID, err)
	}

	report, picks := buildRows(validated)
	if err := s.reports.ImportReport(ctx, report, picks); err != nil {
		ierr := classifyImportError(err)
		s.finalizeFailed(ctx, audit.ID, ierr.Message, &validated.ReportID)
		return nil, ierr
	}

	if err := s.audits.Finalize(ctx, audit.ID, models.AuditStatusSuccess, nil, &validated.ReportID); err != nil {
		log.Printf("Failed to finalize audit record %d: %v", audit.ID, err)
	}

	// The read-model is allowed to be briefly stale, so refresh failures
	// are logged and swallowed.
	if err := s.history.RebuildAll(ctx); err != nil {
		log.Printf("Picks-history rebuild failed after import %d: %v", audit.ID, err)
	}
	s.invalidateReadCache(ctx)

	return &ImportResult{
		ImportID:   audit.ID,
		Status:     models.AuditStatusSuccess,
		ReportID:   report.ReportID,
		ReportSlug: report.Slug,
	}, nil
}

func (s *importService) ListAudits(ctx context.Context, filter repository.AuditFilter) ([]models.ImportAudit, int64, error) {
	return s.audits.List(ctx, filter)
}

func (s *importService) finalizeFailed(ctx context.Context, auditID uint, message string, reportID *string) {
	if err := s.audits.Finalize(ctx, auditID, models.AuditStatusFailed, &message, reportID); err != nil {
		log.Printf("Failed to finalize audit record %d: %v", auditID, err)
	}
}

func (s *importService) invalidateReadCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, pattern := range []string{"reports:*", "picks:*"} {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			log.Printf("Cache invalidation failed for %s: %v", pattern, err)
		}
	}
}

// attachPayloadMeta copies the uploaded body and whatever identifying
// fields it carries onto a fresh audit row, before any validation runs,
// so rejected attempts stay diagnosable. The raw_payload column is
// jsonb: bodies that are not well-formed JSON (or exceed the stored
// cap) are skipped rather than truncated.
func attachPayloadMeta(audit *models.ImportAudit, raw []byte) {
	if len(raw) == 0 || len(raw) > maxStoredPayloadBytes || !json.Valid(raw) {
		return
	}
	audit.RawPayload = raw

	var meta struct {
		ReportID       string `json:"report_id"`
		Version        string `json:"version"`
		SourceChecksum string `json:"source_checksum"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return
	}
	if meta.Version != "" {
		audit.SchemaVersion = meta.Version
	}
	// report_id is a uuid column, so only well-formed identifiers are kept.
	if id, err := uuid.Parse(meta.ReportID); err == nil {
		reportID := id.String()
		audit.ReportID = &reportID
	}
	if meta.SourceChecksum != "" {
		checksum := meta.SourceChecksum
		audit.Checksum = &checksum
	}
}

func buildRows(validated *validation.ValidatedPayload) (*models.Report, []models.Pick) {
	report := &models.Report{
		ReportID:    validated.ReportID,
		ReportDate:  models.DateOf(validated.PublishedTime),
		Slug:        models.SlugForDate(validated.PublishedTime),
		PublishedAt: validated.PublishedTime,
		Version:     validated.Version,
		Title:       validated.Title,
		Summary:     validated.Summary,
	}
	if validated.SourceChecksum != "" {
		checksum := validated.SourceChecksum
		report.SourceChecksum = &checksum
	}

	picks := make([]models.Pick, 0, len(validated.Picks))
	for _, p := range validated.Picks {
		picks = append(picks, models.Pick{
			PickID:          p.PickID,
			ReportID:        validated.ReportID,
			Ticker:          strings.ToUpper(p.Ticker),
			Exchange:        p.Exchange,
			Side:            p.Side,
			TargetChangePct: p.TargetChangePct,
			Rationale:       p.Rationale,
		})
	}
	return report, picks
}
