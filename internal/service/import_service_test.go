package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reportdesk/internal/models"
	"reportdesk/internal/repository"
	"reportdesk/internal/validation"
)

const (
	reportA = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	reportB = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

type testEnv struct {
	db      *gorm.DB
	imports ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Report{},
		&models.Pick{},
		&models.ImportAudit{},
		&models.PickHistory{},
	))

	reports := repository.NewReportRepository(db)
	audits := repository.NewAuditRepository(db)
	history := repository.NewHistoryRepository(db)

	return &testEnv{
		db:      db,
		imports: NewImportService(reports, audits, history, nil),
	}
}

func payloadFor(t *testing.T, reportID, date string, mutate func(map[string]interface{})) []byte {
	t.Helper()

	payload := map[string]interface{}{
		"report_id":    reportID,
		"published_at": date + "T12:00:00Z",
		"title":        "Weekly US Market Report",
		"summary":      "Picks for the week of " + date,
		"picks": []interface{}{
			map[string]interface{}{
				"pick_id":           "11111111-1111-4111-8111-111111111111",
				"ticker":            "AAPL",
				"exchange":          "NASDAQ",
				"side":              "long",
				"target_change_pct": 12.5,
				"rationale":         "Earnings momentum.",
			},
		},
	}
	if mutate != nil {
		mutate(payload)
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) auditCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.ImportAudit{}).Count(&count).Error)
	return count
}

func (e *testEnv) lastAudit(t *testing.T) *models.ImportAudit {
	t.Helper()
	var audit models.ImportAudit
	require.NoError(t, e.db.Order("id DESC").First(&audit).Error)
	return &audit
}

func TestImportSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploader := "alice"
	result, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", nil),
		Uploader: &uploader,
	})
	require.Nil(t, ierr)

	assert.Equal(t, models.AuditStatusSuccess, result.Status)
	assert.Equal(t, reportA, result.ReportID)
	assert.Equal(t, "2025-11-02-us-market-report", result.ReportSlug)
	assert.NotZero(t, result.ImportID)

	audit := env.lastAudit(t)
	assert.Equal(t, models.AuditStatusSuccess, audit.Status)
	require.NotNil(t, audit.Uploader)
	assert.Equal(t, "alice", *audit.Uploader)
	require.NotNil(t, audit.ReportID)
	assert.Equal(t, reportA, *audit.ReportID)
	assert.NotNil(t, audit.FinishedAt)
	assert.NotEmpty(t, audit.RawPayload)

	// Read-model was rebuilt as part of the import.
	var historyCount int64
	require.NoError(t, env.db.Model(&models.PickHistory{}).Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)
}

func TestImportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	raw := payloadFor(t, reportA, "2025-11-02", nil)

	first, ierr := env.imports.Import(ctx, ImportRequest{Filename: "2025-11-02report.json", Raw: raw})
	require.Nil(t, ierr)
	second, ierr := env.imports.Import(ctx, ImportRequest{Filename: "2025-11-02report.json", Raw: raw})
	require.Nil(t, ierr)

	assert.Equal(t, first.ReportSlug, second.ReportSlug)

	var reportCount, pickCount int64
	require.NoError(t, env.db.Model(&models.Report{}).Count(&reportCount).Error)
	require.NoError(t, env.db.Model(&models.Pick{}).Count(&pickCount).Error)
	assert.Equal(t, int64(1), reportCount)
	assert.Equal(t, int64(1), pickCount)

	// One audit row per attempt, both terminal.
	assert.Equal(t, int64(2), env.auditCount(t))
}

func TestImportRejectsSecondReportOnSameDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", nil),
	})
	require.Nil(t, ierr)

	_, ierr = env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportB, "2025-11-02", nil),
	})
	require.NotNil(t, ierr)
	assert.Equal(t, CodeConflict, ierr.Code)

	audit := env.lastAudit(t)
	assert.Equal(t, models.AuditStatusFailed, audit.Status)
	assert.NotNil(t, audit.ErrorMessage)
}

func TestImportValidationFailureStillAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "badname.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", nil),
	})
	require.NotNil(t, ierr)
	assert.Equal(t, validation.CodeInvalidFilename, ierr.Code)

	assert.Equal(t, int64(1), env.auditCount(t))
	audit := env.lastAudit(t)
	assert.Equal(t, models.AuditStatusFailed, audit.Status)
	require.NotNil(t, audit.ErrorMessage)
	assert.Contains(t, *audit.ErrorMessage, "invalid_filename")
	assert.NotNil(t, audit.FinishedAt)
	assert.NotEmpty(t, audit.RawPayload, "rejected body is kept for postmortems")
}

func TestImportSchemaRejectKeepsPayloadOnAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	raw := payloadFor(t, reportA, "2025-11-02", func(payload map[string]interface{}) {
		payload["version"] = "v2"
		payload["source_checksum"] = "sha256:cafebabe"
		payload["picks"].([]interface{})[0].(map[string]interface{})["side"] = "hold"
	})
	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      raw,
	})
	require.NotNil(t, ierr)
	assert.Equal(t, validation.CodeUnprocessableEntity, ierr.Code)

	// The body parsed as JSON even though the schema check failed, so the
	// audit row must carry everything an operator needs to replay it.
	audit := env.lastAudit(t)
	assert.Equal(t, models.AuditStatusFailed, audit.Status)
	assert.Equal(t, []byte(raw), []byte(audit.RawPayload))
	assert.Equal(t, "v2", audit.SchemaVersion)
	require.NotNil(t, audit.Checksum)
	assert.Equal(t, "sha256:cafebabe", *audit.Checksum)
	require.NotNil(t, audit.ReportID)
	assert.Equal(t, reportA, *audit.ReportID)
}

func TestImportInvalidJSONStillAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      []byte("{broken"),
	})
	require.NotNil(t, ierr)
	assert.Equal(t, validation.CodeInvalidJSON, ierr.Code)
	assert.Equal(t, int64(1), env.auditCount(t))

	audit := env.lastAudit(t)
	assert.Equal(t, models.AuditStatusFailed, audit.Status)
	// The raw_payload column is jsonb, so a malformed body cannot be kept.
	assert.Empty(t, audit.RawPayload)
}

func TestImportDuplicateChecksumRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	withChecksum := func(payload map[string]interface{}) {
		payload["source_checksum"] = "sha256:deadbeef"
	}

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", withChecksum),
	})
	require.Nil(t, ierr)

	// Same file re-submitted under a different report_id on another date.
	_, ierr = env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-09report.json",
		Raw:      payloadFor(t, reportB, "2025-11-09", withChecksum),
	})
	require.NotNil(t, ierr)
	assert.Equal(t, CodeConflict, ierr.Code)

	// Retrying the original report_id with its own checksum still works.
	_, ierr = env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", withChecksum),
	})
	assert.Nil(t, ierr)
}

func TestImportSlugDeterminism(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw: payloadFor(t, reportA, "2025-11-02", func(payload map[string]interface{}) {
			payload["published_at"] = "2025-11-02T23:59:59Z"
		}),
	})
	require.Nil(t, ierr)
	assert.Equal(t, "2025-11-02-us-market-report", result.ReportSlug)
}

func TestImportOversizePayloadAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", nil),
		MaxBytes: 16,
	})
	require.NotNil(t, ierr)
	assert.Equal(t, validation.CodePayloadTooLarge, ierr.Code)
	assert.Equal(t, int64(1), env.auditCount(t))
	assert.Equal(t, models.AuditStatusFailed, env.lastAudit(t).Status)
}

func TestListAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ierr := env.imports.Import(ctx, ImportRequest{
		Filename: "2025-11-02report.json",
		Raw:      payloadFor(t, reportA, "2025-11-02", nil),
	})
	require.Nil(t, ierr)
	_, ierr = env.imports.Import(ctx, ImportRequest{
		Filename: "badname.json",
		Raw:      []byte("{}"),
	})
	require.NotNil(t, ierr)

	items, total, err := env.imports.ListAudits(ctx, repository.AuditFilter{Status: models.AuditStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "badname.json", items[0].Filename)
}
