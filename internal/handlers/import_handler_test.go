package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reportdesk/internal/middleware"
	"reportdesk/internal/models"
	"reportdesk/internal/repository"
	"reportdesk/internal/service"
)

const (
	testSecret = "test-secret"
	reportA    = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	reportB    = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

func newTestRouter(t *testing.T, maxUploadBytes int) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	importService := service.NewImportService(reports, audits, history, nil)
	reportService := service.NewReportService(reports, history, nil, time.Minute)

	importHandler := NewImportHandler(importService, 5<<20, maxUploadBytes)
	reportHandler := NewReportHandler(reportService)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/reports", reportHandler.ListReports)
	api.GET("/reports/:slug", reportHandler.GetReport)
	api.GET("/picks", reportHandler.ListPicks)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin([]byte(testSecret)))
	admin.POST("/imports", importHandler.CreateImport)
	admin.GET("/imports", importHandler.ListImports)

	return r, db
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	claims := middleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func reportJSON(t *testing.T, reportID, date string) []byte {
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
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func multipartBody(t *testing.T, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postMultipart(t *testing.T, r *gin.Engine, token, filename string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, payload)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateImportMultipartSuccess(t *testing.T) {
	r, db := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	w := postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result service.ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, reportA, result.ReportID)
	assert.Equal(t, "2025-11-02-us-market-report", result.ReportSlug)

	// Uploader identity lands on the audit row.
	var audit models.ImportAudit
	require.NoError(t, db.Order("id DESC").First(&audit).Error)
	require.NotNil(t, audit.Uploader)
	assert.Equal(t, "alice", *audit.Uploader)
}

func TestCreateImportIdempotentRepost(t *testing.T) {
	r, db := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)
	payload := reportJSON(t, reportA, "2025-11-02")

	w := postMultipart(t, r, token, "2025-11-02report.json", payload)
	require.Equal(t, http.StatusCreated, w.Code)
	w = postMultipart(t, r, token, "2025-11-02report.json", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var pickCount int64
	require.NoError(t, db.Model(&models.Pick{}).Count(&pickCount).Error)
	assert.Equal(t, int64(1), pickCount)
}

func TestCreateImportDateConflict(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	w := postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportB, "2025-11-02"))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["code"])
	assert.NotEmpty(t, body["message"])
}

func TestCreateImportJSONBody(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	body, err := json.Marshal(map[string]interface{}{
		"filename": "2025-11-02report.json",
		"payload":  json.RawMessage(reportJSON(t, reportA, "2025-11-02")),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/imports", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateImportBadFilename(t *testing.T) {
	r, db := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	w := postMultipart(t, r, token, "report.json", reportJSON(t, reportA, "2025-11-02"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_filename", body["code"])

	// The failed attempt is still audited.
	var auditCount int64
	require.NoError(t, db.Model(&models.ImportAudit{}).Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestCreateImportBadEnum(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(reportJSON(t, reportA, "2025-11-02"), &payload))
	payload["picks"].([]interface{})[0].(map[string]interface{})["side"] = "hold"
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	w := postMultipart(t, r, token, "2025-11-02report.json", raw)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestCreateImportOversizeUpload(t *testing.T) {
	r, _ := newTestRouter(t, 256)
	token := adminToken(t, middleware.RoleAdmin)

	w := postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestCreateImportRequiresAdmin(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)

	w := postMultipart(t, r, "", "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postMultipart(t, r, adminToken(t, "viewer"), "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListImports(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	postMultipart(t, r, token, "badname.json", reportJSON(t, reportB, "2025-11-09"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/imports?status=failed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Items      []models.ImportAudit `json:"items"`
		Page       int                  `json:"page"`
		PageSize   int                  `json:"page_size"`
		TotalItems int64                `json:"total_items"`
		TotalPages int                  `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.TotalItems)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "badname.json", page.Items[0].Filename)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
}

func TestPublicReadEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, 2<<20)
	token := adminToken(t, middleware.RoleAdmin)

	w := postMultipart(t, r, token, "2025-11-02report.json", reportJSON(t, reportA, "2025-11-02"))
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Items []models.Report `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2025-11-02-us-market-report", page.Items[0].Slug)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/2025-11-02-us-market-report", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, reportA, report.ReportID)
	assert.Len(t, report.Picks, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/no-such-slug", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/picks?ticker=AAPL", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var picks struct {
		Items []models.PickHistory `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &picks))
	require.Len(t, picks.Items, 1)
	assert.Equal(t, "AAPL", picks.Items[0].Ticker)
}
