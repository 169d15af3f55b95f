package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Error codes surfaced to the HTTP facade.
const (
	CodeInvalidFilename     = "invalid_filename"
	CodeInvalidJSON         = "invalid_json"
	CodePayloadTooLarge     = "payload_too_large"
	CodeUnprocessableEntity = "unprocessable_entity"
)

// Error is a structured validation failure with enough detail for the
// admin UI (field path + message).
type Error struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Uploaded reports must be named after their publication date.
var filenamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}report\.json$`)

// PickPayload is one element of the picks array in the wire format.
type PickPayload struct {
	PickID          string  `json:"pick_id" validate:"required,uuid"`
	Ticker          string  `json:"ticker" validate:"required,max=16"`
	Exchange        string  `json:"exchange" validate:"required,max=16"`
	Side            string  `json:"side" validate:"required,oneof=long short"`
	TargetChangePct float64 `json:"target_change_pct" validate:"gte=-1000,lte=1000"`
	Rationale       string  `json:"rationale" validate:"required"`
}

// ReportPayload is the versioned wire format of an uploaded report.
// The shape must remain backward-readable across schema versions.
type ReportPayload struct {
	ReportID       string        `json:"report_id" validate:"required,uuid"`
	PublishedAt    string        `json:"published_at" validate:"required"`
	Title          string        `json:"title" validate:"required,max=255"`
	Summary        string        `json:"summary" validate:"required"`
	Version        string        `json:"version"`
	SourceChecksum string        `json:"source_checksum"`
	Picks          []PickPayload `json:"picks" validate:"required,min=1,dive"`
}

// ValidatedPayload is a structurally checked payload with derived fields
// resolved, ready for the importer.
type ValidatedPayload struct {
	ReportPayload
	PublishedTime time.Time
	Raw           []byte
}

var validate = validator.New()

// ValidateImportRequest checks the filename convention and the structural
// shape of the raw payload. It is pure: no side effects, no partial results.
func ValidateImportRequest(filename string, raw []byte, maxBytes int) (*ValidatedPayload, *Error) {
	if !filenamePattern.MatchString(filename) {
		return nil, &Error{
			Code:    CodeInvalidFilename,
			Field:   "filename",
			Message: fmt.Sprintf("filename %q does not match YYYY-MM-DDreport.json", filename),
		}
	}

	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, &Error{
			Code:    CodePayloadTooLarge,
			Message: fmt.Sprintf("payload is %d bytes, limit is %d", len(raw), maxBytes),
		}
	}

	var payload ReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{Code: CodeInvalidJSON, Message: "payload is not valid JSON: " + err.Error()}
	}

	if err := validate.Struct(&payload); err != nil {
		return nil, structError(err)
	}

	publishedAt, err := time.Parse(time.RFC3339, payload.PublishedAt)
	if err != nil {
		return nil, &Error{
			Code:    CodeUnprocessableEntity,
			Field:   "published_at",
			Message: "must be an RFC3339 datetime",
		}
	}

	if payload.Version == "" {
		payload.Version = "v1"
	}

	// Canonicalize identifiers so uppercase and lowercase submissions of
	// the same UUID hit the same rows. Parse cannot fail here, the uuid
	// struct tags already passed.
	if id, err := uuid.Parse(payload.ReportID); err == nil {
		payload.ReportID = id.String()
	}
	for i := range payload.Picks {
		if id, err := uuid.Parse(payload.Picks[i].PickID); err == nil {
			payload.Picks[i].PickID = id.String()
		}
	}

	// Intra-payload duplicates are a structural problem and must never
	// reach the database as a constraint violation.
	seenIDs := make(map[string]struct{}, len(payload.Picks))
	seenSides := make(map[string]struct{}, len(payload.Picks))
	for i, pick := range payload.Picks {
		if _, ok := seenIDs[pick.PickID]; ok {
			return nil, &Error{
				Code:    CodeUnprocessableEntity,
				Field:   fmt.Sprintf("picks[%d].pick_id", i),
				Message: fmt.Sprintf("duplicate pick_id %s within payload", pick.PickID),
			}
		}
		seenIDs[pick.PickID] = struct{}{}

		key := strings.ToUpper(pick.Ticker) + "|" + pick.Side
		if _, ok := seenSides[key]; ok {
			return nil, &Error{
				Code:    CodeUnprocessableEntity,
				Field:   fmt.Sprintf("picks[%d]", i),
				Message: fmt.Sprintf("duplicate pick %s/%s within payload", pick.Ticker, pick.Side),
			}
		}
		seenSides[key] = struct{}{}
	}

	return &ValidatedPayload{
		ReportPayload: payload,
		PublishedTime: publishedAt,
		Raw:           raw,
	}, nil
}

func structError(err error) *Error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return &Error{
			Code:    CodeUnprocessableEntity,
			Field:   fieldPath(fe.Namespace()),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &Error{Code: CodeUnprocessableEntity, Message: err.Error()}
}

// fieldPath strips the Go struct prefix from a validator namespace so the
// admin UI sees wire-format paths like picks[0].side.
func fieldPath(namespace string) string {
	path := namespace
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}
	path = strings.ReplaceAll(path, "Picks[", "picks[")
	replacer := strings.NewReplacer(
		"ReportID", "report_id",
		"PublishedAt", "published_at",
		"Title", "title",
		"Summary", "summary",
		"PickID", "pick_id",
		"Ticker", "ticker",
		"Exchange", "exchange",
		"Side", "side",
		"TargetChangePct", "target_change_pct",
		"Rationale", "rationale",
	)
	return replacer.Replace(path)
}
