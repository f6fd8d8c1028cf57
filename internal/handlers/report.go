package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/internal/storage"
	"github.com/orstracker/apiserver/internal/store"
	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 32 << 20
	maxAttachmentFiles = 20
	maxAttachmentBytes = 10 << 20

	formFieldVehicle        = "vehicle"
	formFieldRoadScore      = "roadWorthinessScore"
	formFieldTrafficScore   = "overallTrafficScore"
	formFieldActionRequired = "actionRequired"
	formFieldDocuments      = "documents"
	formFieldAttachments    = "attachments"
)

// ReportHandler provides HTTP handlers for ORS reports.
type ReportHandler struct {
	reportService *services.ReportService
	validate      *validator.Validate
	log           *zap.SugaredLogger
}

// NewReportHandler constructs a handler with the provided service.
func NewReportHandler(reportService *services.ReportService, log *zap.SugaredLogger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		validate:      validator.New(),
		log:           log,
	}
}

// ReportRouter registers report routes on the given router. The optional
// auth middleware attributes created reports when a token is present.
func ReportRouter(r chi.Router, handler *ReportHandler, optionalAuth func(http.Handler) http.Handler) {
	if optionalAuth != nil {
		r.With(optionalAuth).Post("/create-ors-report", handler.CreateReport)
	} else {
		r.Post("/create-ors-report", handler.CreateReport)
	}
	r.Get("/ors-reports", handler.ListReports)
	r.Route("/ors-reports/{reportID}", func(r chi.Router) {
		r.Get("/", handler.GetReport)
		r.Put("/", handler.UpdateReport)
		r.Delete("/", handler.DeleteReport)
	})
}

// reportCreateForm is the validated multipart payload of report creation.
type reportCreateForm struct {
	Vehicle             string               `validate:"required,min=2,max=100"`
	RoadWorthinessScore string               `validate:"required"`
	OverallTrafficScore string               `validate:"required"`
	ActionRequired      string               `validate:"required,max=1500"`
	Documents           []types.DocumentItem `validate:"dive"`
}

// reportUpdateForm carries optional replacements; empty fields are skipped.
type reportUpdateForm struct {
	Vehicle        string               `validate:"omitempty,min=2,max=100"`
	ActionRequired string               `validate:"omitempty,max=1500"`
	Documents      []types.DocumentItem `validate:"dive"`
}

// CreateReport creates a report from a multipart form: text fields,
// document metadata as a JSON array and up to 20 attachment files that
// are distributed across the documents in order.
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	form := reportCreateForm{
		Vehicle:             strings.TrimSpace(r.FormValue(formFieldVehicle)),
		RoadWorthinessScore: strings.TrimSpace(r.FormValue(formFieldRoadScore)),
		OverallTrafficScore: strings.TrimSpace(r.FormValue(formFieldTrafficScore)),
		ActionRequired:      strings.TrimSpace(r.FormValue(formFieldActionRequired)),
	}
	if form.Vehicle == "" || form.RoadWorthinessScore == "" || form.OverallTrafficScore == "" || form.ActionRequired == "" {
		writeError(w, http.StatusBadRequest, "Missing required text fields")
		return
	}

	documents, err := parseDocuments(r.FormValue(formFieldDocuments))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form.Documents = documents

	if err := h.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report fields")
		return
	}

	files, err := parseAttachmentFiles(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report := types.Report{
		Vehicle:             form.Vehicle,
		RoadWorthinessScore: form.RoadWorthinessScore,
		OverallTrafficScore: form.OverallTrafficScore,
		ActionRequired:      form.ActionRequired,
		Documents:           documents,
		CreatedBy:           maybeUserID(r),
	}

	created, err := h.reportService.Create(r.Context(), report, files)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("failed to create report", "err", err)
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "ORS Report created successfully",
		"data":    created,
	})
}

// ListReports returns all reports, newest first.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reportService.List(r.Context())
	if err != nil {
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(reports),
		"data":    reports,
	})
}

// GetReport fetches a single report.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseReportID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reportService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ORS Report not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    report,
	})
}

// UpdateReport applies a partial field update, optionally replaces the
// document metadata and appends any newly uploaded files. The body is
// either a multipart form (with attachments) or a plain JSON object.
func (h *ReportHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseReportID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		patch services.ReportPatch
		files []storage.UploadFile
	)
	if isMultipartRequest(r) {
		patch, files, err = parseUpdateMultipart(r)
	} else {
		patch, err = parseUpdateJSON(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	form := reportUpdateForm{
		Vehicle:        patch.Vehicle,
		ActionRequired: patch.ActionRequired,
		Documents:      patch.Documents,
	}
	if err := h.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report fields")
		return
	}

	updated, err := h.reportService.Update(r.Context(), id, patch, files)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ORS Report not found")
			return
		}
		if h.log != nil {
			h.log.Errorw("failed to update report", "reportId", id.Hex(), "err", err)
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ORS Report updated successfully",
		"data":    updated,
	})
}

// DeleteReport removes a report and returns the deleted record.
func (h *ReportHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseReportID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.reportService.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ORS Report not found")
			return
		}
		writeServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ORS Report deleted successfully",
		"data":    deleted,
	})
}

func parseUpdateMultipart(r *http.Request) (services.ReportPatch, []storage.UploadFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.ReportPatch{}, nil, errors.New("Invalid multipart form")
	}

	patch := services.ReportPatch{
		Vehicle:             strings.TrimSpace(r.FormValue(formFieldVehicle)),
		RoadWorthinessScore: strings.TrimSpace(r.FormValue(formFieldRoadScore)),
		OverallTrafficScore: strings.TrimSpace(r.FormValue(formFieldTrafficScore)),
		ActionRequired:      strings.TrimSpace(r.FormValue(formFieldActionRequired)),
	}

	if raw := strings.TrimSpace(r.FormValue(formFieldDocuments)); raw != "" {
		documents, err := parseDocuments(raw)
		if err != nil {
			return services.ReportPatch{}, nil, err
		}
		patch.Documents = documents
		patch.ReplaceDocuments = true
	}

	files, err := parseAttachmentFiles(r.MultipartForm)
	if err != nil {
		return services.ReportPatch{}, nil, err
	}
	return patch, files, nil
}

// parseUpdateJSON handles the non-multipart update body: the same text
// fields as the form, with documents as a native JSON array.
func parseUpdateJSON(r *http.Request) (services.ReportPatch, error) {
	var body struct {
		Vehicle             string          `json:"vehicle"`
		RoadWorthinessScore string          `json:"roadWorthinessScore"`
		OverallTrafficScore string          `json:"overallTrafficScore"`
		ActionRequired      string          `json:"actionRequired"`
		Documents           json.RawMessage `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return services.ReportPatch{}, errors.New("Invalid request body")
	}

	patch := services.ReportPatch{
		Vehicle:             strings.TrimSpace(body.Vehicle),
		RoadWorthinessScore: strings.TrimSpace(body.RoadWorthinessScore),
		OverallTrafficScore: strings.TrimSpace(body.OverallTrafficScore),
		ActionRequired:      strings.TrimSpace(body.ActionRequired),
	}

	if len(body.Documents) > 0 && string(body.Documents) != "null" {
		documents, err := parseDocuments(string(body.Documents))
		if err != nil {
			return services.ReportPatch{}, err
		}
		patch.Documents = documents
		patch.ReplaceDocuments = true
	}
	return patch, nil
}

func isMultipartRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func parseReportID(r *http.Request) (primitive.ObjectID, error) {
	id, err := objectIDFromHex(chi.URLParam(r, "reportID"))
	if err != nil {
		return primitive.NilObjectID, errors.New("invalid report id")
	}
	return id, nil
}

// parseDocuments normalizes the documents form field: the client sends
// the metadata as a JSON array; malformed input is an explicit error
// rather than an uncaught parse failure.
func parseDocuments(raw string) ([]types.DocumentItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var metas []struct {
		Label       string `json:"label"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &metas); err != nil {
		return nil, errors.New("invalid documents payload")
	}

	documents := make([]types.DocumentItem, 0, len(metas))
	for _, meta := range metas {
		documents = append(documents, types.DocumentItem{
			Label:       strings.TrimSpace(meta.Label),
			Description: strings.TrimSpace(meta.Description),
			Attachments: []types.Attachment{},
		})
	}
	return documents, nil
}

func parseAttachmentFiles(form *multipart.Form) ([]storage.UploadFile, error) {
	if form == nil {
		return nil, nil
	}

	headers := form.File[formFieldAttachments]
	if len(headers) == 0 {
		return nil, nil
	}
	if len(headers) > maxAttachmentFiles {
		return nil, errors.New("too many attachments")
	}

	files := make([]storage.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, errors.New("failed to read attachment")
		}
		data, err := readFileLimited(file, maxAttachmentBytes)
		_ = file.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, storage.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

func maybeUserID(r *http.Request) *primitive.ObjectID {
	id, err := userIDFromContext(r.Context())
	if err != nil {
		return nil
	}
	return &id
}
