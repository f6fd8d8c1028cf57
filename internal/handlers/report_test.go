package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/internal/storage"
	"github.com/orstracker/apiserver/internal/store"
	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeReportRepo struct {
	reports map[primitive.ObjectID]types.Report
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{reports: make(map[primitive.ObjectID]types.Report)}
}

func (f *fakeReportRepo) Create(ctx context.Context, report types.Report) (types.Report, error) {
	report.ID = primitive.NewObjectID()
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now
	f.reports[report.ID] = report
	return report, nil
}

func (f *fakeReportRepo) GetByID(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	return report, nil
}

func (f *fakeReportRepo) List(ctx context.Context) ([]types.Report, error) {
	out := make([]types.Report, 0, len(f.reports))
	for _, report := range f.reports {
		out = append(out, report)
	}
	return out, nil
}

func (f *fakeReportRepo) Update(ctx context.Context, report types.Report) (types.Report, error) {
	if _, ok := f.reports[report.ID]; !ok {
		return types.Report{}, store.ErrNotFound
	}
	report.UpdatedAt = time.Now()
	f.reports[report.ID] = report
	return report, nil
}

func (f *fakeReportRepo) Delete(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	delete(f.reports, id)
	return report, nil
}

type fakeUploader struct{}

func (f *fakeUploader) UploadAll(ctx context.Context, files []storage.UploadFile) ([]types.Attachment, error) {
	attachments := make([]types.Attachment, len(files))
	for i, file := range files {
		attachments[i] = types.Attachment{
			URL:          fmt.Sprintf("http://blobs.local/%s", file.Name),
			StorageID:    fmt.Sprintf("obj-%d", i),
			OriginalName: file.Name,
			MimeType:     file.ContentType,
			SizeBytes:    int64(len(file.Data)),
		}
	}
	return attachments, nil
}

func newReportTestRouter(repo *fakeReportRepo) *chi.Mux {
	service := services.NewReportService(repo, &fakeUploader{}, nil, zap.NewNop().Sugar())
	handler := NewReportHandler(service, zap.NewNop().Sugar())
	router := chi.NewRouter()
	ReportRouter(router, handler, nil)
	return router
}

type multipartRequest struct {
	fields map[string]string
	files  []string
}

func (m multipartRequest) build(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range m.fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for _, name := range m.files {
		part, err := writer.CreateFormFile(formFieldAttachments, name)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write([]byte("content of " + name)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func validReportFields() map[string]string {
	return map[string]string{
		formFieldVehicle:        "KA-01-AB-1234",
		formFieldRoadScore:      "7",
		formFieldTrafficScore:   "8",
		formFieldActionRequired: "Replace both front brake pads",
		formFieldDocuments:      `[{"label":"Brake check","description":"front axle"},{"label":"Engine check"}]`,
	}
}

func TestCreateReportDistributesAttachments(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)

	req := multipartRequest{
		fields: validReportFields(),
		files:  []string{"front.jpg", "rear.jpg", "engine.jpg"},
	}.build(t, http.MethodPost, "/create-ors-report")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Data.Documents))
	}
	first := resp.Data.Documents[0].Attachments
	if len(first) != 3 {
		t.Fatalf("expected 3 attachments on first document, got %d", len(first))
	}
	if first[0].OriginalName != "front.jpg" || first[2].OriginalName != "engine.jpg" {
		t.Fatalf("attachment order lost: %+v", first)
	}
	if resp.Data.CreatedBy != nil {
		t.Fatalf("anonymous create must not set createdBy")
	}
	if _, ok := repo.reports[resp.Data.ID]; !ok {
		t.Fatalf("report not persisted")
	}
}

func TestCreateReportMissingFields(t *testing.T) {
	router := newReportTestRouter(newFakeReportRepo())

	fields := validReportFields()
	delete(fields, formFieldVehicle)
	req := multipartRequest{fields: fields}.build(t, http.MethodPost, "/create-ors-report")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateReportMalformedDocuments(t *testing.T) {
	router := newReportTestRouter(newFakeReportRepo())

	fields := validReportFields()
	fields[formFieldDocuments] = `{"label":"not an array"}`
	req := multipartRequest{fields: fields}.build(t, http.MethodPost, "/create-ors-report")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if resp.Message != "invalid documents payload" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestCreateReportTooManyAttachments(t *testing.T) {
	router := newReportTestRouter(newFakeReportRepo())

	files := make([]string, maxAttachmentFiles+1)
	for i := range files {
		files[i] = fmt.Sprintf("photo-%d.jpg", i)
	}
	req := multipartRequest{fields: validReportFields(), files: files}.build(t, http.MethodPost, "/create-ors-report")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetReportInvalidID(t *testing.T) {
	router := newReportTestRouter(newFakeReportRepo())

	req := httptest.NewRequest(http.MethodGet, "/ors-reports/not-a-hex-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestGetReportNotFound(t *testing.T) {
	router := newReportTestRouter(newFakeReportRepo())

	req := httptest.NewRequest(http.MethodGet, "/ors-reports/"+primitive.NewObjectID().Hex(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateReportPartial(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)

	seeded, err := repo.Create(context.Background(), types.Report{
		Vehicle:             "KA-01-AB-1234",
		RoadWorthinessScore: "7",
		OverallTrafficScore: "8",
		ActionRequired:      "None",
		Documents:           []types.DocumentItem{{Label: "Brake check", Attachments: []types.Attachment{}}},
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}

	req := multipartRequest{
		fields: map[string]string{formFieldActionRequired: "Schedule full service"},
	}.build(t, http.MethodPut, "/ors-reports/"+seeded.ID.Hex())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ActionRequired != "Schedule full service" {
		t.Fatalf("actionRequired not updated: %q", resp.Data.ActionRequired)
	}
	if resp.Data.Vehicle != "KA-01-AB-1234" {
		t.Fatalf("untouched field changed: %q", resp.Data.Vehicle)
	}
	if len(resp.Data.Documents) != 1 || resp.Data.Documents[0].Label != "Brake check" {
		t.Fatalf("documents changed without replacement: %+v", resp.Data.Documents)
	}
}

func seedReport(t *testing.T, repo *fakeReportRepo) types.Report {
	t.Helper()
	seeded, err := repo.Create(context.Background(), types.Report{
		Vehicle:             "KA-01-AB-1234",
		RoadWorthinessScore: "7",
		OverallTrafficScore: "8",
		ActionRequired:      "None",
		Documents:           []types.DocumentItem{{Label: "Brake check", Attachments: []types.Attachment{}}},
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return seeded
}

func TestUpdateReportJSONBody(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)
	seeded := seedReport(t, repo)

	req := httptest.NewRequest(http.MethodPut, "/ors-reports/"+seeded.ID.Hex(),
		bytes.NewReader([]byte(`{"vehicle":"XYZ-9876"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Vehicle != "XYZ-9876" {
		t.Fatalf("vehicle not updated: %q", resp.Data.Vehicle)
	}
	if resp.Data.ActionRequired != "None" {
		t.Fatalf("untouched field changed: %q", resp.Data.ActionRequired)
	}
	if len(resp.Data.Documents) != 1 || resp.Data.Documents[0].Label != "Brake check" {
		t.Fatalf("documents changed without replacement: %+v", resp.Data.Documents)
	}
}

func TestUpdateReportJSONDocumentsReplace(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)
	seeded := seedReport(t, repo)

	body := `{"documents":[{"label":"Suspension check","description":"rear"},{"label":"Lights check"}]}`
	req := httptest.NewRequest(http.MethodPut, "/ors-reports/"+seeded.ID.Hex(), bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Data.Documents))
	}
	if resp.Data.Documents[0].Label != "Suspension check" || resp.Data.Documents[1].Label != "Lights check" {
		t.Fatalf("documents not replaced: %+v", resp.Data.Documents)
	}
}

func TestUpdateReportMalformedJSON(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)
	seeded := seedReport(t, repo)

	req := httptest.NewRequest(http.MethodPut, "/ors-reports/"+seeded.ID.Hex(),
		bytes.NewReader([]byte(`{"vehicle":`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	stored, err := repo.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("lookup report: %v", err)
	}
	if stored.Vehicle != "KA-01-AB-1234" {
		t.Fatalf("report changed by rejected update: %q", stored.Vehicle)
	}
}

func TestDeleteReportReturnsRecord(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)

	seeded, err := repo.Create(context.Background(), types.Report{
		Vehicle:             "KA-01-AB-1234",
		RoadWorthinessScore: "7",
		OverallTrafficScore: "8",
		ActionRequired:      "None",
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/ors-reports/"+seeded.ID.Hex(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ID != seeded.ID {
		t.Fatalf("deleted record id mismatch")
	}
	if len(repo.reports) != 0 {
		t.Fatalf("report still present after delete")
	}
}

func TestListReports(t *testing.T) {
	repo := newFakeReportRepo()
	router := newReportTestRouter(repo)

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(context.Background(), types.Report{
			Vehicle:             fmt.Sprintf("KA-01-AB-%04d", i),
			RoadWorthinessScore: "5",
			OverallTrafficScore: "5",
			ActionRequired:      "None",
		}); err != nil {
			t.Fatalf("seed report: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ors-reports", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count int            `json:"count"`
		Data  []types.Report `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 || len(resp.Data) != 3 {
		t.Fatalf("expected 3 reports, got count=%d len=%d", resp.Count, len(resp.Data))
	}
}
