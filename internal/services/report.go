package services

import (
	"context"
	"time"

	"github.com/orstracker/apiserver/internal/mq"
	"github.com/orstracker/apiserver/internal/storage"
	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	Create(ctx context.Context, report types.Report) (types.Report, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (types.Report, error)
	List(ctx context.Context) ([]types.Report, error)
	Update(ctx context.Context, report types.Report) (types.Report, error)
	Delete(ctx context.Context, id primitive.ObjectID) (types.Report, error)
}

// FileUploader stores uploaded files and describes them as attachments.
type FileUploader interface {
	UploadAll(ctx context.Context, files []storage.UploadFile) ([]types.Attachment, error)
}

// ReportPatch carries the optional field replacements of a report update.
// Empty string fields are left untouched; Documents replaces the whole
// sequence only when ReplaceDocuments is set.
type ReportPatch struct {
	Vehicle             string
	RoadWorthinessScore string
	OverallTrafficScore string
	ActionRequired      string
	Documents           []types.DocumentItem
	ReplaceDocuments    bool
}

// ReportService encapsulates report use-cases: upload fan-out, attachment
// distribution, persistence and lifecycle events.
type ReportService struct {
	repo     ReportRepository
	uploader FileUploader
	events   *mq.ReportEvents
	log      *zap.SugaredLogger
}

func NewReportService(repo ReportRepository, uploader FileUploader, events *mq.ReportEvents, log *zap.SugaredLogger) *ReportService {
	return &ReportService{
		repo:     repo,
		uploader: uploader,
		events:   events,
		log:      log,
	}
}

// Create uploads all files, distributes the resulting attachments across
// the report's documents and persists the report. A failed upload fails
// the whole call; objects already stored are not retracted.
func (s *ReportService) Create(ctx context.Context, report types.Report, files []storage.UploadFile) (types.Report, error) {
	uploaded, err := s.uploader.UploadAll(ctx, files)
	if err != nil {
		return types.Report{}, err
	}

	report.Documents = DistributeAttachments(uploaded, report.Documents)

	created, err := s.repo.Create(ctx, report)
	if err != nil {
		return types.Report{}, err
	}

	s.publish(ctx, mq.ReportCreatedChannel, created)
	return created, nil
}

func (s *ReportService) Get(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ReportService) List(ctx context.Context) ([]types.Report, error) {
	return s.repo.List(ctx)
}

// Update applies a partial field patch, optionally replaces the document
// sequence, uploads any new files and appends them per the update-path
// rules, then persists the report in place.
func (s *ReportService) Update(ctx context.Context, id primitive.ObjectID, patch ReportPatch, files []storage.UploadFile) (types.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Report{}, err
	}

	if patch.Vehicle != "" {
		report.Vehicle = patch.Vehicle
	}
	if patch.RoadWorthinessScore != "" {
		report.RoadWorthinessScore = patch.RoadWorthinessScore
	}
	if patch.OverallTrafficScore != "" {
		report.OverallTrafficScore = patch.OverallTrafficScore
	}
	if patch.ActionRequired != "" {
		report.ActionRequired = patch.ActionRequired
	}
	if patch.ReplaceDocuments {
		report.Documents = patch.Documents
	}

	if len(files) > 0 {
		uploaded, err := s.uploader.UploadAll(ctx, files)
		if err != nil {
			return types.Report{}, err
		}
		report.Documents = AppendUploads(report.Documents, uploaded)
	}

	return s.repo.Update(ctx, report)
}

// Delete removes the report and returns the deleted record. Attachments
// in external storage are not reclaimed.
func (s *ReportService) Delete(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return types.Report{}, err
	}

	s.publish(ctx, mq.ReportDeletedChannel, deleted)
	return deleted, nil
}

func (s *ReportService) publish(ctx context.Context, channel string, report types.Report) {
	event := mq.ReportEvent{
		ReportID:   report.ID.Hex(),
		Vehicle:    report.Vehicle,
		Documents:  len(report.Documents),
		OccurredAt: time.Now(),
	}

	var err error
	switch channel {
	case mq.ReportCreatedChannel:
		err = s.events.ReportCreated(ctx, event)
	case mq.ReportDeletedChannel:
		err = s.events.ReportDeleted(ctx, event)
	}
	if err != nil && s.log != nil {
		s.log.Warnw("failed to publish report event", "channel", channel, "reportId", event.ReportID, "err", err)
	}
}
