package store

import (
	"context"
	"errors"
	"time"

	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReportRepository handles persistence for ORS reports.
type ReportRepository struct {
	coll *mongo.Collection
}

func NewReportRepository(database *mongo.Database, collection string) *ReportRepository {
	return &ReportRepository{coll: database.Collection(collection)}
}

func (r *ReportRepository) Create(ctx context.Context, report types.Report) (types.Report, error) {
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now

	result, err := r.coll.InsertOne(ctx, report)
	if err != nil {
		return types.Report{}, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		report.ID = oid
	}
	return report, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	var report types.Report
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return report, nil
}

// List fetches all reports, newest first.
func (r *ReportRepository) List(ctx context.Context) ([]types.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := make([]types.Report, 0)
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *ReportRepository) Update(ctx context.Context, report types.Report) (types.Report, error) {
	report.UpdatedAt = time.Now()

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": report.ID}, report)
	if err != nil {
		return types.Report{}, err
	}
	if result.MatchedCount == 0 {
		return types.Report{}, ErrNotFound
	}
	return report, nil
}

// Delete removes a report and returns the deleted record.
// Attachments held in external storage are not reclaimed.
func (r *ReportRepository) Delete(ctx context.Context, id primitive.ObjectID) (types.Report, error) {
	var report types.Report
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return report, nil
}
