package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxAttachmentsPerDocument caps how many attachments a single document
// item receives when files are distributed on report creation.
const MaxAttachmentsPerDocument = 10

// Attachment describes one uploaded file's stored location and metadata.
// It is created only as the result of a successful upload and is
// immutable thereafter.
type Attachment struct {
	// URL is the publicly reachable location of the stored object.
	URL string `json:"url" bson:"url"`

	// StorageID is the object key inside the configured bucket.
	StorageID string `json:"storageId" bson:"storageId"`

	// OriginalName is the filename as submitted by the client.
	OriginalName string `json:"originalName" bson:"originalName"`

	// MimeType is the declared content type of the upload.
	MimeType string `json:"mimeType" bson:"mimeType"`

	// SizeBytes is the upload size in bytes.
	SizeBytes int64 `json:"sizeBytes" bson:"sizeBytes"`
}

// DocumentItem is a labeled grouping of attachments belonging to one report.
type DocumentItem struct {
	Label       string       `json:"label" bson:"label" validate:"required,min=2,max=120"`
	Description string       `json:"description,omitempty" bson:"description,omitempty" validate:"max=2000"`
	Attachments []Attachment `json:"attachments" bson:"attachments"`
}

// Report is a vehicle inspection record containing an ordered sequence
// of document items plus scalar scores.
type Report struct {
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Vehicle identifies the inspected vehicle.
	Vehicle string `json:"vehicle" bson:"vehicle"`

	RoadWorthinessScore string `json:"roadWorthinessScore" bson:"roadWorthinessScore"`
	OverallTrafficScore string `json:"overallTrafficScore" bson:"overallTrafficScore"`

	// ActionRequired is the free-text remediation note.
	ActionRequired string `json:"actionRequired" bson:"actionRequired"`

	Documents []DocumentItem `json:"documents" bson:"documents"`

	// CreatedBy references the authoring user account when the request
	// carried a valid token.
	CreatedBy *primitive.ObjectID `json:"createdBy,omitempty" bson:"createdBy,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
