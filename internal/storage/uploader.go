package storage

import (
	"bytes"
	"context"
	"path"

	"github.com/google/uuid"
	"github.com/orstracker/apiserver/types"
	"golang.org/x/sync/errgroup"
)

const uploadKeyPrefix = "ors-reports"

// UploadFile is one in-memory file received from a multipart request.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader stores uploaded files and describes them as attachments.
type Uploader struct {
	storage *Storage
}

// NewUploader constructs an Uploader over the given storage.
func NewUploader(storage *Storage) *Uploader {
	return &Uploader{storage: storage}
}

// UploadAll uploads every file concurrently and returns one attachment
// per file, in input order. The first upload error cancels the rest and
// fails the call; objects already stored are not retracted.
func (u *Uploader) UploadAll(ctx context.Context, files []UploadFile) ([]types.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	attachments := make([]types.Attachment, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, file := range files {
		group.Go(func() error {
			key := objectKey(file.Name)
			size := int64(len(file.Data))
			if err := u.storage.Put(groupCtx, key, bytes.NewReader(file.Data), size, file.ContentType); err != nil {
				return err
			}
			attachments[i] = types.Attachment{
				URL:          u.storage.URL(key),
				StorageID:    key,
				OriginalName: file.Name,
				MimeType:     file.ContentType,
				SizeBytes:    size,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func objectKey(filename string) string {
	return uploadKeyPrefix + "/" + uuid.NewString() + path.Ext(filename)
}
