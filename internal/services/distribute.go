package services

import "github.com/orstracker/apiserver/types"

// DistributeAttachments assigns uploaded attachments to document items by
// a single forward scan: each document in order pulls from the shared
// file cursor until the cursor is exhausted or the document holds
// types.MaxAttachmentsPerDocument attachments. Files left over once the
// last document is filled are silently dropped. With zero documents every
// file is dropped. The scan is deterministic and order-preserving.
func DistributeAttachments(files []types.Attachment, docs []types.DocumentItem) []types.DocumentItem {
	fileIndex := 0
	for i := range docs {
		for fileIndex < len(files) && len(docs[i].Attachments) < types.MaxAttachmentsPerDocument {
			docs[i].Attachments = append(docs[i].Attachments, files[fileIndex])
			fileIndex++
		}
	}
	return docs
}

// AppendUploads applies the update-path rules for newly uploaded files.
// When the report has no documents, each file becomes its own document
// labeled with the file's original name. Otherwise every file is appended
// to the first document; no cap applies on this path.
func AppendUploads(docs []types.DocumentItem, files []types.Attachment) []types.DocumentItem {
	if len(files) == 0 {
		return docs
	}
	if len(docs) == 0 {
		for _, file := range files {
			docs = append(docs, types.DocumentItem{
				Label:       file.OriginalName,
				Attachments: []types.Attachment{file},
			})
		}
		return docs
	}
	docs[0].Attachments = append(docs[0].Attachments, files...)
	return docs
}
