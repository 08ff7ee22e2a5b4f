package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"sitelog/internal/attach"
	"sitelog/internal/domain"
	"sitelog/internal/events"
)

// Upload is one file offered as evidence for a log.
type Upload struct {
	OriginalName string
	ContentType  string
	Data         []byte
	// Description applies to photos.
	Description *string
	// DocumentType applies to documents and defaults to other.
	DocumentType string
}

// AttachPhoto validates and stores a photo, then appends it to the log.
func (e Engine) AttachPhoto(ctx context.Context, logID, requesterID string, up Upload) (domain.Log, error) {
	return e.attach(ctx, logID, requesterID, attach.ClassPhoto, up)
}

// AttachDocument validates and stores a document, then appends it to the log.
func (e Engine) AttachDocument(ctx context.Context, logID, requesterID string, up Upload) (domain.Log, error) {
	return e.attach(ctx, logID, requesterID, attach.ClassDocument, up)
}

func (e Engine) attach(ctx context.Context, logID, requesterID string, class attach.Class, up Upload) (domain.Log, error) {
	current, err := e.loadLog(ctx, logID)
	if err != nil {
		return domain.Log{}, err
	}
	if err := checkEditable(current, requesterID); err != nil {
		return domain.Log{}, err
	}
	docType := strings.TrimSpace(up.DocumentType)
	if class == attach.ClassDocument {
		if docType == "" {
			docType = domain.DocumentOther
		}
		if !domain.ValidDocumentType(docType) {
			return domain.Log{}, &ValidationError{Fields: map[string]string{"type": "must be one of delivery_note, receipt, invoice, other"}}
		}
	}
	if strings.TrimSpace(up.OriginalName) == "" {
		return domain.Log{}, &ValidationError{Fields: map[string]string{"file": "file name required"}}
	}
	if err := e.Gate.Validate(class, attach.FileMeta{
		OriginalName: up.OriginalName,
		ContentType:  up.ContentType,
		Size:         int64(len(up.Data)),
	}); err != nil {
		return domain.Log{}, err
	}

	path, err := e.Files.Store(ctx, logID, class, up.Data, up.ContentType, up.OriginalName)
	if err != nil {
		return domain.Log{}, err
	}
	if err := e.appendAttachment(ctx, logID, requesterID, class, path, docType, up); err != nil {
		if rmErr := e.Files.Remove(path); rmErr != nil {
			e.logger().Warn("remove orphaned attachment", zap.String("path", path), zap.Error(rmErr))
		}
		return domain.Log{}, err
	}
	return e.loadLog(ctx, logID)
}

func (e Engine) appendAttachment(ctx context.Context, logID, requesterID string, class attach.Class, path, docType string, up Upload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fresh, err := e.Repo.GetLogTx(ctx, tx, logID)
	if err != nil {
		return wrapNotFound(err, logID)
	}
	if err := checkEditable(fresh, requesterID); err != nil {
		return err
	}
	now := e.stamp()
	evtType := events.LogPhotoAttached
	payload := events.EventPayload{"original_name": up.OriginalName, "path": path}
	if class == attach.ClassPhoto {
		err = e.Repo.AppendPhoto(ctx, tx, logID, domain.Photo{
			Path: path, OriginalName: up.OriginalName, Description: optionalText(up.Description), UploadedAt: now,
		})
	} else {
		evtType = events.LogDocumentAttached
		payload["type"] = docType
		err = e.Repo.AppendDocument(ctx, tx, logID, domain.Document{
			Path: path, OriginalName: up.OriginalName, Type: docType, UploadedAt: now,
		})
	}
	if err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, evtType, "log", logID, requesterID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
