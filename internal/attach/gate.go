// Package attach decides which uploaded files may be recorded as evidence on
// a log and stores the accepted ones under collision-resistant names.
package attach

import (
	"fmt"
	"mime"
	"strings"

	"sitelog/internal/config"
)

type Class string

const (
	ClassPhoto    Class = "photo"
	ClassDocument Class = "document"
)

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// FileMeta is the declared metadata of an upload.
type FileMeta struct {
	OriginalName string
	ContentType  string
	Size         int64
}

// RejectedError reports why the gate refused a file.
type RejectedError struct {
	Class  Class
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Class, e.Reason)
}

type Gate struct {
	PhotoMaxBytes    int64
	DocumentMaxBytes int64
}

// NewGate returns a gate with the configured limits.
func NewGate(cfg *config.Config) Gate {
	g := Gate{PhotoMaxBytes: config.DefaultPhotoMaxBytes, DocumentMaxBytes: config.DefaultDocumentMaxBytes}
	if cfg != nil {
		if cfg.Attachments.PhotoMaxBytes > 0 {
			g.PhotoMaxBytes = cfg.Attachments.PhotoMaxBytes
		}
		if cfg.Attachments.DocumentMaxBytes > 0 {
			g.DocumentMaxBytes = cfg.Attachments.DocumentMaxBytes
		}
	}
	return g
}

// Validate returns nil when the file is acceptable for the class, or a *RejectedError.
func (g Gate) Validate(class Class, meta FileMeta) error {
	ct := normalizeContentType(meta.ContentType)
	if meta.Size < 0 {
		return &RejectedError{Class: class, Reason: "invalid size"}
	}
	switch class {
	case ClassPhoto:
		if !strings.HasPrefix(ct, "image/") {
			return &RejectedError{Class: class, Reason: "only image files are allowed"}
		}
		if meta.Size > g.photoMax() {
			return &RejectedError{Class: class, Reason: fmt.Sprintf("file exceeds %d bytes", g.photoMax())}
		}
	case ClassDocument:
		if !documentTypes[ct] {
			return &RejectedError{Class: class, Reason: fmt.Sprintf("content type %q is not allowed", ct)}
		}
		if meta.Size > g.documentMax() {
			return &RejectedError{Class: class, Reason: fmt.Sprintf("file exceeds %d bytes", g.documentMax())}
		}
	default:
		return &RejectedError{Class: class, Reason: "unknown attachment class"}
	}
	return nil
}

func (g Gate) photoMax() int64 {
	if g.PhotoMaxBytes > 0 {
		return g.PhotoMaxBytes
	}
	return config.DefaultPhotoMaxBytes
}

func (g Gate) documentMax() int64 {
	if g.DocumentMaxBytes > 0 {
		return g.DocumentMaxBytes
	}
	return config.DefaultDocumentMaxBytes
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return parsed
	}
	return strings.ToLower(ct)
}
