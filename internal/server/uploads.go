package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"sitelog/internal/attach"
	"sitelog/internal/config"
	"sitelog/internal/engine"
)

// multipartSlack covers form boundaries and the non-file fields.
const multipartSlack = 1 << 20

// registerUploads mounts the multipart endpoints directly on the router;
// they stream files and so bypass the JSON operation layer.
func registerUploads(r chi.Router, basePath string, d deps) {
	r.Post(path.Join(basePath, "logs/{id}/photos"), d.uploadHandler(attach.ClassPhoto))
	r.Post(path.Join(basePath, "logs/{id}/documents"), d.uploadHandler(attach.ClassDocument))
}

func (d deps) uploadLimit(class attach.Class) int64 {
	cfg := d.engine.Config
	if cfg == nil {
		cfg = config.Default()
	}
	limit := cfg.Attachments.PhotoMaxBytes
	if class == attach.ClassDocument {
		limit = cfg.Attachments.DocumentMaxBytes
	}
	return limit + multipartSlack
}

func (d deps) uploadHandler(class attach.Class) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		logID := chi.URLParam(req, "id")
		limit := d.uploadLimit(class)
		req.Body = http.MaxBytesReader(w, req.Body, limit)
		if err := req.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "", "upload too large", map[string]any{"limit": limit}))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "", "multipart form required", nil))
			return
		}
		defer req.MultipartForm.RemoveAll()

		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, d.handleError(ctx, &engine.ValidationError{Fields: map[string]string{"file": "is required"}}))
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			respondStatusError(w, d.handleError(ctx, err))
			return
		}

		up := engine.Upload{
			OriginalName: header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Data:         data,
			DocumentType: strings.TrimSpace(req.FormValue("type")),
		}
		if desc := strings.TrimSpace(req.FormValue("description")); desc != "" {
			up.Description = &desc
		}

		attachFn := d.engine.AttachPhoto
		if class == attach.ClassDocument {
			attachFn = d.engine.AttachDocument
		}
		l, err := attachFn(ctx, logID, principal.User.ID, up)
		if err != nil {
			respondStatusError(w, d.handleError(ctx, err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(l)
	}
}
