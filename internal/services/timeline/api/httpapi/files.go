package httpapi

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/service"
)

const multipartMemoryBytes = 8 << 20

// upload is a resource or outcome write, sent either as JSON or as a
// multipart form with an optional "file" part.
type upload struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	Version     *int64  `json:"version"`

	file    *domain.FileInfo
	content multipart.File
	form    *multipart.Form
}

func (u *upload) close() {
	if u.content != nil {
		_ = u.content.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// reader returns the file content, or nil when no file was sent.
func (u *upload) reader() io.Reader {
	if u.content == nil {
		return nil
	}
	return u.content
}

func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	u := &upload{}
	if mediaType != "multipart/form-data" {
		if err := decodeJSON(w, r, u); err != nil {
			return nil, err
		}
		return u, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.New(apperrors.CodeMaxItemLimitExceeded, "upload is too large").
				With("Limit", strconv.FormatInt(tooLarge.Limit, 10))
		}
		return nil, apperrors.Wrap(apperrors.CodeUnknownValue, "malformed multipart body", err)
	}
	u.form = r.MultipartForm
	u.Title = r.FormValue("title")
	u.URL = strings.TrimSpace(r.FormValue("url"))
	if values, ok := u.form.Value["description"]; ok && len(values) > 0 {
		description := values[0]
		u.Description = &description
	}
	if raw := strings.TrimSpace(r.FormValue("version")); raw != "" {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			u.close()
			return nil, apperrors.Field(apperrors.CodeUnknownValue, "version must be an integer", "version")
		}
		u.Version = &version
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		u.close()
		return nil, apperrors.Wrap(apperrors.CodeUnknownValue, "malformed file part", err)
	default:
		u.content = file
		u.file = &domain.FileInfo{
			Size: header.Size,
			Name: header.Filename,
			Type: header.Header.Get("Content-Type"),
		}
	}
	return u, nil
}

func (u *upload) resourceInput() domain.ResourceInput {
	return domain.ResourceInput{Title: u.Title, Description: u.Description, URL: u.URL, File: u.file, Version: u.Version}
}

func (u *upload) outcomeInput() domain.OutcomeInput {
	return domain.OutcomeInput{Title: u.Title, Description: u.Description, File: u.file, Version: u.Version}
}

func (h *handler) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.svc.ListResources(r.Context(), param(r, "project"), actorID(r))
	h.respond(w, r, http.StatusOK, resources, err)
}

func (h *handler) createResource(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer u.close()
	resource, err := h.svc.CreateResource(r.Context(), param(r, "project"), actorID(r), u.resourceInput(), u.reader())
	h.respond(w, r, http.StatusCreated, resource, err)
}

func (h *handler) updateResource(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer u.close()
	resource, err := h.svc.UpdateResource(r.Context(), param(r, "project"), param(r, "id"), actorID(r), u.resourceInput(), u.reader())
	h.respond(w, r, http.StatusOK, resource, err)
}

func (h *handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteResource(r.Context(), param(r, "project"), param(r, "id"), actorID(r))
	h.respond(w, r, http.StatusOK, deleted(param(r, "id")), err)
}

func (h *handler) listOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.svc.ListOutcomes(r.Context(), param(r, "project"), actorID(r))
	h.respond(w, r, http.StatusOK, outcomes, err)
}

func (h *handler) createOutcome(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer u.close()
	outcome, err := h.svc.CreateOutcome(r.Context(), param(r, "project"), actorID(r), u.outcomeInput(), u.reader())
	h.respond(w, r, http.StatusCreated, outcome, err)
}

func (h *handler) updateOutcome(w http.ResponseWriter, r *http.Request) {
	u, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer u.close()
	outcome, err := h.svc.UpdateOutcome(r.Context(), param(r, "project"), param(r, "id"), actorID(r), u.outcomeInput(), u.reader())
	h.respond(w, r, http.StatusOK, outcome, err)
}

func (h *handler) deleteOutcome(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteOutcome(r.Context(), param(r, "project"), param(r, "id"), actorID(r))
	h.respond(w, r, http.StatusOK, deleted(param(r, "id")), err)
}

func (h *handler) downloadResource(w http.ResponseWriter, r *http.Request) {
	download, err := h.svc.OpenResourceFile(r.Context(), param(r, "resource"), actorID(r))
	h.serveDownload(w, r, download, err)
}

func (h *handler) downloadOutcome(w http.ResponseWriter, r *http.Request) {
	download, err := h.svc.OpenOutcomeFile(r.Context(), param(r, "outcome"), param(r, "version"), actorID(r))
	h.serveDownload(w, r, download, err)
}

func (h *handler) serveDownload(w http.ResponseWriter, r *http.Request, download service.Download, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer download.Content.Close()

	contentType := download.File.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.File.Name}))
	if download.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.File.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, download.Content); err != nil {
		h.logger.WithError(err).Debug("stream download")
	}
}
