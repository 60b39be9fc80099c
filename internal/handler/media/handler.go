package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bulatminnakhmetov/media-relay/internal/service/media"
)

// MediaService defines the media operations exposed over HTTP
type MediaService interface {
	UploadMedia(ctx context.Context, fileHeader media.UploadedFile) (*media.Attachment, error)
	GetAttachment(ctx context.Context, id int) (*media.Attachment, error)
	ResolveURL(ctx context.Context, id int) (string, error)
	RelayAttachment(ctx context.Context, id int) (*media.Attachment, error)
}

// MediaHandler handles requests for media operations
type MediaHandler struct {
	service     MediaService
	maxBodySize int64
}

// NewMediaHandler creates a new instance of MediaHandler
func NewMediaHandler(service MediaService, maxFileSize int64) *MediaHandler {
	if maxFileSize <= 0 {
		maxFileSize = media.MaxFileSize
	}
	return &MediaHandler{
		service:     service,
		maxBodySize: maxFileSize + 1<<20,
	}
}

// Routes mounts the media endpoints on r
func (h *MediaHandler) Routes(r chi.Router) {
	r.Post("/", h.UploadMedia)
	r.Get("/{id}", h.GetMedia)
	r.Get("/{id}/url", h.ResolveURL)
	r.Post("/{id}/relay", h.RelayMedia)
}

// @Summary      Upload media
// @Description  Store a file locally and relay it to the configured remote host
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "File to upload"
// @Success      200   {object}  AttachmentResponse
// @Failure      400   {string}  string  "Invalid file"
// @Failure      401   {string}  string  "Unauthorized"
// @Failure      413   {string}  string  "File too large"
// @Failure      500   {object}  AttachmentResponse  "Relayed but not recorded"
// @Router       /media [post]
// @Security     BearerAuth
func (h *MediaHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Could not parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Could not get file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileWrapper := &media.FileHeaderWrapper{FileHeader: header}

	attachment, err := h.service.UploadMedia(r.Context(), fileWrapper)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrRelayNotRecorded) && attachment != nil:
			writeJSON(w, http.StatusInternalServerError, attachment)
		case errors.Is(err, media.ErrEmptyFile):
			http.Error(w, "File is empty", http.StatusBadRequest)
		case errors.Is(err, media.ErrFileTooBig):
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, attachment)
}

// @Summary      Get media
// @Description  Attachment metadata including relay status
// @Tags         media
// @Produce      json
// @Param        id   path      int  true  "Attachment ID"
// @Success      200  {object}  AttachmentResponse
// @Failure      400  {string}  string  "Invalid ID"
// @Failure      404  {string}  string  "Not found"
// @Router       /media/{id} [get]
// @Security     BearerAuth
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := attachmentID(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.GetAttachment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attachment)
}

// @Summary      Resolve media URL
// @Description  Remote URL when the attachment was relayed, local URL otherwise
// @Tags         media
// @Produce      json
// @Param        id        path      int     true   "Attachment ID"
// @Param        redirect  query     string  false  "Respond with 302 to the resolved URL"
// @Success      200       {object}  URLResponse
// @Success      302
// @Failure      404       {string}  string  "Not found"
// @Router       /media/{id}/url [get]
// @Security     BearerAuth
func (h *MediaHandler) ResolveURL(w http.ResponseWriter, r *http.Request) {
	id, ok := attachmentID(w, r)
	if !ok {
		return
	}

	u, err := h.service.ResolveURL(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{ID: id, URL: u})
}

// @Summary      Relay media again
// @Description  Re-attempt the relay of an attachment that was skipped or failed
// @Tags         media
// @Produce      json
// @Param        id   path      int  true  "Attachment ID"
// @Success      200  {object}  AttachmentResponse
// @Failure      404  {string}  string  "Not found"
// @Router       /media/{id}/relay [post]
// @Security     BearerAuth
func (h *MediaHandler) RelayMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := attachmentID(w, r)
	if !ok {
		return
	}

	attachment, err := h.service.RelayAttachment(r.Context(), id)
	if err != nil {
		if errors.Is(err, media.ErrRelayNotRecorded) && attachment != nil {
			writeJSON(w, http.StatusInternalServerError, attachment)
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attachment)
}

func attachmentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "Invalid attachment ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, media.ErrAttachmentNotFound) {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
