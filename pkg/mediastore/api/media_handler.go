package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/mediastore"
)

// DefaultMaxUploadBytes caps one multipart upload request
const DefaultMaxUploadBytes int64 = 64 << 20

// blobMaxAge is sent with blob responses. Storage keys never change content.
const blobMaxAge = 365 * 24 * time.Hour

// MediaHandler serves the owner media API and blob retrieval
type MediaHandler struct {
	service        mediastore.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption configures a MediaHandler
type HandlerOption func(*MediaHandler)

// WithHandlerLogger sets the logger used for request errors
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *MediaHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxUploadBytes caps the size of one upload request body
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *MediaHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service mediastore.Service, opts ...HandlerOption) *MediaHandler {
	h := &MediaHandler{
		service:        service,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for all media endpoints
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.RegisterBlobRoutes(r)
	h.RegisterOwnerRoutes(r)
	return r
}

// RegisterBlobRoutes registers blob retrieval. Asset URLs point here, so
// servers usually leave these routes unauthenticated.
func (h *MediaHandler) RegisterBlobRoutes(r chi.Router) {
	r.Get("/media/*", h.GetBlob)
}

// RegisterOwnerRoutes registers the owner media and maintenance endpoints
func (h *MediaHandler) RegisterOwnerRoutes(r chi.Router) {
	r.Route("/owners/{ownerID}/media", func(r chi.Router) {
		r.Post("/", h.AttachFiles)
		r.Get("/", h.ListMedia)
		r.Delete("/", h.DeleteOwner)
		r.Get("/thumbnail", h.GetThumbnail)
		r.Put("/{linkID}/thumbnail", h.SetThumbnail)
		r.Delete("/{linkID}", h.RemoveLink)
	})
	r.Post("/maintenance/evict", h.EvictUnreferenced)
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// AttachResponse is returned by the upload endpoint
type AttachResponse struct {
	OwnerID  int64                     `json:"owner_id"`
	Attached []mediastore.AttachedFile `json:"attached"`
	Errors   []mediastore.FileError    `json:"errors"`
	Media    []*mediastore.MediaItem   `json:"media"`
}

// MediaListResponse lists an owner's media in display order
type MediaListResponse struct {
	OwnerID int64                   `json:"owner_id"`
	Media   []*mediastore.MediaItem `json:"media"`
}

// DeleteOwnerResponse reports how many links were removed
type DeleteOwnerResponse struct {
	Deleted int `json:"deleted"`
}

// EvictResponse reports how many assets were evicted
type EvictResponse struct {
	Evicted int `json:"evicted"`
}

// AttachFiles attaches every file part of a multipart body to the owner.
// Parts are processed in body order, which becomes their display order.
func (h *MediaHandler) AttachFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	files, err := readUploadFiles(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
			return
		}
		h.logger.Warn("failed to read multipart body", "owner_id", ownerID, "error", err)
		h.writeError(w, r, http.StatusBadRequest, "invalid_multipart", "request body must be multipart/form-data")
		return
	}
	if len(files) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "no_files", "no files in request")
		return
	}

	result, err := h.service.AttachFiles(r.Context(), ownerID, files)
	if err != nil {
		h.handleServiceError(w, r, "attach files", err)
		return
	}

	media, err := h.service.ListMedia(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, r, "list media", err)
		return
	}

	status := http.StatusCreated
	if len(result.Attached) == 0 {
		status = http.StatusUnprocessableEntity
	}
	render.Status(r, status)
	render.JSON(w, r, AttachResponse{
		OwnerID:  ownerID,
		Attached: result.Attached,
		Errors:   result.Errors,
		Media:    media,
	})
}

// ListMedia returns the owner's media, thumbnail first
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	media, err := h.service.ListMedia(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, r, "list media", err)
		return
	}
	render.JSON(w, r, MediaListResponse{OwnerID: ownerID, Media: media})
}

// GetThumbnail returns the owner's current thumbnail
func (h *MediaHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	item, err := h.service.Thumbnail(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, r, "get thumbnail", err)
		return
	}
	render.JSON(w, r, item)
}

// SetThumbnail promotes one link to the owner's thumbnail and returns the
// refreshed list.
func (h *MediaHandler) SetThumbnail(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	linkID, ok := h.linkID(w, r)
	if !ok {
		return
	}

	if err := h.service.SetThumbnail(r.Context(), ownerID, linkID); err != nil {
		h.handleServiceError(w, r, "set thumbnail", err)
		return
	}

	media, err := h.service.ListMedia(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, r, "list media", err)
		return
	}
	render.JSON(w, r, MediaListResponse{OwnerID: ownerID, Media: media})
}

// RemoveLink detaches one media item from the owner
func (h *MediaHandler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	linkID, ok := h.linkID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveLink(r.Context(), ownerID, linkID); err != nil {
		h.handleServiceError(w, r, "remove link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteOwner detaches all of the owner's media
func (h *MediaHandler) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteOwner(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, r, "delete owner", err)
		return
	}
	render.JSON(w, r, DeleteOwnerResponse{Deleted: deleted})
}

// GetBlob streams the bytes stored under a storage key
func (h *MediaHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_key", "invalid storage key")
		return
	}

	rc, kind, err := h.service.OpenBlob(r.Context(), key)
	if err != nil {
		h.handleServiceError(w, r, "open blob", err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(blobMaxAge.Seconds()))+", immutable")
	w.Header().Set("X-Media-Kind", string(kind))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream blob", "key", key, "error", err)
	}
}

// EvictUnreferenced removes assets no owner references any more
func (h *MediaHandler) EvictUnreferenced(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_duration", "older_than must be a non-negative duration such as 1h")
			return
		}
		olderThan = d
	}

	evicted, err := h.service.EvictUnreferenced(r.Context(), olderThan)
	if err != nil {
		h.handleServiceError(w, r, "evict unreferenced", err)
		return
	}
	render.JSON(w, r, EvictResponse{Evicted: evicted})
}

// Helpers

func (h *MediaHandler) ownerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "ownerID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid_owner_id", "owner id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *MediaHandler) linkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "linkID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_link_id", "link id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *MediaHandler) handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, mediastore.ErrInvalidOwnerID):
		h.writeError(w, r, http.StatusBadRequest, "invalid_owner_id", err.Error())
	case errors.Is(err, mediastore.ErrLinkNotFound), errors.Is(err, mediastore.ErrOwnerMismatch):
		// A link of another owner is reported as missing.
		h.writeError(w, r, http.StatusNotFound, "link_not_found", mediastore.ErrLinkNotFound.Error())
	case errors.Is(err, mediastore.ErrBlobNotFound):
		h.writeError(w, r, http.StatusNotFound, "blob_not_found", mediastore.ErrBlobNotFound.Error())
	case errors.Is(err, mediastore.ErrAssetNotFound):
		h.writeError(w, r, http.StatusNotFound, "asset_not_found", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request aborted", "op", op, "error", err)
		h.writeError(w, r, http.StatusServiceUnavailable, "request_aborted", err.Error())
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "An internal server error occurred")
	}
}

func (h *MediaHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
