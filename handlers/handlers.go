package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
	"github.com/srgchrksv/docpodcaster/services"
	"github.com/srgchrksv/docpodcaster/storage"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "requestID"
)

// Generator is the pipeline entry point used by the handlers.
type Generator interface {
	GenerateWithProgress(ctx context.Context, sourceID, sourceText string, fn services.ProgressFunc) (*models.GenerationResult, error)
}

// ObjectReader serves stored audio when the object store is local.
type ObjectReader interface {
	Object(key string) ([]byte, bool)
}

type Handler struct {
	podcaster Generator
	cache     storage.MetadataStore
	objects   ObjectReader
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

func NewHandler(podcaster Generator, cache storage.MetadataStore, allowedOrigins []string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		podcaster: podcaster,
		cache:     cache,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin) || slices.Contains(allowedOrigins, "*")
			},
		},
	}
}

// ServeObjects enables GET access to audio kept in a local store.
func (h *Handler) ServeObjects(objects ObjectReader) {
	h.objects = objects
}

type generateRequest struct {
	Text string `json:"text" binding:"required"`
}

type podcastResponse struct {
	AudioURL        string                  `json:"audioUrl"`
	Status          string                  `json:"status"`
	IsCached        bool                    `json:"isCached"`
	DurationSeconds float64                 `json:"durationSeconds"`
	Segments        []models.PodcastSegment `json:"segments"`
}

func newPodcastResponse(meta *models.PodcastMetadata, cached bool) podcastResponse {
	segments := meta.Segments
	if segments == nil {
		segments = []models.PodcastSegment{}
	}
	return podcastResponse{
		AudioURL:        meta.AudioURL,
		Status:          "success",
		IsCached:        cached,
		DurationSeconds: meta.DurationSeconds,
		Segments:        segments,
	}
}

// GetMetadata returns the cached podcast of a document.
func (h *Handler) GetMetadata(c *gin.Context) {
	documentID := c.Param("documentId")

	meta, err := h.cache.Get(c.Request.Context(), documentID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "podcast not found"})
		return
	}
	if err != nil {
		h.logger(c).Error("metadata lookup failed", "document_id", documentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Generate returns the cached podcast of a document or generates a new one.
func (h *Handler) Generate(c *gin.Context) {
	documentID := c.Param("documentId")
	log := h.logger(c).With("document_id", documentID)

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must contain non-empty text"})
		return
	}

	if meta, ok := h.cached(c.Request.Context(), log, documentID); ok {
		c.JSON(http.StatusOK, newPodcastResponse(meta, true))
		return
	}

	meta, err := h.generate(c.Request.Context(), log, documentID, req.Text, nil)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, newPodcastResponse(meta, false))
}

// Audio serves an object from the local store.
func (h *Handler) Audio(c *gin.Context) {
	if h.objects == nil {
		c.Status(http.StatusNotFound)
		return
	}
	data, ok := h.objects.Object(strings.TrimPrefix(c.Param("key"), "/"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", data)
}

func (h *Handler) cached(ctx context.Context, log *slog.Logger, documentID string) (*models.PodcastMetadata, bool) {
	meta, err := h.cache.Get(ctx, documentID)
	switch {
	case err == nil:
		log.Debug("podcast served from cache")
		return meta, true
	case !errors.Is(err, storage.ErrNotFound):
		log.Warn("metadata lookup failed, generating anyway", "error", err)
	}
	return nil, false
}

// generate runs the pipeline and records the result. A failed cache write is
// logged but does not fail the request since the audio is already uploaded.
func (h *Handler) generate(ctx context.Context, log *slog.Logger, documentID, text string, fn services.ProgressFunc) (*models.PodcastMetadata, error) {
	res, err := h.podcaster.GenerateWithProgress(ctx, documentID, text, fn)
	if err != nil {
		log.Error("podcast generation failed", "kind", apperrors.KindOf(err).String(), "error", err)
		return nil, err
	}

	meta := models.NewPodcastMetadata(documentID, res)
	if err := h.cache.Put(ctx, meta); err != nil {
		log.Warn("could not cache podcast metadata", "error", err)
	}
	return &meta, nil
}

func (h *Handler) logger(c *gin.Context) *slog.Logger {
	if id := c.GetString(RequestIDKey); id != "" {
		return h.log.With("request_id", id)
	}
	return h.log
}

// errorStatus maps a pipeline error to an HTTP status and a message safe to show users.
func errorStatus(err error) (int, string) {
	switch apperrors.KindOf(err) {
	case apperrors.KindArgument:
		return http.StatusBadRequest, "invalid request"
	case apperrors.KindScriptParse, apperrors.KindEmptyScript:
		return http.StatusUnprocessableEntity, "could not write a script for this document"
	case apperrors.KindUpstream, apperrors.KindSynthesis, apperrors.KindUpload:
		return http.StatusBadGateway, "podcast generation failed, please try again"
	case apperrors.KindConfiguration:
		return http.StatusServiceUnavailable, "podcast generation is not available"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "podcast generation timed out"
	}
	return http.StatusInternalServerError, "internal error"
}
