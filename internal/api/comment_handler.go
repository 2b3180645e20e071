package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/phrazzld/haoping-api/internal/api/shared"
	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/service"
	"github.com/phrazzld/haoping-api/internal/vision"
)

// DefaultMaxUploadBytes bounds a multipart upload when no limit is given.
const DefaultMaxUploadBytes = 20 << 20

// maxUploadFiles is the most images one upload may carry.
const maxUploadFiles = 9

// CommentHandler serves the review endpoints.
type CommentHandler struct {
	reviews        service.ReviewService
	comments       service.CommentService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewCommentHandler creates a CommentHandler.
func NewCommentHandler(
	reviews service.ReviewService,
	comments service.CommentService,
	maxUploadBytes int64,
	logger *slog.Logger,
) *CommentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &CommentHandler{
		reviews:        reviews,
		comments:       comments,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "comment_handler")),
	}
}

// Generate handles POST /api/comments.
func (h *CommentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req GenerateCommentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	images, err := parseImages(req.Images)
	if err != nil {
		respondInvalid(w, r, "Invalid images", err)
		return
	}

	h.generate(w, r, service.GenerationRequest{
		UserID:       userID,
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
		Words:        req.Words,
		Reference:    req.Reference,
		Tone:         req.Tone,
		Keyword:      req.Keyword,
		Images:       images,
	})
}

// GenerateFromImages handles POST /api/comments/image, a multipart upload
// with "files" parts plus keyword, words, tone and categoryId fields.
func (h *CommentHandler) GenerateFromImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge,
				string(service.KindInvalidRequest), "Upload too large", err)
			return
		}
		respondInvalid(w, r, "Invalid multipart form", err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	req := service.GenerationRequest{
		UserID:       userID,
		CategoryName: strings.TrimSpace(r.FormValue("categoryName")),
		Keyword:      r.FormValue("keyword"),
		Reference:    r.FormValue("reference"),
		Tone:         r.FormValue("tone"),
	}

	if raw := strings.TrimSpace(r.FormValue("words")); raw != "" {
		words, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(words) || math.IsInf(words, 0) {
			respondInvalid(w, r, "Invalid words: must be a number", err)
			return
		}
		req.Words = &words
	}
	if raw := strings.TrimSpace(r.FormValue("categoryId")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			respondInvalid(w, r, "Invalid categoryId", err)
			return
		}
		req.CategoryID = id
	}

	files := r.MultipartForm.File["files"]
	if len(files) > maxUploadFiles {
		respondInvalid(w, r, fmt.Sprintf("At most %d images per upload", maxUploadFiles), nil)
		return
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondInvalid(w, r, "Invalid upload", err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			respondInvalid(w, r, "Invalid upload", err)
			return
		}
		if len(data) == 0 {
			continue
		}
		req.Images = append(req.Images, vision.Image{Data: data})
	}

	h.generate(w, r, req)
}

func (h *CommentHandler) generate(w http.ResponseWriter, r *http.Request, req service.GenerationRequest) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	comment, err := h.reviews.Generate(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Info("review generated",
		slog.Int64("comment_id", comment.ID),
		slog.Int64("category_id", comment.CategoryID),
		slog.Int("images", len(req.Images)))

	shared.RespondWithJSON(w, r, http.StatusCreated, GenerateCommentResponse{
		ID:   comment.ID,
		Text: comment.Content,
	})
}

// List handles GET /api/comments; ?template=true lists templates only.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	templatesOnly := false
	if raw := r.URL.Query().Get("template"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondInvalid(w, r, "Invalid template filter", err)
			return
		}
		templatesOnly = v
	}

	comments, err := h.comments.List(r.Context(), userID, templatesOnly)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, commentToResponse(c))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Update handles PUT /api/comments/{id}.
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := handleUserIDAndPathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateCommentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	stored, err := h.comments.SetTemplate(r.Context(), id, userID, *req.IsTemplate)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, UpdateCommentResponse{ID: id, IsTemplate: stored})
}

// Delete handles DELETE /api/comments/{id}.
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := handleUserIDAndPathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.comments.Delete(r.Context(), id, userID); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func commentToResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:           c.ID,
		CategoryID:   c.CategoryID,
		CategoryName: c.CategoryName,
		Content:      c.Content,
		Limit:        c.TargetWords,
		IsTemplate:   c.IsTemplate,
		CreatedAt:    c.CreatedAt,
	}
}
