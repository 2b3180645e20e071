package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/haoping-api/internal/api/shared"
	"github.com/phrazzld/haoping-api/internal/service"
)

// DishHandler serves image analysis without generation.
type DishHandler struct {
	reviews service.ReviewService
	logger  *slog.Logger
}

// NewDishHandler creates a DishHandler.
func NewDishHandler(reviews service.ReviewService, logger *slog.Logger) *DishHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DishHandler{reviews: reviews, logger: logger.With(slog.String("component", "dish_handler"))}
}

// Recognize handles POST /api/dishes/recognize.
func (h *DishHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req RecognizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	images, err := parseImages(req.Images)
	if err != nil {
		respondInvalid(w, r, "Invalid images", err)
		return
	}

	rec, err := h.reviews.Recognize(r.Context(), images)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := RecognizeResponse{Dishes: rec.Dishes, Images: make([]ImageAnalysis, 0, len(rec.Images))}
	for _, img := range rec.Images {
		resp.Images = append(resp.Images, ImageAnalysis{
			Image:       img.Source,
			Dish:        img.Label,
			Confidence:  img.Confidence,
			Environment: img.Environment,
			Scenes:      img.Scenes,
		})
	}
	if rec.Category != nil {
		resp.CategoryID = rec.Category.ID
		resp.CategoryName = rec.Category.Name
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
