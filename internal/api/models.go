package api

import (
	"time"
)

// GenerateCommentRequest is the body of POST /api/comments.
type GenerateCommentRequest struct {
	CategoryID   int64    `json:"categoryId"   validate:"gte=0"`
	CategoryName string   `json:"categoryName" validate:"max=64"`
	Words        *float64 `json:"words"`
	Reference    string   `json:"reference"    validate:"max=2000"`
	Tone         string   `json:"tone"         validate:"max=32"`
	Keyword      string   `json:"keyword"      validate:"max=200"`
	// Images holds URLs or base64 data URIs.
	Images []string `json:"images" validate:"max=9,dive,required"`
}

// GenerateCommentResponse is returned for a stored review.
type GenerateCommentResponse struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// RecognizeRequest is the body of POST /api/dishes/recognize.
type RecognizeRequest struct {
	Images []string `json:"images" validate:"required,min=1,max=9,dive,required"`
}

// RecognizeResponse lists the recognized dishes, the per-image analysis and
// the default category.
type RecognizeResponse struct {
	Dishes       []string        `json:"dishes"`
	Images       []ImageAnalysis `json:"images"`
	CategoryID   int64           `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
}

// ImageAnalysis describes one recognized image. Environment and scenes are
// empty when the vision provider does not describe the photo.
type ImageAnalysis struct {
	Image       string   `json:"image"`
	Dish        string   `json:"dish"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Environment string   `json:"environment,omitempty"`
	Scenes      string   `json:"scenes,omitempty"`
}

// CommentResponse is one saved comment.
type CommentResponse struct {
	ID           int64     `json:"id"`
	CategoryID   int64     `json:"category"`
	CategoryName string    `json:"categoryName"`
	Content      string    `json:"content"`
	Limit        int       `json:"limit"`
	IsTemplate   bool      `json:"isTemplate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UpdateCommentRequest is the body of PUT /api/comments/{id}. IsTemplate is
// the flag as the client currently shows it.
type UpdateCommentRequest struct {
	IsTemplate *bool `json:"isTemplate" validate:"required"`
}

// UpdateCommentResponse carries the stored flag.
type UpdateCommentResponse struct {
	ID         int64 `json:"id"`
	IsTemplate bool  `json:"isTemplate"`
}

// BindPhoneRequest is the body of POST /api/user/phone.
type BindPhoneRequest struct {
	Code string `json:"code" validate:"required"`
}

// BindPhoneResponse returns the bound number.
type BindPhoneResponse struct {
	PhoneNumber string `json:"phoneNumber"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
