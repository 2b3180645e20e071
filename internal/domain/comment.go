package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Word limits for a generated comment.
const (
	MinTargetWords     = 50
	MaxTargetWords     = 800
	DefaultTargetWords = 120
)

var (
	ErrEmptyCommentUserID  = errors.New("comment user ID cannot be empty")
	ErrEmptyCommentContent = errors.New("comment content cannot be empty")
	ErrInvalidTargetWords  = errors.New("comment target words out of range")
)

// Comment is a generated review saved for its author.
type Comment struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	CategoryID   int64     `json:"category"`
	CategoryName string    `json:"categoryName"`
	Content      string    `json:"content"`
	TargetWords  int       `json:"limit"`
	IsTemplate   bool      `json:"isTemplate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewComment builds a validated, unsaved comment.
func NewComment(userID uuid.UUID, category *Category, content string, targetWords int) (*Comment, error) {
	c := &Comment{
		UserID:      userID,
		Content:     strings.TrimSpace(content),
		TargetWords: targetWords,
		CreatedAt:   time.Now().UTC(),
	}
	if category != nil {
		c.CategoryID = category.ID
		c.CategoryName = category.Name
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the comment's invariants.
func (c *Comment) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyCommentUserID)
	}
	if c.CategoryID <= 0 {
		return fmt.Errorf("%w: category %w", ErrValidation, ErrInvalidID)
	}
	if c.Content == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyCommentContent)
	}
	if c.TargetWords < MinTargetWords || c.TargetWords > MaxTargetWords {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidTargetWords)
	}
	return nil
}
