package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyCategoryName = errors.New("category name cannot be empty")

// Category is a node in the review category tree. Top-level categories such
// as 美食 are broad umbrellas; children name specific kinds of venue.
type Category struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Keyword    string `json:"keyword,omitempty"`
	ParentID   *int64 `json:"parentId,omitempty"`
	Icon       string `json:"icon,omitempty"`
	ActiveIcon string `json:"activeIcon,omitempty"`
	UseCount   int64  `json:"useCount"`
}

// IsUmbrella reports whether the category sits at the top of the tree.
func (c *Category) IsUmbrella() bool {
	return c.ParentID == nil
}

// Validate checks the fields required for storage.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyCategoryName)
	}
	if c.ParentID != nil && *c.ParentID <= 0 {
		return fmt.Errorf("%w: parent %w", ErrValidation, ErrInvalidID)
	}
	return nil
}
