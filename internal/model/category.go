package model

import (
	"fmt"
	"strings"
	"time"
)

const DefaultCategoryColor = "#6366f1"

type Category struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryRef is the slice of a category joined onto a task.
type CategoryRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type CategoryPatch struct {
	Name      *string   `json:"name,omitempty"`
	Color     *string   `json:"color,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
