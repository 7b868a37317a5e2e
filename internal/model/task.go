package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrValidation = errors.New("validation error")

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

type Task struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Title         string         `json:"title"`
	Description   *string        `json:"description"`
	Priority      Priority       `json:"priority"`
	Status        Status         `json:"status"`
	DueDate       *time.Time     `json:"due_date"`
	CategoryID    *string        `json:"category_id"`
	IsAIGenerated bool           `json:"is_ai_generated"`
	AIMetadata    map[string]any `json:"ai_metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at"`

	// Joined data
	Category      *CategoryRef   `json:"category,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Priority      *Priority      `json:"priority,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	ClearDueDate  bool           `json:"clear_due_date,omitempty"`
	CategoryID    *string        `json:"category_id,omitempty"` // "" clears the category
	IsAIGenerated *bool          `json:"is_ai_generated,omitempty"`
	AIMetadata    map[string]any `json:"ai_metadata,omitempty"`

	// Set only by the completion path.
	CompletedAt      *time.Time `json:"-"`
	ClearCompletedAt bool       `json:"-"`
	UpdatedAt        time.Time  `json:"-"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.CategoryID == nil && p.IsAIGenerated == nil &&
		p.AIMetadata == nil && p.CompletedAt == nil && !p.ClearCompletedAt
}

// Validate checks the fields a task needs before it is sent to the gateway.
func (t Task) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return nil
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *p.Status)
	}
	return nil
}
