package tasks

import "time"

// Task statuses. The dialogue layer maps free-text status keywords onto these.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Task is one to-do item owned by a WhatsApp user.
type Task struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UpdateParams is a partial update. Nil fields are left untouched.
// It is also the payload persisted inside a pending confirmation, so it
// must round-trip through JSON.
type UpdateParams struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// IsZero reports whether the update would change nothing.
func (p UpdateParams) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.DueAt == nil
}

// ListFilters narrows ListByUser results.
type ListFilters struct {
	Status string     `json:"status,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}
