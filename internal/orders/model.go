package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Order is one customer order owned by a WhatsApp user. IDs are short
// human-readable strings because they are shown to users in chat.
type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Product     string     `json:"product"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status"`
	FulfillAt   *time.Time `json:"fulfill_at,omitempty"`
	FulfillText string     `json:"fulfill_text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewID generates an order id like "ORD-3F2A9C1B".
func NewID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "ORD-" + raw[:8]
}

// Draft holds the fields of an order that has not been inserted yet.
// FulfillText keeps the user's original free-text date so downstream date
// parsing is reapplied consistently when the draft is finally created.
type Draft struct {
	Product     string `json:"product" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gte=1"`
	FulfillText string `json:"fulfill_text,omitempty"`
}

// UpdateParams is a partial update. Nil fields are left untouched.
type UpdateParams struct {
	Product   *string    `json:"product,omitempty"`
	Quantity  *int       `json:"quantity,omitempty"`
	Status    *string    `json:"status,omitempty"`
	FulfillAt *time.Time `json:"fulfill_at,omitempty"`
}

// IsZero reports whether the update would change nothing.
func (p UpdateParams) IsZero() bool {
	return p.Product == nil && p.Quantity == nil && p.Status == nil && p.FulfillAt == nil
}

// ListFilters narrows ListByUser results.
type ListFilters struct {
	Status string     `json:"status,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}
