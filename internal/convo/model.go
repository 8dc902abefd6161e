package convo

import (
	"strconv"
	"time"

	"github.com/orderdesk-bot/orderdesk/internal/orders"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
)

// EntityType identifies which entity a piece of conversational state refers to.
type EntityType string

const (
	EntityNone  EntityType = ""
	EntityTask  EntityType = "task"
	EntityOrder EntityType = "order"
)

// Context is the single-slot conversational context for one user: the list the
// bot last showed them, with position maps so "the 3rd one" can be resolved.
// It is overwritten on every list render, never appended.
type Context struct {
	EntityType EntityType `json:"entity_type"`
	// OrderIDs and TaskIDs are ordered exactly as presented to the user.
	OrderIDs []string `json:"order_ids,omitempty"`
	TaskIDs  []int64  `json:"task_ids,omitempty"`
	// Position maps go from 1-based display position (string key) to id and
	// must stay index-aligned with the lists above.
	OrderPositions map[string]string `json:"order_positions,omitempty"`
	TaskPositions  map[string]int64  `json:"task_positions,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewOrderContext builds a Context for a rendered order list, writing the list
// and the position map together so they cannot drift.
func NewOrderContext(ids []string, now time.Time) *Context {
	positions := make(map[string]string, len(ids))
	for i, id := range ids {
		positions[strconv.Itoa(i+1)] = id
	}
	return &Context{
		EntityType:     EntityOrder,
		OrderIDs:       ids,
		OrderPositions: positions,
		UpdatedAt:      now,
	}
}

// NewTaskContext builds a Context for a rendered task list.
func NewTaskContext(ids []int64, now time.Time) *Context {
	positions := make(map[string]int64, len(ids))
	for i, id := range ids {
		positions[strconv.Itoa(i+1)] = id
	}
	return &Context{
		EntityType:    EntityTask,
		TaskIDs:       ids,
		TaskPositions: positions,
		UpdatedAt:     now,
	}
}

// Len returns the number of items in the referenced list.
func (c *Context) Len() int {
	if c.EntityType == EntityOrder {
		return len(c.OrderIDs)
	}
	return len(c.TaskIDs)
}

// OrderAt resolves a 1-based display position to an order id, preferring the
// position map and falling back to the list.
func (c *Context) OrderAt(pos int) (string, bool) {
	if id, ok := c.OrderPositions[strconv.Itoa(pos)]; ok {
		return id, true
	}
	if pos >= 1 && pos <= len(c.OrderIDs) {
		return c.OrderIDs[pos-1], true
	}
	return "", false
}

// TaskAt resolves a 1-based display position to a task id.
func (c *Context) TaskAt(pos int) (int64, bool) {
	if id, ok := c.TaskPositions[strconv.Itoa(pos)]; ok {
		return id, true
	}
	if pos >= 1 && pos <= len(c.TaskIDs) {
		return c.TaskIDs[pos-1], true
	}
	return 0, false
}

// ConfirmationKind distinguishes the two pending-confirmation flows.
type ConfirmationKind string

const (
	ConfirmTaskUpdate     ConfirmationKind = "task_update"
	ConfirmDuplicateOrder ConfirmationKind = "duplicate_order"
)

// Confirmation is an at-most-one-per-user pending question. A new confirmation
// always replaces any prior one; expiry is checked at read time.
type Confirmation struct {
	Kind ConfirmationKind `json:"kind"`

	// Subject of the confirmation: one of the two is set depending on Kind.
	TaskID  int64  `json:"task_id,omitempty"`
	OrderID string `json:"order_id,omitempty"`

	// Pending payloads. TaskUpdates is set for ConfirmTaskUpdate;
	// OrderDraft and OrderUpdates for ConfirmDuplicateOrder.
	TaskUpdates  *tasks.UpdateParams  `json:"task_updates,omitempty"`
	OrderDraft   *orders.Draft        `json:"order_draft,omitempty"`
	OrderUpdates *orders.UpdateParams `json:"order_updates,omitempty"`

	// OriginalText is the raw message that triggered the confirmation,
	// retained for audit and replay.
	OriginalText string `json:"original_text,omitempty"`

	// Candidates is how many fuzzy-match candidates were in play, so the
	// confirmation prompt can mention ambiguity.
	Candidates int `json:"candidates,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the confirmation is past its TTL at the given time.
func (c *Confirmation) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CursorFilters is the filter snapshot saved with a pagination cursor so the
// next page is regenerated consistently.
type CursorFilters struct {
	Status string     `json:"status,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// TaskFilters converts the snapshot to task list filters.
func (f CursorFilters) TaskFilters() tasks.ListFilters {
	return tasks.ListFilters{Status: f.Status, From: f.From, To: f.To}
}

// OrderFilters converts the snapshot to order list filters.
func (f CursorFilters) OrderFilters() orders.ListFilters {
	return orders.ListFilters{Status: f.Status, From: f.From, To: f.To}
}

// Cursor is an at-most-one-per-(user, entity) pagination cursor. Offset is the
// start of the page most recently shown; the next page begins at
// Offset + pageSize. The cursor is deleted once no pages remain.
type Cursor struct {
	EntityType EntityType    `json:"entity_type"`
	Offset     int           `json:"offset"`
	Total      int           `json:"total"`
	Filters    CursorFilters `json:"filters"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Expired reports whether the cursor is past its TTL at the given time.
func (c *Cursor) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
