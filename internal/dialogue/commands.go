package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/orderdesk-bot/orderdesk/internal/convo"
	"github.com/orderdesk-bot/orderdesk/internal/nlp"
	"github.com/orderdesk-bot/orderdesk/internal/orders"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
)

// maxMatchCandidates caps how many of a user's tasks are handed to the fuzzy
// matcher in one call.
const maxMatchCandidates = 100

// route dispatches a freshly classified message to the matching operation.
func (e *Engine) route(ctx context.Context, userID string, a *nlp.Analysis, text string) string {
	entity := a.Entity.Canonical()
	switch {
	case a.Intent == nlp.IntentCreate && entity == nlp.EntityTask:
		return e.createTask(ctx, userID, a)
	case a.Intent == nlp.IntentCreate && entity == nlp.EntityOrder:
		return e.createOrder(ctx, userID, a, text)
	case a.Intent == nlp.IntentGet && entity == nlp.EntityTask:
		return e.listTasks(ctx, userID, a)
	case a.Intent == nlp.IntentGet && entity == nlp.EntityOrder:
		return e.listOrders(ctx, userID, a)
	case a.Intent == nlp.IntentUpdate && entity == nlp.EntityTask:
		return e.updateTaskFuzzy(ctx, userID, a, text)
	case a.Intent == nlp.IntentUpdate && entity == nlp.EntityOrder:
		return e.updateOrder(ctx, userID, a, text)
	default:
		return msgHelp
	}
}

func (e *Engine) createTask(ctx context.Context, userID string, a *nlp.Analysis) string {
	title := a.String("title")
	if title == "" {
		title = a.String("task")
	}
	if title == "" {
		return msgTaskTitleNeeded
	}

	now := e.now()
	t := &tasks.Task{
		UserID:      userID,
		Title:       title,
		Description: a.String("description"),
		Status:      tasks.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, key := range []string{"due_date", "date", "when"} {
		if v := a.String(key); v != "" {
			if due := ParseWhen(v, now); due != nil {
				t.DueAt = due
				break
			}
		}
	}

	if err := e.tasks.Create(ctx, t); err != nil {
		e.logger.Error("creating task", "user_id", userID, "error", err)
		return msgTaskCreateFailed
	}
	return renderTaskCreated(t)
}

// createOrder builds a draft from the analysis, runs the duplicate gate, and
// either inserts the order or parks it behind a confirmation. Also the target
// of the forwarded-message override, where the raw text doubles as the
// fulfillment phrase.
func (e *Engine) createOrder(ctx context.Context, userID string, a *nlp.Analysis, text string) string {
	d := orders.Draft{
		Product:     a.String("product"),
		FulfillText: a.String("fulfillment_date"),
	}
	if d.Product == "" {
		d.Product = a.String("item")
	}
	if qty, ok := a.Int("quantity"); ok && qty >= 1 {
		d.Quantity = qty
	} else {
		d.Quantity = 1
	}
	if d.FulfillText == "" {
		for _, key := range []string{"due_date", "date", "when"} {
			if v := a.String(key); v != "" {
				d.FulfillText = v
				break
			}
		}
	}
	if d.FulfillText == "" {
		// Fall back to scanning the whole message for a date phrase.
		d.FulfillText = text
	}

	if err := e.validate.Struct(d); err != nil {
		return msgOrderDetailsNeeded
	}

	now := e.now()
	if fulfillAt := ParseWhen(d.FulfillText, now); fulfillAt != nil {
		existing, err := e.orders.FindPendingDuplicate(ctx, userID, d.Product, d.Quantity, *fulfillAt, e.dupWindow)
		if err != nil {
			e.logger.Error("checking duplicate order", "user_id", userID, "error", err)
		}
		if existing != nil {
			conf := &convo.Confirmation{
				Kind:         convo.ConfirmDuplicateOrder,
				OrderID:      existing.ID,
				OrderDraft:   &d,
				OrderUpdates: &orders.UpdateParams{Quantity: &d.Quantity, FulfillAt: fulfillAt},
				OriginalText: text,
				CreatedAt:    now,
				ExpiresAt:    now.Add(e.dupConfirmTTL),
			}
			if err := e.store.SaveConfirmation(ctx, userID, conf); err != nil {
				e.logger.Error("saving duplicate confirmation", "user_id", userID, "error", err)
				return msgSomethingWrong
			}
			return renderDuplicatePrompt(existing)
		}
	}

	return e.insertOrder(ctx, userID, d)
}

func (e *Engine) insertOrder(ctx context.Context, userID string, d orders.Draft) string {
	now := e.now()
	o := &orders.Order{
		ID:          orders.NewID(),
		UserID:      userID,
		Product:     d.Product,
		Quantity:    d.Quantity,
		Status:      orders.StatusPending,
		FulfillAt:   ParseWhen(d.FulfillText, now),
		FulfillText: d.FulfillText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.orders.Create(ctx, o); err != nil {
		e.logger.Error("creating order", "user_id", userID, "error", err)
		return msgOrderCreateFailed
	}
	return renderOrderCreated(o)
}

func (e *Engine) listTasks(ctx context.Context, userID string, a *nlp.Analysis) string {
	filters := e.cursorFilters(a)

	total, err := e.tasks.CountByUser(ctx, userID, filters.TaskFilters())
	if err != nil {
		e.logger.Error("counting tasks", "user_id", userID, "error", err)
		return msgListFailed
	}
	if total == 0 {
		if filters.Status != "" {
			return fmt.Sprintf("You have no %s tasks.", filters.Status)
		}
		return msgNoTasks
	}

	items, err := e.tasks.ListByUser(ctx, userID, filters.TaskFilters(), e.pageSize, 0)
	if err != nil {
		e.logger.Error("listing tasks", "user_id", userID, "error", err)
		return msgListFailed
	}

	ids := make([]int64, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	e.saveContext(ctx, userID, convo.NewTaskContext(ids, e.now()))

	hasMore := e.resetCursor(ctx, userID, convo.EntityTask, int(total), filters)
	return renderTaskList(items, 0, int(total), hasMore)
}

func (e *Engine) listOrders(ctx context.Context, userID string, a *nlp.Analysis) string {
	if id := strings.ToUpper(a.String("order_id")); id != "" {
		o, err := e.orders.GetByID(ctx, userID, id)
		if err != nil {
			e.logger.Error("fetching order", "user_id", userID, "order_id", id, "error", err)
			return msgListFailed
		}
		if o == nil {
			return fmt.Sprintf("I couldn't find order %s.", id)
		}
		return renderOrderDetail(o)
	}

	filters := e.cursorFilters(a)

	total, err := e.orders.CountByUser(ctx, userID, filters.OrderFilters())
	if err != nil {
		e.logger.Error("counting orders", "user_id", userID, "error", err)
		return msgListFailed
	}
	if total == 0 {
		if filters.Status != "" {
			return fmt.Sprintf("You have no %s orders.", filters.Status)
		}
		return msgNoOrders
	}

	items, err := e.orders.ListByUser(ctx, userID, filters.OrderFilters(), e.pageSize, 0)
	if err != nil {
		e.logger.Error("listing orders", "user_id", userID, "error", err)
		return msgListFailed
	}

	ids := make([]string, len(items))
	for i, o := range items {
		ids[i] = o.ID
	}
	e.saveContext(ctx, userID, convo.NewOrderContext(ids, e.now()))

	hasMore := e.resetCursor(ctx, userID, convo.EntityOrder, int(total), filters)
	return renderOrderList(items, 0, int(total), hasMore)
}

func (e *Engine) cursorFilters(a *nlp.Analysis) convo.CursorFilters {
	f := convo.CursorFilters{Status: canonicalStatus(a.String("status"))}
	now := e.now()
	if v := a.String("start_date"); v != "" {
		f.From = ParseWhen(v, now)
	}
	if v := a.String("end_date"); v != "" {
		f.To = ParseWhen(v, now)
	}
	return f
}

// resetCursor replaces the entity's pagination cursor: saved fresh when more
// pages exist, removed otherwise. Reports whether more pages exist.
func (e *Engine) resetCursor(ctx context.Context, userID string, entity convo.EntityType, total int, filters convo.CursorFilters) bool {
	if total <= e.pageSize {
		if err := e.store.DeleteCursor(ctx, userID, entity); err != nil {
			e.logger.Error("deleting cursor", "user_id", userID, "error", err)
		}
		return false
	}
	cur := &convo.Cursor{
		EntityType: entity,
		Offset:     0,
		Total:      total,
		Filters:    filters,
		ExpiresAt:  e.now().Add(e.cursorTTL),
	}
	if err := e.store.SaveCursor(ctx, userID, cur); err != nil {
		e.logger.Error("saving cursor", "user_id", userID, "error", err)
	}
	return true
}

// updateTaskFuzzy resolves "mark the groceries task as done" style updates by
// asking the matcher to rank the user's tasks against the message. Low
// confidence or ambiguity parks the update behind a yes/no confirmation.
func (e *Engine) updateTaskFuzzy(ctx context.Context, userID string, a *nlp.Analysis, text string) string {
	items, err := e.tasks.ListByUser(ctx, userID, tasks.ListFilters{}, maxMatchCandidates, 0)
	if err != nil {
		e.logger.Error("listing tasks for matching", "user_id", userID, "error", err)
		return msgUpdateFailed
	}
	if len(items) == 0 {
		return msgNoTasks
	}

	updates := e.taskUpdateParams(a, text)
	if updates.IsZero() {
		return msgWhatToChange
	}

	candidates := make([]nlp.TaskSummary, len(items))
	byID := make(map[int64]*tasks.Task, len(items))
	for i, t := range items {
		candidates[i] = nlp.TaskSummary{ID: t.ID, Title: t.Title, Description: t.Description, Status: t.Status}
		byID[t.ID] = t
	}

	res, err := e.classifier.MatchTask(ctx, text, candidates)
	if err != nil {
		e.logger.Error("matching task", "user_id", userID, "error", err)
		return msgClassifierDown
	}
	if res.Best == nil {
		return msgNoMatchingTask
	}

	target := byID[res.Best.TaskID]
	if target == nil {
		return msgNoMatchingTask
	}

	if res.NeedsConfirmation {
		ambiguous := 0
		for _, m := range res.All {
			if m.Confidence > nlp.AmbiguityThreshold {
				ambiguous++
			}
		}
		now := e.now()
		conf := &convo.Confirmation{
			Kind:         convo.ConfirmTaskUpdate,
			TaskID:       target.ID,
			TaskUpdates:  &updates,
			OriginalText: text,
			Candidates:   ambiguous,
			CreatedAt:    now,
			ExpiresAt:    now.Add(e.taskConfirmTTL),
		}
		if err := e.store.SaveConfirmation(ctx, userID, conf); err != nil {
			e.logger.Error("saving task confirmation", "user_id", userID, "error", err)
			return msgSomethingWrong
		}
		return renderTaskMatchPrompt(target, ambiguous > 1)
	}

	t, err := e.tasks.Update(ctx, userID, target.ID, updates)
	if err != nil {
		e.logger.Error("updating task", "user_id", userID, "task_id", target.ID, "error", err)
		return msgUpdateFailed
	}
	if t == nil {
		return msgTaskGone
	}
	return renderTaskUpdated(t)
}

func (e *Engine) updateOrder(ctx context.Context, userID string, a *nlp.Analysis, text string) string {
	id := strings.ToUpper(a.String("order_id"))
	if id == "" {
		id = extractOrderID(text)
	}
	if id == "" {
		return msgOrderIDNeeded
	}

	p := e.orderUpdateParams(a, text)
	if p.IsZero() {
		return msgWhatToChange
	}

	o, err := e.orders.Update(ctx, userID, id, p)
	if err != nil {
		e.logger.Error("updating order", "user_id", userID, "order_id", id, "error", err)
		return msgUpdateFailed
	}
	if o == nil {
		return fmt.Sprintf("I couldn't find order %s.", id)
	}
	return renderOrderUpdated(o)
}
