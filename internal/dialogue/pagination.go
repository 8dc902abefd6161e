package dialogue

import (
	"context"

	"github.com/orderdesk-bot/orderdesk/internal/convo"
)

// nextPage advances the user's live pagination cursor. Without one there is
// nothing to continue and the fixed terminal message is returned; pagination
// never falls through to later stages. The conversational context decides
// which entity's cursor to try first.
func (e *Engine) nextPage(ctx context.Context, userID string) string {
	preferred := []convo.EntityType{convo.EntityTask, convo.EntityOrder}
	if c, err := e.store.LoadContext(ctx, userID); err == nil && c != nil && c.EntityType == convo.EntityOrder {
		preferred = []convo.EntityType{convo.EntityOrder, convo.EntityTask}
	}

	for _, entity := range preferred {
		cur, err := e.store.LoadCursor(ctx, userID, entity)
		if err != nil {
			e.logger.Error("loading cursor", "user_id", userID, "entity", entity, "error", err)
			continue
		}
		if cur == nil {
			continue
		}
		return e.advanceCursor(ctx, userID, cur)
	}
	return msgNoMoreItems
}

func (e *Engine) advanceCursor(ctx context.Context, userID string, cur *convo.Cursor) string {
	offset := cur.Offset + e.pageSize

	if cur.EntityType == convo.EntityOrder {
		items, err := e.orders.ListByUser(ctx, userID, cur.Filters.OrderFilters(), e.pageSize, offset)
		if err != nil {
			e.logger.Error("listing orders page", "user_id", userID, "error", err)
			return msgListFailed
		}
		if len(items) == 0 {
			_ = e.store.DeleteCursor(ctx, userID, cur.EntityType)
			return msgNoMoreItems
		}

		ids := make([]string, len(items))
		for i, o := range items {
			ids[i] = o.ID
		}
		e.saveContext(ctx, userID, convo.NewOrderContext(ids, e.now()))

		hasMore := offset+len(items) < cur.Total
		e.saveOrDropCursor(ctx, userID, cur, offset, hasMore)
		return renderOrderList(items, offset, cur.Total, hasMore)
	}

	items, err := e.tasks.ListByUser(ctx, userID, cur.Filters.TaskFilters(), e.pageSize, offset)
	if err != nil {
		e.logger.Error("listing tasks page", "user_id", userID, "error", err)
		return msgListFailed
	}
	if len(items) == 0 {
		_ = e.store.DeleteCursor(ctx, userID, cur.EntityType)
		return msgNoMoreItems
	}

	ids := make([]int64, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	e.saveContext(ctx, userID, convo.NewTaskContext(ids, e.now()))

	hasMore := offset+len(items) < cur.Total
	e.saveOrDropCursor(ctx, userID, cur, offset, hasMore)
	return renderTaskList(items, offset, cur.Total, hasMore)
}

func (e *Engine) saveOrDropCursor(ctx context.Context, userID string, cur *convo.Cursor, offset int, hasMore bool) {
	if !hasMore {
		if err := e.store.DeleteCursor(ctx, userID, cur.EntityType); err != nil {
			e.logger.Error("deleting cursor", "user_id", userID, "error", err)
		}
		return
	}
	cur.Offset = offset
	cur.ExpiresAt = e.now().Add(e.cursorTTL)
	if err := e.store.SaveCursor(ctx, userID, cur); err != nil {
		e.logger.Error("saving cursor", "user_id", userID, "error", err)
	}
}

func (e *Engine) saveContext(ctx context.Context, userID string, c *convo.Context) {
	if err := e.store.SaveContext(ctx, userID, c); err != nil {
		e.logger.Error("saving context", "user_id", userID, "error", err)
	}
}
