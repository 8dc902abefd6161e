package dialogue

import (
	"context"
	"regexp"
	"strings"

	"github.com/orderdesk-bot/orderdesk/internal/convo"
	"github.com/orderdesk-bot/orderdesk/internal/orders"
)

var (
	reYes        = regexp.MustCompile(`^(yes|y|yeah|yep|yup|confirm|ok|okay|sure)\b`)
	reNo         = regexp.MustCompile(`^(no|n|nope|nah|cancel)\b`)
	reNewWord    = regexp.MustCompile(`^new\b`)
	reUpdateWord = regexp.MustCompile(`^update\b`)
)

// resolveConfirmation consumes a message while a confirmation is pending.
// Unresolvable input re-prompts and keeps the confirmation alive; only an
// explicit answer (or a vanished subject) clears it.
func (e *Engine) resolveConfirmation(ctx context.Context, userID, text string, conf *convo.Confirmation) string {
	switch conf.Kind {
	case convo.ConfirmDuplicateOrder:
		return e.resolveDuplicateOrder(ctx, userID, text, conf)
	case convo.ConfirmTaskUpdate:
		return e.resolveTaskConfirmation(ctx, userID, text, conf)
	default:
		// Unknown kinds can only come from stale state written by an older
		// build. Drop them rather than trapping the user.
		e.deleteConfirmation(ctx, userID)
		return msgHelp
	}
}

func (e *Engine) resolveDuplicateOrder(ctx context.Context, userID, text string, conf *convo.Confirmation) string {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case reNewWord.MatchString(s):
		e.deleteConfirmation(ctx, userID)
		if conf.OrderDraft == nil {
			return msgOrderCreateFailed
		}
		return e.insertOrder(ctx, userID, *conf.OrderDraft)

	case reUpdateWord.MatchString(s):
		e.deleteConfirmation(ctx, userID)
		p := orders.UpdateParams{}
		if conf.OrderUpdates != nil {
			p = *conf.OrderUpdates
		}
		if p.IsZero() && conf.OrderDraft != nil {
			p.Quantity = &conf.OrderDraft.Quantity
			p.FulfillAt = ParseWhen(conf.OrderDraft.FulfillText, e.now())
		}
		if p.IsZero() {
			return msgWhatToChange
		}
		o, err := e.orders.Update(ctx, userID, conf.OrderID, p)
		if err != nil {
			e.logger.Error("updating order from confirmation", "user_id", userID, "order_id", conf.OrderID, "error", err)
			return msgUpdateFailed
		}
		if o == nil {
			return msgOrderGone
		}
		return renderOrderUpdated(o)

	case reNo.MatchString(s):
		e.deleteConfirmation(ctx, userID)
		return msgKeptExisting

	default:
		return msgDuplicateReprompt
	}
}

func (e *Engine) resolveTaskConfirmation(ctx context.Context, userID, text string, conf *convo.Confirmation) string {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case reYes.MatchString(s):
		e.deleteConfirmation(ctx, userID)
		if conf.TaskUpdates == nil || conf.TaskUpdates.IsZero() {
			return msgNothingChanged
		}
		t, err := e.tasks.Update(ctx, userID, conf.TaskID, *conf.TaskUpdates)
		if err != nil {
			e.logger.Error("updating task from confirmation", "user_id", userID, "task_id", conf.TaskID, "error", err)
			return msgUpdateFailed
		}
		if t == nil {
			return msgTaskGone
		}
		return renderTaskUpdated(t)

	case reNo.MatchString(s):
		e.deleteConfirmation(ctx, userID)
		return msgNothingChanged

	default:
		// Re-ask, unless the subject vanished in the meantime.
		t, err := e.tasks.GetByID(ctx, userID, conf.TaskID)
		if err != nil {
			e.logger.Error("fetching task for re-prompt", "user_id", userID, "task_id", conf.TaskID, "error", err)
			return msgSomethingWrong
		}
		if t == nil {
			e.deleteConfirmation(ctx, userID)
			return msgConfirmExpired
		}
		return renderTaskMatchPrompt(t, conf.Candidates > 1)
	}
}

func (e *Engine) deleteConfirmation(ctx context.Context, userID string) {
	if err := e.store.DeleteConfirmation(ctx, userID); err != nil {
		e.logger.Error("deleting confirmation", "user_id", userID, "error", err)
	}
}
