// Package dialogue is the conversational core of the bot. Every inbound
// message runs through a fixed priority chain: forwarded-message override,
// reply-to-message resolution, pagination, pending confirmation, and finally
// fresh intent classification. Earlier stages either fully handle the message
// or fall through; the ordering is load-bearing ("next" must win over a live
// confirmation) and must not be rearranged.
package dialogue

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/orderdesk-bot/orderdesk/internal/convo"
	"github.com/orderdesk-bot/orderdesk/internal/metrics"
	"github.com/orderdesk-bot/orderdesk/internal/nlp"
	"github.com/orderdesk-bot/orderdesk/internal/orders"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
)

const (
	DefaultPageSize        = 5
	DefaultDuplicateWindow = 60 * time.Second
)

// Message is one normalized inbound message. Text is already transcribed,
// described or translated by the time it reaches the engine; OriginalText
// carries the pre-translation variant when that happened.
type Message struct {
	UserID       string
	Text         string
	OriginalText string
	ReplyToID    string
	Forwarded    bool
}

// Engine routes messages to task and order operations. All collaborator
// failures are absorbed here: Handle always returns something sendable.
type Engine struct {
	tasks      tasks.Repository
	orders     orders.Repository
	store      convo.Store
	classifier nlp.Classifier
	validate   *validator.Validate
	logger     *slog.Logger

	pageSize       int
	dupWindow      time.Duration
	taskConfirmTTL time.Duration
	dupConfirmTTL  time.Duration
	cursorTTL      time.Duration
	now            func() time.Time
}

// Options tune the engine; zero values fall back to the defaults above.
type Options struct {
	PageSize            int
	DuplicateWindow     time.Duration
	TaskConfirmTTL      time.Duration
	DuplicateConfirmTTL time.Duration
	CursorTTL           time.Duration
	Clock               func() time.Time
	Logger              *slog.Logger
}

func NewEngine(t tasks.Repository, o orders.Repository, s convo.Store, c nlp.Classifier, opts Options) *Engine {
	e := &Engine{
		tasks:          t,
		orders:         o,
		store:          s,
		classifier:     c,
		validate:       validator.New(),
		logger:         opts.Logger,
		pageSize:       opts.PageSize,
		dupWindow:      opts.DuplicateWindow,
		taskConfirmTTL: opts.TaskConfirmTTL,
		dupConfirmTTL:  opts.DuplicateConfirmTTL,
		cursorTTL:      opts.CursorTTL,
		now:            opts.Clock,
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "dialogue")
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	if e.dupWindow <= 0 {
		e.dupWindow = DefaultDuplicateWindow
	}
	if e.taskConfirmTTL <= 0 {
		e.taskConfirmTTL = convo.TaskConfirmTTL
	}
	if e.dupConfirmTTL <= 0 {
		e.dupConfirmTTL = convo.DuplicateConfirmTTL
	}
	if e.cursorTTL <= 0 {
		e.cursorTTL = convo.CursorTTL
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Handle runs one message through the priority chain and returns the reply
// text. It never returns an empty string.
func (e *Engine) Handle(ctx context.Context, msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return msgHelp
	}

	// Classification from an earlier stage is reused so the model is called
	// at most once per message.
	var analysis *nlp.Analysis

	// Stage 1: a forwarded message that classifies as create (or not at all)
	// is treated as an order forwarded from a customer.
	if msg.Forwarded {
		a := e.classify(ctx, msg, text)
		if a == nil {
			return msgClassifierDown
		}
		if a.Intent == nlp.IntentCreate || a.Intent == nlp.IntentUnknown {
			metrics.MessagesHandledTotal.WithLabelValues("forwarded").Inc()
			return e.createOrder(ctx, msg.UserID, a, text)
		}
		analysis = a
	}

	// Stage 2: a reply to one of our list messages is resolved against the
	// stored conversational context.
	if msg.ReplyToID != "" {
		if reply, handled := e.resolveReply(ctx, msg, text, &analysis); handled {
			metrics.MessagesHandledTotal.WithLabelValues("reply").Inc()
			return reply
		}
	}

	// Stage 3: pagination always wins over a pending confirmation so a user
	// paging through a list is never hijacked mid-scroll.
	if isNextRequest(text) {
		metrics.MessagesHandledTotal.WithLabelValues("pagination").Inc()
		return e.nextPage(ctx, msg.UserID)
	}

	// Stage 4: a live confirmation consumes the message.
	conf, err := e.store.LoadConfirmation(ctx, msg.UserID)
	if err != nil {
		e.logger.Error("loading confirmation", "user_id", msg.UserID, "error", err)
	}
	if conf != nil {
		metrics.MessagesHandledTotal.WithLabelValues("confirmation").Inc()
		return e.resolveConfirmation(ctx, msg.UserID, text, conf)
	}

	// Stage 5: fresh classification.
	if analysis == nil {
		analysis = e.classify(ctx, msg, text)
		if analysis == nil {
			return msgClassifierDown
		}
	}
	metrics.MessagesHandledTotal.WithLabelValues("fresh").Inc()
	return e.route(ctx, msg.UserID, analysis, text)
}

func (e *Engine) classify(ctx context.Context, msg Message, text string) *nlp.Analysis {
	a, err := e.classifier.Classify(ctx, text, msg.OriginalText)
	if err != nil {
		e.logger.Error("classifying message", "user_id", msg.UserID, "error", err)
		return nil
	}
	return a
}

// A pagination request is the bare word "more" or anything starting with
// "next" ("next", "next one", "next 5").
var reNext = regexp.MustCompile(`^(more[.!?]*|next\b.*)$`)

func isNextRequest(text string) bool {
	return reNext.MatchString(strings.ToLower(strings.TrimSpace(text)))
}

var reStatusKeyword = regexp.MustCompile(`\b(done|completed|complete|processing|pending|cancelled|canceled|cancel)\b`)

// statusKeyword maps a free-text status word to a canonical status. Used as a
// fallback when classification could not work out what a short reply meant.
func statusKeyword(text string) (string, bool) {
	m := reStatusKeyword.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return "", false
	}
	return canonicalStatus(m[1]), true
}

// canonicalStatus folds the spellings users and the model produce onto the
// four stored statuses. Unrecognized input maps to empty.
func canonicalStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "done", "complete", "completed", "finished":
		return tasks.StatusCompleted
	case "processing", "in progress", "in_progress", "started":
		return tasks.StatusProcessing
	case "pending", "open", "todo":
		return tasks.StatusPending
	case "cancel", "cancelled", "canceled":
		return tasks.StatusCancelled
	default:
		return ""
	}
}

// resolveReply handles a message that replies to one of our own messages.
// The second return value is false when there is no usable context and the
// chain should continue.
func (e *Engine) resolveReply(ctx context.Context, msg Message, text string, cached **nlp.Analysis) (string, bool) {
	c, err := e.store.LoadContext(ctx, msg.UserID)
	if err != nil {
		e.logger.Error("loading context", "user_id", msg.UserID, "error", err)
		return "", false
	}
	if c == nil || c.EntityType == convo.EntityNone || c.Len() == 0 {
		return "", false
	}

	a := *cached
	if a == nil {
		var cerr error
		a, cerr = e.classifier.Classify(ctx, text, msg.OriginalText)
		if cerr != nil {
			// The keyword fallback below can still rescue a short reply
			// like "done" even when the model is unreachable.
			e.logger.Warn("classifying reply", "user_id", msg.UserID, "error", cerr)
			a = nlp.UnknownAnalysis()
		}
		*cached = a
	}

	intent := a.Intent
	status := canonicalStatus(a.String("status"))
	if intent == nlp.IntentUnknown {
		if kw, ok := statusKeyword(text); ok {
			intent, status = nlp.IntentUpdate, kw
		}
	}

	switch {
	case intent == nlp.IntentUpdate:
		return e.applyReplyUpdate(ctx, msg.UserID, text, c, a, status), true
	case intent == nlp.IntentGet || wantsDetails(text):
		return e.replyDetails(ctx, msg.UserID, text, c), true
	default:
		return "", false
	}
}

var (
	reDetailWord = regexp.MustCompile(`\b(details?|info|information)\b|\btell me about\b`)
	reShowWord   = regexp.MustCompile(`\bshow\b`)
	reEntityWord = regexp.MustCompile(`\b(orders?|tasks?)\b`)
)

// wantsDetails recognizes a detail request. A bare "show" or "about" is not
// enough on its own; "show" must name an order or task.
func wantsDetails(text string) bool {
	t := strings.ToLower(text)
	if reDetailWord.MatchString(t) {
		return true
	}
	return reShowWord.MatchString(t) && reEntityWord.MatchString(t)
}

// applyReplyUpdate applies an update to the referenced positions of the last
// shown list. With no positions mentioned the update covers every listed item.
func (e *Engine) applyReplyUpdate(ctx context.Context, userID, text string, c *convo.Context, a *nlp.Analysis, status string) string {
	positions := ResolveMultiple(text, c.Len())
	if len(positions) == 0 {
		positions = make([]int, c.Len())
		for i := range positions {
			positions[i] = i + 1
		}
	}

	if status == "" {
		// Not a status change; a single target can still take a field
		// update like a new due date.
		if len(positions) == 1 {
			return e.applyReplyFieldUpdate(ctx, userID, text, c, a, positions[0])
		}
		return msgWhatToChange
	}

	if c.EntityType == convo.EntityOrder {
		ids := make([]string, 0, len(positions))
		for _, pos := range positions {
			if id, ok := c.OrderAt(pos); ok {
				ids = append(ids, id)
			}
		}
		n, err := e.orders.BulkUpdateStatus(ctx, userID, ids, status)
		if err != nil {
			e.logger.Error("bulk updating orders", "user_id", userID, "error", err)
			return msgUpdateFailed
		}
		return renderBulkResult(n, "order", status)
	}

	ids := make([]int64, 0, len(positions))
	for _, pos := range positions {
		if id, ok := c.TaskAt(pos); ok {
			ids = append(ids, id)
		}
	}
	n, err := e.tasks.BulkUpdateStatus(ctx, userID, ids, status)
	if err != nil {
		e.logger.Error("bulk updating tasks", "user_id", userID, "error", err)
		return msgUpdateFailed
	}
	return renderBulkResult(n, "task", status)
}

func (e *Engine) applyReplyFieldUpdate(ctx context.Context, userID, text string, c *convo.Context, a *nlp.Analysis, pos int) string {
	if c.EntityType == convo.EntityOrder {
		p := e.orderUpdateParams(a, text)
		if p.IsZero() {
			return msgWhatToChange
		}
		id, ok := c.OrderAt(pos)
		if !ok {
			return msgWhichOne
		}
		o, err := e.orders.Update(ctx, userID, id, p)
		if err != nil {
			e.logger.Error("updating order", "user_id", userID, "order_id", id, "error", err)
			return msgUpdateFailed
		}
		if o == nil {
			return msgOrderGone
		}
		return renderOrderUpdated(o)
	}

	p := e.taskUpdateParams(a, text)
	if p.IsZero() {
		return msgWhatToChange
	}
	id, ok := c.TaskAt(pos)
	if !ok {
		return msgWhichOne
	}
	t, err := e.tasks.Update(ctx, userID, id, p)
	if err != nil {
		e.logger.Error("updating task", "user_id", userID, "task_id", id, "error", err)
		return msgUpdateFailed
	}
	if t == nil {
		return msgTaskGone
	}
	return renderTaskUpdated(t)
}

// replyDetails shows the detail view for the single referenced item.
func (e *Engine) replyDetails(ctx context.Context, userID, text string, c *convo.Context) string {
	pos, ok := ResolveSingle(text, c.Len())
	if !ok {
		if c.Len() != 1 {
			return msgWhichOne
		}
		pos = 1
	}

	if c.EntityType == convo.EntityOrder {
		id, _ := c.OrderAt(pos)
		o, err := e.orders.GetByID(ctx, userID, id)
		if err != nil {
			e.logger.Error("fetching order", "user_id", userID, "order_id", id, "error", err)
			return msgListFailed
		}
		if o == nil {
			return msgOrderGone
		}
		return renderOrderDetail(o)
	}

	id, _ := c.TaskAt(pos)
	t, err := e.tasks.GetByID(ctx, userID, id)
	if err != nil {
		e.logger.Error("fetching task", "user_id", userID, "task_id", id, "error", err)
		return msgListFailed
	}
	if t == nil {
		return msgTaskGone
	}
	return renderTaskDetail(t)
}

func (e *Engine) taskUpdateParams(a *nlp.Analysis, text string) tasks.UpdateParams {
	p := tasks.UpdateParams{}
	if s := canonicalStatus(a.String("status")); s != "" {
		p.Status = &s
	} else if kw, ok := statusKeyword(text); ok {
		p.Status = &kw
	}
	if v := a.String("new_title"); v != "" {
		p.Title = &v
	}
	if v := a.String("description"); v != "" {
		p.Description = &v
	}
	for _, key := range []string{"due_date", "date", "when"} {
		if v := a.String(key); v != "" {
			if due := ParseWhen(v, e.now()); due != nil {
				p.DueAt = due
				break
			}
		}
	}
	return p
}

func (e *Engine) orderUpdateParams(a *nlp.Analysis, text string) orders.UpdateParams {
	p := orders.UpdateParams{}
	if s := canonicalStatus(a.String("status")); s != "" {
		p.Status = &s
	} else if kw, ok := statusKeyword(text); ok {
		p.Status = &kw
	}
	if qty, ok := a.Int("quantity"); ok && qty >= 1 {
		p.Quantity = &qty
	}
	for _, key := range []string{"fulfillment_date", "due_date", "date", "when"} {
		if v := a.String(key); v != "" {
			if at := ParseWhen(v, e.now()); at != nil {
				p.FulfillAt = at
				break
			}
		}
	}
	return p
}
