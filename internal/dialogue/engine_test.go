package dialogue

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk-bot/orderdesk/internal/convo"
	"github.com/orderdesk-bot/orderdesk/internal/nlp"
	"github.com/orderdesk-bot/orderdesk/internal/orders"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
)

const testUser = "15550001234"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type taskRepoStub struct {
	items      []*tasks.Task
	nextID     int64
	listErr    error
	listCalls  int
	bulkIDs    []int64
	bulkStatus string
}

func (s *taskRepoStub) Create(_ context.Context, t *tasks.Task) error {
	s.nextID++
	t.ID = s.nextID
	s.items = append(s.items, t)
	return nil
}

func (s *taskRepoStub) GetByID(_ context.Context, userID string, id int64) (*tasks.Task, error) {
	for _, t := range s.items {
		if t.ID == id && t.UserID == userID {
			return t, nil
		}
	}
	return nil, nil
}

func (s *taskRepoStub) filtered(userID string, f tasks.ListFilters) []*tasks.Task {
	var out []*tasks.Task
	for _, t := range s.items {
		if t.UserID != userID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *taskRepoStub) ListByUser(_ context.Context, userID string, f tasks.ListFilters, limit, offset int) ([]*tasks.Task, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	all := s.filtered(userID, f)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *taskRepoStub) CountByUser(_ context.Context, userID string, f tasks.ListFilters) (int64, error) {
	return int64(len(s.filtered(userID, f))), nil
}

func (s *taskRepoStub) Update(_ context.Context, userID string, id int64, p tasks.UpdateParams) (*tasks.Task, error) {
	for _, t := range s.items {
		if t.ID != id || t.UserID != userID {
			continue
		}
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Status != nil {
			t.Status = *p.Status
		}
		if p.DueAt != nil {
			t.DueAt = p.DueAt
		}
		return t, nil
	}
	return nil, nil
}

func (s *taskRepoStub) BulkUpdateStatus(_ context.Context, userID string, ids []int64, status string) (int64, error) {
	s.bulkIDs, s.bulkStatus = ids, status
	var n int64
	for _, t := range s.items {
		if t.UserID != userID {
			continue
		}
		for _, id := range ids {
			if t.ID == id {
				t.Status = status
				n++
			}
		}
	}
	return n, nil
}

type orderRepoStub struct {
	items      []*orders.Order
	listCalls  int
	bulkIDs    []string
	bulkStatus string
}

func (s *orderRepoStub) Create(_ context.Context, o *orders.Order) error {
	s.items = append(s.items, o)
	return nil
}

func (s *orderRepoStub) GetByID(_ context.Context, userID, id string) (*orders.Order, error) {
	for _, o := range s.items {
		if o.ID == id && o.UserID == userID {
			return o, nil
		}
	}
	return nil, nil
}

func (s *orderRepoStub) filtered(userID string, f orders.ListFilters) []*orders.Order {
	var out []*orders.Order
	for _, o := range s.items {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *orderRepoStub) ListByUser(_ context.Context, userID string, f orders.ListFilters, limit, offset int) ([]*orders.Order, error) {
	s.listCalls++
	all := s.filtered(userID, f)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *orderRepoStub) CountByUser(_ context.Context, userID string, f orders.ListFilters) (int64, error) {
	return int64(len(s.filtered(userID, f))), nil
}

func (s *orderRepoStub) Update(_ context.Context, userID, id string, p orders.UpdateParams) (*orders.Order, error) {
	for _, o := range s.items {
		if o.ID != id || o.UserID != userID {
			continue
		}
		if p.Product != nil {
			o.Product = *p.Product
		}
		if p.Quantity != nil {
			o.Quantity = *p.Quantity
		}
		if p.Status != nil {
			o.Status = *p.Status
		}
		if p.FulfillAt != nil {
			o.FulfillAt = p.FulfillAt
		}
		return o, nil
	}
	return nil, nil
}

func (s *orderRepoStub) BulkUpdateStatus(_ context.Context, userID string, ids []string, status string) (int64, error) {
	s.bulkIDs, s.bulkStatus = ids, status
	var n int64
	for _, o := range s.items {
		if o.UserID != userID {
			continue
		}
		for _, id := range ids {
			if o.ID == id {
				o.Status = status
				n++
			}
		}
	}
	return n, nil
}

func (s *orderRepoStub) FindPendingDuplicate(_ context.Context, userID, product string, quantity int, fulfillAt time.Time, window time.Duration) (*orders.Order, error) {
	for _, o := range s.items {
		if o.UserID != userID || o.Status != orders.StatusPending || o.Quantity != quantity {
			continue
		}
		if !strings.EqualFold(o.Product, product) || o.FulfillAt == nil {
			continue
		}
		d := o.FulfillAt.Sub(fulfillAt)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return o, nil
		}
	}
	return nil, nil
}

type classifierStub struct {
	analysis      *nlp.Analysis
	classifyErr   error
	match         *nlp.MatchResult
	matchErr      error
	classifyCalls int
	matchCalls    int
}

func (s *classifierStub) Classify(_ context.Context, _, _ string) (*nlp.Analysis, error) {
	s.classifyCalls++
	if s.classifyErr != nil {
		return nil, s.classifyErr
	}
	if s.analysis == nil {
		return nlp.UnknownAnalysis(), nil
	}
	return s.analysis, nil
}

func (s *classifierStub) MatchTask(_ context.Context, _ string, _ []nlp.TaskSummary) (*nlp.MatchResult, error) {
	s.matchCalls++
	if s.matchErr != nil {
		return nil, s.matchErr
	}
	if s.match == nil {
		return &nlp.MatchResult{}, nil
	}
	return s.match, nil
}

type testEnv struct {
	engine     *Engine
	tasks      *taskRepoStub
	orders     *orderRepoStub
	store      convo.Store
	classifier *classifierStub
	clock      *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		tasks:      &taskRepoStub{},
		orders:     &orderRepoStub{},
		classifier: &classifierStub{},
		clock:      &fakeClock{t: time.Now()},
	}
	env.store = convo.NewStoreWithClock(client, env.clock.Now)
	env.engine = NewEngine(env.tasks, env.orders, env.store, env.classifier, Options{
		Clock:  env.clock.Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

func (e *testEnv) send(msg Message) string {
	msg.UserID = testUser
	return e.engine.Handle(context.Background(), msg)
}

func (e *testEnv) seedTasks(titles ...string) {
	for _, title := range titles {
		_ = e.tasks.Create(context.Background(), &tasks.Task{
			UserID: testUser, Title: title, Status: tasks.StatusPending,
			CreatedAt: e.clock.Now(), UpdatedAt: e.clock.Now(),
		})
	}
}

func (e *testEnv) seedOrder(id, product string, quantity int, fulfillAt *time.Time) {
	_ = e.orders.Create(context.Background(), &orders.Order{
		ID: id, UserID: testUser, Product: product, Quantity: quantity,
		Status: orders.StatusPending, FulfillAt: fulfillAt,
		CreatedAt: e.clock.Now(), UpdatedAt: e.clock.Now(),
	})
}

func analysis(intent nlp.Intent, entity nlp.EntityType, params map[string]any) *nlp.Analysis {
	if params == nil {
		params = map[string]any{}
	}
	return &nlp.Analysis{Intent: intent, Entity: entity, Params: params}
}

func TestHandle_EmptyTextShowsHelp(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, msgHelp, env.send(Message{Text: "   "}))
	assert.Zero(t, env.classifier.classifyCalls)
}

func TestHandle_ForwardedMessageBecomesOrder(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentCreate, nlp.EntityOrder, map[string]any{
		"product": "rice", "quantity": float64(2), "fulfillment_date": "tomorrow",
	})

	got := env.send(Message{Text: "2 bags of rice for tomorrow pls", Forwarded: true})

	require.Len(t, env.orders.items, 1)
	o := env.orders.items[0]
	assert.Equal(t, "rice", o.Product)
	assert.Equal(t, 2, o.Quantity)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Contains(t, got, "2 x rice")
	assert.Equal(t, 1, env.classifier.classifyCalls)
}

func TestHandle_ForwardedUnclassifiableStillForcedToOrder(t *testing.T) {
	env := newTestEnv(t)

	got := env.send(Message{Text: "fwd: hello there", Forwarded: true})

	// No product could be extracted, so the forced order path asks for one
	// instead of falling through to the help text.
	assert.Equal(t, msgOrderDetailsNeeded, got)
	assert.Empty(t, env.orders.items)
}

func TestHandle_ForwardedGetFallsThroughWithoutReclassifying(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityOrder, nil)
	env.seedOrder("ORD-AAAAAAAA", "rice", 1, nil)

	got := env.send(Message{Text: "my orders", Forwarded: true})

	assert.Contains(t, got, "ORD-AAAAAAAA")
	assert.Equal(t, 1, env.classifier.classifyCalls)
}

func TestHandle_ReplyMarksMultipleOrdersDone(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityOrder, map[string]any{"status": "done"})
	env.seedOrder("ORD-A1111111", "rice", 1, nil)
	env.seedOrder("ORD-B2222222", "beans", 1, nil)
	env.seedOrder("ORD-C3333333", "oil", 1, nil)
	ids := []string{"ORD-A1111111", "ORD-B2222222", "ORD-C3333333"}
	require.NoError(t, env.store.SaveContext(context.Background(), testUser, convo.NewOrderContext(ids, env.clock.Now())))

	got := env.send(Message{Text: "mark 1 and 3 as done", ReplyToID: "wamid.1"})

	assert.Equal(t, "Updated 2 orders to completed.", got)
	assert.Equal(t, []string{"ORD-A1111111", "ORD-C3333333"}, env.orders.bulkIDs)
	assert.Equal(t, orders.StatusCompleted, env.orders.bulkStatus)
	assert.Equal(t, orders.StatusPending, env.orders.items[1].Status)
}

func TestHandle_ReplyBareStatusKeyword(t *testing.T) {
	tests := []struct {
		name        string
		classifyErr error
	}{
		{"classifier says unknown", nil},
		{"classifier unreachable", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.classifier.classifyErr = tt.classifyErr
			env.seedTasks("buy groceries")
			require.NoError(t, env.store.SaveContext(context.Background(), testUser, convo.NewTaskContext([]int64{1}, env.clock.Now())))

			got := env.send(Message{Text: "done", ReplyToID: "wamid.1"})

			assert.Equal(t, "Updated 1 task to completed.", got)
			assert.Equal(t, tasks.StatusCompleted, env.tasks.items[0].Status)
		})
	}
}

func TestHandle_ReplyShowsDetails(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityOrder, nil)
	env.seedOrder("ORD-A1111111", "rice", 1, nil)
	env.seedOrder("ORD-B2222222", "beans", 3, nil)
	ids := []string{"ORD-A1111111", "ORD-B2222222"}
	require.NoError(t, env.store.SaveContext(context.Background(), testUser, convo.NewOrderContext(ids, env.clock.Now())))

	got := env.send(Message{Text: "show me the 2nd", ReplyToID: "wamid.1"})

	assert.Contains(t, got, "Order ORD-B2222222")
	assert.Contains(t, got, "3 x beans")
}

func TestHandle_ReplyUsesListWhenPositionMapDamaged(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityOrder, nil)
	env.seedOrder("ORD-A1111111", "rice", 1, nil)
	env.seedOrder("ORD-B2222222", "beans", 1, nil)
	c := convo.NewOrderContext([]string{"ORD-A1111111", "ORD-B2222222"}, env.clock.Now())
	c.OrderPositions = nil
	require.NoError(t, env.store.SaveContext(context.Background(), testUser, c))

	got := env.send(Message{Text: "details of the second", ReplyToID: "wamid.1"})

	assert.Contains(t, got, "Order ORD-B2222222")
}

func TestHandle_ReplyWithoutContextFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentCreate, nlp.EntityTask, map[string]any{"title": "call supplier"})

	got := env.send(Message{Text: "add a task to call the supplier", ReplyToID: "wamid.9"})

	assert.Contains(t, got, "Task 1 created")
	require.Len(t, env.tasks.items, 1)
}

func TestHandle_NextWithoutCursor(t *testing.T) {
	env := newTestEnv(t)

	got := env.send(Message{Text: "next"})

	assert.Equal(t, "No more items to show. Please request your tasks or orders again.", got)
	assert.Zero(t, env.tasks.listCalls)
	assert.Zero(t, env.orders.listCalls)
	assert.Zero(t, env.classifier.classifyCalls)
}

func TestHandle_PaginationFlow(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityTask, nil)
	env.seedTasks("t1", "t2", "t3", "t4", "t5", "t6", "t7")

	first := env.send(Message{Text: "show my tasks"})
	assert.Contains(t, first, "(1-5 of 7)")
	assert.Contains(t, first, "next")

	second := env.send(Message{Text: "next"})
	assert.Contains(t, second, "(6-7 of 7)")
	assert.NotContains(t, second, "\"next\"")

	// The cursor was consumed by the final page.
	assert.Equal(t, msgNoMoreItems, env.send(Message{Text: "next"}))

	// The context now references the second page.
	c, err := env.store.LoadContext(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []int64{6, 7}, c.TaskIDs)
}

func TestHandle_ReplyAfterPaginationUsesPageNumbers(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityTask, nil)
	env.seedTasks("t1", "t2", "t3", "t4", "t5", "t6", "t7")

	env.send(Message{Text: "show my tasks"})
	second := env.send(Message{Text: "next"})
	assert.Contains(t, second, "(6-7 of 7)")
	// The page numbers its items from 1, in line with the saved positions.
	assert.Contains(t, second, "1. t6")
	assert.Contains(t, second, "2. t7")

	env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityTask, map[string]any{"status": "done"})
	got := env.send(Message{Text: "mark 1 as done", ReplyToID: "wamid.2"})

	assert.Equal(t, "Updated 1 task to completed.", got)
	assert.Equal(t, []int64{6}, env.tasks.bulkIDs)
	assert.Equal(t, tasks.StatusCompleted, env.tasks.items[5].Status)
	assert.Equal(t, tasks.StatusPending, env.tasks.items[6].Status)
}

func TestIsNextRequest(t *testing.T) {
	for _, text := range []string{"next", "Next", "more", "more!", "next page", "next one", "next 5", " next please "} {
		assert.True(t, isNextRequest(text), "text %q", text)
	}
	for _, text := range []string{"more items", "show more", "nexus", "the next one", "done"} {
		assert.False(t, isNextRequest(text), "text %q", text)
	}
}

func TestWantsDetails(t *testing.T) {
	for _, text := range []string{"details please", "more info on the 2nd", "tell me about the first one", "show order 3", "show my tasks"} {
		assert.True(t, wantsDetails(text), "text %q", text)
	}
	for _, text := range []string{"show", "show it", "how about friday", "thinking about it"} {
		assert.False(t, wantsDetails(text), "text %q", text)
	}
}

func TestHandle_ReplyVagueAboutFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder("ORD-A1111111", "rice", 1, nil)
	c := convo.NewOrderContext([]string{"ORD-A1111111"}, env.clock.Now())
	require.NoError(t, env.store.SaveContext(context.Background(), testUser, c))

	got := env.send(Message{Text: "thinking about it", ReplyToID: "wamid.1"})

	// Not a detail request and not an update, so the chain runs to the end.
	assert.Equal(t, msgHelp, got)
}

func TestHandle_NextBeatsPendingConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.seedTasks("t1", "t2", "t3", "t4", "t5", "t6", "t7")
	ctx := context.Background()

	status := tasks.StatusCompleted
	conf := &convo.Confirmation{
		Kind:        convo.ConfirmTaskUpdate,
		TaskID:      1,
		TaskUpdates: &tasks.UpdateParams{Status: &status},
		CreatedAt:   env.clock.Now(),
		ExpiresAt:   env.clock.Now().Add(convo.TaskConfirmTTL),
	}
	require.NoError(t, env.store.SaveConfirmation(ctx, testUser, conf))
	cur := &convo.Cursor{EntityType: convo.EntityTask, Offset: 0, Total: 7, ExpiresAt: env.clock.Now().Add(convo.CursorTTL)}
	require.NoError(t, env.store.SaveCursor(ctx, testUser, cur))

	got := env.send(Message{Text: "next"})

	assert.Contains(t, got, "(6-7 of 7)")
	// The confirmation survived the interleaved page request.
	still, err := env.store.LoadConfirmation(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, int64(1), still.TaskID)
}

func TestHandle_DuplicateOrderGate(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, *time.Time) {
		env := newTestEnv(t)
		fulfillAt := ParseWhen("tomorrow 9am", env.clock.Now())
		require.NotNil(t, fulfillAt)
		env.seedOrder("ORD-EXISTING", "rice", 2, fulfillAt)
		env.classifier.analysis = analysis(nlp.IntentCreate, nlp.EntityOrder, map[string]any{
			"product": "Rice", "quantity": float64(2), "fulfillment_date": "tomorrow 9am",
		})
		got := env.send(Message{Text: "order 2 rice for tomorrow 9am"})
		assert.Contains(t, got, "ORD-EXISTING")
		assert.Len(t, env.orders.items, 1, "no insert before the user decides")
		return env, fulfillAt
	}

	t.Run("new creates a separate order", func(t *testing.T) {
		env, _ := setup(t)
		got := env.send(Message{Text: "new"})
		assert.Contains(t, got, "placed")
		assert.Len(t, env.orders.items, 2)
		conf, err := env.store.LoadConfirmation(context.Background(), testUser)
		require.NoError(t, err)
		assert.Nil(t, conf)
	})

	t.Run("update patches the existing order", func(t *testing.T) {
		env, fulfillAt := setup(t)
		got := env.send(Message{Text: "update it please"})
		assert.Contains(t, got, "ORD-EXISTING")
		assert.Len(t, env.orders.items, 1)
		assert.Equal(t, 2, env.orders.items[0].Quantity)
		assert.Equal(t, *fulfillAt, *env.orders.items[0].FulfillAt)
	})

	t.Run("no keeps things as they are", func(t *testing.T) {
		env, _ := setup(t)
		assert.Equal(t, msgKeptExisting, env.send(Message{Text: "no thanks"}))
		assert.Len(t, env.orders.items, 1)
	})

	t.Run("anything else re-prompts and keeps the confirmation", func(t *testing.T) {
		env, _ := setup(t)
		assert.Equal(t, msgDuplicateReprompt, env.send(Message{Text: "hmm maybe"}))
		conf, err := env.store.LoadConfirmation(context.Background(), testUser)
		require.NoError(t, err)
		require.NotNil(t, conf)
		assert.Equal(t, convo.ConfirmDuplicateOrder, conf.Kind)
	})

	t.Run("repeat of the same message stays idempotent", func(t *testing.T) {
		env, _ := setup(t)
		// The retry hits the live confirmation, not the create path again.
		got := env.send(Message{Text: "order 2 rice for tomorrow 9am"})
		assert.Equal(t, msgDuplicateReprompt, got)
		assert.Len(t, env.orders.items, 1)
	})
}

func TestHandle_TaskMatchConfirmationFlow(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		env.seedTasks("buy groceries", "call accountant")
		env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityTask, map[string]any{"status": "done"})
		env.classifier.match = &nlp.MatchResult{
			Best:              &nlp.TaskMatch{TaskID: 1, Confidence: 0.7},
			All:               []nlp.TaskMatch{{TaskID: 1, Confidence: 0.7}},
			NeedsConfirmation: true,
		}
		got := env.send(Message{Text: "mark the groceries thing as done"})
		assert.Contains(t, got, "task 1")
		assert.Contains(t, got, "buy groceries")
		assert.Equal(t, tasks.StatusPending, env.tasks.items[0].Status, "nothing applied before confirmation")
		return env
	}

	t.Run("yes applies the parked update", func(t *testing.T) {
		env := setup(t)
		got := env.send(Message{Text: "yes"})
		assert.Contains(t, got, "completed")
		assert.Equal(t, tasks.StatusCompleted, env.tasks.items[0].Status)
		conf, err := env.store.LoadConfirmation(context.Background(), testUser)
		require.NoError(t, err)
		assert.Nil(t, conf)
	})

	t.Run("no discards it", func(t *testing.T) {
		env := setup(t)
		assert.Equal(t, msgNothingChanged, env.send(Message{Text: "no"}))
		assert.Equal(t, tasks.StatusPending, env.tasks.items[0].Status)
	})

	t.Run("anything else re-asks", func(t *testing.T) {
		env := setup(t)
		got := env.send(Message{Text: "what?"})
		assert.Contains(t, got, "Did you mean task 1")
		conf, err := env.store.LoadConfirmation(context.Background(), testUser)
		require.NoError(t, err)
		require.NotNil(t, conf)
	})
}

func TestHandle_TaskMatchHighConfidenceAppliesDirectly(t *testing.T) {
	env := newTestEnv(t)
	env.seedTasks("buy groceries")
	env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityTask, map[string]any{"status": "done"})
	env.classifier.match = &nlp.MatchResult{
		Best: &nlp.TaskMatch{TaskID: 1, Confidence: 0.95},
		All:  []nlp.TaskMatch{{TaskID: 1, Confidence: 0.95}},
	}

	got := env.send(Message{Text: "groceries are done"})

	assert.Contains(t, got, "completed")
	assert.Equal(t, tasks.StatusCompleted, env.tasks.items[0].Status)
	conf, err := env.store.LoadConfirmation(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, conf)
}

func TestHandle_ExpiredConfirmationFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	status := tasks.StatusCompleted
	conf := &convo.Confirmation{
		Kind:        convo.ConfirmTaskUpdate,
		TaskID:      1,
		TaskUpdates: &tasks.UpdateParams{Status: &status},
		CreatedAt:   env.clock.Now(),
		ExpiresAt:   env.clock.Now().Add(convo.TaskConfirmTTL),
	}
	require.NoError(t, env.store.SaveConfirmation(context.Background(), testUser, conf))

	env.clock.Advance(convo.TaskConfirmTTL + time.Minute)
	got := env.send(Message{Text: "yes"})

	// "yes" classifies as nothing in particular, so the user gets the help
	// text instead of a stale confirmation firing.
	assert.Equal(t, msgHelp, got)
	assert.Equal(t, 1, env.classifier.classifyCalls)
}

func TestHandle_ClassifierFailureApology(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.classifyErr = context.DeadlineExceeded

	assert.Equal(t, msgClassifierDown, env.send(Message{Text: "add a task"}))
}

func TestHandle_CreateTaskWithDueDate(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentCreate, nlp.EntityTask, map[string]any{
		"title": "call supplier", "due_date": "tomorrow 5pm",
	})

	got := env.send(Message{Text: "remind me to call the supplier tomorrow at 5pm"})

	assert.Contains(t, got, "Task 1 created: call supplier")
	require.Len(t, env.tasks.items, 1)
	now := env.clock.Now()
	want := time.Date(now.Year(), now.Month(), now.Day(), 17, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	require.NotNil(t, env.tasks.items[0].DueAt)
	assert.Equal(t, want, *env.tasks.items[0].DueAt)
}

func TestHandle_ListOrdersSavesContext(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.analysis = analysis(nlp.IntentGet, nlp.EntityOrder, nil)
	env.seedOrder("ORD-A1111111", "rice", 1, nil)
	env.seedOrder("ORD-B2222222", "beans", 2, nil)

	got := env.send(Message{Text: "show my orders"})

	assert.Contains(t, got, "(1-2 of 2)")
	c, err := env.store.LoadContext(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, convo.EntityOrder, c.EntityType)
	assert.Equal(t, "ORD-B2222222", c.OrderPositions["2"])

	// Everything fit on one page, so no cursor was left behind.
	cur, err := env.store.LoadCursor(context.Background(), testUser, convo.EntityOrder)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestHandle_UpdateOrderByID(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder("ORD-A1111111", "rice", 1, nil)

	t.Run("id in parameters", func(t *testing.T) {
		env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityOrder, map[string]any{
			"order_id": "ord-a1111111", "status": "cancelled",
		})
		got := env.send(Message{Text: "cancel that order"})
		assert.Contains(t, got, "ORD-A1111111")
		assert.Equal(t, orders.StatusCancelled, env.orders.items[0].Status)
	})

	t.Run("id only in the text", func(t *testing.T) {
		env.orders.items[0].Status = orders.StatusPending
		env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityOrder, map[string]any{"status": "processing"})
		got := env.send(Message{Text: "move ORD-A1111111 to processing"})
		assert.Contains(t, got, "processing")
		assert.Equal(t, orders.StatusProcessing, env.orders.items[0].Status)
	})

	t.Run("no id anywhere", func(t *testing.T) {
		env.classifier.analysis = analysis(nlp.IntentUpdate, nlp.EntityOrder, map[string]any{"status": "processing"})
		assert.Equal(t, msgOrderIDNeeded, env.send(Message{Text: "set my order to processing"}))
	})
}

func TestHandle_UnknownIntentShowsHelp(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, msgHelp, env.send(Message{Text: "what is the weather like"}))
}
