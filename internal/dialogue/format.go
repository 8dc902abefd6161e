package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/orderdesk-bot/orderdesk/internal/orders"
	"github.com/orderdesk-bot/orderdesk/internal/tasks"
)

// Every string the bot sends lives here so wording stays consistent across
// stages and tests can assert on it.

const (
	msgNoMoreItems = "No more items to show. Please request your tasks or orders again."

	msgClassifierDown = "Sorry, I couldn't process that message right now. Please try again."
	msgSomethingWrong = "Sorry, something went wrong on our side. Please try again."

	msgHelp = "I can help you manage tasks and orders. Try:\n" +
		"- \"add a task to call the supplier tomorrow\"\n" +
		"- \"order 2 bags of rice for friday\"\n" +
		"- \"show my pending orders\"\n" +
		"- \"mark task 3 as done\"\n" +
		"You can also reply to one of my lists with a number, or forward me an order message."

	msgWhichOne = "Which one do you mean? Reply with its number from the list."

	msgTaskCreateFailed  = "Sorry, I couldn't create that task. Please try again."
	msgOrderCreateFailed = "Sorry, I couldn't create that order. Please try again."
	msgUpdateFailed      = "Sorry, I couldn't apply that update. Please try again."
	msgListFailed        = "Sorry, I couldn't fetch your items right now. Please try again."

	msgNoTasks  = "You have no tasks yet. Send me something like \"add a task to call the supplier tomorrow\"."
	msgNoOrders = "You have no orders yet. Send me something like \"order 2 bags of rice for friday\"."

	msgNoMatchingTask = "I couldn't find a task matching that. Try \"show my tasks\" and reply with a number."

	msgConfirmExpired = "That confirmation has expired. Please start again."

	msgNothingChanged = "Okay, I won't change anything."
	msgKeptExisting   = "Okay, I kept your existing order unchanged."

	msgDuplicateReprompt = "Please reply \"new\" to create a separate order or \"update\" to change the existing one."

	msgOrderIDNeeded = "Please include the order ID you want to change (for example ORD-1A2B3C4D), or show your orders and reply with a number."

	msgWhatToChange = "What would you like to change? You can set a status, a new date, or new details."

	msgTaskGone  = "I couldn't find that task anymore. Try \"show my tasks\" for a fresh list."
	msgOrderGone = "I couldn't find that order anymore. Try \"show my orders\" for a fresh list."

	msgTaskTitleNeeded = "What should the task say? For example: \"add a task to call the supplier tomorrow\"."

	msgOrderDetailsNeeded = "What would you like to order, and how many? For example: \"order 2 bags of rice for friday\"."
)

func formatWhen(t *time.Time) string {
	if t == nil {
		return ""
	}
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("Mon, 02 Jan 2006")
	}
	return t.Format("Mon, 02 Jan 2006 15:04")
}

// List items are labeled 1..pageSize regardless of the page, matching the
// position map stored for the page so a reply with a visible number always
// resolves to the item next to it.
func renderTaskList(items []*tasks.Task, offset, total int, hasMore bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your tasks (%d-%d of %d):\n", offset+1, offset+len(items), total)
	for i, t := range items {
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, t.Title, t.Status)
		if t.DueAt != nil {
			fmt.Fprintf(&b, " due %s", formatWhen(t.DueAt))
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with a number to work on one")
	if hasMore {
		b.WriteString(", or \"next\" for more")
	}
	b.WriteString(".")
	return b.String()
}

func renderOrderList(items []*orders.Order, offset, total int, hasMore bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your orders (%d-%d of %d):\n", offset+1, offset+len(items), total)
	for i, o := range items {
		fmt.Fprintf(&b, "%d. %s: %d x %s [%s]", i+1, o.ID, o.Quantity, o.Product, o.Status)
		if o.FulfillAt != nil {
			fmt.Fprintf(&b, " for %s", formatWhen(o.FulfillAt))
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with a number to work on one")
	if hasMore {
		b.WriteString(", or \"next\" for more")
	}
	b.WriteString(".")
	return b.String()
}

func renderTaskDetail(t *tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %d: %s\nStatus: %s\n", t.ID, t.Title, t.Status)
	if t.Description != "" {
		fmt.Fprintf(&b, "Notes: %s\n", t.Description)
	}
	if t.DueAt != nil {
		fmt.Fprintf(&b, "Due: %s\n", formatWhen(t.DueAt))
	}
	fmt.Fprintf(&b, "Created: %s", formatWhen(&t.CreatedAt))
	return b.String()
}

func renderOrderDetail(o *orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n%d x %s\nStatus: %s\n", o.ID, o.Quantity, o.Product, o.Status)
	if o.FulfillAt != nil {
		fmt.Fprintf(&b, "Fulfillment: %s\n", formatWhen(o.FulfillAt))
	}
	fmt.Fprintf(&b, "Placed: %s", formatWhen(&o.CreatedAt))
	return b.String()
}

func renderTaskCreated(t *tasks.Task) string {
	if t.DueAt != nil {
		return fmt.Sprintf("Task %d created: %s, due %s.", t.ID, t.Title, formatWhen(t.DueAt))
	}
	return fmt.Sprintf("Task %d created: %s.", t.ID, t.Title)
}

func renderOrderCreated(o *orders.Order) string {
	if o.FulfillAt != nil {
		return fmt.Sprintf("Order %s placed: %d x %s for %s.", o.ID, o.Quantity, o.Product, formatWhen(o.FulfillAt))
	}
	return fmt.Sprintf("Order %s placed: %d x %s.", o.ID, o.Quantity, o.Product)
}

func renderTaskUpdated(t *tasks.Task) string {
	return fmt.Sprintf("Task %d (%s) updated, now %s.", t.ID, t.Title, t.Status)
}

func renderOrderUpdated(o *orders.Order) string {
	if o.FulfillAt != nil {
		return fmt.Sprintf("Order %s updated: %d x %s [%s] for %s.", o.ID, o.Quantity, o.Product, o.Status, formatWhen(o.FulfillAt))
	}
	return fmt.Sprintf("Order %s updated: %d x %s [%s].", o.ID, o.Quantity, o.Product, o.Status)
}

func renderBulkResult(n int64, noun, status string) string {
	if n == 0 {
		return "Nothing matched, so nothing was changed."
	}
	if n == 1 {
		return fmt.Sprintf("Updated 1 %s to %s.", noun, status)
	}
	return fmt.Sprintf("Updated %d %ss to %s.", n, noun, status)
}

func renderDuplicatePrompt(existing *orders.Order) string {
	return fmt.Sprintf(
		"You already have a pending order for %d x %s (%s) at that time. Reply \"new\" to place it anyway, \"update\" to change the existing order, or \"no\" to leave things as they are.",
		existing.Quantity, existing.Product, existing.ID)
}

func renderTaskMatchPrompt(t *tasks.Task, ambiguous bool) string {
	if ambiguous {
		return fmt.Sprintf("A few tasks look similar. Did you mean task %d: %q? Reply yes or no.", t.ID, t.Title)
	}
	return fmt.Sprintf("Did you mean task %d: %q? Reply yes or no.", t.ID, t.Title)
}
