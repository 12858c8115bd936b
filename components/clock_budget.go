package components

import (
	"context"
	"fmt"
	"time"

	"github.com/martinemde/autocycle/unifiedllm"
)

// BudgetSource reports API spending. *unifiedllm.Budget implements it.
type BudgetSource interface {
	Total() float64
	Remaining() float64
}

// ClockBudgetComponent tells the model the current time and, when a budget is
// set, how much of it is left.
type ClockBudgetComponent struct {
	budget BudgetSource
	now    func() time.Time
}

// NewClockBudgetComponent creates the component. budget may be nil.
func NewClockBudgetComponent(budget BudgetSource) *ClockBudgetComponent {
	return &ClockBudgetComponent{budget: budget, now: time.Now}
}

func (c *ClockBudgetComponent) Name() string { return "clock_budget" }

func (c *ClockBudgetComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	msgs := []unifiedllm.Message{
		unifiedllm.SystemMessage("The current time and date is " + c.now().Format("Mon Jan _2 15:04:05 2006")),
	}
	if c.budget == nil || c.budget.Total() <= 0 {
		return msgs, nil
	}
	return append(msgs, unifiedllm.SystemMessage(BudgetMessage(c.budget.Remaining()))), nil
}

// BudgetMessage renders the remaining budget with a warning that escalates as
// it runs out.
func BudgetMessage(remaining float64) string {
	if remaining < 0 {
		remaining = 0
	}
	msg := fmt.Sprintf("Your remaining API budget is $%.3f", remaining)
	switch {
	case remaining == 0:
		msg += " BUDGET EXCEEDED! SHUT DOWN!\n\n"
	case remaining < 0.005:
		msg += " Budget very nearly exceeded! Shut down gracefully!\n\n"
	case remaining < 0.01:
		msg += " Budget nearly exceeded. Finish up.\n\n"
	}
	return msg
}
