package smbo

import (
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/smbo/pkg/utils"
)

// Budget bounds a run by proposed evaluations and wall-clock time. A zero
// field is unlimited; at least one must be set. Points of the initial design
// do not consume the iteration budget.
type Budget struct {
	Iterations int
	Time       time.Duration
}

func (b Budget) validate() error {
	if b.Iterations < 0 {
		return fmt.Errorf("iteration budget cannot be negative")
	}
	if b.Time < 0 {
		return fmt.Errorf("time budget cannot be negative")
	}
	if b.Iterations == 0 && b.Time == 0 {
		return fmt.Errorf("an iteration budget or a time budget is required")
	}
	return nil
}

// budgetClock tracks the countdown of a Budget during a run.
type budgetClock struct {
	budget   Budget
	deadline time.Time
	used     int
}

func newBudgetClock(b Budget, start time.Time) *budgetClock {
	c := &budgetClock{budget: b}
	if b.Time > 0 {
		c.deadline = start.Add(b.Time)
	}
	return c
}

// consume records n proposed points.
func (c *budgetClock) consume(n int) {
	c.used += n
}

// remaining returns how many points may still be proposed, or -1 when the
// iteration budget is unlimited.
func (c *budgetClock) remaining() int {
	if c.budget.Iterations == 0 {
		return -1
	}
	return max(c.budget.Iterations-c.used, 0)
}

func (c *budgetClock) iterationsExhausted() bool {
	return c.remaining() == 0
}

func (c *budgetClock) timeExhausted(now time.Time) bool {
	return !c.deadline.IsZero() && !now.Before(c.deadline)
}

// timeLeft returns the time until the deadline, or -1 without a deadline.
func (c *budgetClock) timeLeft(now time.Time) time.Duration {
	if c.deadline.IsZero() {
		return -1
	}
	return utils.Remaining(c.deadline, now)
}
