package cache

import (
	"github.com/agentic-research/rota/internal/calendar"
)

// ScrollDirection is the viewport's direction of travel.
type ScrollDirection int

const (
	Stationary ScrollDirection = iota
	Forward
	Backward
)

func (d ScrollDirection) String() string {
	switch d {
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	}
	return "STATIONARY"
}

// ScrollContext is one scroll tick from the viewport notifier.
type ScrollContext struct {
	Direction ScrollDirection
	Velocity  float64 // non-negative scalar, months/second or similar
	Center    calendar.MonthKey
}

// window computes the prefetch window around the center month. Reach
// scales with velocity (1 at rest, up to opts.MaxReach when fast) and
// directional scrolling biases the window ahead of travel: full reach
// in front, one month behind. The result is ordered and includes the
// center.
func window(ctx ScrollContext, opts Options) []calendar.MonthKey {
	reach := 1
	if ctx.Velocity >= opts.VelocityLow {
		reach = 2
	}
	if ctx.Velocity >= opts.VelocityHigh {
		reach = opts.MaxReach
	}

	ahead, behind := reach, reach
	switch ctx.Direction {
	case Forward:
		behind = 1
	case Backward:
		ahead = 1
	}

	keys := make([]calendar.MonthKey, 0, ahead+behind+1)
	for i := -behind; i <= ahead; i++ {
		keys = append(keys, ctx.Center.Add(i))
	}
	return keys
}
