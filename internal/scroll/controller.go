// Package scroll decides whether a growing transcript view should follow
// the newest message or leave the viewport alone and offer a "jump to
// latest" affordance to a reader who scrolled up.
package scroll

import (
	"sync"
	"time"
)

const (
	DefaultThreshold = 150
	DefaultSettle    = 500 * time.Millisecond
)

// Metrics describes the scroll container at the time of a scroll event.
// Units are whatever the view uses (pixels in a browser, lines in a TUI).
type Metrics struct {
	ScrollHeight int
	ScrollTop    int
	ClientHeight int
}

// DistanceFromBottom is how far the viewport's bottom edge is from the end
// of the content.
func (m Metrics) DistanceFromBottom() int {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// Decision is what the view should do after the message list grew.
type Decision int

const (
	// Hold leaves the viewport where it is.
	Hold Decision = iota
	// AutoScroll scrolls to the newest message.
	AutoScroll
	// ShowJump leaves the viewport and shows the jump-to-latest affordance.
	ShowJump
)

func (d Decision) String() string {
	switch d {
	case AutoScroll:
		return "auto-scroll"
	case ShowJump:
		return "show-jump"
	default:
		return "hold"
	}
}

// Stopper cancels a pending settle timer.
type Stopper interface {
	Stop() bool
}

// Controller tracks whether the reader is pinned to the bottom.
type Controller struct {
	// Threshold is the distance from the bottom under which the reader
	// counts as "near bottom".
	Threshold int
	// Settle is how long a programmatic scroll is assumed to take. Scroll
	// events during that window are the animation's own and are ignored.
	Settle time.Duration
	// AfterFunc schedules the end of the settle window. Defaults to
	// time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Stopper

	mu            sync.Mutex
	autoScrolling bool
	scrolledAway  bool
	jumpVisible   bool
	settleTimer   Stopper
	generation    int
}

// New returns a controller with the given threshold and settle window.
func New(threshold int, settle time.Duration) *Controller {
	return &Controller{Threshold: threshold, Settle: settle}
}

// OnScroll handles a scroll event from the view.
func (c *Controller) OnScroll(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.autoScrolling {
		return
	}
	if m.DistanceFromBottom() < c.Threshold {
		c.scrolledAway = false
		c.jumpVisible = false
		return
	}
	c.scrolledAway = true
	c.jumpVisible = true
}

// OnGrowth is called after the message list grew. inFlight is true while a
// request the user is waiting on has not resolved yet.
func (c *Controller) OnGrowth(inFlight bool) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scrolledAway {
		c.jumpVisible = true
		return ShowJump
	}
	if inFlight {
		return Hold
	}
	return AutoScroll
}

// BeginAutoScroll marks a programmatic scroll as in flight. The flag clears
// itself after the settle window.
func (c *Controller) BeginAutoScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoScrolling = true
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	afterFunc := c.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	c.generation++
	generation := c.generation
	c.settleTimer = afterFunc(c.Settle, func() { c.endAutoScroll(generation) })
}

// endAutoScroll ignores timers superseded by a later BeginAutoScroll.
func (c *Controller) endAutoScroll(generation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.autoScrolling = false
	c.settleTimer = nil
}

// JumpToLatest is the jump-to-latest action: re-pin and scroll.
func (c *Controller) JumpToLatest() {
	c.mu.Lock()
	c.scrolledAway = false
	c.jumpVisible = false
	c.mu.Unlock()
	c.BeginAutoScroll()
}

// ScrolledAway reports whether the reader left the bottom.
func (c *Controller) ScrolledAway() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrolledAway
}

// JumpVisible reports whether the jump-to-latest affordance is shown.
func (c *Controller) JumpVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jumpVisible
}

// AutoScrolling reports whether a programmatic scroll is settling.
func (c *Controller) AutoScrolling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoScrolling
}
