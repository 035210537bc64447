// Package frequency gates request rate against the comment host on a
// diurnal schedule: a slower limit during the host's daytime rush hours, a
// faster one otherwise.
package frequency

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// mode values for the atomic mode flag.
const (
	modeNormal int32 = iota
	modeFree          // Wait returns immediately, forever
	modeShut          // Wait never returns (until ctx is done), forever
)

// Controller rate-gates a company's claim loop. It is safe for concurrent
// use: many workers may call Wait at once.
type Controller struct {
	normalInterval time.Duration
	busyInterval   time.Duration
	rushStart      int // hour of day, 0-23, inclusive
	rushEnd        int // hour of day, 0-23, exclusive
	loc            *time.Location

	limiter atomic.Pointer[rate.Limiter]
	mode    atomic.Int32

	now func() time.Time // overridable for tests
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithRushHours sets the [start, end) hour-of-day window, in loc, during
// which the busy interval applies instead of the normal one.
func WithRushHours(start, end int, loc *time.Location) Option {
	return func(c *Controller) {
		c.rushStart = start
		c.rushEnd = end
		c.loc = loc
	}
}

// New builds a Controller. normal is the interval between requests outside
// rush hours; busy is the (larger) interval during them.
func New(normal, busy time.Duration, opts ...Option) *Controller {
	c := &Controller{
		normalInterval: normal,
		busyInterval:   busy,
		rushStart:      8,
		rushEnd:        23,
		loc:            time.Local,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter.Store(rate.NewLimiter(rate.Every(c.intervalFor(c.now())), 1))
	return c
}

func (c *Controller) intervalFor(t time.Time) time.Duration {
	hour := t.In(c.loc).Hour()
	if c.isRush(hour) {
		return c.busyInterval
	}
	return c.normalInterval
}

func (c *Controller) isRush(hour int) bool {
	if c.rushStart <= c.rushEnd {
		return hour >= c.rushStart && hour < c.rushEnd
	}
	// window wraps past midnight, e.g. 22..6.
	return hour >= c.rushStart || hour < c.rushEnd
}

// Wait blocks until the next request may be sent, honoring the current
// diurnal interval and re-arming the limiter if the hour boundary (and thus
// the applicable interval) has changed since the last call. Once Free has
// been called it returns immediately forever after; once Shut has been
// called it blocks forever, returning only when ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	switch c.mode.Load() {
	case modeFree:
		return nil
	case modeShut:
		<-ctx.Done()
		return ctx.Err()
	}
	c.refresh()
	return c.limiter.Load().Wait(ctx)
}

// refresh swaps in a new limiter if the interval for "now" has changed,
// carrying over the limiter's reservation state is unnecessary here since
// burst is always 1.
func (c *Controller) refresh() {
	want := c.intervalFor(c.now())
	cur := c.limiter.Load()
	if cur.Limit() == rate.Every(want) {
		return
	}
	c.limiter.Store(rate.NewLimiter(rate.Every(want), 1))
}

// IsBusy reports whether the controller is currently in its rush-hour
// window, the signal a company uses to scale its worker count down.
func (c *Controller) IsBusy() bool {
	return c.isRush(c.now().In(c.loc).Hour())
}

// Free permanently disables rate gating: Wait returns immediately from now
// on. Used once a scraper run is shutting down and outstanding workers just
// need to drain without waiting out an interval.
func (c *Controller) Free() { c.mode.Store(modeFree) }

// Shut permanently blocks every future Wait call (until its context is
// done). Used to halt all outbound requests against this host, e.g. once
// the scavenger has declared the company dead.
func (c *Controller) Shut() { c.mode.Store(modeShut) }
