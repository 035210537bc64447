// Package scavenger tracks a scrape run's aggregate health: every worker
// reports successes and failures to it, and once accumulated damage drains
// its health pool the run is declared dead and every worker should stop.
package scavenger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yehzhang/dmscrape/internal/types"
)

const (
	maxHealth = 120
	regen     = 12
)

// eventKind distinguishes the four things a worker can report.
type eventKind int

const (
	eventSuccess eventKind = iota
	eventFailure
	eventCancelled
	eventSetRecorders
)

type event struct {
	kind    eventKind
	target  int64
	hasItem bool
	err     error
	n       int
}

// Scavenger is safe for concurrent use: Success/Failure/Cancelled/
// SetRecorders may be called from any worker goroutine. All state mutation
// happens on a single owner goroutine draining an internal channel; results
// are published through atomics, plus a mutex around the failing-target set
// that Report reads.
type Scavenger struct {
	events chan event
	done   chan struct{}

	dead         atomic.Bool
	successCount atomic.Int64
	health       atomic.Int64 // current health, rounded, for metrics reporting

	mu       sync.Mutex
	failing  map[int64]bool

	log *slog.Logger
}

// New starts a Scavenger's owner goroutine. Call Close once every worker
// has stopped reporting to release it.
func New(log *slog.Logger) *Scavenger {
	if log == nil {
		log = slog.Default()
	}
	s := &Scavenger{
		events:  make(chan event, 64),
		done:    make(chan struct{}),
		failing: make(map[int64]bool),
		log:     log.With("component", "scavenger"),
	}
	go s.run()
	return s
}

// Success records a worker's successful claim.
func (s *Scavenger) Success() { s.events <- event{kind: eventSuccess} }

// Failure records a worker's failed claim. target is the claimed item the
// worker was processing, used to build the final failing-target report;
// hasItem is false if the worker failed before claiming anything.
func (s *Scavenger) Failure(err error, target int64, hasItem bool) {
	s.events <- event{kind: eventFailure, err: err, target: target, hasItem: hasItem}
}

// Cancelled records a worker stopping due to context cancellation, which
// costs no health and is not counted as a failure.
func (s *Scavenger) Cancelled() { s.events <- event{kind: eventCancelled} }

// SetRecorders rescales the health pool proportionally to a new worker
// count, so firing or hiring workers doesn't change how many consecutive
// failures the run can absorb in wall-clock terms.
func (s *Scavenger) SetRecorders(n int) { s.events <- event{kind: eventSetRecorders, n: n} }

// IsDead reports whether accumulated damage has drained the health pool.
func (s *Scavenger) IsDead() bool { return s.dead.Load() }

// Health returns the current health pool value, rounded to the nearest
// integer, for metrics reporting. It may lag the true value by up to the
// event channel's buffer depth.
func (s *Scavenger) Health() int64 { return s.health.Load() }

// Close shuts down the owner goroutine. Must only be called once every
// worker has stopped sending events.
func (s *Scavenger) Close() { close(s.events) }

// Wait blocks until the owner goroutine has exited (after Close).
func (s *Scavenger) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report summarizes outcomes recorded so far: success count and the sorted
// list of distinct targets that failed and were never retried to success.
type Report struct {
	SuccessCount int
	Failures     []int64
}

func (s *Scavenger) run() {
	defer close(s.done)

	health := float64(maxHealth)
	maxH := float64(maxHealth)
	recorders := 1

	recordSuccess := func() {
		health += regen
		if health > maxH {
			health = maxH
		}
		s.successCount.Add(1)
	}
	s.health.Store(int64(health))

	for ev := range s.events {
		switch ev.kind {
		case eventSuccess:
			recordSuccess()

		case eventCancelled:
			// no damage, no effect on success/failure tallies.

		case eventSetRecorders:
			if ev.n < 0 {
				continue
			}
			if recorders > 0 {
				health = health / float64(recorders) * float64(ev.n)
			}
			maxH = float64(maxHealth * ev.n)
			recorders = ev.n

		case eventFailure:
			if errors.Is(ev.err, types.ErrPageNotFound) {
				// the source treats a confirmed-absent target as success,
				// not a failure: there is nothing more to retry.
				recordSuccess()
				continue
			}
			var d types.Damager
			damage := float64(types.DamageUnexpected)
			if errors.As(ev.err, &d) {
				damage = float64(d.Damage())
			}
			health -= damage
			if ev.hasItem {
				s.mu.Lock()
				s.failing[ev.target] = true
				s.mu.Unlock()
			}
			if health <= 0 && !s.dead.Load() {
				s.log.Error("health depleted, run is dead")
				s.dead.Store(true)
			}
		}
		s.health.Store(int64(health))
	}
}

// Report snapshots the outcomes recorded so far. Safe to call concurrently
// with in-flight workers, though the result may not reflect events still in
// the internal channel buffer.
func (s *Scavenger) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make([]int64, 0, len(s.failing))
	for t := range s.failing {
		failures = append(failures, t)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i] < failures[j] })
	return Report{SuccessCount: int(s.successCount.Load()), Failures: failures}
}
