// Package distributor hands out scrape targets from a queue of posted
// iterators, blocking claimants when the queue is temporarily empty but not
// yet closed.
package distributor

import (
	"context"
	"sync"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Iterator yields targets one at a time. Next returns false once exhausted.
type Iterator interface {
	Next() (int64, bool)
	// Len reports the remaining count, or (-1, false) if unknown (e.g. an
	// unbounded generator).
	Len() (int, bool)
}

// sliceIterator adapts a fixed slice of targets to Iterator.
type sliceIterator struct {
	items []int64
	pos   int
}

func (s *sliceIterator) Next() (int64, bool) {
	if s.pos >= len(s.items) {
		return 0, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

func (s *sliceIterator) Len() (int, bool) { return len(s.items) - s.pos, true }

// NewSliceIterator builds an Iterator over a fixed list of targets.
func NewSliceIterator(items []int64) Iterator { return &sliceIterator{items: items} }

// rangeIterator adapts an inclusive integer range to Iterator.
type rangeIterator struct {
	next, last int64
	done       bool
}

func (r *rangeIterator) Next() (int64, bool) {
	if r.done || r.next > r.last {
		return 0, false
	}
	v := r.next
	r.next++
	return v, true
}

func (r *rangeIterator) Len() (int, bool) {
	if r.next > r.last {
		return 0, true
	}
	return int(r.last-r.next) + 1, true
}

// NewRangeIterator builds an Iterator over [first, last].
func NewRangeIterator(first, last int64) Iterator { return &rangeIterator{next: first, last: last} }

// Distributor is a blocking FIFO of posted target iterators. Claim blocks
// until a target is available or the distributor has been Set (closed to
// further posting) and drained.
type Distributor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Iterator
	current Iterator
	closed  bool
	count   int
	unknown bool // true once any posted iterator had unknown length
}

// New builds an empty Distributor.
func New() *Distributor {
	d := &Distributor{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Post enqueues one iterator of targets. If recycle is true the count is
// not incremented — used to requeue a target a shutting-down worker could
// not finish, which must not inflate the total-targets report.
func (d *Distributor) Post(it Iterator, recycle bool) {
	d.PostList([]Iterator{it}, recycle)
}

// PostList enqueues several iterators atomically. After Set, only recycled
// iterators are accepted; any other iterator is dropped.
func (d *Distributor) PostList(its []Iterator, recycle bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, it := range its {
		if d.closed && !recycle {
			continue
		}
		if !recycle {
			if n, ok := it.Len(); ok {
				d.count += n
			} else {
				d.unknown = true
			}
		}
		d.queue = append(d.queue, it)
	}
	d.cond.Broadcast()
}

// Set closes the distributor to further posting (other than recycling).
// Once every queued target is claimed, subsequent Claim calls return
// ErrNoMoreItems instead of blocking.
func (d *Distributor) Set() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}

// IsSet reports whether Set has been called.
func (d *Distributor) IsSet() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Claim blocks until a target is available, the distributor closes with
// nothing left (types.ErrNoMoreItems), or ctx is canceled.
func (d *Distributor) Claim(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.current != nil {
			if v, ok := d.current.Next(); ok {
				return v, nil
			}
			d.current = nil
		}
		if len(d.queue) > 0 {
			d.current = d.queue[0]
			d.queue = d.queue[1:]
			continue
		}
		if d.closed {
			return 0, types.ErrNoMoreItems
		}
		if waitErr := d.waitOrCancel(ctx); waitErr != nil {
			return 0, waitErr
		}
	}
}

// waitOrCancel blocks on the condition variable while also honoring ctx
// cancellation, waking the cond wait via a goroutine that broadcasts once
// ctx is done.
func (d *Distributor) waitOrCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
		close(done)
	})
	d.cond.Wait()
	stop()
	select {
	case <-done:
	default:
	}
	return ctx.Err()
}

// Dump drains up to n remaining targets without blocking (n <= 0 means
// unlimited) and clears the distributor's internal state. Used to report
// the unclaimed remainder after a shutdown.
func (d *Distributor) Dump(n int) []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []int64
	drain := func(it Iterator) {
		for {
			if n > 0 && len(out) >= n {
				return
			}
			v, ok := it.Next()
			if !ok {
				return
			}
			out = append(out, v)
		}
	}
	if d.current != nil {
		drain(d.current)
	}
	for _, it := range d.queue {
		if n > 0 && len(out) >= n {
			break
		}
		drain(it)
	}
	d.current = nil
	d.queue = nil
	return out
}

// Len returns a best-effort, non-destructive count of targets still queued
// (the current iterator plus everything behind it), or (-1, false) if any
// of them has unknown remaining length. Used only for progress reporting;
// Claim/Dump are the authoritative ways to consume the queue.
func (d *Distributor) Len() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	if d.current != nil {
		n, ok := d.current.Len()
		if !ok {
			return -1, false
		}
		total += n
	}
	for _, it := range d.queue {
		n, ok := it.Len()
		if !ok {
			return -1, false
		}
		total += n
	}
	return total, true
}

// GetTotal returns the total number of targets ever posted (excluding
// recycled reposts), or (-1, false) if an unknown-length iterator was
// posted at any point.
func (d *Distributor) GetTotal() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unknown {
		return -1, false
	}
	return d.count, true
}
