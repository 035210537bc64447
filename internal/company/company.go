// Package company runs a bounded pool of workers that claim CIDs from a
// distributor, reconstruct their comment flow, and hand the result to an
// exporter, scaling the pool down during rush hours and reporting progress
// periodically.
package company

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yehzhang/dmscrape/internal/distributor"
	"github.com/yehzhang/dmscrape/internal/exporter"
	"github.com/yehzhang/dmscrape/internal/frequency"
	"github.com/yehzhang/dmscrape/internal/observability"
	"github.com/yehzhang/dmscrape/internal/scavenger"
	"github.com/yehzhang/dmscrape/internal/worker"
)

// updateInterval is how often the company logs progress and reconsiders
// its worker count.
const updateInterval = 60 * time.Second

// fetcher is the per-worker session handle: connect/close bracket a
// worker's lifetime, and worker.Fetcher is what Reconstruct calls.
type fetcher interface {
	worker.Fetcher
	Connect(ctx context.Context) error
	Close() error
}

// Fetcher is an exported alias of the unexported fetcher interface, so
// callers outside this package can name the return type a FetcherFactory
// must produce.
type Fetcher = fetcher

// FetcherFactory builds one unconnected fetcher per worker. Each worker
// owns its session exclusively, since a Session is not safe for concurrent
// use.
type FetcherFactory func() Fetcher

// Config bundles a Company's fixed parameters.
type Config struct {
	MaxWorkers int
	History    bool
	TimeRange  worker.TimeRange
	// Metrics is optional; when set, the company reports worker-pool and
	// scrape-outcome counters to it as the run progresses.
	Metrics *observability.Metrics
}

// Company owns the worker pool for one scrape run.
type Company struct {
	distributor *distributor.Distributor
	scavenger   *scavenger.Scavenger
	exporter    exporter.Exporter
	controller  *frequency.Controller
	newFetcher  FetcherFactory

	history   bool
	timeRange worker.TimeRange

	maxWorkers  int
	liveWorkers atomic.Int64
	latch       *countLatch
	closed      atomic.Bool
	metrics     *observability.Metrics

	mu       sync.Mutex
	workers  []*workerHandle
	runGroup *errgroup.Group
	runCtx   context.Context

	log *slog.Logger
}

// workerHandle lets Fire stop a worker two ways: soft (stop is set, the
// worker exits after its current target finishes) or force (cancel also
// tears down the in-flight claim, and the target is recycled back onto the
// distributor so it isn't lost).
type workerHandle struct {
	cancel context.CancelFunc
	stop   atomic.Bool
}

// New builds a Company. Run starts cfg.MaxWorkers workers immediately.
func New(
	d *distributor.Distributor, s *scavenger.Scavenger, e exporter.Exporter,
	c *frequency.Controller, nf FetcherFactory, cfg Config, log *slog.Logger,
) *Company {
	if log == nil {
		log = slog.Default()
	}
	return &Company{
		distributor: d,
		scavenger:   s,
		exporter:    e,
		controller:  c,
		newFetcher:  nf,
		history:     cfg.History,
		timeRange:   cfg.TimeRange,
		maxWorkers:  cfg.MaxWorkers,
		latch:       newCountLatch(),
		metrics:     cfg.Metrics,
		log:         log.With("component", "company"),
	}
}

// Hire launches n new workers under the company's running errgroup. It is
// only meaningful to call while Run is executing.
func (c *Company) Hire(n int) {
	c.mu.Lock()
	g, ctx := c.runGroup, c.runCtx
	c.mu.Unlock()
	if g == nil {
		return
	}
	c.hire(g, ctx, n)
}

// Fire asks n of the currently live workers to stop, soft by default
// (finish the current target first) or immediately if force is true, in
// which case the in-flight target is recycled back onto the distributor.
func (c *Company) Fire(n int, force bool) { c.fire(n, force) }

// Run hires the initial worker pool and blocks until every live worker has
// exited — because the distributor ran dry, ctx was canceled, or Close was
// called — then returns the run's report.
func (c *Company) Run(ctx context.Context) Report {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	c.mu.Lock()
	c.runGroup, c.runCtx = g, gctx
	c.mu.Unlock()
	c.hire(g, gctx, c.maxWorkers)

	stop := make(chan struct{})
	go c.supervise(gctx, g, stop)

	c.latch.Wait()
	close(stop)
	cancel()
	_ = g.Wait()

	return c.Report()
}

// hire starts n new worker goroutines under g, each with its own
// cancelable context so Fire can stop a subset without affecting the rest.
func (c *Company) hire(g *errgroup.Group, ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(ctx)
		h := &workerHandle{cancel: cancel}
		c.mu.Lock()
		c.workers = append(c.workers, h)
		c.mu.Unlock()
		c.liveWorkers.Add(1)
		c.latch.Add(1)
		c.scavenger.SetRecorders(int(c.liveWorkers.Load()))

		if c.metrics != nil {
			c.metrics.ActiveWorkers.Add(1)
		}
		g.Go(func() error {
			defer func() {
				c.liveWorkers.Add(-1)
				c.latch.CountDown()
				c.scavenger.SetRecorders(max1(int(c.liveWorkers.Load())))
				if c.metrics != nil {
					c.metrics.ActiveWorkers.Add(-1)
				}
			}()
			c.runWorker(wctx, h)
			return nil
		})
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// fire stops up to n of the currently live workers, oldest-hired first. A
// soft fire (force=false) only sets a flag the worker checks between
// targets, so it finishes whatever it already claimed. A force fire also
// cancels the worker's context, tearing down any in-flight claim; that
// claim is recycled back onto the distributor so it isn't lost. n < 0
// fires every live worker.
func (c *Company) fire(n int, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = len(c.workers)
	}
	for i := 0; i < n && len(c.workers) > 0; i++ {
		h := c.workers[0]
		c.workers = c.workers[1:]
		h.stop.Store(true)
		if force {
			h.cancel()
		}
	}
}

func (c *Company) runWorker(ctx context.Context, h *workerHandle) {
	defer h.cancel()
	f := c.newFetcher()
	if err := f.Connect(ctx); err != nil {
		c.scavenger.Failure(err, 0, false)
		return
	}
	defer f.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		if h.stop.Load() {
			return
		}
		if err := c.controller.Wait(ctx); err != nil {
			return
		}

		cid, err := c.distributor.Claim(ctx)
		if err != nil {
			return
		}

		flow, err := worker.Reconstruct(ctx, f, cid, c.history, c.timeRange)
		if err != nil {
			if ctx.Err() != nil {
				c.scavenger.Cancelled()
				c.distributor.Post(distributor.NewSliceIterator([]int64{cid}), true)
				return
			}
			c.scavenger.Failure(err, cid, true)
			if c.metrics != nil {
				c.metrics.TargetsFailed.Add(1)
			}
			continue
		}
		if c.metrics != nil {
			c.metrics.SnapshotsFetched.Add(1)
			if flow.HasHistory() {
				c.metrics.HistorySnapshots.Add(int64(len(flow.Histories)))
			}
			c.metrics.CommentsReconstructed.Add(int64(len(flow.Document())))
		}

		if err := c.exporter.Dump(ctx, cid, flow); err != nil {
			c.scavenger.Failure(err, cid, true)
			if c.metrics != nil {
				c.metrics.TargetsFailed.Add(1)
			}
			continue
		}
		c.scavenger.Success()
		if c.metrics != nil {
			c.metrics.TargetsSucceeded.Add(1)
		}

		if c.scavenger.IsDead() {
			return
		}
	}
}

// supervise logs progress every updateInterval and rescales the pool for
// rush hours: fired down to a skeleton crew of 3 while the frequency
// controller reports itself busy, rehired back to maxWorkers once it isn't.
// It stops as soon as stop is closed, ctx is canceled, or Close was called.
func (c *Company) supervise(ctx context.Context, g *errgroup.Group, stop <-chan struct{}) {
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.logProgress(start)
			if c.closed.Load() {
				continue
			}
			live := int(c.liveWorkers.Load())
			if c.controller.IsBusy() {
				if live > 3 {
					c.fire(live-3, false)
				}
			} else if live < c.maxWorkers {
				c.hire(g, ctx, c.maxWorkers-live)
			}
		}
	}
}

func (c *Company) logProgress(start time.Time) {
	report := c.scavenger.Report()
	total, known := c.distributor.GetTotal()
	elapsed := time.Since(start).Round(time.Second)
	if c.metrics != nil {
		c.metrics.ScavengerHealth.Store(c.scavenger.Health())
		if remaining, ok := c.distributor.Len(); ok {
			c.metrics.QueueDepth.Store(int64(remaining))
		}
	}
	if known {
		pct := 0.0
		if total > 0 {
			pct = float64(report.SuccessCount) / float64(total) * 100
		}
		c.log.Info("progress", "done", report.SuccessCount, "total", total,
			"percent", fmt.Sprintf("%.1f", pct), "elapsed", elapsed)
	} else {
		c.log.Info("progress", "done", report.SuccessCount, "total", "unknown", "elapsed", elapsed)
	}
}

// Report summarizes the run's outcome for the final CLI report.
func (c *Company) Report() Report {
	r := c.scavenger.Report()
	total, known := c.distributor.GetTotal()
	remaining := c.distributor.Dump(0)
	return Report{
		Total:      total,
		TotalKnown: known,
		Success:    r.SuccessCount,
		Failures:   r.Failures,
		Remaining:  remaining,
	}
}

// Close asks every live worker to stop after its current claim and frees
// the frequency controller, and prevents the supervisor from rehiring.
func (c *Company) Close() {
	c.closed.Store(true)
	c.fire(-1, false)
	c.controller.Free()
}

// Report is the final summary of one Company's run.
type Report struct {
	Total      int
	TotalKnown bool
	Success    int
	Failures   []int64
	Remaining  []int64
}

// String renders the report the way the source project's stat() text did:
// totals, success count, and a bounded list of failing targets.
func (r Report) String() string {
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i] < r.Failures[j] })

	totalStr := "unknown"
	if r.TotalKnown {
		totalStr = fmt.Sprintf("%d", r.Total)
	}

	msg := fmt.Sprintf("total targets: %s\nsuccess: %d\nfailures: %d\n", totalStr, r.Success, len(r.Failures))
	const maxListed = 100
	failures := r.Failures
	if len(failures) > maxListed {
		msg += fmt.Sprintf("(showing first %d of %d failing targets)\n", maxListed, len(failures))
		failures = failures[:maxListed]
	}
	for _, f := range failures {
		msg += fmt.Sprintf("  %d\n", f)
	}
	if len(r.Failures) == 0 && len(r.Remaining) == 0 {
		msg += "All targets are scraped successfully!\n"
	} else {
		msg += "All targets are either scraped successfully or skipped due to exceptions.\n"
	}
	return msg
}
