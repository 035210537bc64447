package company

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yehzhang/dmscrape/internal/distributor"
	"github.com/yehzhang/dmscrape/internal/frequency"
	"github.com/yehzhang/dmscrape/internal/scavenger"
	"github.com/yehzhang/dmscrape/internal/types"
)

// fakeFetcher serves a fixed, read-only set of documents keyed by cid.
// Safe for concurrent use by multiple workers since it never mutates docs.
type fakeFetcher struct {
	docs map[int64]*types.CommentDocument
	fail map[int64]bool
}

func (f *fakeFetcher) Connect(ctx context.Context) error { return nil }
func (f *fakeFetcher) Close() error                      { return nil }

func (f *fakeFetcher) GetCurrent(ctx context.Context, cid int64) (*types.CommentDocument, error) {
	if f.fail[cid] {
		return nil, fmt.Errorf("fake fetch error for cid %d", cid)
	}
	doc, ok := f.docs[cid]
	if !ok {
		return nil, types.ErrPageNotFound
	}
	return doc, nil
}

func (f *fakeFetcher) GetHistory(ctx context.Context, cid, date int64) (*types.CommentDocument, error) {
	return nil, types.ErrPageNotFound
}

func (f *fakeFetcher) GetRollDates(ctx context.Context, cid int64) (types.RollDate, error) {
	return nil, nil
}

// fakeExporter records Dump calls under a mutex and optionally notifies a
// channel after each one, so a test can wait for a specific dump count
// instead of sleeping.
type fakeExporter struct {
	mu      sync.Mutex
	dumps   map[int64]*types.CommentFlow
	dumped  chan int64
	release chan struct{} // if set, Dump blocks on it after reporting
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{dumps: make(map[int64]*types.CommentFlow), dumped: make(chan int64, 16)}
}

func (e *fakeExporter) Name() string                        { return "fake" }
func (e *fakeExporter) Connect(ctx context.Context) error    { return nil }
func (e *fakeExporter) Disconnect(ctx context.Context) error { return nil }
func (e *fakeExporter) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	e.mu.Lock()
	e.dumps[cid] = flow
	release := e.release
	e.mu.Unlock()
	e.dumped <- cid
	if release != nil {
		<-release
	}
	return nil
}

func simpleDoc(id int64) *types.CommentDocument {
	return &types.CommentDocument{
		MaxLimit: 1000,
		Comments: []types.Comment{{ID: id, Pool: types.PoolNormal, Date: id}},
	}
}

func newTestCompany(t *testing.T, docs map[int64]*types.CommentDocument, fail map[int64]bool) (*Company, *distributor.Distributor, *fakeExporter) {
	t.Helper()
	d := distributor.New()
	s := scavenger.New(nil)
	exp := newFakeExporter()
	ctrl := frequency.New(0, 0)
	ctrl.Free()

	c := New(d, s, exp, ctrl, func() Fetcher {
		return &fakeFetcher{docs: docs, fail: fail}
	}, Config{MaxWorkers: 2, History: true}, nil)
	return c, d, exp
}

func TestCompanyRunScrapesAllTargets(t *testing.T) {
	docs := map[int64]*types.CommentDocument{1: simpleDoc(1), 2: simpleDoc(2), 3: simpleDoc(3)}
	c, d, exp := newTestCompany(t, docs, nil)

	d.Post(distributor.NewSliceIterator([]int64{1, 2, 3}), false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Set()
	report := c.Run(ctx)

	if report.Success != 3 {
		t.Fatalf("report.Success = %d, want 3", report.Success)
	}
	if !report.TotalKnown || report.Total != 3 {
		t.Fatalf("report.Total/TotalKnown = %d/%v, want 3/true", report.Total, report.TotalKnown)
	}
	if len(exp.dumps) != 3 {
		t.Fatalf("exporter received %d dumps, want 3", len(exp.dumps))
	}
}

func TestCompanyRunRecordsFailures(t *testing.T) {
	docs := map[int64]*types.CommentDocument{1: simpleDoc(1)}
	c, d, _ := newTestCompany(t, docs, map[int64]bool{2: true})

	d.Post(distributor.NewSliceIterator([]int64{1, 2}), false)
	d.Set()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report := c.Run(ctx)

	if report.Success != 1 {
		t.Fatalf("report.Success = %d, want 1", report.Success)
	}
	if len(report.Failures) != 1 || report.Failures[0] != 2 {
		t.Fatalf("report.Failures = %v, want [2]", report.Failures)
	}
}

func TestCompanyCloseStopsWorkerAfterItsCurrentTarget(t *testing.T) {
	docs := map[int64]*types.CommentDocument{1: simpleDoc(1), 2: simpleDoc(2)}
	d := distributor.New()
	s := scavenger.New(nil)
	exp := newFakeExporter()
	exp.release = make(chan struct{})
	ctrl := frequency.New(0, 0)
	ctrl.Free()
	c := New(d, s, exp, ctrl, func() Fetcher {
		return &fakeFetcher{docs: docs}
	}, Config{MaxWorkers: 1, History: true}, nil)

	d.Post(distributor.NewSliceIterator([]int64{1, 2}), false)
	d.Set()

	done := make(chan Report, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case <-exp.dumped:
	case <-time.After(5 * time.Second):
		t.Fatal("the first target was never dumped")
	}
	// The worker is now parked inside Dump for target 1. Close it while
	// it's parked there, then let it proceed: a soft fire must stop it
	// from ever claiming target 2.
	c.Close()
	close(exp.release)

	select {
	case report := <-done:
		if report.Success != 1 {
			t.Fatalf("report.Success = %d, want 1: soft fire should have stopped the worker before target 2", report.Success)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned after Close")
	}
}

func TestReportStringSummarizesOutcome(t *testing.T) {
	r := Report{Total: 5, TotalKnown: true, Success: 3, Failures: []int64{9, 2}}
	s := r.String()
	if s == "" {
		t.Fatal("String() returned empty report")
	}
}
