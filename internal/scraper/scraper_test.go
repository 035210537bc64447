package scraper

import (
	"context"
	"testing"

	"github.com/yehzhang/dmscrape/internal/types"
)

type fakeExporter struct {
	connected bool
}

func (e *fakeExporter) Name() string { return "fake" }
func (e *fakeExporter) Connect(ctx context.Context) error {
	e.connected = true
	return nil
}
func (e *fakeExporter) Disconnect(ctx context.Context) error { return nil }
func (e *fakeExporter) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	return nil
}

func TestNewRejectsBadMaxWorkers(t *testing.T) {
	for _, n := range []int{0, -1, MaxWorkers + 1} {
		_, err := New(Config{Exporter: &fakeExporter{}, MaxWorkers: n})
		if err == nil {
			t.Errorf("New() with MaxWorkers=%d = nil error, want one", n)
		}
	}
}

func TestNewRequiresExporter(t *testing.T) {
	if _, err := New(Config{MaxWorkers: 1}); err == nil {
		t.Fatal("New() without an exporter = nil error, want one")
	}
}

func TestAddRejectsNonPositiveCID(t *testing.T) {
	s, err := New(Config{Exporter: &fakeExporter{}, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := s.Add(0); err == nil {
		t.Error("Add(0) = nil error, want one")
	}
	if err := s.Add(-5); err == nil {
		t.Error("Add(-5) = nil error, want one")
	}
}

func TestAddRangeRejectsInvertedRange(t *testing.T) {
	s, err := New(Config{Exporter: &fakeExporter{}, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := s.AddRange(10, 5); err == nil {
		t.Error("AddRange(10, 5) = nil error, want one")
	}
	if err := s.AddRange(0, 5); err == nil {
		t.Error("AddRange(0, 5) = nil error, want one")
	}
}

func TestAddListRejectsAnyNonPositiveCID(t *testing.T) {
	s, err := New(Config{Exporter: &fakeExporter{}, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := s.AddList([]int64{1, 2, -3}); err == nil {
		t.Error("AddList with a negative cid = nil error, want one")
	}
}

func TestRunWithNoTargetsSkipsExporterConnect(t *testing.T) {
	exp := &fakeExporter{}
	s, err := New(Config{Exporter: exp, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !report.TotalKnown {
		t.Errorf("report.TotalKnown = false, want true for an empty run")
	}
	if exp.connected {
		t.Error("exporter was connected despite no registered targets")
	}
}

func TestCloseBeforeRunIsNoop(t *testing.T) {
	s, err := New(Config{Exporter: &fakeExporter{}, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	s.Close()
}
