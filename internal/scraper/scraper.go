// Package scraper is the entry point: register CIDs to scrape, then Run to
// reconstruct and export each one's comment flow.
package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yehzhang/dmscrape/internal/company"
	"github.com/yehzhang/dmscrape/internal/distributor"
	"github.com/yehzhang/dmscrape/internal/exporter"
	"github.com/yehzhang/dmscrape/internal/fetcher"
	"github.com/yehzhang/dmscrape/internal/frequency"
	"github.com/yehzhang/dmscrape/internal/observability"
	"github.com/yehzhang/dmscrape/internal/scavenger"
	"github.com/yehzhang/dmscrape/internal/session"
	"github.com/yehzhang/dmscrape/internal/worker"
)

// MaxWorkers bounds how large a worker pool a single Scraper may request,
// mirroring the source project's hard cap.
const MaxWorkers = 24

// Config bundles a Scraper's construction-time settings.
type Config struct {
	Exporter   exporter.Exporter
	History    bool
	TimeRange  worker.TimeRange
	MaxWorkers int
	Controller *frequency.Controller
	Metrics    *observability.Metrics
	Log        *slog.Logger
}

// Scraper registers scrape targets and runs a single Company over them.
type Scraper struct {
	cfg         Config
	distributor *distributor.Distributor
	scavenger   *scavenger.Scavenger
	company     *company.Company
	log         *slog.Logger
}

// New validates cfg and builds a Scraper ready to accept targets via
// Add/AddRange/AddList.
func New(cfg Config) (*Scraper, error) {
	if cfg.MaxWorkers <= 0 || cfg.MaxWorkers > MaxWorkers {
		return nil, fmt.Errorf("scraper: max workers must be in (0, %d], got %d", MaxWorkers, cfg.MaxWorkers)
	}
	if cfg.Exporter == nil {
		return nil, fmt.Errorf("scraper: exporter is required")
	}
	if cfg.Controller == nil {
		cfg.Controller = frequency.New(0, 0)
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Scraper{
		cfg:         cfg,
		distributor: distributor.New(),
		scavenger:   scavenger.New(log),
		log:         log.With("component", "scraper"),
	}, nil
}

// Add registers a single CID.
func (s *Scraper) Add(cid int64) error {
	if cid <= 0 {
		return fmt.Errorf("scraper: invalid cid %d: must be positive", cid)
	}
	s.distributor.Post(distributor.NewSliceIterator([]int64{cid}), false)
	return nil
}

// AddRange registers every CID in [first, last], inclusive.
func (s *Scraper) AddRange(first, last int64) error {
	if first <= 0 {
		return fmt.Errorf("scraper: invalid range start %d: must be positive", first)
	}
	if last < first {
		return fmt.Errorf("scraper: invalid range [%d, %d]: end before start", first, last)
	}
	s.distributor.Post(distributor.NewRangeIterator(first, last), false)
	return nil
}

// AddList registers a fixed list of CIDs.
func (s *Scraper) AddList(cids []int64) error {
	for _, cid := range cids {
		if cid <= 0 {
			return fmt.Errorf("scraper: invalid cid %d in list: must be positive", cid)
		}
	}
	s.distributor.Post(distributor.NewSliceIterator(cids), false)
	return nil
}

// Run closes registration, connects the exporter, and runs the worker pool
// until every registered CID has been claimed (or ctx is canceled),
// returning the run's summary report.
func (s *Scraper) Run(ctx context.Context) (company.Report, error) {
	s.distributor.Set()

	total, known := s.distributor.GetTotal()
	if known && total == 0 {
		s.log.Info("no targets assigned")
		return company.Report{TotalKnown: true}, nil
	}

	if err := s.cfg.Exporter.Connect(ctx); err != nil {
		return company.Report{}, fmt.Errorf("scraper: connect exporter: %w", err)
	}
	defer s.cfg.Exporter.Disconnect(ctx)

	s.company = company.New(
		s.distributor, s.scavenger, s.cfg.Exporter, s.cfg.Controller,
		func() company.Fetcher {
			if s.cfg.Metrics != nil {
				return fetcher.New(s.log, session.WithRecorder(s.cfg.Metrics))
			}
			return fetcher.New(s.log)
		},
		company.Config{
			MaxWorkers: s.cfg.MaxWorkers, History: s.cfg.History, TimeRange: s.cfg.TimeRange,
			Metrics: s.cfg.Metrics,
		},
		s.log,
	)

	return s.company.Run(ctx), nil
}

// Close asks the running company to stop after in-flight claims finish.
// Safe to call before Run starts or after it returns; a nil company is a
// no-op.
func (s *Scraper) Close() {
	if s.company != nil {
		s.company.Close()
	}
}
