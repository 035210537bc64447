// Command dmscrape reconstructs danmaku comment history for one or more
// CIDs and exports the result to a file tree, a text stream, or a database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yehzhang/dmscrape/internal/config"
	"github.com/yehzhang/dmscrape/internal/exporter"
	"github.com/yehzhang/dmscrape/internal/frequency"
	"github.com/yehzhang/dmscrape/internal/observability"
	"github.com/yehzhang/dmscrape/internal/scraper"
	"github.com/yehzhang/dmscrape/internal/worker"
)

var (
	cfgFile      string
	verbose      bool
	exportMethod string
	outputPath   string
	joinHistory  bool
	noHistory    bool
	startUnix    int64
	endUnix      int64
	startSet     bool
	endSet       bool
	ranges       []string
	maxWorkers   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dmscrape",
		Short: "dmscrape — danmaku comment history scraper",
		Long: `dmscrape reconstructs the full comment history of one or more danmaku
pools (CIDs) by fetching a current snapshot plus the minimum number of
historical roll-date snapshots needed to recover every comment that has
ever been visible, and exports the result to a file tree, a text stream,
or a database.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [cid...]",
		Short: "Scrape one or more CIDs",
		Long:  "Scrape the current and (unless -b) historical comment pools for the given CIDs.",
		RunE:  runScrape,
	}

	cmd.Flags().StringVarP(&exportMethod, "export", "e", "", "export method: file, stream, mongo, postgres")
	cmd.Flags().StringVarP(&outputPath, "path", "p", "", "output root for file export")
	cmd.Flags().BoolVarP(&joinHistory, "join", "j", false, "merge history into one file instead of one per roll date")
	cmd.Flags().BoolVarP(&noHistory, "no-history", "b", false, "disable historical reconstruction")
	cmd.Flags().Int64VarP(&startUnix, "start", "s", 0, "user time range start (unix seconds, inclusive)")
	cmd.Flags().Int64VarP(&endUnix, "end", "n", 0, "user time range end (unix seconds, inclusive)")
	cmd.Flags().StringArrayVarP(&ranges, "range", "r", nil, "add a target range FIRST,LAST; may repeat")
	cmd.Flags().IntVarP(&maxWorkers, "workers", "w", 0, "max concurrent workers (0 = use config default)")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	startSet = cmd.Flags().Changed("start")
	endSet = cmd.Flags().Changed("end")

	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	exp, err := buildExporter(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("build exporter: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	loc, err := time.LoadLocation(cfg.Frequency.Timezone)
	if err != nil {
		loc = time.Local
	}
	controller := frequency.New(cfg.Frequency.NormalInterval, cfg.Frequency.BusyInterval,
		frequency.WithRushHours(cfg.Frequency.RushStartHour, cfg.Frequency.RushEndHour, loc))

	tr := worker.TimeRange{}
	if startSet {
		v := startUnix
		tr.Start = &v
	}
	if endSet {
		v := endUnix
		tr.End = &v
	}

	workers := cfg.Worker.MaxWorkers
	if maxWorkers > 0 {
		workers = maxWorkers
	}

	s, err := scraper.New(scraper.Config{
		Exporter:   exp,
		History:    !noHistory,
		TimeRange:  tr,
		MaxWorkers: workers,
		Controller: controller,
		Metrics:    metrics,
		Log:        logger,
	})
	if err != nil {
		return fmt.Errorf("build scraper: %w", err)
	}

	if err := addTargets(s, args, ranges); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("received signal, shutting down...")
		s.Close()
	}()

	start := time.Now()
	report, err := s.Run(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		return fmt.Errorf("scrape run: %w", err)
	}

	fmt.Printf("\nscrape finished in %s\n%s", elapsed, report.String())
	return nil
}

// addTargets registers positional CIDs and -r FIRST,LAST / FIRST LAST ranges.
func addTargets(s *scraper.Scraper, positional []string, rawRanges []string) error {
	var cids []int64
	for _, a := range positional {
		cid, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cid %q: %w", a, err)
		}
		cids = append(cids, cid)
	}
	if len(cids) > 0 {
		if err := s.AddList(cids); err != nil {
			return err
		}
	}

	for _, r := range rawRanges {
		parts := strings.FieldsFunc(r, func(c rune) bool { return c == ',' || c == ' ' })
		if len(parts) != 2 {
			return fmt.Errorf("invalid range %q: want FIRST,LAST", r)
		}
		first, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid range start %q: %w", parts[0], err)
		}
		last, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid range end %q: %w", parts[1], err)
		}
		if err := s.AddRange(first, last); err != nil {
			return err
		}
	}
	return nil
}

func buildExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (exporter.Exporter, error) {
	method := cfg.Exporter.Type
	path := cfg.Exporter.File.Path
	if outputPath != "" {
		path = outputPath
	}
	split := cfg.Exporter.File.Split && !joinHistory

	var backends []exporter.Exporter
	for _, kind := range strings.Split(method, ",") {
		kind = strings.TrimSpace(kind)
		switch kind {
		case "", "stream":
			backends = append(backends, exporter.NewStream(os.Stdout, "\n"))
		case "file":
			backends = append(backends, exporter.NewFile(path, split, logger))
		case "mongo":
			m, err := exporter.NewMongo(ctx, cfg.Exporter.Mongo.URI, cfg.Exporter.Mongo.Database, cfg.Exporter.Mongo.Collection, logger)
			if err != nil {
				return nil, err
			}
			backends = append(backends, m)
		case "postgres":
			p, err := exporter.NewPostgres(ctx, cfg.Exporter.Postgres.DSN, logger)
			if err != nil {
				return nil, err
			}
			backends = append(backends, p)
		default:
			return nil, fmt.Errorf("unknown export method %q", kind)
		}
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return exporter.NewMulti(backends...), nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dmscrape %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Worker:\n")
			fmt.Printf("  Max Workers:       %d\n", cfg.Worker.MaxWorkers)
			fmt.Printf("  History:           %v\n", cfg.Worker.History)
			fmt.Printf("\nFrequency:\n")
			fmt.Printf("  Normal Interval:   %s\n", cfg.Frequency.NormalInterval)
			fmt.Printf("  Busy Interval:     %s\n", cfg.Frequency.BusyInterval)
			fmt.Printf("  Rush Hours:        %d:00-%d:00 (%s)\n", cfg.Frequency.RushStartHour, cfg.Frequency.RushEndHour, cfg.Frequency.Timezone)
			fmt.Printf("\nExporter:\n")
			fmt.Printf("  Type:              %s\n", cfg.Exporter.Type)
			fmt.Printf("  File Path:         %s\n", cfg.Exporter.File.Path)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if exportMethod != "" {
		cfg.Exporter.Type = exportMethod
	}
	if outputPath != "" {
		cfg.Exporter.File.Path = outputPath
	}
	if maxWorkers > 0 {
		cfg.Worker.MaxWorkers = maxWorkers
	}
	if noHistory {
		cfg.Worker.History = false
	}
}
