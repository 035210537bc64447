package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yehzhang/dmscrape/internal/types"
)

// defaultFileWorkers bounds how many concurrent writeFile calls a File
// exporter offloads to, so a burst of Dump calls from many company workers
// doesn't open hundreds of file descriptors at once.
const defaultFileWorkers = 8

// File writes each CID's reconstructed flow under a root directory: always
// a `{cid}.xml` snapshot, and — when Split is enabled and the flow actually
// has per-date history to offer — one `{date},{cid}.xml` file per roll date
// inside a `{cid}/` subdirectory. `{cid}.xml` holds the merged view when
// history was walked and not split, and the bare current pool otherwise. The actual writes are offloaded to a
// small fixed worker pool rather than run inline on the caller's goroutine,
// matching the source project's thread-pool-backed file exporter.
type File struct {
	home  string
	split bool
	log   *slog.Logger
	sem   chan struct{}
}

// NewFile roots a File exporter at path. split controls whether per-date
// history files are written alongside the merged snapshot; when false,
// only the merged `{cid}.xml` is written even if history was walked.
func NewFile(path string, split bool, log *slog.Logger) *File {
	if log == nil {
		log = slog.Default()
	}
	return &File{
		home:  path,
		split: split,
		log:   log.With("component", "file_exporter"),
		sem:   make(chan struct{}, defaultFileWorkers),
	}
}

// runOffloaded executes fn on a pool goroutine, bounded by f.sem, and
// blocks the caller until it finishes so Dump's error return still reflects
// the write outcome.
func (f *File) runOffloaded(fn func() error) error {
	f.sem <- struct{}{}
	result := make(chan error, 1)
	go func() {
		defer func() { <-f.sem }()
		result <- fn()
	}()
	return <-result
}

func (f *File) Name() string { return "file" }

func (f *File) Connect(ctx context.Context) error {
	return os.MkdirAll(f.home, 0o755)
}

func (f *File) Disconnect(ctx context.Context) error { return nil }

func (f *File) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	var latest []types.Comment

	switch {
	case !flow.HasHistory():
		latest = flow.LatestComments()
	case flow.CanSplit() && f.split:
		dir := filepath.Join(f.home, strconv.FormatInt(cid, 10))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for date, doc := range flow.Histories {
			name := fmt.Sprintf("%d,%d.xml", date, cid)
			if err := f.writeFile(filepath.Join(dir, name), *doc, doc.Comments); err != nil {
				return err
			}
		}
		latest = flow.LatestComments()
	default:
		latest = flow.Document()
	}

	header := types.CommentDocument{}
	if flow.Latest != nil {
		header = *flow.Latest
	}
	path := filepath.Join(f.home, fmt.Sprintf("%d.xml", cid))
	return f.writeFile(path, header, latest)
}

func (f *File) writeFile(path string, header types.CommentDocument, comments []types.Comment) error {
	return f.runOffloaded(func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		defer out.Close()
		return WriteDocument(out, header, comments)
	})
}
