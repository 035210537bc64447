// Package exporter writes a reconstructed CommentFlow out to a sink: the
// host's own XML dialect on a stream, per-CID files on disk, or a
// document/relational database.
package exporter

import (
	"context"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Exporter is the sink a Company hands every reconstructed flow to.
// Connect/Disconnect bracket a scrape run; Dump is called once per CID.
type Exporter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error
	Name() string
}

// Multi fans a flow out to several exporters, continuing past a failing
// backend and reporting the first error it saw.
type Multi struct {
	backends []Exporter
}

// NewMulti builds a fan-out Exporter over backends.
func NewMulti(backends ...Exporter) *Multi { return &Multi{backends: backends} }

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Connect(ctx context.Context) error {
	for _, b := range m.backends {
		if err := b.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) Disconnect(ctx context.Context) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Dump(ctx, cid, flow); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
