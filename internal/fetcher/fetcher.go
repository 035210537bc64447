// Package fetcher wraps internal/session with the comment host's endpoint
// shapes: the current snapshot, a historical roll-date snapshot, and the
// roll-date index itself.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yehzhang/dmscrape/internal/session"
	"github.com/yehzhang/dmscrape/internal/types"
)

const (
	// HostCID is the comment host serving CID-keyed danmaku pools.
	HostCID = "comment.bilibili.com"
	hostPort = 80
)

// CIDFetcher retrieves comment documents and roll-date indices for a single
// CID over one reused Session.
type CIDFetcher struct {
	session *session.Session
	log     *slog.Logger
}

// New builds a CIDFetcher. Connect must be called before any Get method.
func New(log *slog.Logger, opts ...session.Option) *CIDFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &CIDFetcher{
		session: session.New(HostCID, hostPort, log, opts...),
		log:     log.With("component", "fetcher"),
	}
}

// Connect opens the underlying session.
func (f *CIDFetcher) Connect(ctx context.Context) error { return f.session.Connect(ctx) }

// Close closes the underlying session.
func (f *CIDFetcher) Close() error { return f.session.Disconnect() }

// GetCurrent fetches the CID's current comment pool.
func (f *CIDFetcher) GetCurrent(ctx context.Context, cid int64) (*types.CommentDocument, error) {
	uri := fmt.Sprintf("/%d.xml", cid)
	return f.getDocument(ctx, uri)
}

// GetHistory fetches the CID's comment pool as it stood at roll date ts.
func (f *CIDFetcher) GetHistory(ctx context.Context, cid, ts int64) (*types.CommentDocument, error) {
	uri := fmt.Sprintf("/dmroll,%d,%d", ts, cid)
	return f.getDocument(ctx, uri)
}

// GetRollDates fetches the list of historical snapshot timestamps retained
// for cid, oldest first.
func (f *CIDFetcher) GetRollDates(ctx context.Context, cid int64) (types.RollDate, error) {
	uri := fmt.Sprintf("/rolldate,%d", cid)
	body, err := f.session.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return types.ParseRollDate(body)
}

func (f *CIDFetcher) getDocument(ctx context.Context, uri string) (*types.CommentDocument, error) {
	body, err := f.session.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	clean := types.EscapeInvalidXMLChars(string(body))
	if clean == "error" {
		return nil, types.ContentErr("host returned literal error sentinel for " + uri)
	}
	return types.ParseCommentDocument([]byte(clean))
}
