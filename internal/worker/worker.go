package worker

import (
	"context"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Fetcher is the subset of internal/fetcher.CIDFetcher the reconstruction
// algorithm needs, kept narrow so it's trivial to fake in tests.
type Fetcher interface {
	GetCurrent(ctx context.Context, cid int64) (*types.CommentDocument, error)
	GetHistory(ctx context.Context, cid, date int64) (*types.CommentDocument, error)
	GetRollDates(ctx context.Context, cid int64) (types.RollDate, error)
}

// TimeRange is a user-specified [Start, End] window, either bound
// optional. Resolved treats the range as "set" the moment either bound is
// given, matching CLI intent: a user who only supplied -s wants every
// comment from then on, not an unbounded range.
type TimeRange struct {
	Start *int64
	End   *int64
}

// Resolved returns concrete start/end bounds (defaulting the absent one to
// the widest possible value) and whether the caller actually asked for
// trimming at all.
func (r TimeRange) Resolved() (start, end int64, hasRange bool) {
	hasRange = r.Start != nil || r.End != nil
	start = 0
	if r.Start != nil {
		start = *r.Start
	}
	end = types.MaxTimestamp
	if r.End != nil {
		end = *r.End
	}
	return start, end, hasRange
}

// Reconstruct builds the full CommentFlow for cid: the current snapshot,
// and — if history is requested and the pool has rotated since the video
// aired — every historical roll-date snapshot needed to recover comments
// the current snapshot has since evicted.
func Reconstruct(ctx context.Context, f Fetcher, cid int64, history bool, tr TimeRange) (*types.CommentFlow, error) {
	start, end, hasTimeRange := tr.Resolved()

	latest, err := f.GetCurrent(ctx, cid)
	if err != nil {
		return nil, err
	}
	limit := latest.MaxLimit
	if limit <= 0 {
		limit = 1
	}
	segs := Digest(latest.Comments)

	hasHistory := false
	var walkStart, walkEnd int64
	if history && lenPool01(segs) >= limit && len(segs.Normal) > 0 {
		firstDate := segs.Normal[0].Date
		walkStart = max64(start, latest.DS)
		walkEnd = min64(end, firstDate)
		if walkStart <= walkEnd {
			hasHistory = true
		}
	}

	flow := &types.CommentFlow{Latest: latest, MaxLimit: limit}

	if !hasHistory {
		if hasTimeRange {
			trimmed := Trim(latest.Comments, start, end)
			trimmedDoc := *latest
			trimmedDoc.Comments = trimmed
			flow.Latest = &trimmedDoc
		}
		return flow, nil
	}

	pools := [4][][]types.Comment{{segs.Normal}, {segs.Protected}, {segs.Title}, {segs.Code}}
	histories, rollDates, err := scrapeHistory(ctx, f, cid, &pools, limit, walkStart, walkEnd)
	if err != nil {
		return nil, err
	}

	flow.Histories = histories
	flow.RollDates = rollDates
	flow.Normal = Join(reversed(pools[0]))
	flow.Protected = Join(reversed(pools[1]))
	flow.Title = Join(reversed(pools[2]))
	flow.Code = Join(reversed(pools[3]))

	if hasTimeRange {
		flow.Normal = Trim(flow.Normal, start, end)
		flow.Protected = Trim(flow.Protected, start, end)
		flow.Title = Trim(flow.Title, start, end)
		flow.Code = Trim(flow.Code, start, end)
		flow.RollDates = nil
	}

	return flow, nil
}

// scrapeHistory walks roll dates backward from the newest, fetching each
// historical snapshot and folding its segments into pools, until either the
// walked-to pool stops being full (no more history to recover) or start is
// passed.
func scrapeHistory(
	ctx context.Context, f Fetcher, cid int64,
	pools *[4][][]types.Comment, limit int, start, end int64,
) (map[int64]*types.CommentDocument, types.RollDate, error) {
	rollDates, err := f.GetRollDates(ctx, cid)
	if err != nil {
		return nil, nil, err
	}
	histories := make(map[int64]*types.CommentDocument)

	for idate := len(rollDates) - 1; idate >= 0; idate-- {
		if idate > 0 && rollDates[idate-1] > end {
			// the earlier checkpoint already overlaps what's been scanned.
			continue
		}
		if rollDates[idate] < start {
			// passed the lower bound; nothing further back is needed.
			break
		}

		date := rollDates[idate]
		root, err := f.GetHistory(ctx, cid, date)
		if err != nil {
			return nil, nil, err
		}
		segs := Digest(root.Comments)
		pools[0] = append(pools[0], segs.Normal)
		pools[1] = append(pools[1], segs.Protected)
		pools[2] = append(pools[2], segs.Title)
		pools[3] = append(pools[3], segs.Code)
		histories[date] = root

		if lenPool01(segs) < limit {
			break
		}
		if len(segs.Normal) == 0 {
			break
		}
		end = segs.Normal[0].Date
		if start > end {
			break
		}
	}
	return histories, rollDates, nil
}

// reversed returns segs in reverse order (newest-appended-first becomes
// oldest-first), the order Join expects.
func reversed(segs [][]types.Comment) [][]types.Comment {
	out := make([][]types.Comment, len(segs))
	for i, s := range segs {
		out[len(segs)-1-i] = s
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
