// Package worker implements the historical-reconstruction algorithm: given
// a CID's current comment pool and its roll-date history, rebuild the full
// comment flow the pool has held over time.
package worker

import "github.com/yehzhang/dmscrape/internal/types"

// Digest splits one snapshot's comments into the four pools the host lays
// out on the wire: normal, protected, title, code. code and title are
// trailing overlay elements; normal and protected are told apart by an
// ID-monotonicity break, since protected comments are assigned IDs from a
// separate counter than the normal pool's and get spliced in just before
// the title/code tail.
func Digest(comments []types.Comment) types.Segments {
	end := len(comments)

	i := end
	for i > 0 && comments[i-1].Pool == types.PoolCode {
		i--
	}
	code := comments[i:end]
	end = i

	i = end
	for i > 0 && comments[i-1].Pool == types.PoolTitle {
		i--
	}
	title := comments[i:end]
	end = i

	boundary := end
	last := types.MaxCommentID
	for j := end - 1; j >= 0; j-- {
		if comments[j].ID > last {
			boundary = j + 1
			break
		}
		last = comments[j].ID
	}
	normal := comments[:boundary]
	protected := comments[boundary:end]

	return types.Segments{Normal: normal, Protected: protected, Title: title, Code: code}
}

// lenPool01 is the combined length of the normal and protected pools, the
// figure compared against a document's advertised pool capacity to decide
// whether the pool has rotated (and thus whether history needs walking).
func lenPool01(s types.Segments) int { return len(s.Normal) + len(s.Protected) }
