package worker

import (
	"testing"

	"github.com/yehzhang/dmscrape/internal/types"
)

func c(id int64, pool types.Pool) types.Comment {
	return types.Comment{ID: id, Pool: pool}
}

func TestDigestSplitsPools(t *testing.T) {
	comments := []types.Comment{
		c(101, types.PoolNormal),
		c(102, types.PoolNormal),
		c(103, types.PoolNormal),
		c(1, types.PoolNormal), // protected pool, lower counter restarted
		c(2, types.PoolNormal),
		c(0, types.PoolTitle),
		c(0, types.PoolCode),
		c(0, types.PoolCode),
	}

	segs := Digest(comments)

	if len(segs.Normal) != 3 {
		t.Fatalf("Normal = %d comments, want 3: %v", len(segs.Normal), segs.Normal)
	}
	if len(segs.Protected) != 2 {
		t.Fatalf("Protected = %d comments, want 2: %v", len(segs.Protected), segs.Protected)
	}
	if len(segs.Title) != 1 {
		t.Fatalf("Title = %d comments, want 1", len(segs.Title))
	}
	if len(segs.Code) != 2 {
		t.Fatalf("Code = %d comments, want 2", len(segs.Code))
	}
}

func TestDigestNoProtectedPool(t *testing.T) {
	comments := []types.Comment{
		c(1, types.PoolNormal),
		c(2, types.PoolNormal),
		c(3, types.PoolNormal),
	}
	segs := Digest(comments)
	if len(segs.Normal) != 3 || len(segs.Protected) != 0 {
		t.Fatalf("segs = %+v, want all 3 in Normal, none in Protected", segs)
	}
}

func TestDigestEmpty(t *testing.T) {
	segs := Digest(nil)
	if len(segs.Normal)+len(segs.Protected)+len(segs.Title)+len(segs.Code) != 0 {
		t.Fatalf("Digest(nil) = %+v, want all empty", segs)
	}
}

func TestLenPool01(t *testing.T) {
	segs := types.Segments{
		Normal:    make([]types.Comment, 3),
		Protected: make([]types.Comment, 2),
		Title:     make([]types.Comment, 1),
	}
	if got := lenPool01(segs); got != 5 {
		t.Fatalf("lenPool01 = %d, want 5", got)
	}
}
