package types

// Segments is the four-way partition of one snapshot's comments, in the
// order the host lays them out on the wire: normal comments first, then
// protected (pinned) comments, then the pool's title and code overlays.
// Digest (internal/worker) produces one of these per document; Join merges
// a pool of them (oldest to newest) into the flat flows below.
type Segments struct {
	Normal    []Comment
	Protected []Comment
	Title     []Comment
	Code      []Comment
}

// Pools returns the four segments in wire order: normal, protected, title,
// code.
func (s Segments) Pools() [4][]Comment {
	return [4][]Comment{s.Normal, s.Protected, s.Title, s.Code}
}

// CommentFlow is the reconstructed result for one CID: the current
// snapshot, optionally every historical roll-date snapshot walked to build
// it, and the four comment streams joined across all of them.
type CommentFlow struct {
	Latest    *CommentDocument
	Histories map[int64]*CommentDocument // date -> raw snapshot; nil if history wasn't walked
	Normal    []Comment
	Protected []Comment
	Title     []Comment
	Code      []Comment
	RollDates RollDate
	MaxLimit  int
}

// HasHistory reports whether the flow was built by walking roll dates, as
// opposed to returning just the current snapshot.
func (f *CommentFlow) HasHistory() bool { return f.Histories != nil }

// CanSplit reports whether per-date history documents are available to
// write out individually, rather than only the merged view.
func (f *CommentFlow) CanSplit() bool { return len(f.RollDates) > 0 }

// LatestComments returns the current snapshot's comments, unreconstructed.
func (f *CommentFlow) LatestComments() []Comment {
	if f.Latest == nil {
		return nil
	}
	return f.Latest.Comments
}

// Document returns the merged view: every reconstructed flow concatenated in
// wire order, or just the current snapshot if history wasn't walked.
func (f *CommentFlow) Document() []Comment {
	if !f.HasHistory() {
		return f.LatestComments()
	}
	total := len(f.Normal) + len(f.Protected) + len(f.Title) + len(f.Code)
	out := make([]Comment, 0, total)
	out = append(out, f.Normal...)
	out = append(out, f.Protected...)
	out = append(out, f.Title...)
	out = append(out, f.Code...)
	return out
}

// AtDate returns the raw snapshot fetched for roll date d, if the walk
// reached it.
func (f *CommentFlow) AtDate(d int64) (*CommentDocument, bool) {
	if f.Histories == nil {
		return nil, false
	}
	doc, ok := f.Histories[d]
	return doc, ok
}

// Segments packages the four joined flows back into a Segments value.
func (f *CommentFlow) Segments() Segments {
	return Segments{Normal: f.Normal, Protected: f.Protected, Title: f.Title, Code: f.Code}
}
