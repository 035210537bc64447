package worker

import "github.com/yehzhang/dmscrape/internal/types"

// Join merges a pool segment walked oldest-to-newest into one flat,
// ID-ascending stream, using each segment's maximum ID seen so far as a
// horizon: a newer segment only contributes comments whose ID is past that
// horizon, since older snapshots' tails overlap with what a newer snapshot
// already re-reported.
func Join(segments [][]types.Comment) []types.Comment {
	var horizon int64
	var flow []types.Comment
	for _, segment := range segments {
		i := 0
		for i < len(segment) && segment[i].ID <= horizon {
			i++
		}
		if i == len(segment) {
			// every element of this segment was at or below the horizon
			// already established by an earlier segment; it contributed
			// nothing, so horizon must not regress to its (lower) last ID.
			continue
		}
		flow = append(flow, segment[i:]...)
		horizon = segment[len(segment)-1].ID
	}
	return flow
}

// Trim narrows flow to the comments whose Date falls within [start, end],
// assuming flow is already in ascending Date order (true of Join's output).
func Trim(flow []types.Comment, start, end int64) []types.Comment {
	front := 0
	for front < len(flow) && flow[front].Date < start {
		front++
	}
	rear := len(flow)
	for rear > front && flow[rear-1].Date > end {
		rear--
	}
	return flow[front:rear]
}
