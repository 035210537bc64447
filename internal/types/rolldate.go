package types

import "encoding/json"

// RollDate is the ascending list of pool-rotation timestamps the host
// publishes for a CID: one entry per historical snapshot still retrievable.
type RollDate []int64

// rawRollDateEntry mirrors one element of the `/rolldate,{cid}` JSON array:
// an object carrying at least a `timestamp` field, plus whatever other
// fields the host sends that this scraper has no use for.
type rawRollDateEntry struct {
	Timestamp int64 `json:"timestamp"`
}

// ParseRollDate decodes the `/rolldate,{cid}` JSON array response, a list
// of objects each carrying a `timestamp` field (spec.md §6), into the
// ascending list of unix seconds the worker walks backwards over.
func ParseRollDate(body []byte) (RollDate, error) {
	var entries []rawRollDateEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &ParseError{What: "roll date list", Err: err}
	}
	dates := make(RollDate, len(entries))
	for i, e := range entries {
		dates[i] = e.Timestamp
	}
	return dates, nil
}
