// Package types holds the data model shared across dmscrape: comments,
// comment documents, roll dates, and the reconstructed comment flow.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Pool tags the kind of a comment within a document.
type Pool int

const (
	PoolNormal Pool = 0
	PoolTitle  Pool = 1
	PoolCode   Pool = 2
)

// MaxCommentID bounds the boundary-scan in Digest; no real comment ID
// reaches it, so it acts as a sentinel "larger than anything" horizon.
const MaxCommentID int64 = 1<<63 - 1

// MaxTimestamp is the effective "no upper bound" time-range endpoint.
const MaxTimestamp int64 = 1<<63 - 1

// Comment is one timed comment. The fields are parsed out of the
// comma-separated `p` attribute; Raw preserves that attribute verbatim so
// re-emission never loses precision or an unexpected extra field.
type Comment struct {
	ID       int64
	Offset   float64 // seconds into the video
	Mode     int
	FontSize int
	Color    int
	Date     int64 // unix seconds
	Pool     Pool
	User     string
	Raw      string // the original `p` attribute string
	Text     string // the comment body (element text)
}

// ParseComment parses the comma-separated `p` attribute of a `<d p="...">`
// element: offset,mode,font_size,color,date,pool,user,id.
func ParseComment(p, text string) (Comment, error) {
	fields := strings.Split(p, ",")
	if len(fields) < 8 {
		return Comment{}, fmt.Errorf("types: malformed comment attribute %q: want 8 fields, got %d", p, len(fields))
	}

	offset, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad offset in %q: %w", p, err)
	}
	mode, err := strconv.Atoi(fields[1])
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad mode in %q: %w", p, err)
	}
	fontSize, err := strconv.Atoi(fields[2])
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad font size in %q: %w", p, err)
	}
	color, err := strconv.Atoi(fields[3])
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad color in %q: %w", p, err)
	}
	date, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad date in %q: %w", p, err)
	}
	pool, err := strconv.Atoi(fields[5])
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad pool in %q: %w", p, err)
	}
	id, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return Comment{}, fmt.Errorf("types: bad id in %q: %w", p, err)
	}

	return Comment{
		ID:       id,
		Offset:   offset,
		Mode:     mode,
		FontSize: fontSize,
		Color:    color,
		Date:     date,
		Pool:     Pool(pool),
		User:     fields[6],
		Raw:      p,
		Text:     text,
	}, nil
}

// Attr returns the `p` attribute string to re-emit, preferring the raw form
// the comment was parsed from so round-tripping never drifts.
func (c Comment) Attr() string {
	if c.Raw != "" {
		return c.Raw
	}
	return fmt.Sprintf("%v,%d,%d,%d,%d,%d,%s,%d",
		c.Offset, c.Mode, c.FontSize, c.Color, c.Date, int(c.Pool), c.User, c.ID)
}
