package types

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// rawComment mirrors the `<d p="...">text</d>` element on the wire.
type rawComment struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// rawDocument mirrors the `<i>...</i>` root element the comment host
// returns, both for the current snapshot and for a historical roll date.
type rawDocument struct {
	XMLName    xml.Name     `xml:"i"`
	ChatServer string       `xml:"chatserver,omitempty"`
	ChatID     int64        `xml:"chatid,omitempty"`
	Mission    int          `xml:"mission,omitempty"`
	MaxLimit   int          `xml:"maxlimit,omitempty"`
	Source     string       `xml:"source,omitempty"`
	DS         int64        `xml:"ds,omitempty"`
	Comments   []rawComment `xml:"d"`
}

// CommentDocument is one parsed snapshot: either the current pool or one
// historical roll-date pool. Header fields come from the root element;
// Comments is left in document order (oldest write position first, though
// IDs within the normal pool need not be monotonic across pool rotations).
type CommentDocument struct {
	ChatServer string
	ChatID     int64
	Mission    int
	MaxLimit   int
	Source     string
	DS         int64 // timestamp of the pool's oldest retained comment
	Comments   []Comment
}

// ParseCommentDocument decodes one `<i>` document from the comment host.
func ParseCommentDocument(body []byte) (*CommentDocument, error) {
	var raw rawDocument
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{What: "comment document", Err: err}
	}

	doc := &CommentDocument{
		ChatServer: raw.ChatServer,
		ChatID:     raw.ChatID,
		Mission:    raw.Mission,
		MaxLimit:   raw.MaxLimit,
		Source:     raw.Source,
		DS:         raw.DS,
		Comments:   make([]Comment, 0, len(raw.Comments)),
	}
	for _, rc := range raw.Comments {
		c, err := ParseComment(rc.P, rc.Text)
		if err != nil {
			return nil, &ParseError{What: "comment element", Err: err}
		}
		doc.Comments = append(doc.Comments, c)
	}
	return doc, nil
}

// invalidXMLCodepoints is the fixed table of code points XML 1.0 forbids
// outside tab/lf/cr (the "Char" production in the XML 1.0 spec excludes
// every C0 control below 0x20 other than those three). The comment host
// occasionally leaks one of these into an otherwise well-formed response;
// Go's xml.Unmarshal rejects them outright.
var invalidXMLCodepoints = map[rune]struct{}{
	0x00: {}, 0x01: {}, 0x02: {}, 0x03: {}, 0x04: {}, 0x05: {}, 0x06: {}, 0x07: {}, 0x08: {},
	0x0B: {}, 0x0C: {},
	0x0E: {}, 0x0F: {}, 0x10: {}, 0x11: {}, 0x12: {}, 0x13: {}, 0x14: {}, 0x15: {}, 0x16: {},
	0x17: {}, 0x18: {}, 0x19: {}, 0x1A: {}, 0x1B: {}, 0x1C: {}, 0x1D: {}, 0x1E: {}, 0x1F: {},
}

// escapeInvalidXMLChars rewrites every code point in invalidXMLCodepoints
// into a four-character `\xHH` escape instead of dropping it, preserving
// the fact that something was there and which code point it was.
func escapeInvalidXMLChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, bad := invalidXMLCodepoints[r]; bad {
			fmt.Fprintf(&b, `\x%02x`, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeInvalidXMLChars is the exported form used by internal/fetcher before
// handing a raw response body to ParseCommentDocument.
func EscapeInvalidXMLChars(s string) string { return escapeInvalidXMLChars(s) }
