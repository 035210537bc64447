package exporter

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/yehzhang/dmscrape/internal/types"
)

// Stream writes every dumped flow's merged document, in the host's own XML
// dialect, to an underlying writer (stdout by default). It is safe for
// concurrent Dump calls: writes are serialized.
type Stream struct {
	mu sync.Mutex
	w  io.Writer
	// end is appended after each document, letting callers separate
	// consecutive documents on a stream that isn't otherwise delimited.
	end string
}

// NewStream wraps w. end is written after every Dump (default "\n").
func NewStream(w io.Writer, end string) *Stream {
	if end == "" {
		end = "\n"
	}
	return &Stream{w: w, end: end}
}

func (s *Stream) Name() string                             { return "stream" }
func (s *Stream) Connect(ctx context.Context) error         { return nil }
func (s *Stream) Disconnect(ctx context.Context) error      { return nil }

func (s *Stream) Dump(ctx context.Context, cid int64, flow *types.CommentFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var comments []types.Comment
	var header types.CommentDocument
	if flow.HasHistory() {
		comments = flow.Document()
		header = *flow.Latest
	} else {
		comments = flow.LatestComments()
		header = *flow.Latest
	}

	if err := WriteDocument(s.w, header, comments); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, s.end)
	return err
}

// WriteDocument renders one `<i>` document: header fields, then one `<d
// p="...">text</d>` element per comment, escaping text the way the
// source's hand-rolled writer did.
func WriteDocument(w io.Writer, header types.CommentDocument, comments []types.Comment) error {
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<i>"); err != nil {
		return err
	}
	writeTag(w, "chatserver", header.ChatServer)
	if header.ChatID != 0 {
		writeTag(w, "chatid", strconv.FormatInt(header.ChatID, 10))
	}
	if header.Mission != 0 {
		writeTag(w, "mission", strconv.Itoa(header.Mission))
	}
	if header.MaxLimit != 0 {
		writeTag(w, "maxlimit", strconv.Itoa(header.MaxLimit))
	}
	writeTag(w, "source", header.Source)
	if header.DS != 0 {
		writeTag(w, "ds", strconv.FormatInt(header.DS, 10))
	}
	for _, c := range comments {
		fmt.Fprintf(w, `<d p="%s">%s</d>`, xmlEscapeAttr(c.Attr()), xmlEscapeText(c.Text))
	}
	_, err := io.WriteString(w, "</i>")
	return err
}

func writeTag(w io.Writer, tag, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "<%s>%s</%s>", tag, xmlEscapeText(value), tag)
}

func xmlEscapeText(s string) string {
	var b []byte
	buf := xmlWriter{}
	xml.EscapeText(&buf, []byte(s))
	b = buf.Bytes()
	return string(b)
}

func xmlEscapeAttr(s string) string { return xmlEscapeText(s) }

type xmlWriter struct{ b []byte }

func (w *xmlWriter) Write(p []byte) (int, error) { w.b = append(w.b, p...); return len(p), nil }
func (w *xmlWriter) Bytes() []byte               { return w.b }
