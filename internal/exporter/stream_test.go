package exporter

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/yehzhang/dmscrape/internal/types"
)

func TestStreamDumpWritesDocumentAndEnd(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "|")

	flow := &types.CommentFlow{
		Latest: &types.CommentDocument{
			ChatID:   1,
			Source:   "k-v",
			Comments: []types.Comment{{ID: 1, Raw: "1,1,25,16777215,100,0,u,1", Text: "hi"}},
		},
	}

	if err := s.Dump(context.Background(), 1, flow); err != nil {
		t.Fatalf("Dump returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `<d p="1,1,25,16777215,100,0,u,1">hi</d>`) {
		t.Fatalf("Dump output missing comment element: %q", out)
	}
	if !strings.HasSuffix(out, "|") {
		t.Fatalf("Dump output %q does not end with the configured separator", out)
	}
}

func TestWriteDocumentEscapesText(t *testing.T) {
	var buf bytes.Buffer
	comments := []types.Comment{{ID: 1, Raw: "r", Text: "<script>&\"'"}}
	if err := WriteDocument(&buf, types.CommentDocument{}, comments); err != nil {
		t.Fatalf("WriteDocument returned error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<script>") {
		t.Fatalf("WriteDocument did not escape comment text: %q", out)
	}
}

func TestWriteDocumentOmitsZeroHeaderFields(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocument(&buf, types.CommentDocument{Source: "k-v"}, nil); err != nil {
		t.Fatalf("WriteDocument returned error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<chatid>") {
		t.Fatalf("WriteDocument emitted <chatid> for a zero ChatID: %q", out)
	}
	if !strings.Contains(out, "<source>k-v</source>") {
		t.Fatalf("WriteDocument missing non-zero <source>: %q", out)
	}
}
