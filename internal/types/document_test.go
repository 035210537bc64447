package types

import "testing"

func TestParseCommentDocument(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<i><chatserver>chat.example.com</chatserver><chatid>555</chatid><mission>0</mission>
<maxlimit>1000</maxlimit><source>k-v</source><ds>1600000000</ds>
<d p="1.0,1,25,16777215,1600000001,0,user1,1">first</d>
<d p="2.0,1,25,16777215,1600000002,1,user2,2">second</d>
</i>`)

	doc, err := ParseCommentDocument(body)
	if err != nil {
		t.Fatalf("ParseCommentDocument returned error: %v", err)
	}
	if doc.ChatID != 555 || doc.MaxLimit != 1000 || doc.DS != 1600000000 {
		t.Fatalf("header fields wrong: %+v", doc)
	}
	if len(doc.Comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(doc.Comments))
	}
	if doc.Comments[0].ID != 1 || doc.Comments[1].ID != 2 {
		t.Fatalf("comment order/ids wrong: %+v", doc.Comments)
	}
	if doc.Comments[1].Pool != PoolTitle {
		t.Fatalf("second comment pool = %v, want PoolTitle", doc.Comments[1].Pool)
	}
}

func TestParseCommentDocumentMalformedComment(t *testing.T) {
	body := []byte(`<i><d p="bad">x</d></i>`)
	if _, err := ParseCommentDocument(body); err == nil {
		t.Fatal("expected error for malformed comment attribute")
	}
}

func TestEscapeInvalidXMLChars(t *testing.T) {
	in := "abc\x01\x02def\tghi\n\r"
	want := `abc\x01\x02def` + "\tghi\n\r"
	if got := EscapeInvalidXMLChars(in); got != want {
		t.Fatalf("EscapeInvalidXMLChars(%q) = %q, want %q", in, got, want)
	}
}
