package types

import (
	"reflect"
	"testing"
)

func TestParseRollDate(t *testing.T) {
	body := []byte(`[{"timestamp":100,"extra":"ignored"},{"timestamp":200},{"timestamp":300}]`)
	got, err := ParseRollDate(body)
	if err != nil {
		t.Fatalf("ParseRollDate returned error: %v", err)
	}
	want := RollDate{100, 200, 300}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseRollDate = %v, want %v", got, want)
	}
}

func TestParseRollDateMalformed(t *testing.T) {
	if _, err := ParseRollDate([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed roll date body")
	}
}
