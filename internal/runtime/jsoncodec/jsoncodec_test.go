package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type tickReport struct {
	Tick    int    `json:"tick"`
	Service string `json:"service"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := tickReport{Tick: 42, Service: "ticker"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out tickReport
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"tick\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestMarshalString(t *testing.T) {
	got, err := MarshalString(map[string]int{"landmarks": 7})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if got != `{"landmarks":7}` {
		t.Fatalf("unexpected output %s", got)
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, tickReport{Tick: 7, Service: "camera"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected trailing newline, got %q", buf.String())
	}

	var decoded tickReport
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Tick != 7 || decoded.Service != "camera" {
		t.Fatalf("unexpected decoded value %#v", decoded)
	}
}
