package output

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/leakctl/leakctl/internal/record"
)

func rec(t *testing.T, src string) record.Record {
	t.Helper()
	r, err := record.FromJSON([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		spec   string
		full   bool
		fields []string
	}{
		{"", false, []string{"protocol", "ip", "port"}},
		{"full", true, nil},
		{"ip, port ,host", false, []string{"ip", "port", "host"}},
		{"protocol,full", true, nil},
		{" , ", false, []string{"protocol", "ip", "port"}},
	}
	for _, tt := range tests {
		p := ParseFields(tt.spec)
		if p.Full() != tt.full {
			t.Errorf("ParseFields(%q).Full() = %v", tt.spec, p.Full())
		}
		if !reflect.DeepEqual(p.Fields(), tt.fields) {
			t.Errorf("ParseFields(%q).Fields() = %v, want %v", tt.spec, p.Fields(), tt.fields)
		}
	}
}

func TestDefaultProjectionCollapsesWebServices(t *testing.T) {
	p := ParseFields("")
	got := p.Apply(rec(t, `{"protocol":"https","ip":"203.0.113.7","port":443}`))
	want := map[string]any{"url": "https://203.0.113.7:443"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply = %v, want %v", got, want)
	}

	// Non-web protocols keep the triple.
	got = p.Apply(rec(t, `{"protocol":"ssh","ip":"203.0.113.7","port":22}`))
	if _, hasURL := got["url"]; hasURL {
		t.Errorf("ssh record collapsed to url: %v", got)
	}
	if got["protocol"] != "ssh" {
		t.Errorf("Apply = %v", got)
	}
}

func TestProjectionNestedAndMissing(t *testing.T) {
	p := ParseFields("ip,geoip.country_name,leak.dataset.size")
	got := p.Apply(rec(t, `{"ip":"1.2.3.4","geoip":{"country_name":"France"}}`))
	want := map[string]any{
		"ip":    "1.2.3.4",
		"geoip": map[string]any{"country_name": "France"},
		"leak":  map[string]any{"dataset": map[string]any{"size": "N/A"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply = %v, want %v", got, want)
	}
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSONL, ParseFields("ip,port"))
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{
		`{"ip":"1.1.1.1","port":80}`,
		`{"ip":"2.2.2.2","port":443}`,
	} {
		if err := w.Write(rec(t, src)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d: %q", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 not JSON: %v", err)
	}
	if first["ip"] != "1.1.1.1" {
		t.Errorf("line 0 = %v", first)
	}
}

func TestJSONWriterEmitsOneArray(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSON, ParseFields("full"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec(t, `{"ip":"1.1.1.1"}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &arr); err != nil {
		t.Fatalf("output not a JSON array: %v", err)
	}
	if len(arr) != 1 || arr[0]["ip"] != "1.1.1.1" {
		t.Errorf("array = %v", arr)
	}
}

func TestJSONWriterEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatJSON, ParseFields(""))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty stream output = %q, want []", got)
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatCSV, ParseFields("ip,port,geoip.country_name"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec(t, `{"ip":"1.1.1.1","port":80,"geoip":{"country_name":"France"}}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(rec(t, `{"ip":"2.2.2.2","port":443}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d: %q", len(lines), buf.String())
	}
	if lines[0] != "ip,port,geoip.country_name" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "2.2.2.2,443,N/A" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestCSVRejectsFullProjection(t *testing.T) {
	if _, err := NewWriter(&bytes.Buffer{}, FormatCSV, ParseFields("full")); err == nil {
		t.Error("csv with full projection accepted")
	}
}

func TestURLsWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, FormatURLs, ParseFields(""))
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{
		`{"protocol":"https","ip":"1.1.1.1","port":443}`,
		`{"protocol":"ssh","ip":"2.2.2.2","port":22}`,
		`{"ip":"3.3.3.3"}`, // no protocol/port: skipped
	} {
		if err := w.Write(rec(t, src)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	want := "https://1.1.1.1:443\nssh://2.2.2.2:22\n"
	if buf.String() != want {
		t.Errorf("urls output = %q, want %q", buf.String(), want)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"json": FormatJSON, "JSONL": FormatJSONL, "ndjson": FormatJSONL,
		"csv": FormatCSV, "urls": FormatURLs,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("parquet"); err == nil {
		t.Error("unknown format accepted")
	}
}
