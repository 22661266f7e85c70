package stats

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leakctl/leakctl/internal/record"
)

type sliceSource struct {
	recs []record.Record
	i    int
	err  error
}

func (s *sliceSource) Next() bool {
	if s.i >= len(s.recs) {
		return false
	}
	s.i++
	return true
}

func (s *sliceSource) Record() record.Record { return s.recs[s.i-1] }
func (s *sliceSource) Err() error            { return s.err }

func recs(t *testing.T, srcs ...string) []record.Record {
	t.Helper()
	out := make([]record.Record, len(srcs))
	for i, s := range srcs {
		r, err := record.FromJSON([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		out[i] = r
	}
	return out
}

func TestExactCounts(t *testing.T) {
	src := &sliceSource{recs: recs(t,
		`{"geoip":{"country_name":"United States"},"port":443}`,
		`{"geoip":{"country_name":"United States"},"port":443}`,
		`{"geoip":{"country_name":"United States"},"port":80}`,
		`{"geoip":{"country_name":"Germany"},"port":443}`,
		`{"geoip":{"country_name":"Germany"},"port":22}`,
		`{"port":8080}`,
		`{"geoip":{"country_name":null},"port":443}`,
	)}
	a, err := Collect(src, Field("geoip.country_name"), Field("port"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Total() != 7 {
		t.Errorf("Total = %d, want 7", a.Total())
	}
	// Missing and null country both excluded from the distribution.
	if got := a.Counted("geoip.country_name"); got != 5 {
		t.Errorf("Counted(country) = %d, want 5", got)
	}
	want := []ValueCount{{"United States", 3}, {"Germany", 2}}
	if got := a.Top("geoip.country_name", 0); !reflect.DeepEqual(got, want) {
		t.Errorf("Top(country) = %v, want %v", got, want)
	}
	// Ports render without float artifacts.
	wantPorts := []ValueCount{{"443", 4}, {"22", 1}, {"80", 1}, {"8080", 1}}
	if got := a.Top("port", 0); !reflect.DeepEqual(got, wantPorts) {
		t.Errorf("Top(port) = %v, want %v", got, wantPorts)
	}
}

func TestTopNTruncatesAtReadout(t *testing.T) {
	a := New(Field("protocol"))
	for _, r := range recs(t,
		`{"protocol":"https"}`, `{"protocol":"https"}`, `{"protocol":"https"}`,
		`{"protocol":"ssh"}`, `{"protocol":"ssh"}`,
		`{"protocol":"ftp"}`,
	) {
		a.Add(r)
	}
	top := a.Top("protocol", 2)
	if len(top) != 2 || top[0].Value != "https" || top[1].Value != "ssh" {
		t.Errorf("Top(2) = %v", top)
	}
	// Full distribution still intact underneath.
	all := a.Top("protocol", 0)
	if len(all) != 3 || all[2] != (ValueCount{"ftp", 1}) {
		t.Errorf("Top(0) = %v", all)
	}
}

func TestTopTieOrderingStable(t *testing.T) {
	a := New(Field("protocol"))
	for _, r := range recs(t, `{"protocol":"b"}`, `{"protocol":"a"}`, `{"protocol":"c"}`) {
		a.Add(r)
	}
	want := []ValueCount{{"a", 1}, {"b", 1}, {"c", 1}}
	for i := 0; i < 10; i++ {
		if got := a.Top("protocol", 0); !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: Top = %v, want %v", i, got, want)
		}
	}
}

func TestPartialResultsOnStreamError(t *testing.T) {
	streamErr := errors.New("connection reset")
	src := &sliceSource{
		recs: recs(t, `{"protocol":"https"}`, `{"protocol":"ssh"}`),
		err:  streamErr,
	}
	a, err := Collect(src, Field("protocol"))
	if !errors.Is(err, streamErr) {
		t.Fatalf("err = %v, want stream error", err)
	}
	if a == nil || a.Total() != 2 {
		t.Fatalf("partial aggregator missing, a=%v", a)
	}
	if got := a.Top("protocol", 0); len(got) != 2 {
		t.Errorf("partial Top = %v", got)
	}
}

func TestDefaultExtractors(t *testing.T) {
	a := New()
	names := a.Names()
	if len(names) != 8 {
		t.Fatalf("default extractor count = %d, want 8", len(names))
	}
	if names[0] != "geoip.country_name" {
		t.Errorf("first default = %q", names[0])
	}
}

func TestApexExtractor(t *testing.T) {
	a := New(Apex())
	for _, r := range recs(t,
		`{"host":"www.example.com"}`,
		`{"host":"api.example.com."}`,
		`{"host":"EXAMPLE.ORG"}`,
		`{"host":"203.0.113.9"}`,
		`{"ip":"198.51.100.2"}`,
	) {
		a.Add(r)
	}
	top := a.Top("apex", 0)
	want := []ValueCount{{"example.com", 2}, {"203.0.113.9", 1}, {"example.org", 1}}
	if !reflect.DeepEqual(top, want) {
		t.Errorf("Top(apex) = %v, want %v", top, want)
	}
}

func TestFuncExtractor(t *testing.T) {
	even := Func("even_port", func(r record.Record) (string, bool) {
		p := r.Get("port").Int()
		if p == 0 {
			return "", false
		}
		if p%2 == 0 {
			return "even", true
		}
		return "odd", true
	})
	a := New(even)
	for _, r := range recs(t, `{"port":80}`, `{"port":443}`, `{"port":22}`, `{}`) {
		a.Add(r)
	}
	if a.Total() != 4 || a.Counted("even_port") != 3 {
		t.Errorf("Total=%d Counted=%d", a.Total(), a.Counted("even_port"))
	}
}
