// Package stats accumulates value distributions over a record stream.
// Counts are exact for everything consumed; top-N truncation happens
// only when results are read out, never while counting.
package stats

import (
	"net"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/leakctl/leakctl/internal/record"
	"github.com/leakctl/leakctl/internal/schema"
)

// Extractor pulls one value out of a record. ok=false excludes the
// record from this extractor's distribution (it still counts toward
// the total).
type Extractor struct {
	Name string
	Fn   func(record.Record) (string, bool)
}

// Field builds an extractor over a dotted path. Missing values are
// excluded; everything else is counted by its rendered form.
func Field(path string) Extractor {
	return Extractor{Name: path, Fn: func(r record.Record) (string, bool) {
		v := r.Get(path)
		if v.IsEmpty() {
			return "", false
		}
		return v.Str(), true
	}}
}

// Func wraps an arbitrary extraction function.
func Func(name string, fn func(record.Record) (string, bool)) Extractor {
	return Extractor{Name: name, Fn: fn}
}

// Apex groups records by the registrable domain (eTLD+1) of their
// host. Hosts that are bare IPs or unrecognized keep their own bucket.
func Apex() Extractor {
	return Func("apex", func(r record.Record) (string, bool) {
		host := strings.ToLower(strings.TrimSuffix(r.Get("host").Str(), "."))
		if host == "" {
			return "", false
		}
		if net.ParseIP(host) != nil {
			return host, true
		}
		if apex, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			return apex, true
		}
		return host, true
	})
}

// Default returns extractors for the standard analyzed fields.
func Default() []Extractor {
	out := make([]Extractor, len(schema.DefaultAnalyzed))
	for i, f := range schema.DefaultAnalyzed {
		out[i] = Field(f)
	}
	return out
}

// RecordSource is the stream side of the aggregator; leakix.Stream
// satisfies it.
type RecordSource interface {
	Next() bool
	Record() record.Record
	Err() error
}

// ValueCount is one bucket of a distribution.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Aggregator holds per-extractor distributions.
type Aggregator struct {
	extractors []Extractor
	total      int
	counts     map[string]map[string]int
}

// New builds an aggregator. No extractors means Default().
func New(extractors ...Extractor) *Aggregator {
	if len(extractors) == 0 {
		extractors = Default()
	}
	counts := make(map[string]map[string]int, len(extractors))
	for _, e := range extractors {
		counts[e.Name] = make(map[string]int)
	}
	return &Aggregator{extractors: extractors, counts: counts}
}

// Add folds one record into every distribution.
func (a *Aggregator) Add(r record.Record) {
	a.total++
	for _, e := range a.extractors {
		if v, ok := e.Fn(r); ok {
			a.counts[e.Name][v]++
		}
	}
}

// Drain consumes src to exhaustion. On stream error the counts
// accumulated so far remain valid and the error is returned alongside
// them.
func (a *Aggregator) Drain(src RecordSource) error {
	for src.Next() {
		a.Add(src.Record())
	}
	return src.Err()
}

// Collect is the one-shot form of New + Drain. The aggregator is
// returned even when the stream failed partway.
func Collect(src RecordSource, extractors ...Extractor) (*Aggregator, error) {
	a := New(extractors...)
	err := a.Drain(src)
	return a, err
}

// Total is the number of records consumed, including records excluded
// from individual distributions.
func (a *Aggregator) Total() int { return a.total }

// Names lists extractor names in registration order.
func (a *Aggregator) Names() []string {
	out := make([]string, len(a.extractors))
	for i, e := range a.extractors {
		out[i] = e.Name
	}
	return out
}

// Counted is how many records contributed a value for name.
func (a *Aggregator) Counted(name string) int {
	n := 0
	for _, c := range a.counts[name] {
		n += c
	}
	return n
}

// Top returns the n largest buckets for name, count descending with
// ties broken by value so output is stable. n <= 0 returns all.
func (a *Aggregator) Top(name string, n int) []ValueCount {
	dist := a.counts[name]
	out := make([]ValueCount, 0, len(dist))
	for v, c := range dist {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
