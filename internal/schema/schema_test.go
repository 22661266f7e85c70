package schema

import (
	"sort"
	"strings"
	"testing"
)

func TestFieldsSortedAndUnique(t *testing.T) {
	fields := Fields()
	if len(fields) == 0 {
		t.Fatal("empty schema")
	}
	if !sort.StringsAreSorted(fields) {
		t.Error("Fields() not sorted")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			t.Errorf("duplicate field %q", f)
		}
		seen[f] = struct{}{}
	}
}

func TestFieldsCopy(t *testing.T) {
	a := Fields()
	a[0] = "mutated"
	b := Fields()
	if b[0] == "mutated" {
		t.Error("Fields() returned shared backing array")
	}
}

func TestHas(t *testing.T) {
	for _, f := range []string{
		"ip", "port", "protocol", "event_fingerprint",
		"geoip.country_name", "geoip.location.lat",
		"ssl.certificate.cn", "service.software.name",
		"leak.dataset.size", "http.header",
	} {
		if !Has(f) {
			t.Errorf("Has(%q) = false, want true", f)
		}
	}
	for _, f := range []string{"", "bogus", "geoip.bogus", "ip.port"} {
		if Has(f) {
			t.Errorf("Has(%q) = true, want false", f)
		}
	}
}

func TestParentPathsPresent(t *testing.T) {
	// Every dotted path must have its parent in the table too.
	for _, f := range Fields() {
		i := strings.LastIndex(f, ".")
		if i < 0 {
			continue
		}
		if parent := f[:i]; !Has(parent) {
			t.Errorf("field %q has unknown parent %q", f, parent)
		}
	}
}

func TestDefaults(t *testing.T) {
	for _, f := range DefaultFields {
		if !Has(f) {
			t.Errorf("default field %q missing from schema", f)
		}
	}
	for _, f := range DefaultAnalyzed {
		if !Has(f) {
			t.Errorf("analyzed field %q missing from schema", f)
		}
	}
}
