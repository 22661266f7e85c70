// Package dedup drops records already yielded for a query. The memory
// backend scopes suppression to one run; the redis backend carries it
// across runs for scripted monitoring.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/leakctl/leakctl/internal/record"
)

type Interface interface {
	Seen(key string) bool
}

// identityFields approximate uniqueness when a record has no
// event_fingerprint.
var identityFields = []string{"ip", "port", "host", "event_type", "event_source", "time"}

// Key derives a stable identity for a record under a field selection.
// Full records key on event_fingerprint when present, then on a tuple
// of identity fields, then on a hash of the whole record. A concrete
// field selection keys on the tuple of selected values, so two records
// that render identically collapse to one.
func Key(r record.Record, fields []string) string {
	full := len(fields) == 0
	for _, f := range fields {
		if f == "full" {
			full = true
			break
		}
	}
	if full {
		if fp := r.Get("event_fingerprint").Str(); fp != "" {
			return fp
		}
		return tupleOrHash(r, identityFields)
	}
	return tuple(r, fields)
}

func tuple(r record.Record, fields []string) string {
	vals := make([]string, len(fields))
	for i, f := range fields {
		vals[i] = r.Get(f).Str()
	}
	return strings.Join(vals, "|")
}

func tupleOrHash(r record.Record, fields []string) string {
	key := tuple(r, fields)
	if strings.Trim(key, "|") != "" {
		return key
	}
	raw, err := r.JSON()
	if err != nil {
		return key
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
