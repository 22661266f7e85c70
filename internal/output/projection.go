package output

import (
	"fmt"
	"strings"

	"github.com/leakctl/leakctl/internal/record"
	"github.com/leakctl/leakctl/internal/schema"
)

// missingValue marks fields absent from a record in projected output.
const missingValue = "N/A"

// Projection selects which parts of a record reach the output.
type Projection struct {
	fields []string
	full   bool
}

// ParseFields interprets a -fields flag value: "full" passes records
// through whole, "" selects the default triple, anything else is a
// comma list of dotted paths.
func ParseFields(spec string) Projection {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Projection{fields: schema.DefaultFields}
	}
	var fields []string
	for _, f := range strings.Split(spec, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if f == "full" {
			return Projection{full: true}
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return Projection{fields: schema.DefaultFields}
	}
	return Projection{fields: fields}
}

// Full reports whether records pass through unprojected.
func (p Projection) Full() bool { return p.full }

// Fields returns the selected paths, nil for a full projection.
func (p Projection) Fields() []string {
	if p.full {
		return nil
	}
	return p.fields
}

// IsDefault reports whether this is the untouched default triple.
func (p Projection) IsDefault() bool {
	if p.full || len(p.fields) != len(schema.DefaultFields) {
		return false
	}
	for i, f := range p.fields {
		if f != schema.DefaultFields[i] {
			return false
		}
	}
	return true
}

// Apply shapes one record for output. Explicit selections rebuild the
// nested structure with "N/A" standing in for missing values. The
// default triple collapses web services to a single url field.
func (p Projection) Apply(r record.Record) map[string]any {
	if p.full {
		return r.Map()
	}
	if p.IsDefault() {
		proto := r.Get("protocol").Str()
		if proto == "http" || proto == "https" {
			return map[string]any{
				"url": fmt.Sprintf("%s://%s:%s", proto, r.Get("ip").Str(), r.Get("port").Str()),
			}
		}
	}
	out := make(map[string]any, len(p.fields))
	for _, f := range p.fields {
		v := r.Get(f)
		var val any = missingValue
		if !v.IsEmpty() {
			val = v.Raw()
		}
		if !strings.Contains(f, ".") {
			out[f] = val
			continue
		}
		parts := strings.Split(f, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := cur[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				cur[part] = child
			}
			cur = child
		}
		cur[parts[len(parts)-1]] = val
	}
	return out
}
