// Package schema describes the shape of LeakIX event records (the
// l9format). The table is static: field discovery needs no network
// call and only changes when the upstream format gains fields.
package schema

import "sort"

// Dotted paths by event sub-document. Parent object fields are listed
// alongside their children so both "geoip" and "geoip.country_name"
// resolve.
var (
	rootFields = []string{
		"event_type", "event_source", "event_pipeline", "event_fingerprint",
		"ip", "host", "reverse", "port", "mac", "vendor",
		"transport", "protocol", "time", "summary", "tags",
	}

	geoipFields = []string{
		"continent_name", "region_iso_code", "city_name",
		"country_iso_code", "province_iso_code", "country_name",
		"region_name", "location", "location.lat", "location.lon",
	}

	networkFields = []string{"organization_name", "asn", "network"}

	// http.header carries arbitrary keys and is listed as a single path.
	httpFields = []string{
		"root", "url", "status", "length", "header", "title", "favicon_hash",
	}

	sslFields = []string{
		"detected", "enabled", "jarm", "cypher_suite", "version",
		"certificate", "certificate.cn", "certificate.domain",
		"certificate.fingerprint", "certificate.key_algo",
		"certificate.key_size", "certificate.issuer_name",
		"certificate.not_before", "certificate.not_after",
		"certificate.valid",
	}

	sshFields = []string{"fingerprint", "version", "banner", "motd"}

	serviceFields = []string{
		"credentials", "credentials.noauth", "credentials.username",
		"credentials.password", "credentials.key", "credentials.raw",
		"software", "software.name", "software.version", "software.os",
		"software.modules", "software.fingerprint",
	}

	leakFields = []string{
		"stage", "type", "severity",
		"dataset", "dataset.rows", "dataset.files", "dataset.size",
		"dataset.collections", "dataset.infected", "dataset.ransom_notes",
	}
)

var groups = map[string][]string{
	"geoip":   geoipFields,
	"network": networkFields,
	"http":    httpFields,
	"ssl":     sslFields,
	"ssh":     sshFields,
	"service": serviceFields,
	"leak":    leakFields,
}

// DefaultFields is the projection applied when the caller selects none.
var DefaultFields = []string{"protocol", "ip", "port"}

// DefaultAnalyzed is the field set the statistics aggregator examines by
// default.
var DefaultAnalyzed = []string{
	"geoip.country_name", "geoip.city_name", "protocol", "port",
	"event_type", "event_source", "host", "transport",
}

var (
	all   []string
	known map[string]struct{}
)

func init() {
	all = append(all, rootFields...)
	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)
	for _, name := range groupNames {
		all = append(all, name)
		for _, f := range groups[name] {
			all = append(all, name+"."+f)
		}
	}
	sort.Strings(all)
	known = make(map[string]struct{}, len(all))
	for _, f := range all {
		known[f] = struct{}{}
	}
}

// Fields returns every known dotted path, sorted. The slice is a copy.
func Fields() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

// Has reports whether path is part of the record schema.
func Has(path string) bool {
	_, ok := known[path]
	return ok
}
