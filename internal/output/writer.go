// Package output renders result records to a destination. jsonl and
// csv stream record by record; json buffers so it can emit one array.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/leakctl/leakctl/internal/record"
)

// Format represents the output format
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatURLs  Format = "urls"
)

// ParseFormat normalizes a format flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "urls", "url":
		return FormatURLs, nil
	default:
		return "", fmt.Errorf("output: unsupported format: %s", s)
	}
}

// Writer handles formatted record output.
type Writer struct {
	format    Format
	w         io.Writer
	proj      Projection
	csvWriter *csv.Writer
	mu        sync.Mutex
	hasHeader bool
	buffered  []map[string]any // json format only
}

// NewWriter builds a writer for format applying proj to every record.
func NewWriter(w io.Writer, format Format, proj Projection) (*Writer, error) {
	out := &Writer{format: format, w: w, proj: proj}
	switch format {
	case FormatJSON, FormatJSONL, FormatURLs:
	case FormatCSV:
		if proj.Full() {
			return nil, fmt.Errorf("output: csv needs an explicit field list")
		}
		out.csvWriter = csv.NewWriter(w)
	default:
		return nil, fmt.Errorf("output: unsupported format: %s", format)
	}
	return out, nil
}

// Write renders one record.
func (w *Writer) Write(r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSON:
		w.buffered = append(w.buffered, w.proj.Apply(r))
		return nil

	case FormatJSONL:
		data, err := json.Marshal(w.proj.Apply(r))
		if err != nil {
			return fmt.Errorf("output: encode: %w", err)
		}
		if _, err := w.w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("output: write: %w", err)
		}
		return nil

	case FormatCSV:
		return w.writeCSV(r)

	case FormatURLs:
		return w.writeURL(r)
	}
	return fmt.Errorf("output: unsupported format: %s", w.format)
}

func (w *Writer) writeCSV(r record.Record) error {
	fields := w.proj.Fields()
	if !w.hasHeader {
		if err := w.csvWriter.Write(fields); err != nil {
			return fmt.Errorf("output: csv header: %w", err)
		}
		w.hasHeader = true
	}
	row := make([]string, len(fields))
	for i, f := range fields {
		v := r.Get(f)
		if v.IsEmpty() {
			row[i] = missingValue
		} else {
			row[i] = v.Str()
		}
	}
	if err := w.csvWriter.Write(row); err != nil {
		return fmt.Errorf("output: csv row: %w", err)
	}
	return nil
}

func (w *Writer) writeURL(r record.Record) error {
	u, ok := ServiceURL(r)
	if !ok {
		return nil
	}
	if _, err := fmt.Fprintln(w.w, u); err != nil {
		return fmt.Errorf("output: write: %w", err)
	}
	return nil
}

// Close finishes the output: the json array is emitted here, csv
// buffers are flushed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		if w.buffered == nil {
			w.buffered = []map[string]any{}
		}
		if err := enc.Encode(w.buffered); err != nil {
			return fmt.Errorf("output: encode: %w", err)
		}
	case FormatCSV:
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return fmt.Errorf("output: csv flush: %w", err)
		}
	}
	return nil
}

// ServiceURL composes proto://ip:port when the record has all three
// parts, the form LeakIX search results are usually consumed in.
func ServiceURL(r record.Record) (string, bool) {
	proto := r.Get("protocol").Str()
	ip := r.Get("ip").Str()
	port := r.Get("port").Str()
	if proto == "" || ip == "" || port == "" {
		return "", false
	}
	return fmt.Sprintf("%s://%s:%s", proto, ip, port), true
}
