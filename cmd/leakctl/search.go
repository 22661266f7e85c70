package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/dedup"
	"github.com/leakctl/leakctl/internal/leakix"
	"github.com/leakctl/leakctl/internal/output"
	"github.com/leakctl/leakctl/internal/telemetry"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a search and write matching records",
	Long: `Run a LeakIX search and write every matching record.

Pages are fetched lazily until the page budget or the first empty
page. With --bulk (pro accounts, leak scope) the full NDJSON export
is streamed instead. Duplicate records are dropped; the count is
reported when the run finishes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var (
	searchScope   string
	searchPages   int
	searchBulk    bool
	searchPlugins []string
	searchFormat  string
	searchFields  string
	searchOut     string
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchScope, "scope", "s", "leak", "scope: leak or service")
	searchCmd.Flags().IntVarP(&searchPages, "pages", "p", leakix.DefaultPages, "pages to fetch")
	searchCmd.Flags().BoolVarP(&searchBulk, "bulk", "b", false, "stream the bulk NDJSON export")
	searchCmd.Flags().StringSliceVarP(&searchPlugins, "plugins", "P", nil, "restrict results to these plugins")
	searchCmd.Flags().StringVarP(&searchFormat, "format", "f", "jsonl", "output format: jsonl, json, csv, urls")
	searchCmd.Flags().StringVar(&searchFields, "fields", "", "comma list of dotted fields, or full (default protocol,ip,port)")
	searchCmd.Flags().StringVarP(&searchOut, "output", "o", "", "write to file instead of stdout")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, span := telemetry.Command(cmd.Context(), "search")
	defer span.End()

	var query string
	if len(args) > 0 {
		query = args[0]
	}

	format, err := output.ParseFormat(searchFormat)
	if err != nil {
		return err
	}
	proj := output.ParseFields(searchFields)

	cli, err := newClient(ctx)
	if err != nil {
		return err
	}

	seen, closeSeen, err := newDeduper()
	if err != nil {
		return err
	}
	defer closeSeen()

	dst, closeDst, err := openOutput(searchOut)
	if err != nil {
		return err
	}
	defer closeDst()

	w, err := output.NewWriter(dst, format, proj)
	if err != nil {
		return err
	}

	st, err := cli.Search(ctx, leakix.SearchRequest{
		Query:   query,
		Scope:   searchScope,
		Pages:   searchPages,
		Plugins: searchPlugins,
		Bulk:    searchBulk,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	var written, dupes int
	for st.Next() {
		r := st.Record()
		if seen.Seen(dedup.Key(r, proj.Fields())) {
			dupes++
			continue
		}
		if err := w.Write(r); err != nil {
			return err
		}
		written++
	}
	if err := st.Err(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := closeDst(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	kv := []interface{}{
		"results", written,
		"duplicates", dupes,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	}
	if searchOut != "" {
		kv = append(kv, "output", searchOut)
	}
	log.Infow("search complete", kv...)
	return nil
}

// newDeduper picks the suppression backend: redis carries seen records
// across runs, memory scopes them to this one.
func newDeduper() (dedup.Interface, func(), error) {
	if cfg.RedisAddr != "" {
		rd, err := dedup.NewRedis(cfg.RedisAddr, 24*time.Hour, log)
		if err != nil {
			return nil, nil, fmt.Errorf("redis dedup: %w", err)
		}
		return rd, func() { rd.Close() }, nil
	}
	return dedup.NewMemory(), func() {}, nil
}

// openOutput returns stdout for an empty path.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, f.Close, nil
}
