package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/leakix"
	"github.com/leakctl/leakctl/internal/stats"
	"github.com/leakctl/leakctl/internal/telemetry"
)

var statsCmd = &cobra.Command{
	Use:   "stats [query]",
	Short: "Aggregate value distributions over search results",
	Long: `Consume a search and count how often each value occurs per field.

By default the standard analyzed fields (country, city, protocol,
port, ...) are counted. Counts are exact over everything consumed;
--top only truncates what is shown. If the stream dies partway the
counts gathered so far are still printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

var (
	statsScope   string
	statsPages   int
	statsBulk    bool
	statsPlugins []string
	statsFields  []string
	statsApex    bool
	statsTop     int
	statsJSON    bool
)

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsScope, "scope", "s", "leak", "scope: leak or service")
	statsCmd.Flags().IntVarP(&statsPages, "pages", "p", leakix.DefaultPages, "pages to fetch")
	statsCmd.Flags().BoolVarP(&statsBulk, "bulk", "b", false, "aggregate over the bulk NDJSON export")
	statsCmd.Flags().StringSliceVarP(&statsPlugins, "plugins", "P", nil, "restrict results to these plugins")
	statsCmd.Flags().StringSliceVar(&statsFields, "fields", nil, "dotted fields to analyze instead of the defaults")
	statsCmd.Flags().BoolVar(&statsApex, "apex", false, "also group hosts by registrable domain")
	statsCmd.Flags().IntVarP(&statsTop, "top", "n", 10, "buckets to show per field (0 for all)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit distributions as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, span := telemetry.Command(cmd.Context(), "stats")
	defer span.End()

	var query string
	if len(args) > 0 {
		query = args[0]
	}

	var extractors []stats.Extractor
	for _, f := range statsFields {
		extractors = append(extractors, stats.Field(f))
	}
	if len(extractors) == 0 {
		extractors = stats.Default()
	}
	if statsApex {
		extractors = append(extractors, stats.Apex())
	}

	cli, err := newClient(ctx)
	if err != nil {
		return err
	}

	st, err := cli.Search(ctx, leakix.SearchRequest{
		Query:   query,
		Scope:   statsScope,
		Pages:   statsPages,
		Plugins: statsPlugins,
		Bulk:    statsBulk,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	agg, streamErr := stats.Collect(st, extractors...)

	if statsJSON {
		if err := renderStatsJSON(os.Stdout, agg, statsTop); err != nil {
			return err
		}
	} else {
		renderStats(os.Stdout, agg, statsTop)
	}

	if streamErr != nil {
		return fmt.Errorf("stream ended early: %w", streamErr)
	}
	log.Infow("stats complete",
		"records", agg.Total(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

func renderStats(w io.Writer, agg *stats.Aggregator, top int) {
	fmt.Fprintf(w, "records analyzed: %d\n", agg.Total())
	for _, name := range agg.Names() {
		fmt.Fprintf(w, "\n%s (%d counted)\n", name, agg.Counted(name))
		for _, vc := range agg.Top(name, top) {
			fmt.Fprintf(w, "%6d  %s\n", vc.Count, vc.Value)
		}
	}
}

func renderStatsJSON(w io.Writer, agg *stats.Aggregator, top int) error {
	out := struct {
		Total         int                           `json:"total"`
		Distributions map[string][]stats.ValueCount `json:"distributions"`
	}{
		Total:         agg.Total(),
		Distributions: make(map[string][]stats.ValueCount, len(agg.Names())),
	}
	for _, name := range agg.Names() {
		out.Distributions[name] = agg.Top(name, top)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
