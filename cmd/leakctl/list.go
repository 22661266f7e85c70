package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/leakix"
	"github.com/leakctl/leakctl/internal/schema"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Enumerate plugins and record fields",
}

var listPluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Plugins known to the API",
	RunE:  runListPlugins,
}

var (
	listSample      bool
	listSampleQuery string
)

var listFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Queryable record fields",
	Long: `Print the dotted field paths records carry, for --fields and stats.

The list is static and needs no network. --sample additionally fetches
one page of results and merges any paths found there, which catches
fields newer than the built-in table.`,
	RunE: runListFields,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.AddCommand(listPluginsCmd, listFieldsCmd)

	listFieldsCmd.Flags().BoolVar(&listSample, "sample", false, "merge field paths discovered from one fetched page")
	listFieldsCmd.Flags().StringVar(&listSampleQuery, "query", "", "query for the sampled page")
}

func runListPlugins(cmd *cobra.Command, args []string) error {
	cli, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	plugins, err := cli.Plugins(cmd.Context())
	if err != nil {
		return err
	}
	for _, p := range plugins {
		fmt.Println(p)
	}
	return nil
}

func runListFields(cmd *cobra.Command, args []string) error {
	fields := schema.Fields()
	if listSample {
		sampled, err := sampleFields(cmd, fields)
		if err != nil {
			return err
		}
		fields = sampled
	}
	for _, f := range fields {
		fmt.Println(f)
	}
	return nil
}

// sampleFields fetches one page and merges the paths its records carry
// into the static list.
func sampleFields(cmd *cobra.Command, static []string) ([]string, error) {
	cli, err := newClient(cmd.Context())
	if err != nil {
		return nil, err
	}
	st, err := cli.Search(cmd.Context(), leakix.SearchRequest{
		Query: listSampleQuery,
		Pages: 1,
	})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	known := make(map[string]struct{}, len(static))
	for _, f := range static {
		known[f] = struct{}{}
	}
	fields := static
	for st.Next() {
		for _, f := range st.Record().Fields() {
			if _, ok := known[f]; ok {
				continue
			}
			known[f] = struct{}{}
			fields = append(fields, f)
		}
	}
	if err := st.Err(); err != nil {
		log.Warnw("sampling failed, showing static fields only", "err", err)
	}
	sort.Strings(fields)
	return fields, nil
}
