package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/leakix"
	"github.com/leakctl/leakctl/internal/record"
	"github.com/leakctl/leakctl/internal/telemetry"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Target-centric lookups",
	Long: `Look up what LeakIX knows about specific targets.

Targets come from arguments, from --input (one per line, # comments
skipped), or both. Batches run sequentially; a failing target is
recorded in the output and the batch carries on.`,
}

var lookupInput string

var lookupHostCmd = &cobra.Command{
	Use:   "host [ip ...]",
	Short: "Services and leaks for an IP address",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(cmd, args, "host")
	},
}

var lookupDomainCmd = &cobra.Command{
	Use:   "domain [domain ...]",
	Short: "Services and leaks for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(cmd, args, "domain")
	},
}

var lookupSubdomainsCmd = &cobra.Command{
	Use:   "subdomains [domain ...]",
	Short: "Known subdomains of a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(cmd, args, "subdomains")
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.PersistentFlags().StringVarP(&lookupInput, "input", "i", "", "file of targets, one per line")
	lookupCmd.AddCommand(lookupHostCmd, lookupDomainCmd, lookupSubdomainsCmd)
}

// lookupResult is one target's outcome. Which payload fields are set
// depends on the subcommand; omitempty keeps the rest out.
type lookupResult struct {
	Target     string             `json:"target"`
	Error      string             `json:"error,omitempty"`
	Services   []record.Record    `json:"services,omitempty"`
	Leaks      []record.Record    `json:"leaks,omitempty"`
	Subdomains []leakix.Subdomain `json:"subdomains,omitempty"`
}

func runLookup(cmd *cobra.Command, args []string, kind string) error {
	ctx, span := telemetry.Command(cmd.Context(), "lookup."+kind)
	defer span.End()

	targets, err := gatherTargets(args, lookupInput)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no targets: pass arguments or --input")
	}

	cli, err := newClient(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	// A single inline target answers with a bare object and surfaces
	// its error directly.
	if len(targets) == 1 && lookupInput == "" {
		res, err := lookupOne(ctx, cli, kind, targets[0])
		if err != nil {
			return err
		}
		return enc.Encode(res)
	}

	start := time.Now()
	results := make([]lookupResult, 0, len(targets))
	var failed int
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		res, err := lookupOne(ctx, cli, kind, t)
		if err != nil {
			res.Error = err.Error()
			failed++
			log.Warnw("lookup failed", "target", t, "err", err)
		}
		results = append(results, res)
	}
	if err := enc.Encode(results); err != nil {
		return err
	}
	log.Infow("lookup complete",
		"targets", len(targets),
		"ok", len(results)-failed,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed == len(results) {
		return fmt.Errorf("all %d lookups failed", failed)
	}
	return nil
}

func lookupOne(ctx context.Context, cli *leakix.Client, kind, target string) (lookupResult, error) {
	res := lookupResult{Target: target}
	switch kind {
	case "host":
		d, err := cli.HostDetails(ctx, target)
		if err != nil {
			return res, err
		}
		res.Services, res.Leaks = d.Services, d.Leaks
	case "domain":
		d, err := cli.DomainDetails(ctx, target)
		if err != nil {
			return res, err
		}
		res.Services, res.Leaks = d.Services, d.Leaks
	case "subdomains":
		subs, err := cli.Subdomains(ctx, target)
		if err != nil {
			return res, err
		}
		res.Subdomains = subs
	}
	return res, nil
}

// gatherTargets merges argument targets with the --input file.
func gatherTargets(args []string, path string) ([]string, error) {
	targets := append([]string(nil), args...)
	if path == "" {
		return targets, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}
