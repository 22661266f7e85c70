package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/cache"
	"github.com/leakctl/leakctl/internal/config"
	"github.com/leakctl/leakctl/internal/leakix"
	"github.com/leakctl/leakctl/internal/logging"
	"github.com/leakctl/leakctl/internal/metrics"
	"github.com/leakctl/leakctl/internal/telemetry"
)

var (
	flagConfig       string
	flagAPIKey       string
	flagBaseURL      string
	flagUA           string
	flagPace         float64
	flagCachePath    string
	flagNoCache      bool
	flagLogLevel     string
	flagSilent       bool
	flagMetricsAddr  string
	flagOTLPEndpoint string
	flagOTLPInsecure bool
	flagRedisAddr    string
)

// Shared state built by setup and torn down in main.
var (
	cfg             *config.Config
	log             *logging.Logger
	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "leakctl",
	Short: "Search LeakIX for exposed services and leaks",
	Long: `leakctl queries the LeakIX index of exposed services and leaks.
Responses are cached on disk, searches paginate lazily, and pro
accounts can pull the bulk NDJSON export. Results stream to stdout
as JSON lines so output composes with jq and friends.

Most operations need an API key: pass --api-key or set LEAKIX_API_KEY.

Examples:
  leakctl search '+country:"France"' --pages 5
  leakctl search --bulk -P GitConfigHttpPlugin -o leaks.jsonl
  leakctl stats 'ssl.jarm:*' --top 10
  leakctl lookup host 203.0.113.7
  leakctl lookup subdomains -i domains.txt`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (YAML or JSON)")
	pf.StringVar(&flagAPIKey, "api-key", "", "LeakIX API key")
	pf.StringVar(&flagBaseURL, "base-url", "", "API base URL")
	pf.StringVar(&flagUA, "ua", "", "User-Agent header")
	pf.Float64Var(&flagPace, "pace", 0, "live search requests per second")
	pf.StringVar(&flagCachePath, "cache-path", "", "response cache file (default per-user cache dir)")
	pf.BoolVar(&flagNoCache, "no-cache", false, "skip the response cache entirely")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&flagSilent, "silent", false, "only log errors")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus listen addr (empty to disable)")
	pf.StringVar(&flagOTLPEndpoint, "otlp-endpoint", "", "OTLP HTTP endpoint (host:port)")
	pf.BoolVar(&flagOTLPInsecure, "otlp-insecure", true, "OTLP without TLS")
	pf.StringVar(&flagRedisAddr, "redis", "", "redis addr for shared cache and cross-run dedup")

	rootCmd.Version = leakix.Version
}

// setup resolves configuration in file < env < flag order and builds
// the logger, tracer and metrics listener every command shares.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFromFile(flagConfig)
		if err != nil {
			return fmt.Errorf("load config %s: %w", flagConfig, err)
		}
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}
	cfg.LoadFromEnv()

	flags := make(map[string]interface{})
	fs := cmd.Flags()
	if fs.Changed("api-key") {
		flags["api_key"] = flagAPIKey
	}
	if fs.Changed("base-url") {
		flags["base_url"] = flagBaseURL
	}
	if fs.Changed("ua") {
		flags["ua"] = flagUA
	}
	if fs.Changed("pace") {
		flags["requests_per_second"] = flagPace
	}
	if fs.Changed("cache-path") {
		flags["cache_path"] = flagCachePath
	}
	if fs.Changed("no-cache") {
		flags["no_cache"] = flagNoCache
	}
	if fs.Changed("log-level") {
		flags["log_level"] = flagLogLevel
	}
	if fs.Changed("metrics-addr") {
		flags["metrics_addr"] = flagMetricsAddr
	}
	if fs.Changed("otlp-endpoint") {
		flags["otel_endpoint"] = flagOTLPEndpoint
	}
	flags["otel_insecure"] = flagOTLPInsecure
	if fs.Changed("redis") {
		flags["redis_addr"] = flagRedisAddr
	}
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log = logging.NewCLI(cfg.LogLevel, flagSilent)

	shutdownTracing, err = telemetry.Init(cmd.Context(), cfg.OTELEndpoint, cfg.OTELService, cfg.OTELInsecure)
	if err != nil {
		log.Warnw("otel init failed", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	if cfg.MetricsAddr != "" {
		go metrics.Serve(cfg.MetricsAddr, log)
	}
	return nil
}

// openStore picks the cache backend: redis when configured, otherwise
// the per-user cache file.
func openStore() (cache.Store, error) {
	if cfg.RedisAddr != "" {
		return cache.NewRedisStore(cfg.RedisAddr, log)
	}
	path := cfg.CachePath
	if path == "" {
		var err error
		path, err = cache.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return cache.NewFileStore(path, log)
}

// newClient assembles the API client for commands that hit the network.
// A broken cache store degrades to uncached operation.
func newClient(ctx context.Context) (*leakix.Client, error) {
	var cc *cache.Cache
	if !cfg.NoCache {
		store, err := openStore()
		if err != nil {
			log.Warnw("cache unavailable, running uncached", "err", err)
		} else {
			cc = cache.New(ctx, store, log)
		}
	}

	cli, err := leakix.New(leakix.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Cache:             cc,
		Logger:            log,
		UserAgent:         cfg.UA,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RetryMaxElapsed:   time.Duration(cfg.RetryMaxSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, leakix.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w (pass --api-key or set LEAKIX_API_KEY)", err)
		}
		return nil, err
	}
	return cli, nil
}
