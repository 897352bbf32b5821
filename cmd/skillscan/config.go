package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/engine/scraper"
	"github.com/WessleyAI/skillscan/engine/search"
)

// Config is the parsed command line. Every flag falls back to a SKILLSCAN_*
// environment variable, which may come from a .env file.
type Config struct {
	City        string
	State       string
	Job         string
	Workers     int
	MaxPages    int
	Delay       time.Duration
	Timeout     time.Duration
	BaseURL     string
	UserAgent   string
	Taxonomy    string
	OutputDir   string
	DiagFile    string
	Cities      string
	Breaker     int
	NatsURL     string
	Subject     string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	Neo4jDB     string
	MetricsAddr string
	LogLevel    slog.Level
}

type getenvFunc func(string) string

func envOr(getenv getenvFunc, key, fallback string) string {
	if v := getenv("SKILLSCAN_" + key); v != "" {
		return v
	}
	return fallback
}

func envInt(getenv getenvFunc, key string, fallback int) (int, error) {
	v := getenv("SKILLSCAN_" + key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("SKILLSCAN_%s: %w", key, err)
	}
	return n, nil
}

func envDuration(getenv getenvFunc, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv("SKILLSCAN_" + key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("SKILLSCAN_%s: %w", key, err)
	}
	return d, nil
}

// parseConfig reads flags from args with env fallbacks from getenv.
func parseConfig(args []string, getenv getenvFunc, stderr io.Writer) (Config, error) {
	var cfg Config
	var errs []error
	intDefault := func(key string, fallback int) int {
		n, err := envInt(getenv, key, fallback)
		errs = append(errs, err)
		return n
	}
	durDefault := func(key string, fallback time.Duration) time.Duration {
		d, err := envDuration(getenv, key, fallback)
		errs = append(errs, err)
		return d
	}

	fs := flag.NewFlagSet("skillscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.City, "city", envOr(getenv, "CITY", ""), "target city (requires --state)")
	fs.StringVar(&cfg.State, "state", envOr(getenv, "STATE", ""), `two-letter state, e.g. "WA" (requires --city)`)
	fs.StringVar(&cfg.Job, "job", envOr(getenv, "JOB", domain.DefaultJobTitle), "job title to search for")
	fs.IntVar(&cfg.Workers, "numThreads", intDefault("NUM_THREADS", scraper.MaxWorkers), "worker count (capped at 20)")
	fs.IntVar(&cfg.MaxPages, "maxPages", intDefault("MAX_PAGES", 0), "visit at most this many results pages (0 = all)")
	fs.DurationVar(&cfg.Delay, "delay", durDefault("DELAY", scraper.DefaultDelay), "pause between requests of one worker (negative disables)")
	fs.DurationVar(&cfg.Timeout, "timeout", durDefault("TIMEOUT", scraper.DefaultTimeout), "per-request timeout")
	fs.StringVar(&cfg.BaseURL, "base-url", envOr(getenv, "BASE_URL", search.DefaultBaseURL), "job board base URL")
	fs.StringVar(&cfg.UserAgent, "user-agent", envOr(getenv, "USER_AGENT", scraper.DefaultUserAgent), "User-Agent header")
	fs.StringVar(&cfg.Taxonomy, "taxonomy", envOr(getenv, "TAXONOMY", ""), "skill taxonomy YAML (default: built-in)")
	fs.StringVar(&cfg.OutputDir, "output-dir", envOr(getenv, "OUTPUT_DIR", "output"), "directory for TSV and PNG reports")
	fs.StringVar(&cfg.DiagFile, "diag-file", envOr(getenv, "DIAG_FILE", ""), "append unparsable results pages here (default <output-dir>/failed_to_parse_page.txt)")
	fs.StringVar(&cfg.Cities, "cities", envOr(getenv, "CITIES", ""), "CSV of city,state rows to scan one after another")
	fs.IntVar(&cfg.Breaker, "breaker", intDefault("BREAKER", 10), "open the circuit after this many consecutive host failures (0 = off)")
	fs.StringVar(&cfg.NatsURL, "nats", envOr(getenv, "NATS_URL", ""), "NATS URL to publish finished runs to")
	fs.StringVar(&cfg.Subject, "subject", envOr(getenv, "SUBJECT", "skillscan.runs"), "NATS subject for finished runs")
	fs.StringVar(&cfg.Neo4jURL, "neo4j-url", envOr(getenv, "NEO4J_URL", ""), "Neo4j URL for run history")
	fs.StringVar(&cfg.Neo4jUser, "neo4j-user", envOr(getenv, "NEO4J_USER", "neo4j"), "Neo4j username")
	fs.StringVar(&cfg.Neo4jPass, "neo4j-pass", envOr(getenv, "NEO4J_PASS", "password"), "Neo4j password")
	fs.StringVar(&cfg.Neo4jDB, "neo4j-db", envOr(getenv, "NEO4J_DB", ""), "Neo4j database (default database when empty)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envOr(getenv, "METRICS_ADDR", ""), `serve /metrics on this address, e.g. ":9090" (empty = off)`)
	level := fs.String("log-level", envOr(getenv, "LOG_LEVEL", "info"), "debug, info, warn or error")

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return cfg, fmt.Errorf("log-level: %w", err)
	}
	if cfg.Cities != "" && (cfg.City != "" || cfg.State != "") {
		return cfg, errors.New("--cities cannot be combined with --city/--state")
	}
	if cfg.DiagFile == "" {
		cfg.DiagFile = filepath.Join(cfg.OutputDir, "failed_to_parse_page.txt")
	}
	return cfg, nil
}
