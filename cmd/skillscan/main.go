// Command skillscan crawls a job board for a city (or nationwide), counts
// how many ads mention each skill in a taxonomy and writes the result as a
// console table, a TSV file and a bar chart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/engine/history"
	"github.com/WessleyAI/skillscan/engine/report"
	"github.com/WessleyAI/skillscan/engine/scan"
	"github.com/WessleyAI/skillscan/engine/scraper"
	"github.com/WessleyAI/skillscan/engine/skills"
	"github.com/WessleyAI/skillscan/pkg/metrics"
	"github.com/WessleyAI/skillscan/pkg/natsutil"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, getenv getenvFunc, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "skillscan:", err)
		return exitUsage
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	queries, err := buildQueries(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, "skillscan:", err)
		return exitUsage
	}
	tax, err := loadTaxonomy(cfg.Taxonomy)
	if err != nil {
		fmt.Fprintln(stderr, "skillscan:", err)
		return exitUsage
	}

	reg := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := reg.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	out, err := openSinks(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, "skillscan:", err)
		return exitFailed
	}
	defer out.Close(context.WithoutCancel(ctx))

	runner := scan.NewRunner(scan.Config{
		BaseURL:          cfg.BaseURL,
		Taxonomy:         tax,
		Workers:          cfg.Workers,
		MaxPages:         cfg.MaxPages,
		Delay:            cfg.Delay,
		Timeout:          cfg.Timeout,
		UserAgent:        cfg.UserAgent,
		BreakerThreshold: cfg.Breaker,
		Diagnostics:      scraper.NewDiagnostics(cfg.DiagFile),
		Metrics:          reg,
		Logger:           logger,
	})

	failed := 0
	for i, q := range queries {
		if ctx.Err() != nil {
			logger.Warn("interrupted", "remaining", len(queries)-i)
			failed += len(queries) - i
			break
		}
		if len(queries) > 1 {
			logger.Info("scanning", "city", q.Location(), "n", i+1, "of", len(queries))
		}
		res, err := runner.Run(ctx, q)
		if err != nil {
			report.Failure(stderr, q, err)
			failed++
			continue
		}
		report.Print(stdout, res)
		if err := writeArtifacts(cfg.OutputDir, res); err != nil {
			logger.Error("write report", "error", err)
			failed++
			continue
		}
		out.deliver(ctx, res)
	}

	if failed > 0 {
		if len(queries) > 1 {
			fmt.Fprintf(stderr, "skillscan: %d of %d scans failed\n", failed, len(queries))
		}
		return exitFailed
	}
	return exitOK
}

func loadTaxonomy(path string) (*skills.Taxonomy, error) {
	if path == "" {
		return skills.DefaultTaxonomy(), nil
	}
	return skills.LoadTaxonomyFile(path)
}

// writeArtifacts writes <base>.txt (TSV) and <base>.png into dir.
func writeArtifacts(dir string, res domain.ScrapeRun) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, report.FileBase(res.Query, res.StartedAt))

	f, err := os.Create(base + ".txt")
	if err != nil {
		return err
	}
	if err := report.WriteTSV(f, res.Table); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return report.SaveChart(base+".png", res)
}

// sinks delivers finished runs to the optional NATS subject and Neo4j store.
type sinks struct {
	nc      *nats.Conn
	subject string
	store   *history.Store
	log     *slog.Logger
}

func openSinks(ctx context.Context, cfg Config, log *slog.Logger) (*sinks, error) {
	s := &sinks{subject: cfg.Subject, log: log}
	if cfg.NatsURL != "" {
		nc, err := natsutil.Connect(cfg.NatsURL, "skillscan", log)
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		s.nc = nc
	}
	if cfg.Neo4jURL != "" {
		store, err := history.Open(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass, cfg.Neo4jDB)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close(ctx)
			s.Close(ctx)
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

func (s *sinks) deliver(ctx context.Context, res domain.ScrapeRun) {
	if s.nc != nil {
		if err := natsutil.Publish(ctx, s.nc, s.subject, res.ID, res); err != nil {
			s.log.Error("publish run", "subject", s.subject, "run_id", res.ID, "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.SaveRun(ctx, res); err != nil {
			s.log.Error("save run history", "run_id", res.ID, "error", err)
		}
	}
}

func (s *sinks) Close(ctx context.Context) {
	if s.nc != nil {
		s.nc.Close()
	}
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			s.log.Warn("close neo4j", "error", err)
		}
	}
}
