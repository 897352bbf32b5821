// Package scan runs one complete skill scan: discover the result count,
// plan the pages, crawl them with the worker pool and aggregate the ads.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/engine/scraper"
	"github.com/WessleyAI/skillscan/engine/search"
	"github.com/WessleyAI/skillscan/engine/skills"
	"github.com/WessleyAI/skillscan/pkg/metrics"
	"github.com/WessleyAI/skillscan/pkg/resilience"
)

// Config configures a Runner. Zero values get defaults.
type Config struct {
	BaseURL  string
	Taxonomy *skills.Taxonomy
	Workers  int
	// MaxPages truncates the page plan; 0 visits every page.
	MaxPages int
	Delay    time.Duration
	Timeout  time.Duration
	// UserAgent for every request.
	UserAgent string
	Links     scraper.LinkExtractor
	// BreakerThreshold trips the per-run circuit breaker after that many
	// consecutive host failures. 0 disables it.
	BreakerThreshold int
	Diagnostics      *scraper.Diagnostics
	Metrics          *metrics.Registry
	Logger           *slog.Logger
}

// Runner executes scans. It holds no per-run state and is safe to reuse.
type Runner struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = search.DefaultBaseURL
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = skills.DefaultTaxonomy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, log: cfg.Logger, now: time.Now}
}

// Run performs one scan for q. Fatal failures come back as *domain.RunError
// carrying q; per-ad failures only lower the ad count.
func (r *Runner) Run(ctx context.Context, q domain.SearchQuery) (domain.ScrapeRun, error) {
	started := r.now()
	run, err := r.run(ctx, q, started)
	run.Elapsed = r.now().Sub(started)

	skillPct := make(map[string]float64, len(run.Table))
	for _, row := range run.Table {
		skillPct[row.Skill] = row.Percentage
	}
	r.cfg.Metrics.RunFinished(q.Location(), run.Elapsed, run.TotalAdsFound, skillPct, err)

	if err != nil {
		r.log.Error("scan failed", "query", q.String(), "elapsed", run.Elapsed, "error", err)
		return run, &domain.RunError{Query: q, Err: err}
	}
	r.log.Info("scan complete",
		"query", q.String(),
		"ads", run.TotalAdsFound,
		"skipped", run.AdsSkipped,
		"bytes", run.TotalBytesFetched,
		"elapsed", run.Elapsed,
	)
	return run, nil
}

func (r *Runner) run(ctx context.Context, q domain.SearchQuery, started time.Time) (run domain.ScrapeRun, err error) {
	run = domain.ScrapeRun{
		ID:        uuid.NewString(),
		Query:     q,
		StartedAt: started,
	}
	log := r.log.With("run_id", run.ID)

	f := scraper.NewFetcher(scraper.FetcherConfig{
		Timeout:   r.cfg.Timeout,
		UserAgent: r.cfg.UserAgent,
		Breaker:   r.breaker(log),
		Metrics:   r.cfg.Metrics,
		Logger:    log,
	})
	defer func() { run.TotalBytesFetched = f.BytesFetched() }()

	searchURL := search.BuildURL(r.cfg.BaseURL, q)
	log.Info("discovering result count", "url", searchURL)
	body, err := f.Fetch(ctx, searchURL).Unwrap()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return run, ctxErr
		}
		return run, &domain.DiscoveryError{URL: searchURL, Reason: "search page unreachable", Err: err}
	}
	total, err := search.FindResultCount(body)
	if err != nil {
		var de *domain.DiscoveryError
		if errors.As(err, &de) && de.URL == "" {
			de.URL = searchURL
		}
		return run, err
	}
	run.TotalResults = total

	pages := search.PlanPages(searchURL, total, search.PageSize, r.cfg.MaxPages)
	run.PagesPlanned = len(pages)
	log.Info("planned pages", "results", total, "pages", len(pages))

	agg := skills.NewAggregator(r.cfg.Taxonomy)
	pool := scraper.NewPool(scraper.PoolConfig{
		Fetcher:     f,
		Workers:     r.cfg.Workers,
		Delay:       r.cfg.Delay,
		Links:       r.cfg.Links,
		Diagnostics: r.cfg.Diagnostics,
		Metrics:     r.cfg.Metrics,
		Logger:      log,
	})
	stats, err := pool.Run(ctx, pages, agg.Add)
	run.TotalAdsFound = stats.AdsFetched
	run.AdsSkipped = stats.Skipped()
	if err != nil {
		return run, err
	}
	if missed := stats.Missed(); missed > 0 {
		log.Warn("results pages yielded no links", "missed", missed, "pages", stats.Pages)
	}

	table, err := agg.Finalize()
	if err != nil {
		var nd *domain.NoDataError
		if errors.As(err, &nd) {
			nd.PagesVisited = stats.Pages
		}
		return run, err
	}
	run.Table = table
	return run, nil
}

func (r *Runner) breaker(log *slog.Logger) *resilience.Breaker {
	if r.cfg.BreakerThreshold <= 0 {
		return nil
	}
	return resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: r.cfg.BreakerThreshold,
		IsFailure:     scraper.HostFailure,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("circuit breaker", "from", from.String(), "to", to.String())
		},
	})
}
