package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/pkg/fn"
	"github.com/WessleyAI/skillscan/pkg/metrics"
)

const (
	// MaxWorkers caps pool concurrency regardless of page count.
	MaxWorkers = 20
	// DefaultDelay is the pause between successive requests of one worker.
	DefaultDelay = time.Second
)

// PoolConfig configures a Pool. Zero values get defaults.
type PoolConfig struct {
	Fetcher PageFetcher
	// Workers is clamped to [1, MaxWorkers].
	Workers int
	// Delay between requests within a worker. Negative disables throttling.
	Delay       time.Duration
	Links       LinkExtractor
	Diagnostics *Diagnostics
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// Pool visits result pages with a fixed set of workers. Each worker owns a
// contiguous slice of the pages and walks it in order.
type Pool struct {
	fetcher PageFetcher
	workers int
	delay   time.Duration
	links   LinkExtractor
	diag    *Diagnostics
	metrics *metrics.Registry
	log     *slog.Logger
}

// NewPool creates a Pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 || cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		fetcher: cfg.Fetcher,
		workers: cfg.Workers,
		delay:   cfg.Delay,
		links:   cfg.Links,
		diag:    cfg.Diagnostics,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// Run fetches every ad linked from pages and hands each token bag to emit.
// emit is called from a single goroutine. Run returns only after every
// worker and the collector have finished. Per-item failures are counted in
// PoolStats; the returned error is non-nil only when ctx ends the run.
func (p *Pool) Run(ctx context.Context, pages []domain.ResultPage, emit func(domain.AdDocument)) (PoolStats, error) {
	if len(pages) == 0 {
		return PoolStats{}, nil
	}
	groups := fn.Partition(pages, min(len(pages), p.workers))

	results := make(chan domain.AdDocument, len(groups))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for doc := range results {
			emit(doc)
		}
	}()

	var t tally
	g, gctx := errgroup.WithContext(ctx)
	for id, group := range groups {
		g.Go(func() error {
			return p.work(gctx, id, group, results, &t)
		})
	}
	err := g.Wait()
	close(results)
	<-collected

	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return t.snapshot(), err
}

func (p *Pool) newLimiter() *rate.Limiter {
	if p.delay < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.delay), 1)
}

// work visits one group of pages sequentially.
func (p *Pool) work(ctx context.Context, id int, pages []domain.ResultPage, out chan<- domain.AdDocument, t *tally) error {
	lim := p.newLimiter()
	log := p.log.With("worker", id)
	log.Debug("worker start", "pages", len(pages), "first", pages[0].Index)
	defer log.Debug("worker done")

	for _, page := range pages {
		if err := pace(ctx, lim); err != nil {
			return err
		}
		body, err := p.fetcher.Fetch(ctx, page.URL).Unwrap()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("results page fetch failed", "page", page.Index, "url", page.URL, "error", err)
			t.page(domain.SkipFetch, 0)
			p.metrics.PageMissed(string(domain.SkipFetch))
			continue
		}

		links, err := p.links.Extract(page.URL, body)
		if err != nil {
			log.Warn("results page unparsable", "page", page.Index, "url", page.URL, "error", err)
			if derr := p.diag.Record(page.URL, body); derr != nil {
				log.Error("diagnostics write failed", "error", derr)
			}
			t.page(domain.SkipParseStructure, 0)
			p.metrics.PageMissed(string(domain.SkipParseStructure))
			continue
		}
		t.page("", len(links))
		p.metrics.PageVisited()
		log.Debug("results page", "page", page.Index, "links", len(links))

		for _, link := range links {
			if err := pace(ctx, lim); err != nil {
				return err
			}
			doc, reason, err := p.fetchAd(ctx, link)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("ad skipped", "url", link, "reason", reason, "error", err)
				t.ad(reason)
				p.metrics.AdSkipped(string(reason))
				continue
			}
			select {
			case out <- doc:
			case <-ctx.Done():
				return ctx.Err()
			}
			t.ad("")
			p.metrics.AdFetched()
		}
	}
	return nil
}

func (p *Pool) fetchAd(ctx context.Context, link string) (domain.AdDocument, domain.SkipReason, error) {
	body, err := p.fetcher.Fetch(ctx, link).Unwrap()
	if err != nil {
		return domain.AdDocument{}, domain.SkipFetch, err
	}
	tokens, err := Normalize(body)
	if err != nil {
		var de *domain.DecodeError
		if errors.As(err, &de) {
			de.URL = link
		}
		return domain.AdDocument{}, domain.SkipDecode, err
	}
	return domain.AdDocument{URL: link, Tokens: tokens}, "", nil
}

// pace blocks until lim allows the next request. Wait refuses up front when
// the next slot falls after ctx's deadline; the worker then idles until the
// deadline so the run still ends with ctx.Err().
func pace(ctx context.Context, lim *rate.Limiter) error {
	if err := lim.Wait(ctx); err != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
