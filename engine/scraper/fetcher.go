package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/pkg/fn"
	"github.com/WessleyAI/skillscan/pkg/metrics"
	"github.com/WessleyAI/skillscan/pkg/resilience"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; skillscan/1.0)"
)

// FetcherConfig configures a Fetcher. Zero values get defaults.
type FetcherConfig struct {
	// Client overrides the HTTP client. When nil an otelhttp-instrumented
	// client with Timeout is used.
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	// Breaker, when set, short-circuits requests after repeated host failures.
	Breaker *resilience.Breaker
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Fetcher performs single GETs without retry. It owns the byte counter for
// one run, so use a fresh Fetcher per run.
type Fetcher struct {
	client    *http.Client
	userAgent string
	breaker   *resilience.Breaker
	metrics   *metrics.Registry
	log       *slog.Logger

	group singleflight.Group
	bytes atomic.Int64
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		breaker:   cfg.Breaker,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
}

// BytesFetched is the number of body bytes received so far, including bytes
// from reads that later failed.
func (f *Fetcher) BytesFetched() int64 { return f.bytes.Load() }

// Fetch GETs url. Non-2xx responses are not errors: their body is returned
// as-is. Concurrent calls for the same url share one request.
func (f *Fetcher) Fetch(ctx context.Context, url string) fn.Result[[]byte] {
	if err := ctx.Err(); err != nil {
		return fn.Err[[]byte](&domain.FetchError{URL: url, Kind: domain.FetchCanceled, Err: err})
	}
	v, _, _ := f.group.Do(url, func() (any, error) {
		res := f.guarded(ctx, url)
		return res, res.Error()
	})
	return v.(fn.Result[[]byte])
}

func (f *Fetcher) guarded(ctx context.Context, url string) fn.Result[[]byte] {
	if f.breaker == nil {
		return f.get(ctx, url)
	}
	res := resilience.CallResult(f.breaker, ctx, func(ctx context.Context) fn.Result[[]byte] {
		return f.get(ctx, url)
	})
	if err := res.Error(); errors.Is(err, resilience.ErrCircuitOpen) {
		return fn.Err[[]byte](&domain.FetchError{URL: url, Kind: domain.FetchCircuitOpen, Err: err})
	}
	return res
}

func (f *Fetcher) get(ctx context.Context, url string) fn.Result[[]byte] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Err[[]byte](&domain.FetchError{URL: url, Kind: domain.FetchTransport, Err: err})
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveFetch(time.Since(start), 0)
		return fn.Err[[]byte](&domain.FetchError{URL: url, Kind: classify(ctx, err), Err: err})
	}
	defer resp.Body.Close()

	cr := &countingReader{r: resp.Body, total: &f.bytes}
	body, err := io.ReadAll(cr)
	f.metrics.ObserveFetch(time.Since(start), cr.n)
	if err != nil {
		kind := classify(ctx, err)
		if kind == domain.FetchTransport {
			kind = domain.FetchRead
		}
		return fn.Err[[]byte](&domain.FetchError{URL: url, Kind: kind, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Debug("non-2xx response", "url", url, "status", resp.StatusCode, "bytes", len(body))
	}
	return fn.Ok(body)
}

// HostFailure reports whether err says something about the remote host
// (transport or timeout) rather than about this process.
func HostFailure(err error) bool {
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		return true
	}
	return fe.Kind == domain.FetchTransport || fe.Kind == domain.FetchTimeout
}

func classify(ctx context.Context, err error) domain.FetchKind {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return domain.FetchCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.FetchTimeout
	}
	return domain.FetchTransport
}

// countingReader adds every byte read to a shared counter.
type countingReader struct {
	r     io.Reader
	n     int64
	total *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.total.Add(int64(n))
	}
	return n, err
}
