// Package metrics exposes scan counters on a private Prometheus registry and
// serves them over HTTP at /metrics.
//
// Every method is safe on a nil *Registry so engine code can take metrics as
// an optional dependency.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/skillscan/pkg/mid"
)

const namespace = "skillscan"

// FetchBuckets are the fetch-duration histogram buckets (in seconds).
var FetchBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Registry holds the scanner's collectors.
type Registry struct {
	reg *prometheus.Registry

	pages         *prometheus.CounterVec
	ads           *prometheus.CounterVec
	bytes         prometheus.Counter
	fetchDuration prometheus.Histogram
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	skillPct      *prometheus.GaugeVec
	adsPerRun     *prometheus.GaugeVec
}

// New creates a Registry with Go runtime and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pages_total",
			Help: "Results pages visited, by outcome.",
		}, []string{"outcome"}),
		ads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ads_total",
			Help: "Job ads processed, by outcome (ok or skip reason).",
		}, []string{"outcome"}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetched_bytes_total",
			Help: "Response bytes received from the search host.",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fetch_duration_seconds",
			Help:    "Duration of single GET requests.",
			Buckets: FetchBuckets,
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Completed scrape runs, by status.",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Wall time of scrape runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		skillPct: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "skill_percentage",
			Help: "Share of ads in the last run for a location that mention the skill.",
		}, []string{"location", "skill"}),
		adsPerRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_ads",
			Help: "Ads aggregated in the last run for a location.",
		}, []string{"location"}),
	}
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// PageVisited records a results page that yielded its ad links.
func (r *Registry) PageVisited() {
	if r == nil {
		return
	}
	r.pages.WithLabelValues("ok").Inc()
}

// PageMissed records a results page that was fetched but unusable, or not fetched.
func (r *Registry) PageMissed(reason string) {
	if r == nil {
		return
	}
	r.pages.WithLabelValues(reason).Inc()
}

// AdFetched records an ad that produced a token bag.
func (r *Registry) AdFetched() {
	if r == nil {
		return
	}
	r.ads.WithLabelValues("ok").Inc()
}

// AdSkipped records an ad dropped for reason.
func (r *Registry) AdSkipped(reason string) {
	if r == nil {
		return
	}
	r.ads.WithLabelValues(reason).Inc()
}

// ObserveFetch records one GET and the bytes it delivered.
func (r *Registry) ObserveFetch(d time.Duration, n int64) {
	if r == nil {
		return
	}
	r.fetchDuration.Observe(d.Seconds())
	if n > 0 {
		r.bytes.Add(float64(n))
	}
}

// RunFinished records the outcome of a run. On success skills holds the
// percentage per skill label.
func (r *Registry) RunFinished(location string, d time.Duration, ads int, skills map[string]float64, err error) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
	if err != nil {
		r.runs.WithLabelValues("failed").Inc()
		return
	}
	r.runs.WithLabelValues("ok").Inc()
	r.adsPerRun.WithLabelValues(location).Set(float64(ads))
	for skill, pct := range skills {
		r.skillPct.WithLabelValues(location, skill).Set(pct)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics and /healthz until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.serve(ctx, ln, log)
}

func (r *Registry) serve(ctx context.Context, ln net.Listener, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Handler: mid.Chain(mux,
			mid.Recover(log),
			mid.Logger(log, slog.LevelDebug),
			mid.MethodGet(),
			mid.OTel("skillscan-metrics"),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
