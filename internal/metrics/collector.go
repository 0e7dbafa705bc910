package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"proxygen/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proxygen"

// Collector owns the Prometheus registry and keeps an in-process tally of
// fetch outcomes for the end-of-run report.
type Collector struct {
	registry *prometheus.Registry

	fetchTotal     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	profileProxies *prometheus.GaugeVec
	generations    *prometheus.CounterVec
	genDuration    prometheus.Histogram
	prunedGroups   prometheus.Counter
	droppedRules   prometheus.Counter
	apiRequests    *prometheus.CounterVec

	mu sync.Mutex

	// Latency Tracking (Successes only)
	latencies []time.Duration

	// Error Tracking
	totalSuccess int
	errorCounts  map[string]int
	totalErrors  int
}

// New creates a collector. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_fetch_total",
			Help:      "Subscription fetches by profile and outcome.",
		}, []string{"profile", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_fetch_duration_seconds",
			Help:      "Subscription fetch latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"profile"}),
		profileProxies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profile_proxies",
			Help:      "Proxies stored for each profile after the last refresh.",
		}, []string{"profile"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Config generations by outcome.",
		}, []string{"outcome"}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent synthesizing a config.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		prunedGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_groups_total",
			Help:      "Group templates that did not survive synthesis.",
		}),
		droppedRules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rules_total",
			Help:      "Template rules dropped for pointing at unknown targets.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"method", "route", "code"}),
		errorCounts: make(map[string]int),
	}

	registry.MustRegister(
		c.fetchTotal, c.fetchDuration, c.profileProxies,
		c.generations, c.genDuration, c.prunedGroups, c.droppedRules,
		c.apiRequests,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordFetch records one subscription refresh.
func (c *Collector) RecordFetch(profile string, took time.Duration, proxies int, err error) {
	c.fetchDuration.WithLabelValues(profile).Observe(took.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fetchTotal.WithLabelValues(profile, "error").Inc()
		c.totalErrors++
		c.errorCounts[classify(err)]++
		return
	}

	c.fetchTotal.WithLabelValues(profile, "success").Inc()
	c.profileProxies.WithLabelValues(profile).Set(float64(proxies))
	c.latencies = append(c.latencies, took)
	c.totalSuccess++
}

// RecordGeneration records one config synthesis.
func (c *Collector) RecordGeneration(stats engine.Stats, took time.Duration, err error) {
	if err != nil {
		c.generations.WithLabelValues("error").Inc()
		return
	}
	c.generations.WithLabelValues("success").Inc()
	c.genDuration.Observe(took.Seconds())
	if pruned := stats.GroupTemplates - stats.Groups; pruned > 0 {
		c.prunedGroups.Add(float64(pruned))
	}
	if dropped := stats.RuleTemplates - stats.Rules; dropped > 0 {
		// Provider expansion can outgrow the template; only count shrinkage
		c.droppedRules.Add(float64(dropped))
	}
}

func (c *Collector) RecordRequest(method, route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	c.apiRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func classify(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return "Timeout"
	case strings.Contains(msg, "refused"):
		return "Conn Refused"
	case strings.Contains(msg, "no such host"):
		return "DNS Error"
	case strings.Contains(msg, "[Upstream]"):
		return "Remote Error"
	case strings.Contains(msg, "[Invalid]"):
		return "Invalid Content"
	case strings.Contains(msg, "[NotFound]"):
		return "Empty Subscription"
	default:
		return "Other"
	}
}

// PrintReport writes a summary of the fetches recorded so far.
func (c *Collector) PrintReport(out io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(out, "\n📊 \033[1mREFRESH REPORT\033[0m")
	fmt.Fprintln(out, "────────────────────────────────────────")

	// 1. Latency
	fmt.Fprintln(w, "\033[1;36m[ LATENCY (Successful Fetches) ]\033[0m\t")
	if len(c.latencies) > 0 {
		sorted := append([]time.Duration(nil), c.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		fmt.Fprintf(w, "  Avg Duration:\t%v\n", average(sorted).Round(time.Millisecond))
		fmt.Fprintf(w, "  p50 (Median):\t%v\n", sorted[len(sorted)/2].Round(time.Millisecond))
		fmt.Fprintf(w, "  Slowest:\t%v\n", sorted[len(sorted)-1].Round(time.Millisecond))
	} else {
		fmt.Fprintln(w, "  No successful fetches.\t")
	}
	fmt.Fprintln(w, "\t")

	// 2. Outcomes
	fmt.Fprintln(w, "\033[1;36m[ OUTCOMES ]\033[0m\t")
	fmt.Fprintf(w, "  Refreshed:\t%d\n", c.totalSuccess)
	fmt.Fprintf(w, "  Failed:\t%d\n", c.totalErrors)

	kinds := make([]string, 0, len(c.errorCounts))
	for k := range c.errorCounts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "    %s:\t%d\n", k, c.errorCounts[k])
	}

	w.Flush()
	fmt.Fprintln(out, "")
}

func average(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return time.Duration(int64(sum) / int64(len(d)))
}
