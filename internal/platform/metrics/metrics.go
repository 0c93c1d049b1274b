package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the bridge's counters on a private registry so a batch run
// can export them through the node-exporter textfile collector.
type Recorder struct {
	registry            *prometheus.Registry
	invocationsTotal    *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	discoveryWarnings   prometheus.Counter
	discoveredRecipes   prometheus.Gauge
	discoveredPlugins   prometheus.Gauge
	lastDiscoverySecond prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocpl_recipe_invocations_total",
				Help: "Recipe invocations by recipe and outcome",
			},
			[]string{"recipe", "outcome"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocpl_recipe_invocation_duration_seconds",
				Help:    "Wall time of recipe invocations",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
			},
			[]string{"recipe"},
		),
		discoveryWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocpl_discovery_warnings_total",
			Help: "Plugins skipped or recipes shadowed during discovery",
		}),
		discoveredRecipes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocpl_discovered_recipes",
			Help: "Recipes in the registry after the last scan",
		}),
		discoveredPlugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocpl_discovered_plugins",
			Help: "Plugin files examined by the last scan",
		}),
		lastDiscoverySecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gocpl_last_discovery_duration_seconds",
			Help: "Duration of the last plugin scan",
		}),
	}
	r.registry.MustRegister(
		r.invocationsTotal,
		r.invocationDuration,
		r.discoveryWarnings,
		r.discoveredRecipes,
		r.discoveredPlugins,
		r.lastDiscoverySecond,
	)
	return r
}

func (r *Recorder) ObserveInvocation(recipe, outcome string, elapsed time.Duration) {
	r.invocationsTotal.WithLabelValues(recipe, outcome).Inc()
	r.invocationDuration.WithLabelValues(recipe).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveDiscovery(plugins, recipes, warnings int, elapsed time.Duration) {
	r.discoveredPlugins.Set(float64(plugins))
	r.discoveredRecipes.Set(float64(recipes))
	r.discoveryWarnings.Add(float64(warnings))
	r.lastDiscoverySecond.Set(elapsed.Seconds())
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values in the Prometheus text format. The
// file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
