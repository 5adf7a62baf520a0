// Package metrics is adapted directly from the teacher's
// op-node/metrics package: one Metrics struct per process, built
// around its own prometheus.Registry (not the global default one) so
// the fullnode and the Builder can each run their own /metrics server
// without colliding, following the same promauto.With(registry)
// construction style throughout.
package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "syncrollup"

// Metrics covers both processes: the fullnode fields track derivation
// progress (§4.1, §4.2), the Builder fields track discovery and
// submission (§4.3, §4.4). A binary only touches the fields relevant
// to it; the unused half simply stays at zero, which is harmless since
// each process owns its own registry.
type Metrics struct {
	Up   prometheus.Gauge
	Info *prometheus.GaugeVec

	// --- fullnode: internal/l1chain, internal/derive ---
	L1EventsProcessedTotal   *prometheus.CounterVec
	DerivationErrorsTotal    *prometheus.CounterVec
	DerivationIdle           prometheus.Gauge
	L2BlockNumber            prometheus.Gauge
	L1CatchUpRemainingBlocks prometheus.Gauge

	// --- builder: internal/discovery, internal/submit ---
	DiscoveryIterations   prometheus.Histogram
	DiscoveryFailuresTotal prometheus.Counter
	SubmissionsTotal       *prometheus.CounterVec
	SubmissionLatencySeconds prometheus.Histogram

	registry *prometheus.Registry
}

func New(procName string) *Metrics {
	ns := Namespace + "_" + procName

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		Up: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "up", Help: "1 once the process has finished starting up",
		}),
		Info: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "info", Help: "Pseudo-metric tracking version/config info",
		}, []string{"version"}),

		L1EventsProcessedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "l1_events_processed_total", Help: "L1 rollup-contract events applied, by kind",
		}, []string{"kind"}),
		DerivationErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "derivation_errors_total", Help: "Errors returned while applying an L1 event, by error kind",
		}, []string{"kind"}),
		DerivationIdle: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "derivation_idle", Help: "1 if the derivation loop is waiting on new L1 events",
		}),
		L2BlockNumber: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "l2_block_number", Help: "Last L2 block number successfully derived",
		}),
		L1CatchUpRemainingBlocks: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "l1_catch_up_remaining_blocks", Help: "L1 blocks left to process during initial catch-up",
		}),

		DiscoveryIterations: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "discovery_iterations", Help: "Fixed-point iterations needed per discovery run",
			Buckets: prometheus.LinearBuckets(1, 1, 16),
		}),
		DiscoveryFailuresTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "discovery_failures_total", Help: "Discovery runs that failed to reach a fixed point",
		}),
		SubmissionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "submissions_total", Help: "L1 submissions by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		SubmissionLatencySeconds: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "submission_latency_seconds", Help: "Time from discovery start to L1 submission",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		registry: registry,
	}
}

func (m *Metrics) RecordUp() { m.Up.Set(1) }

func (m *Metrics) RecordInfo(version string) { m.Info.WithLabelValues(version).Set(1) }

func (m *Metrics) SetDerivationIdle(idle bool) {
	if idle {
		m.DerivationIdle.Set(1)
	} else {
		m.DerivationIdle.Set(0)
	}
}

func (m *Metrics) RecordSubmission(endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.SubmissionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// Serve exposes /metrics over plain HTTP, shut down when ctx is
// cancelled, exactly the teacher's Metrics.Serve shape.
func (m *Metrics) Serve(ctx context.Context, hostname string, port int) error {
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))
	server := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
		),
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	return server.ListenAndServe()
}
