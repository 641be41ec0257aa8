package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/crmarques/catalogsync/resource"
)

const namespace = "catalogsync"

var _ reconciler.Observer = (*Metrics)(nil)

// Metrics records reconciler outcomes and remote call latencies on its own
// prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	drafts   *prometheus.CounterVec
	calls    *prometheus.HistogramVec
}

// NewMetrics registers the collectors. labels become constant labels of
// every series.
func NewMetrics(labels map[string]string) *Metrics {
	constLabels := prometheus.Labels{}
	for key, value := range labels {
		if name := strings.TrimSpace(key); name != "" {
			constLabels[name] = value
		}
	}

	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		drafts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "drafts_total",
			Help:        "Drafts processed, by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "remote_call_duration_seconds",
			Help:        "Latency of platform calls, by kind, operation and result.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"kind", "operation", "result"}),
	}
	metrics.registry.MustRegister(
		metrics.drafts,
		metrics.calls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics
}

func (m *Metrics) DraftFinished(kind resource.Kind, outcome reconciler.Outcome) {
	m.drafts.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *Metrics) RemoteCall(kind resource.Kind, operation string, elapsed time.Duration, err error) {
	m.calls.WithLabelValues(string(kind), operation, resultLabel(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return faults.NewTypedError(faults.ValidationError, "failed to listen on metrics address "+address, err)
	}
	return m.serve(ctx, listener)
}

func (m *Metrics) serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logging.FromContext(ctx).Info("serving metrics", "address", listener.Addr().String())
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if category := faults.CategoryOf(err); category != "" {
		return string(category)
	}
	return "error"
}
