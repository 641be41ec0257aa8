package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/crmarques/catalogsync/resource"
)

func TestMetricsCountsOutcomes(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics(map[string]string{"env": "test"})
	metrics.DraftFinished(resource.KindState, reconciler.OutcomeCreated)
	metrics.DraftFinished(resource.KindState, reconciler.OutcomeCreated)
	metrics.DraftFinished(resource.KindState, reconciler.OutcomeUnresolved)

	if got := testutil.ToFloat64(metrics.drafts.WithLabelValues("state", "created")); got != 2 {
		t.Fatalf("expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.drafts.WithLabelValues("state", "unresolved")); got != 1 {
		t.Fatalf("expected 1 unresolved, got %v", got)
	}
}

func TestMetricsLabelsRemoteCallResults(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics(nil)
	metrics.RemoteCall(resource.KindProduct, "update", 10*time.Millisecond, nil)
	metrics.RemoteCall(resource.KindProduct, "update", 20*time.Millisecond, faults.NewTypedError(faults.ConflictError, "version", nil))
	metrics.RemoteCall(resource.KindProduct, "create", time.Millisecond, errors.New("eof"))

	if got := testutil.CollectAndCount(metrics.calls); got != 3 {
		t.Fatalf("expected 3 series, got %d", got)
	}

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	results := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "catalogsync_remote_call_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" {
					results[label.GetValue()] = true
				}
			}
		}
	}
	for _, want := range []string{"ok", "ConflictError", "error"} {
		if !results[want] {
			t.Fatalf("expected result label %q, got %v", want, results)
		}
	}
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics(map[string]string{"env": "test"})
	metrics.DraftFinished(resource.KindCategory, reconciler.OutcomeUpdated)

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()

	response, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET returned error: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	want := `catalogsync_drafts_total{env="test",kind="category",outcome="updated"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("expected %q in exposition, got:\n%s", want, body)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	metrics := NewMetrics(nil)
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan error, 1)
	go func() { served <- metrics.serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/metrics"
	var response *http.Response
	for attempt := 0; attempt < 50; attempt++ {
		response, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET returned error: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestSetupTracingWithoutConfig(t *testing.T) {
	t.Parallel()

	shutdown, err := SetupTracing(context.Background(), nil, "dev")
	if err != nil {
		t.Fatalf("SetupTracing returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}
