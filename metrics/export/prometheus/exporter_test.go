package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coreos-platform/seccore"
	"github.com/coreos-platform/seccore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot seccore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() seccore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectorDescribesEveryDefinition(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{})

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if got := testutil.CollectAndCount(exp); got != want {
		t.Fatalf("collected %d metrics, want %d", got, want)
	}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: seccore.MetricsSnapshot{
			Counters: map[seccore.MetricID]uint64{
				seccore.MetricLoginSuccess:     7,
				seccore.MetricLockoutTriggered: 1,
			},
			Histograms: map[seccore.MetricID][]uint64{
				seccore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP seccore_login_success_total Successful password logins.
# TYPE seccore_login_success_total counter
seccore_login_success_total 7
# HELP seccore_lockout_triggered_total Failure counters that reached the lockout threshold.
# TYPE seccore_lockout_triggered_total counter
seccore_lockout_triggered_total 1
# HELP seccore_audit_dropped_total Audit events dropped under dispatcher backpressure.
# TYPE seccore_audit_dropped_total counter
seccore_audit_dropped_total 2
# HELP seccore_validate_latency_seconds ValidateToken latency.
# TYPE seccore_validate_latency_seconds histogram
seccore_validate_latency_seconds_bucket{le="0.005"} 1
seccore_validate_latency_seconds_bucket{le="0.01"} 3
seccore_validate_latency_seconds_bucket{le="0.025"} 6
seccore_validate_latency_seconds_bucket{le="0.05"} 10
seccore_validate_latency_seconds_bucket{le="0.1"} 15
seccore_validate_latency_seconds_bucket{le="0.25"} 21
seccore_validate_latency_seconds_bucket{le="0.5"} 28
seccore_validate_latency_seconds_bucket{le="+Inf"} 36
seccore_validate_latency_seconds_sum 0
seccore_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"seccore_login_success_total",
		"seccore_lockout_triggered_total",
		"seccore_audit_dropped_total",
		"seccore_validate_latency_seconds",
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: seccore.MetricsSnapshot{
			Counters: map[seccore.MetricID]uint64{seccore.MetricRefreshSuccess: 4},
		},
	})

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	out := string(body)
	if !strings.Contains(out, "seccore_refresh_success_total 4") {
		t.Fatalf("expected refresh counter, got:\n%s", out)
	}
	if strings.Contains(out, "go_goroutines") {
		t.Fatal("handler must not expose the default registry")
	}
}

func TestCollectNilSourceIsEmpty(t *testing.T) {
	exp := &PrometheusExporter{}
	ch := make(chan prometheus.Metric, 1)
	exp.Collect(ch)
	if len(ch) != 0 {
		t.Fatal("nil source must collect nothing")
	}
}
