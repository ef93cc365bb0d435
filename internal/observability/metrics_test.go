package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveHTTPRecordsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveHTTP("/api/positions", http.MethodGet, "200", 0.012)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/positions", "GET", "200")); got != 1 {
		t.Fatalf("twin_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "twin_http_request_duration_seconds", map[string]string{
		"route":  "/api/positions",
		"method": "GET",
	}); count != 1 {
		t.Fatalf("twin_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestEngineRecorderFeedsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.SetAgentCount("police", 10)
	collector.SetAgentCount("fire", 6)
	collector.SetGraphCounts(1200, 1500)
	collector.ObserveTickDuration(0.002)

	if got := testutil.ToFloat64(collector.AgentsByCategory.WithLabelValues("police")); got != 10 {
		t.Fatalf("twin_agents{police} = %v, want 10", got)
	}
	if got := testutil.ToFloat64(collector.GraphNodes); got != 1200 {
		t.Fatalf("twin_graph_nodes = %v, want 1200", got)
	}
	if got := testutil.ToFloat64(collector.GraphEdges); got != 1500 {
		t.Fatalf("twin_graph_edges = %v, want 1500", got)
	}
	if count := histogramSampleCount(t, reg, "twin_tick_duration_seconds", nil); count != 1 {
		t.Fatalf("twin_tick_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesEngineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.SetAgentCount("ambulance", 8)
	collector.SetGraphCounts(7, 9)
	collector.RouteRequests.Inc()
	collector.RankRequests.Inc()
	collector.ObserveHTTP("/api/route", http.MethodPost, "200", 0.004)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"twin_http_requests_total",
		"twin_http_request_duration_seconds",
		"twin_agents",
		"twin_graph_nodes",
		"twin_graph_edges",
		"twin_route_requests_total",
		"twin_rank_requests_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

// Registering a second collector against the same registry must reuse the
// existing series instead of failing.
func TestNewEngineCollectorTolerantOfDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}

	first.HTTPRequests.WithLabelValues("/healthz", "GET", "200").Inc()
	second.HTTPRequests.WithLabelValues("/healthz", "GET", "200").Inc()

	if got := testutil.ToFloat64(first.HTTPRequests.WithLabelValues("/healthz", "GET", "200")); got != 2 {
		t.Fatalf("shared counter = %v, want 2 (collectors did not share series)", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
