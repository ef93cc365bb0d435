package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles Prometheus metrics for the HTTP surface and the
// simulation loop, and provides a ready-made /metrics handler.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	AgentsByCategory *prometheus.GaugeVec
	GraphNodes       prometheus.Gauge
	GraphEdges       prometheus.Gauge
	TickDuration     prometheus.Histogram
	RouteRequests    prometheus.Counter
	RankRequests     prometheus.Counter
}

// NewEngineCollector registers the engine's Prometheus metrics against the
// provided registerer, defaulting to the global registry when nil. Duplicate
// registration of a compatible collector is tolerated.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_http_requests_total",
		Help: "Total handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "twin_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twin_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "twin_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	agents := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "twin_agents",
		Help: "Current number of simulated agents per fleet category.",
	}, []string{"category"})
	agents, err = registerGaugeVec(reg, agents, "twin_agents")
	if err != nil {
		return nil, err
	}

	graphNodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twin_graph_nodes",
		Help: "Node count of the loaded road graph.",
	}), "twin_graph_nodes")
	if err != nil {
		return nil, err
	}
	graphEdges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "twin_graph_edges",
		Help: "Edge count of the loaded road graph.",
	}), "twin_graph_edges")
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "twin_tick_duration_seconds",
		Help:    "Wall-clock time spent advancing one simulation tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	tickDuration, err = registerHistogram(reg, tickDuration, "twin_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	routeRequests, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twin_route_requests_total",
		Help: "Total routing requests served.",
	}), "twin_route_requests_total")
	if err != nil {
		return nil, err
	}
	rankRequests, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twin_rank_requests_total",
		Help: "Total proximity-ranking requests served.",
	}), "twin_rank_requests_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:         gatherer,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
		AgentsByCategory: agents,
		GraphNodes:       graphNodes,
		GraphEdges:       graphEdges,
		TickDuration:     tickDuration,
		RouteRequests:    routeRequests,
		RankRequests:     rankRequests,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled HTTP request.
func (c *EngineCollector) ObserveHTTP(route, method, code string, seconds float64) {
	if c == nil {
		return
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, method, code).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route, method).Observe(seconds)
	}
}

// ObserveTickDuration satisfies the engine's metrics recorder interface.
func (c *EngineCollector) ObserveTickDuration(seconds float64) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(seconds)
}

// SetAgentCount satisfies the engine's metrics recorder interface.
func (c *EngineCollector) SetAgentCount(category string, count int) {
	if c == nil || c.AgentsByCategory == nil {
		return
	}
	c.AgentsByCategory.WithLabelValues(category).Set(float64(count))
}

// SetGraphCounts records the loaded graph's size.
func (c *EngineCollector) SetGraphCounts(nodes, edges int) {
	if c == nil {
		return
	}
	if c.GraphNodes != nil {
		c.GraphNodes.Set(float64(nodes))
	}
	if c.GraphEdges != nil {
		c.GraphEdges.Set(float64(edges))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
