package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	AggregateRequests    *prometheus.CounterVec
	AggregateLatency     prometheus.Histogram
	RecordsBucketed      prometheus.Counter
	RecordsOutsideWindow prometheus.Counter
	RecordsCreated       *prometheus.CounterVec
	AdminAccounts        *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers instruments with reg; nil means the default registry.
// The exposition handler gathers from reg when it is also a Gatherer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)
	return &Metrics{
		AggregateRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_requests_total",
			Help:      "Aggregation requests by outcome.",
		}, []string{"outcome"}),
		AggregateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_latency_ms",
			Help:      "Latency of fetch plus aggregation in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		RecordsBucketed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_bucketed_total",
			Help:      "Records assigned to a day inside the window.",
		}),
		RecordsOutsideWindow: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_outside_window_total",
			Help:      "Records dropped because their day is outside the window.",
		}),
		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Records appended by kind.",
		}, []string{"kind"}),
		AdminAccounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_accounts_total",
			Help:      "Accounts processed by administrative batches, by operation and outcome.",
		}, []string{"op", "outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveAggregateLatency(d time.Duration) {
	m.AggregateLatency.Observe(float64(d.Microseconds()) / 1000)
}

// Handler serves the registry the instruments were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
