package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the listener. All methods
// are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	eventsSeen      *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	forwards        *prometheus.CounterVec
	forwardDuration prometheus.Histogram
	watchSetSize    prometheus.Gauge
	watchRefreshes  *prometheus.CounterVec
	accountState    *prometheus.GaugeVec
	lookupErrors    prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
	streamClients   prometheus.Gauge
	streamDrops     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		eventsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "events_seen_total",
			Help:      "Protocol message events received per account",
		}, []string{"account"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "events_dropped_total",
			Help:      "Events dropped by the filter pipeline by reason",
		}, []string{"reason"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "forwards_total",
			Help:      "Forward attempts to the sink by result",
		}, []string{"result"}),
		forwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "groupwatch",
			Name:      "forward_duration_seconds",
			Help:      "Histogram of sink POST durations",
			Buckets:   prometheus.DefBuckets,
		}),
		watchSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groupwatch",
			Name:      "watchset_size",
			Help:      "Number of ids in the installed watch set",
		}),
		watchRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "watchset_refresh_total",
			Help:      "Watch set refresh cycles by result",
		}, []string{"result"}),
		accountState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "groupwatch",
			Name:      "account_state",
			Help:      "1 for the current state of each account supervisor",
		}, []string{"account", "state"}),
		lookupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "profile_lookup_errors_total",
			Help:      "Profile store lookups that failed",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groupwatch",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "http_rate_limited_total",
			Help:      "Number of HTTP requests rejected due to rate limiting",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groupwatch",
			Name:      "stream_clients",
			Help:      "Current connected stream clients",
		}),
		streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupwatch",
			Name:      "stream_drops_total",
			Help:      "Payloads dropped for slow stream clients",
		}),
	}

	registry.MustRegister(
		m.eventsSeen,
		m.eventsDropped,
		m.forwards,
		m.forwardDuration,
		m.watchSetSize,
		m.watchRefreshes,
		m.accountState,
		m.lookupErrors,
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
		m.streamClients,
		m.streamDrops,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncEventsSeen(account string) {
	if m == nil {
		return
	}
	m.eventsSeen.WithLabelValues(account).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncLookupErrors() {
	if m == nil {
		return
	}
	m.lookupErrors.Inc()
}

// ObserveForward records one sink POST.
func (m *Metrics) ObserveForward(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.forwards.WithLabelValues(result).Inc()
	m.forwardDuration.Observe(dur.Seconds())
}

// ObserveWatchRefresh implements watchset.Observer.
func (m *Metrics) ObserveWatchRefresh(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.watchRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.watchRefreshes.WithLabelValues("ok").Inc()
	m.watchSetSize.Set(float64(size))
}

// SetAccountState marks state as current for account and clears prev.
func (m *Metrics) SetAccountState(account, prev, state string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.accountState.WithLabelValues(account, prev).Set(0)
	}
	m.accountState.WithLabelValues(account, state).Set(1)
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) IncStreamClients(delta float64) {
	if m == nil {
		return
	}
	m.streamClients.Add(delta)
}

func (m *Metrics) IncStreamDrops() {
	if m == nil {
		return
	}
	m.streamDrops.Inc()
}
