package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portbus/pkg/memkv"
)

// Metrics holds the transport counters. A nil *Metrics records nothing, so
// components take one unconditionally.
type Metrics struct {
	// Negotiation metrics
	Negotiations      *prometheus.CounterVec
	NegotiationTime   *prometheus.HistogramVec
	ActiveConnections *prometheus.GaugeVec

	// Steady state
	Messages *prometheus.CounterVec
	Rejected *prometheus.CounterVec

	// Local handoff
	HandoffWait prometheus.Histogram

	// Multicast election
	ElectionPromotions prometheus.Counter
	GroupsReleased     prometheus.Counter

	namespace string
	reg       prometheus.Registerer
}

// NewMetrics registers the metrics on reg under namespace. A nil reg uses
// the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		namespace: namespace,
		reg:       reg,

		Negotiations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_total",
			Help:      "Connection negotiations by carrier, role and outcome",
		}, []string{"carrier", "role", "outcome"}),
		NegotiationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_duration_seconds",
			Help:      "Time from first header byte to established",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"carrier", "role"}),
		ActiveConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Established connections by carrier",
		}, []string{"carrier"}),

		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages by carrier and direction",
		}, []string{"carrier", "direction"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Writes answered with a FAIL ack",
		}, []string{"carrier"}),

		HandoffWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "local_handoff_wait_seconds",
			Help:      "Time a local sender waits for the receiver to consume a value",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		ElectionPromotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicast_promotions_total",
			Help:      "Multicast group ownership handed to a successor",
		}),
		GroupsReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicast_groups_released_total",
			Help:      "Multicast group registrations released",
		}),
	}
}

// RecordNegotiation records one finished negotiation.
func (m *Metrics) RecordNegotiation(carrier, role, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Negotiations.WithLabelValues(carrier, role, outcome).Inc()
	if outcome == "ok" {
		m.NegotiationTime.WithLabelValues(carrier, role).Observe(d.Seconds())
	}
}

// ConnectionOpened and ConnectionClosed track established connections.
func (m *Metrics) ConnectionOpened(carrier string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(carrier).Inc()
}

func (m *Metrics) ConnectionClosed(carrier string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(carrier).Dec()
}

// RecordMessage counts one message; direction is "in" or "out".
func (m *Metrics) RecordMessage(carrier, direction string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(carrier, direction).Inc()
}

func (m *Metrics) RecordRejected(carrier string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(carrier).Inc()
}

func (m *Metrics) RecordHandoffWait(d time.Duration) {
	if m == nil {
		return
	}
	m.HandoffWait.Observe(d.Seconds())
}

func (m *Metrics) RecordPromotion() {
	if m == nil {
		return
	}
	m.ElectionPromotions.Inc()
}

func (m *Metrics) RecordGroupReleased() {
	if m == nil {
		return
	}
	m.GroupsReleased.Inc()
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer serves the metrics gathered by g on addr. A nil g uses the
// default gatherer.
func NewMetricsServer(addr string, g prometheus.Gatherer) *MetricsServer {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop closes the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}

// WatchStore exports the counters of a memkv store, read from stats at
// scrape time and labelled with the owning node and store name.
func (m *Metrics) WatchStore(node, store string, stats func() memkv.Stats) error {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"node": node, "store": store}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(m.namespace, "store", name), help, nil, labels)
	}
	return m.reg.Register(&storeCollector{
		stats:   stats,
		keys:    desc("keys", "Live keys"),
		bytes:   desc("bytes", "Bytes held by values"),
		gets:    desc("gets_total", "Lookups"),
		hits:    desc("hits_total", "Lookups that found a live key"),
		misses:  desc("misses_total", "Lookups that found nothing"),
		sets:    desc("sets_total", "Writes"),
		deletes: desc("deletes_total", "Explicit deletions"),
		expired: desc("expired_total", "Keys removed when their TTL ran out"),
	})
}

type storeCollector struct {
	stats func() memkv.Stats

	keys, bytes                       *prometheus.Desc
	gets, hits, misses, sets, deletes *prometheus.Desc
	expired                           *prometheus.Desc
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.keys, c.bytes, c.gets, c.hits, c.misses, c.sets, c.deletes, c.expired} {
		ch <- d
	}
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(st.Bytes))
	ch <- prometheus.MustNewConstMetric(c.gets, prometheus.CounterValue, float64(st.Gets))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(st.Sets))
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(st.Dels))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(st.Expired))
}
