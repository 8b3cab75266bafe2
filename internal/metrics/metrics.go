package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wirepresence"

// Presence collects presence telemetry. It satisfies presence.Recorder.
type Presence struct {
	online    prometheus.Gauge
	events    *prometheus.CounterVec
	evictions prometheus.Counter
}

// NewPresence creates the presence collectors without registering them.
func NewPresence() *Presence {
	return &Presence{
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of identities currently counted as online.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Presence transitions by kind.",
		}, []string{"event"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Entries removed by the stale sweep.",
		}),
	}
}

// Register adds the collectors to r.
func (p *Presence) Register(r prometheus.Registerer) {
	r.MustRegister(p.online, p.events, p.evictions)
}

func (p *Presence) SetOnline(n int) {
	p.online.Set(float64(n))
}

func (p *Presence) Event(kind string) {
	p.events.WithLabelValues(kind).Inc()
}

func (p *Presence) Evicted(n int) {
	p.evictions.Add(float64(n))
}

// NewRegistry returns a registry with process/go collectors and p registered.
func NewRegistry(p *Presence) *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p.Register(r)
	return r
}

// Handler exposes r in the Prometheus text format.
func Handler(r *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{
		Registry:          r,
		EnableOpenMetrics: true,
	})
}
