// Package metrics records serializer compilation activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "featurize"

// Recorder receives compilation events from a serializer factory.
type Recorder interface {
	// Compiled records one compilation of shape "single" or "multi".
	Compiled(shape string, elapsed time.Duration, err error)
	// CacheHit records a serializer served from the factory cache.
	CacheHit()
}

type nop struct{}

func (nop) Compiled(string, time.Duration, error) {}
func (nop) CacheHit()                             {}

// Nop discards all events.
var Nop Recorder = nop{}

// Prometheus records events as Prometheus metrics.
type Prometheus struct {
	compilations *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheHits    prometheus.Counter
}

// NewPrometheus creates a recorder and registers its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		compilations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compilations_total",
			Help:      "Serializer compilations by shape and result.",
		}, []string{"shape", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Time spent compiling serializers.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"shape"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Serializers served from the factory cache.",
		}),
	}

	for _, c := range []prometheus.Collector{p.compilations, p.duration, p.cacheHits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Compiled(shape string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.compilations.WithLabelValues(shape, result).Inc()
	p.duration.WithLabelValues(shape).Observe(elapsed.Seconds())
}

func (p *Prometheus) CacheHit() {
	p.cacheHits.Inc()
}
