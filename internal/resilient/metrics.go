package resilient

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hatch"

// Collector is a prometheus.Collector reporting endpoint health.
type Collector struct {
	endpointUp       *prometheus.GaugeVec
	endpointFailures *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		endpointUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "endpoint_up",
				Help:      "Whether the last operation against the release endpoint succeeded.",
			}, []string{"endpoint"},
		),
		endpointFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "endpoint_failures_total",
				Help:      "The number of failed operations against the release endpoint.",
			}, []string{"endpoint"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.endpointUp.Describe(ch)
	c.endpointFailures.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.endpointUp.Collect(ch)
	c.endpointFailures.Collect(ch)
}

func (c *Collector) alive(endpoint string) {
	c.endpointUp.WithLabelValues(endpoint).Set(1)
	// Touch the counter so every known endpoint is exported.
	c.endpointFailures.WithLabelValues(endpoint).Add(0)
}

func (c *Collector) broken(endpoint string) {
	c.endpointUp.WithLabelValues(endpoint).Set(0)
	c.endpointFailures.WithLabelValues(endpoint).Inc()
}

// WriteTextfile writes the collector's metrics in the text exposition format
// to path, for pickup by a node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(prometheus.WriteToTextfile(path, registry), "writing metrics to %s", path)
}
