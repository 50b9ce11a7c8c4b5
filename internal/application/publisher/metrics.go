package publisher

import "github.com/prometheus/client_golang/prometheus"

// Counters holds the publisher metrics.
type Counters struct {
	reads        prometheus.Counter
	readFailures prometheus.Counter
	published    *prometheus.CounterVec
	failed       *prometheus.CounterVec
}

// NewCounters creates the collectors and registers them on reg when it is
// not nil.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitemp_sensor_reads_total",
			Help: "Successful sensor reads.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitemp_sensor_read_failures_total",
			Help: "Failed sensor reads.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitemp_published_total",
			Help: "Payloads accepted by a destination.",
		}, []string{"destination"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitemp_publish_failures_total",
			Help: "Payloads a destination failed to accept.",
		}, []string{"destination"}),
	}

	if reg != nil {
		reg.MustRegister(c.reads, c.readFailures, c.published, c.failed)
	}

	return c
}

func (c *Counters) IncRead()        { c.reads.Inc() }
func (c *Counters) IncReadFailure() { c.readFailures.Inc() }

func (c *Counters) IncPublished(destination string) {
	c.published.WithLabelValues(destination).Inc()
}

func (c *Counters) IncFailed(destination string) {
	c.failed.WithLabelValues(destination).Inc()
}
