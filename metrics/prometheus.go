package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with Prometheus collectors.
// Collectors are registered lazily on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	groupLists          prometheus.Counter
	groupsCreated       prometheus.Counter
	recordsAssigned     *prometheus.CounterVec
	conflicts           prometheus.Counter
	integrityViolations prometheus.Counter
	batchDuration       prometheus.Histogram
	batchSize           prometheus.Histogram
	rollovers           *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus-backed recorder.
// A nil reg uses prometheus.DefaultRegisterer; an empty namespace uses "cig".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "cig"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.groupLists = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "group_lists_total",
			Help:      "Group listing queries issued against the store.",
		})
		p.groupsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "groups_created_total",
			Help:      "Groups opened because no existing group had room.",
		})
		p.recordsAssigned = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "records_total",
			Help:      "Produce records linked to a group, by path (single, batch).",
		}, []string{"path"})
		p.conflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "conflicts_total",
			Help:      "Assignments aborted by a concurrent writer.",
		})
		p.integrityViolations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "integrity_violations_total",
			Help:      "Groups observed above capacity.",
		})
		p.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "batch_duration_seconds",
			Help:      "Duration of AssignMany transactions in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms .. ~3.8s
		})
		p.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "assign",
			Name:      "batch_records",
			Help:      "Number of records per AssignMany call.",
			Buckets:   []float64{1, 5, 10, 35, 100, 250, 1000},
		})
		p.rollovers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "rollovers_total",
			Help:      "Per-group rollover outcomes (closed, opened, unchanged, failed).",
		}, []string{"outcome"})

		p.reg.MustRegister(
			p.groupLists,
			p.groupsCreated,
			p.recordsAssigned,
			p.conflicts,
			p.integrityViolations,
			p.batchDuration,
			p.batchSize,
			p.rollovers,
		)
	})
}

func (p *Prometheus) GroupListed() {
	p.ensureRegistered()
	p.groupLists.Inc()
}

func (p *Prometheus) GroupCreated() {
	p.ensureRegistered()
	p.groupsCreated.Inc()
}

func (p *Prometheus) RecordsAssigned(path string, n int) {
	p.ensureRegistered()
	p.recordsAssigned.WithLabelValues(path).Add(float64(n))
}

func (p *Prometheus) Conflict() {
	p.ensureRegistered()
	p.conflicts.Inc()
}

func (p *Prometheus) IntegrityViolation() {
	p.ensureRegistered()
	p.integrityViolations.Inc()
}

// BatchFinished observes one AssignMany call.
func (p *Prometheus) BatchFinished(records int, d time.Duration) {
	p.ensureRegistered()
	p.batchDuration.Observe(d.Seconds())
	p.batchSize.Observe(float64(records))
}

func (p *Prometheus) Rollover(outcome string) {
	p.ensureRegistered()
	p.rollovers.WithLabelValues(outcome).Inc()
}
