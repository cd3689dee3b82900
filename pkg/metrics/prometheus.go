package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal    *prometheus.CounterVec
	ticksRejected *prometheus.CounterVec
	signalsTotal  *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	sessionStatus *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftypulse_ticks_ingested_total",
				Help: "Total number of ticks stored",
			},
			[]string{"symbol"},
		),
		ticksRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftypulse_ticks_rejected_total",
				Help: "Ticks rejected at ingestion by reason",
			},
			[]string{"reason"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftypulse_signals_generated_total",
				Help: "Signals persisted",
			},
			[]string{"session", "type"},
		),
		duplicates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftypulse_signals_duplicate_total",
				Help: "Signal attempts rejected as duplicates",
			},
			[]string{"session"},
		),
		sessionStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "niftypulse_session_status",
				Help: "Session status: 0 pending, 1 active, 2 completed",
			},
			[]string{"session"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niftypulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "niftypulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "niftypulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records a stored tick and its price.
func (r *Recorder) RecordTick(symbol string, price float64) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordTickRejected(reason string) {
	r.ticksRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordSignal(sessionName, signalType string) {
	r.signalsTotal.WithLabelValues(sessionName, signalType).Inc()
}

func (r *Recorder) RecordDuplicateSignal(sessionName string) {
	r.duplicates.WithLabelValues(sessionName).Inc()
}

// RecordSessionStatus maps PENDING/ACTIVE/COMPLETED to 0/1/2.
func (r *Recorder) RecordSessionStatus(sessionName, status string) {
	v := 0.0
	switch status {
	case "ACTIVE":
		v = 1
	case "COMPLETED":
		v = 2
	}
	r.sessionStatus.WithLabelValues(sessionName).Set(v)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordTick(string, float64)         {}
func (Nop) RecordTickRejected(string)          {}
func (Nop) RecordSignal(string, string)        {}
func (Nop) RecordDuplicateSignal(string)       {}
func (Nop) RecordSessionStatus(string, string) {}
func (Nop) RecordError(string)                 {}
func (Nop) RecordLatency(string, float64)      {}
