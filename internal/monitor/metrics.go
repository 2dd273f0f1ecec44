package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer outcomes
const (
	OutcomeAttributed = "attributed"
	OutcomeDiscarded  = "discarded"
	OutcomeNoData     = "no_data"
	OutcomeDecodeErr  = "decode_error"
	OutcomeDeviceErr  = "device_error"
)

// Metrics collects controller activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Transfers      *prometheus.CounterVec
	Ambiguous      prometheus.Counter
	DeviceWrites   *prometheus.CounterVec
	WriteErrors    prometheus.Counter
	RecorderErrors prometheus.Counter
	ActiveSets     prometheus.Gauge
	TransferTime   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "Transfer cycles by outcome.",
		}, []string{"outcome"}),
		Ambiguous: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_ambiguous_attributions_total",
			Help: "Transfers whose physical channel was mapped by several active sets.",
		}),
		DeviceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_device_writes_total",
			Help: "Parameter writes sent to the instrument by category.",
		}, []string{"category"}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_device_write_errors_total",
			Help: "Parameter writes rejected by the transport.",
		}),
		RecorderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recorder_errors_total",
			Help: "Measurements the recorder failed to store.",
		}),
		ActiveSets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sets",
			Help: "Number of measurement sets currently active.",
		}),
		TransferTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_transfer_duration_seconds",
			Help:    "Duration of one transfer cycle including device I/O.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(m.Transfers, m.Ambiguous, m.DeviceWrites, m.WriteErrors,
		m.RecorderErrors, m.ActiveSets, m.TransferTime)

	return m
}

func (m *Metrics) ObserveTransfer(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(outcome).Inc()
	m.TransferTime.Observe(elapsed.Seconds())
}

func (m *Metrics) IncAmbiguous() {
	if m == nil {
		return
	}
	m.Ambiguous.Inc()
}

func (m *Metrics) ObserveWrite(category string, err error) {
	if m == nil {
		return
	}
	m.DeviceWrites.WithLabelValues(category).Inc()
	if err != nil {
		m.WriteErrors.Inc()
	}
}

func (m *Metrics) IncRecorderError() {
	if m == nil {
		return
	}
	m.RecorderErrors.Inc()
}

func (m *Metrics) SetActiveSets(n int) {
	if m == nil {
		return
	}
	m.ActiveSets.Set(float64(n))
}

// Snapshot flattens the gathered metrics of g into name -> value, summing
// label variants. Histograms report their sample count.
func Snapshot(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[mf.GetName()] += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
