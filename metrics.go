package usbsas

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/usbsas/usbsas-core/internal/interfaces"
)

// Metrics tracks per-transfer operational statistics (spec §2: "Reporting
// & accounting" carries a dedicated share of the implementation even
// though spec.md's Non-goals never mention a metrics transport).
type Metrics struct {
	FilesCopied   atomic.Uint64
	FilesFiltered atomic.Uint64
	FilesRejected atomic.Uint64
	FilesErrored  atomic.Uint64
	BytesWritten  atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time copy of Metrics safe to hand to a
// report or a log line without further synchronisation.
type MetricsSnapshot struct {
	FilesCopied   uint64
	FilesFiltered uint64
	FilesRejected uint64
	FilesErrored  uint64
	BytesWritten  uint64
	AvgLatencyNs  uint64
	UptimeNs      uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		FilesCopied:   m.FilesCopied.Load(),
		FilesFiltered: m.FilesFiltered.Load(),
		FilesRejected: m.FilesRejected.Load(),
		FilesErrored:  m.FilesErrored.Load(),
		BytesWritten:  m.BytesWritten.Load(),
	}
	if opCount := m.OpCount.Load(); opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// MetricsObserver implements interfaces.Observer by recording into a
// Metrics instance, the in-process equivalent of PrometheusObserver below.
type MetricsObserver struct {
	metrics *Metrics
}

func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveFileCopied(bytes uint64, latencyNs uint64) {
	o.metrics.FilesCopied.Add(1)
	o.metrics.BytesWritten.Add(bytes)
	o.metrics.TotalLatencyNs.Add(latencyNs)
	o.metrics.OpCount.Add(1)
}
func (o *MetricsObserver) ObserveFileFiltered()          { o.metrics.FilesFiltered.Add(1) }
func (o *MetricsObserver) ObserveFileRejected()          { o.metrics.FilesRejected.Add(1) }
func (o *MetricsObserver) ObserveFileErrored()           { o.metrics.FilesErrored.Add(1) }
func (o *MetricsObserver) ObserveBytesWritten(n uint64)  { o.metrics.BytesWritten.Add(n) }
func (o *MetricsObserver) ObserveStatus(string, uint64, uint64) {}

// NoOpObserver discards every callback, the default when no Observer is
// configured.
type NoOpObserver struct{}

func (NoOpObserver) ObserveFileCopied(uint64, uint64)   {}
func (NoOpObserver) ObserveFileFiltered()                {}
func (NoOpObserver) ObserveFileRejected()                {}
func (NoOpObserver) ObserveFileErrored()                 {}
func (NoOpObserver) ObserveBytesWritten(uint64)          {}
func (NoOpObserver) ObserveStatus(string, uint64, uint64) {}

// PrometheusObserver implements interfaces.Observer over
// prometheus/client_golang counters/gauges, registered once and reused
// across transfers (a transfer restarts worker processes, spec §3
// Non-goals, but the supervisor and its metrics registry are long-lived).
type PrometheusObserver struct {
	filesCopied   prometheus.Counter
	filesFiltered prometheus.Counter
	filesRejected prometheus.Counter
	filesErrored  prometheus.Counter
	bytesWritten  prometheus.Counter
	statusCurrent *prometheus.GaugeVec
}

// NewPrometheusObserver registers its collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		filesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbsas_files_copied_total", Help: "Files successfully copied to the destination.",
		}),
		filesFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbsas_files_filtered_total", Help: "Files excluded by a filename filter.",
		}),
		filesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbsas_files_rejected_total", Help: "Files reported DIRTY by the analyser.",
		}),
		filesErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbsas_files_errored_total", Help: "Files that failed to read or write.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbsas_bytes_written_total", Help: "Bytes written to destination devices.",
		}),
		statusCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usbsas_status_current", Help: "Current progress value of the active pipeline stage.",
		}, []string{"kind"}),
	}
	reg.MustRegister(o.filesCopied, o.filesFiltered, o.filesRejected, o.filesErrored, o.bytesWritten, o.statusCurrent)
	return o
}

func (o *PrometheusObserver) ObserveFileCopied(bytes uint64, _ uint64) {
	o.filesCopied.Inc()
	o.bytesWritten.Add(float64(bytes))
}
func (o *PrometheusObserver) ObserveFileFiltered() { o.filesFiltered.Inc() }
func (o *PrometheusObserver) ObserveFileRejected() { o.filesRejected.Inc() }
func (o *PrometheusObserver) ObserveFileErrored()  { o.filesErrored.Inc() }
func (o *PrometheusObserver) ObserveBytesWritten(n uint64) { o.bytesWritten.Add(float64(n)) }
func (o *PrometheusObserver) ObserveStatus(kind string, current, _ uint64) {
	o.statusCurrent.WithLabelValues(kind).Set(float64(current))
}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = (*NoOpObserver)(nil)
	_ interfaces.Observer = (*PrometheusObserver)(nil)
)
