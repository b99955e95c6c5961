// Package metrics collects transfer counters on a private Prometheus registry
// and can dump them in the node_exporter textfile format at exit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer outcomes used as the "result" label.
const (
	ResultOK       = "ok"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
)

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg *prometheus.Registry

	transfersTotal   *prometheus.CounterVec
	bytesTotal       prometheus.Counter
	resumesTotal     prometheus.Counter
	rangeRestarts    prometheus.Counter
	hashChecksTotal  *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	itemsTotal       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		transfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "civitdl",
				Subsystem: "transfer",
				Name:      "transfers_total",
				Help:      "Total number of file transfers by outcome",
			},
			[]string{"result"},
		),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civitdl",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Bytes written to partial files",
		}),
		resumesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civitdl",
			Subsystem: "transfer",
			Name:      "resumes_total",
			Help:      "Transfers continued from an existing partial file",
		}),
		rangeRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civitdl",
			Subsystem: "transfer",
			Name:      "range_restarts_total",
			Help:      "Transfers restarted from zero after a rejected or ignored range request",
		}),
		hashChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "civitdl",
				Subsystem: "transfer",
				Name:      "hash_checks_total",
				Help:      "Post-transfer hash verifications by outcome",
			},
			[]string{"result"},
		),
		transferDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "civitdl",
				Subsystem: "transfer",
				Name:      "duration_seconds",
				Help:      "Duration of file transfers in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
			},
			[]string{"result"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "civitdl",
				Subsystem: "run",
				Name:      "items_total",
				Help:      "Requested references processed, by outcome",
			},
			[]string{"result"},
		),
	}
	r.reg.MustRegister(r.transfersTotal, r.bytesTotal, r.resumesTotal, r.rangeRestarts,
		r.hashChecksTotal, r.transferDuration, r.itemsTotal)
	return r
}

// Registry exposes the underlying registry for scraping or tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// TransferDone records the outcome and wall time of one file transfer.
func (r *Recorder) TransferDone(result string, took time.Duration) {
	if r == nil {
		return
	}
	r.transfersTotal.WithLabelValues(result).Inc()
	r.transferDuration.WithLabelValues(result).Observe(took.Seconds())
}

// AddBytes counts bytes written to disk.
func (r *Recorder) AddBytes(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesTotal.Add(float64(n))
}

// Resumed counts a transfer continued from a partial file.
func (r *Recorder) Resumed() {
	if r == nil {
		return
	}
	r.resumesTotal.Inc()
}

// RangeRestart counts a restart from offset zero.
func (r *Recorder) RangeRestart() {
	if r == nil {
		return
	}
	r.rangeRestarts.Inc()
}

// HashChecked records a verification outcome.
func (r *Recorder) HashChecked(ok bool) {
	if r == nil {
		return
	}
	label := "match"
	if !ok {
		label = "mismatch"
	}
	r.hashChecksTotal.WithLabelValues(label).Inc()
}

// ItemDone records the outcome of one requested reference.
func (r *Recorder) ItemDone(ok bool) {
	if r == nil {
		return
	}
	label := ResultOK
	if !ok {
		label = ResultFailed
	}
	r.itemsTotal.WithLabelValues(label).Inc()
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format. The write goes through a temp file and rename.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
