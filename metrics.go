package trashdb

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// envMetrics is the metrics set of one Env. It is not registered globally;
// WriteMetrics exposes it.
type envMetrics struct {
	set *metrics.Set

	readBegins       *metrics.Counter
	writeBegins      *metrics.Counter
	readersExhausted *metrics.Counter
	readersDropped   *metrics.Counter
	cursorWaits      *metrics.Counter
	cursorWait       *metrics.Histogram
	finalized        *metrics.Counter
	commitFailures   *metrics.Counter
}

func newEnvMetrics(e *Env) *envMetrics {
	s := metrics.NewSet()
	m := &envMetrics{
		set:              s,
		readBegins:       s.NewCounter(`trashdb_txn_begin_total{mode="read"}`),
		writeBegins:      s.NewCounter(`trashdb_txn_begin_total{mode="write"}`),
		readersExhausted: s.NewCounter(`trashdb_readers_exhausted_total`),
		readersDropped:   s.NewCounter(`trashdb_readers_dropped_total`),
		cursorWaits:      s.NewCounter(`trashdb_cursor_waits_total`),
		cursorWait:       s.NewHistogram(`trashdb_cursor_wait_seconds`),
		finalized:        s.NewCounter(`trashdb_databases_finalized_total`),
		commitFailures:   s.NewCounter(`trashdb_commit_failures_total`),
	}
	s.NewGauge(`trashdb_databases_registered`, func() float64 {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return float64(e.registry.Len())
	})
	return m
}

func (m *envMetrics) begin(mode TxnMode) {
	if mode == TxnWrite {
		m.writeBegins.Inc()
		return
	}
	m.readBegins.Inc()
}

// WriteMetrics writes the environment metrics in Prometheus text format.
func (e *Env) WriteMetrics(w io.Writer) {
	e.metrics.set.WritePrometheus(w)
}
