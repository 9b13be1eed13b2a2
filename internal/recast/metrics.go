package recast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ncbot/pkg/monitoring"
)

// Metrics holds the engine's Prometheus series. A nil *Metrics records nothing.
type Metrics struct {
	Runs            *prometheus.CounterVec
	Accounts        *prometheus.CounterVec
	Posts           *prometheus.CounterVec
	Recasts         *prometheus.CounterVec
	Deferred        *prometheus.CounterVec
	HistoryFailures *prometheus.CounterVec
	IndexedAuthors  *prometheus.GaugeVec
	LastRun         *prometheus.GaugeVec
	RunDuration     *prometheus.HistogramVec
}

// NewMetrics registers the engine series on mc.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		Runs:            mc.NewCounter("runs_total", "Engine runs by result", []string{"result", "mode"}),
		Accounts:        mc.NewCounter("accounts_total", "Candidate accounts by status", []string{"status"}),
		Posts:           mc.NewCounter("posts_evaluated_total", "Posts evaluated by decision and rejection reason", []string{"decision", "reason"}),
		Recasts:         mc.NewCounter("recasts_total", "Dispatch attempts by outcome", []string{"outcome"}),
		Deferred:        mc.NewCounter("recasts_deferred_total", "Eligible posts left for a later run by the per-account quota", nil),
		HistoryFailures: mc.NewCounter("history_failures_total", "History fetches that ended early", []string{"scope"}),
		IndexedAuthors:  mc.NewGauge("indexed_authors", "Authors present in the recast index of the last run", nil),
		LastRun:         mc.NewGauge("last_run_timestamp_seconds", "Unix time of the last finished run", []string{"result"}),
		RunDuration:     mc.NewHistogram("run_duration_seconds", "Wall time of one engine run", []string{"mode"}, []float64{1, 5, 15, 30, 60, 120, 300, 600}),
	}
}

func (m *Metrics) account(status string) {
	if m == nil {
		return
	}
	m.Accounts.WithLabelValues(status).Inc()
}

func (m *Metrics) post(eligible bool, reason Reason) {
	if m == nil {
		return
	}
	decision := "eligible"
	if !eligible {
		decision = "rejected"
	}
	m.Posts.WithLabelValues(decision, string(reason)).Inc()
}

func (m *Metrics) recast(outcome Outcome) {
	if m == nil {
		return
	}
	m.Recasts.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) deferred(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deferred.WithLabelValues().Add(float64(n))
}

func (m *Metrics) historyFailure(scope string) {
	if m == nil {
		return
	}
	m.HistoryFailures.WithLabelValues(scope).Inc()
}

func (m *Metrics) runFinished(mode Mode, result string, started, finished time.Time, indexed int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(result, mode.String()).Inc()
	m.LastRun.WithLabelValues(result).Set(float64(finished.Unix()))
	m.RunDuration.WithLabelValues(mode.String()).Observe(finished.Sub(started).Seconds())
	if result == "success" {
		m.IndexedAuthors.WithLabelValues().Set(float64(indexed))
	}
}
