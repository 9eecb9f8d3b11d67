package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions answered, by outcome.",
		},
		[]string{"agent", "outcome"},
	)
	sqlRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sql_rejected_total",
			Help: "Total number of generated statements rejected by the read-only allow-list.",
		},
	)
	sqlErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sql_errors_total",
			Help: "Total number of generated statements that failed to execute.",
		},
	)
	sqlDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_sql_duration_seconds",
			Help:    "Execution latency of generated statements.",
			Buckets: prometheus.DefBuckets,
		},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_llm_call_duration_seconds",
			Help:    "Language model call latency by endpoint kind and status.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"kind", "status"},
	)
	sampledRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_sampled_rows_total",
			Help: "Rows fetched by the background sampler, by table.",
		},
		[]string{"table"},
	)
	sampleFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sample_failures_total",
			Help: "Tables the background sampler failed to fetch.",
		},
	)
	samplerReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_sampler_ready",
			Help: "1 once the background sample snapshot is published.",
		},
	)
	samplerWaitTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sampler_wait_timeouts_total",
			Help: "Questions answered with a still-loading response.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		sqlRejectedTotal,
		sqlErrorsTotal,
		sqlDurationSeconds,
		llmCallDurationSeconds,
		sampledRowsTotal,
		sampleFailuresTotal,
		samplerReady,
		samplerWaitTimeoutsTotal,
	)
}

func ObserveQuestion(agent, outcome string) {
	questionsTotal.WithLabelValues(agent, outcome).Inc()
}

func IncrementSQLRejected() {
	sqlRejectedTotal.Inc()
}

func ObserveSQL(elapsed time.Duration, err error) {
	sqlDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		sqlErrorsTotal.Inc()
	}
}

func ObserveLLMCall(kind string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallDurationSeconds.WithLabelValues(kind, status).Observe(elapsed.Seconds())
}

func ObserveSampledTable(table string, rows int, err error) {
	if err != nil {
		sampleFailuresTotal.Inc()
		return
	}
	sampledRowsTotal.WithLabelValues(table).Add(float64(rows))
}

func SetSamplerReady() {
	samplerReady.Set(1)
}

func IncrementSamplerWaitTimeout() {
	samplerWaitTimeoutsTotal.Inc()
}
