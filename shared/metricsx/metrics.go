package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
	assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_assignments_total",
			Help: "Complaint assignment attempts by outcome.",
		},
		[]string{"outcome"},
	)
	assignmentLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maintenance_assignment_duration_seconds",
			Help:    "Complaint assignment latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	redistributions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_redistribution_items_total",
			Help: "Work items moved on staff availability changes, by outcome.",
		},
		[]string{"outcome"},
	)
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_sweep_runs_total",
			Help: "Periodic sweep runs by sweep and result.",
		},
		[]string{"sweep", "result"},
	)
	slaBreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_sla_breaches_total",
			Help: "Complaints found past their SLA threshold, by severity.",
		},
		[]string{"severity"},
	)
	emergencyEscalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maintenance_emergency_escalations_total",
			Help: "Emergencies escalated for going unanswered.",
		},
	)
	cleaningTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_cleaning_tasks_generated_total",
			Help: "Daily cleaning tasks created, by initial status.",
		},
		[]string{"status"},
	)
	outboxDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_outbox_dispatch_total",
			Help: "Outbox events dispatched, by result.",
		},
		[]string{"result"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency, kafkaConsumerLag, influxWriteFailures, asynqQueueDepth,
		assignments, assignmentLatency, redistributions, sweepRuns, slaBreaches,
		emergencyEscalations, cleaningTasks, outboxDispatch,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func IncAssignment(outcome string) {
	assignments.WithLabelValues(outcome).Inc()
}

func ObserveAssignmentLatency(d time.Duration) {
	assignmentLatency.Observe(d.Seconds())
}

func AddRedistribution(outcome string, n int) {
	if n <= 0 {
		return
	}
	redistributions.WithLabelValues(outcome).Add(float64(n))
}

func IncSweepRun(sweep string, result string) {
	sweepRuns.WithLabelValues(sweep, result).Inc()
}

func IncSLABreach(severity string) {
	slaBreaches.WithLabelValues(severity).Inc()
}

func IncEmergencyEscalation() {
	emergencyEscalations.Inc()
}

func IncCleaningTask(status string) {
	cleaningTasks.WithLabelValues(status).Inc()
}

func IncOutboxDispatch(result string) {
	outboxDispatch.WithLabelValues(result).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
