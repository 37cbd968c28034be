package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultPrefix = "landlord"

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthSuccessCounter  prometheus.Counter
	AuthErrorsCounter   *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Domain metrics
	PaymentOperationsCounter     *prometheus.CounterVec
	LeaseTransitionsCounter      *prometheus.CounterVec
	InvoiceTransitionsCounter    *prometheus.CounterVec
	MaintenanceTransitionCounter *prometheus.CounterVec
	MobileMoneyRequestsCounter   *prometheus.CounterVec
	SweepUpdatedCounter          *prometheus.CounterVec

	once sync.Once
)

// InitMetrics registers every metric under prefix. Only the first call
// has any effect, so tests and subcommands may call it freely.
func InitMetrics(prefix string) {
	once.Do(func() {
		if prefix == "" {
			prefix = defaultPrefix
		}

		// HTTP request metrics
		HttpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		HttpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		)

		// Authentication metrics
		AuthAttemptsCounter = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_auth_attempts_total",
				Help: "Total number of login attempts",
			},
		)

		AuthSuccessCounter = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_auth_success_total",
				Help: "Total number of successful logins",
			},
		)

		AuthErrorsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_auth_errors_total",
				Help: "Total number of authentication errors by reason",
			},
			[]string{"reason"},
		)

		// Database operation metrics
		DbOperationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_db_operation_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		)

		// Payment metrics
		PaymentOperationsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_payment_operations_total",
				Help: "Total number of payment operations",
			},
			[]string{"operation", "method"},
		)

		LeaseTransitionsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_lease_transitions_total",
				Help: "Total number of lease status changes by target status",
			},
			[]string{"status"},
		)

		InvoiceTransitionsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_invoice_transitions_total",
				Help: "Total number of invoice status changes by target status",
			},
			[]string{"status"},
		)

		MaintenanceTransitionCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_maintenance_transitions_total",
				Help: "Total number of maintenance status changes by target status",
			},
			[]string{"status"},
		)

		MobileMoneyRequestsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_mobile_money_requests_total",
				Help: "Total number of requests to the mobile money provider",
			},
			[]string{"operation", "outcome"},
		)

		SweepUpdatedCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_sweep_updated_total",
				Help: "Total number of records changed by background sweeps",
			},
			[]string{"job"},
		)
	})
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	InitMetrics(defaultPrefix)
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	InitMetrics(defaultPrefix)
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAuthAttempt counts a login attempt
func RecordAuthAttempt() {
	InitMetrics(defaultPrefix)
	AuthAttemptsCounter.Inc()
}

// RecordAuthSuccess counts a successful login
func RecordAuthSuccess() {
	InitMetrics(defaultPrefix)
	AuthSuccessCounter.Inc()
}

// RecordAuthError counts an authentication failure
func RecordAuthError(reason string) {
	InitMetrics(defaultPrefix)
	AuthErrorsCounter.WithLabelValues(reason).Inc()
}

// RecordPaymentOperation increments the counter for payment operations
func RecordPaymentOperation(operation, method string) {
	InitMetrics(defaultPrefix)
	PaymentOperationsCounter.WithLabelValues(operation, method).Inc()
}

// RecordLeaseTransition increments the counter for lease status changes
func RecordLeaseTransition(status string) {
	InitMetrics(defaultPrefix)
	LeaseTransitionsCounter.WithLabelValues(status).Inc()
}

// RecordInvoiceTransition increments the counter for invoice status changes
func RecordInvoiceTransition(status string) {
	InitMetrics(defaultPrefix)
	InvoiceTransitionsCounter.WithLabelValues(status).Inc()
}

// RecordMaintenanceTransition increments the counter for maintenance status changes
func RecordMaintenanceTransition(status string) {
	InitMetrics(defaultPrefix)
	MaintenanceTransitionCounter.WithLabelValues(status).Inc()
}

// RecordMobileMoneyRequest counts a provider call and its outcome
func RecordMobileMoneyRequest(operation, outcome string) {
	InitMetrics(defaultPrefix)
	MobileMoneyRequestsCounter.WithLabelValues(operation, outcome).Inc()
}

// RecordSweep adds the number of records a sweep changed
func RecordSweep(job string, updated int64) {
	InitMetrics(defaultPrefix)
	SweepUpdatedCounter.WithLabelValues(job).Add(float64(updated))
}

// AddLeaseTransitions adds n lease status changes, as made by a sweep
func AddLeaseTransitions(status string, n int64) {
	InitMetrics(defaultPrefix)
	LeaseTransitionsCounter.WithLabelValues(status).Add(float64(n))
}

// AddInvoiceTransitions adds n invoice status changes, as made by a sweep
func AddInvoiceTransitions(status string, n int64) {
	InitMetrics(defaultPrefix)
	InvoiceTransitionsCounter.WithLabelValues(status).Add(float64(n))
}
