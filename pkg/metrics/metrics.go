package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	RecordsValidTotal      prometheus.Counter
	RecordsInvalidTotal    *prometheus.CounterVec
	UploadsProcessedTotal  prometheus.Counter
	DuplicateUploadsTotal  prometheus.Counter
	BatchSize              prometheus.Histogram
	BatchDuration          prometheus.Histogram
	NotificationsTotal     *prometheus.CounterVec

	// Database metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	// Object store metrics
	ObjectStoreOpsTotal *prometheus.CounterVec
}

// NewCollector creates a new metrics collector registered on the default
// registry.
func NewCollector(namespace string) *Collector {
	return newCollector(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorForTesting registers on a throwaway registry so parallel tests
// do not hit duplicate-registration panics.
func NewCollectorForTesting() *Collector {
	return newCollector("test", prometheus.NewRegistry())
}

func newCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		RecordsValidTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_valid_total",
				Help:      "Total number of records that passed schema validation",
			},
		),

		RecordsInvalidTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_invalid_total",
				Help:      "Total number of records rejected by validation, by reason",
			},
			[]string{"reason"},
		),

		UploadsProcessedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_processed_total",
				Help:      "Total number of upload batches accepted and processed",
			},
		),

		DuplicateUploadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_duplicate_total",
				Help:      "Total number of upload batches rejected as duplicates",
			},
		),

		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_batch_size",
				Help:      "Number of records per uploaded batch",
				Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
		),

		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_batch_duration_seconds",
				Help:      "Duration of batch processing in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bucket_notifications_total",
				Help:      "Total number of bucket notifications by outcome",
			},
			[]string{"outcome"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		ObjectStoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "object_store_operations_total",
				Help:      "Total number of object store operations by op and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordInvalidRecord increments the invalid-record counter
func (c *Collector) RecordInvalidRecord(reason string) {
	c.RecordsInvalidTotal.WithLabelValues(reason).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordObjectStoreOp increments the object store operation counter
func (c *Collector) RecordObjectStoreOp(operation, outcome string) {
	c.ObjectStoreOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification increments the bucket notification counter
func (c *Collector) RecordNotification(outcome string) {
	c.NotificationsTotal.WithLabelValues(outcome).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
