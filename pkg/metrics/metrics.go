// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// ChatsTotal tracks chats created one at a time.
	ChatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chats_created_total",
			Help: "Total chats created",
		},
	)

	// ChatsDeletedTotal tracks explicit chat deletions.
	ChatsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chats_deleted_total",
			Help: "Total chats deleted",
		},
	)

	// MessagesTotal tracks appended messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"is_user", "is_error"},
	)

	// BulkSavesTotal tracks bulk save outcomes.
	BulkSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_saves_total",
			Help: "Total bulk save requests",
		},
		[]string{"status"},
	)

	// BulkSaveChats tracks how many chats each bulk save replaces the user's set with.
	BulkSaveChats = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulk_save_chats",
			Help:    "Number of chats written per bulk save",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// PredictionDuration tracks upstream prediction latency.
	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prediction_duration_seconds",
			Help:    "Upstream prediction request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	// DocumentUploadsTotal tracks document store upserts relayed upstream.
	DocumentUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_uploads_total",
			Help: "Total document uploads relayed to the document store",
		},
		[]string{"status"},
	)

	// EventsPublishedTotal tracks chat events published to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Total chat events published",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordMessage counts an appended message.
func RecordMessage(isUser, isError bool) {
	MessagesTotal.WithLabelValues(strconv.FormatBool(isUser), strconv.FormatBool(isError)).Inc()
}

// RecordBulkSave records a bulk save outcome.
func RecordBulkSave(status string, chats int) {
	BulkSavesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		BulkSaveChats.Observe(float64(chats))
	}
}

// RecordPrediction records an upstream prediction call.
func RecordPrediction(provider, status string, duration float64) {
	PredictionDuration.WithLabelValues(provider, status).Observe(duration)
}
