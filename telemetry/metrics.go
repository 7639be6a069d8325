// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CommandsHandled    *prometheus.CounterVec
	ReviewsSubmitted   prometheus.Counter
	ThreadsCreated     prometheus.Counter
	DuplicatesRejected prometheus.Counter
	MessagesDeleted    prometheus.Counter
	ReactionsRemoved   prometheus.Counter
	MetadataLookups    prometheus.Counter
	MetadataErrors     prometheus.Counter

	// Histograms (seconds)
	CommandDuration        prometheus.Observer
	MetadataLookupDuration prometheus.Observer

	// Gauges
	RatedMoviesGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "pelibot_commands_handled_total", Help: "Number of chat commands handled, by command"}, []string{"command"})
		ReviewsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_reviews_submitted_total", Help: "Number of review form submissions accepted"})
		ThreadsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_threads_created_total", Help: "Number of review threads created"})
		DuplicatesRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_duplicates_rejected_total", Help: "Number of duplicate rating attempts rejected"})
		MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_messages_deleted_total", Help: "Number of off-protocol messages deleted"})
		ReactionsRemoved = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_reactions_removed_total", Help: "Number of user reactions stripped"})
		MetadataLookups = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_metadata_lookups_total", Help: "Number of OMDb API requests"})
		MetadataErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "pelibot_metadata_errors_total", Help: "Number of OMDb transport/decode failures"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pelibot_command_duration_seconds", Help: "Command handling duration seconds", Buckets: prometheus.DefBuckets})
		MetadataLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pelibot_metadata_lookup_duration_seconds", Help: "OMDb request duration seconds", Buckets: prometheus.DefBuckets})
		RatedMoviesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "pelibot_rated_movies", Help: "Current number of rated movies"})
	})
}

// IncCommand counts one handled command (no-op before Init).
func IncCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// IncMetadataLookup counts one OMDb request (no-op before Init).
func IncMetadataLookup() {
	if MetadataLookups != nil {
		MetadataLookups.Inc()
	}
}

// IncMetadataError counts one OMDb transport/decode failure.
func IncMetadataError() {
	if MetadataErrors != nil {
		MetadataErrors.Inc()
	}
}

// ObserveMetadataDuration records one OMDb request duration.
func ObserveMetadataDuration(d time.Duration) {
	if MetadataLookupDuration != nil {
		MetadataLookupDuration.Observe(d.Seconds())
	}
}

// SetRatedMovies records the current rated-movie count.
func SetRatedMovies(n int) {
	if RatedMoviesGauge != nil {
		RatedMoviesGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
