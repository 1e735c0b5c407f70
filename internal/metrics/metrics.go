package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raine/ecosort-bot/internal/scan"
)

var (
	once sync.Once

	// ClassificationsTotal counts finished classification cycles by outcome and category.
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosort",
		Subsystem: "classifier",
		Name:      "classifications_total",
		Help:      "Total number of classification cycles, labeled by outcome, category and source.",
	}, []string{"outcome", "category", "source"})

	// ClassificationDurationSeconds is the time spent waiting for the model.
	ClassificationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecosort",
		Subsystem: "classifier",
		Name:      "classification_duration_seconds",
		Help:      "Time from submitting an image to the classification resolving.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30, 60},
	}, []string{"outcome", "source"})

	// CaptureErrorsTotal counts images that could not be obtained from the capture surface.
	CaptureErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosort",
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Total number of capture failures (download, decode, upload) by source.",
	}, []string{"source"})

	// TelegramUpdatesTotal counts Telegram updates by kind.
	TelegramUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecosort",
		Subsystem: "telegram",
		Name:      "updates_total",
		Help:      "Total number of Telegram updates received, labeled by kind.",
	}, []string{"kind"})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ClassificationsTotal,
			ClassificationDurationSeconds,
			CaptureErrorsTotal,
			TelegramUpdatesTotal,
		)
	})
}

// Observe returns a scan.Observer that records outcomes for the given source
// ("telegram", "web", "cli").
func Observe(source string) scan.Observer {
	return func(o scan.Outcome) {
		outcome := o.Status.String()
		category := "none"
		if o.Result != nil {
			category = string(o.Result.Category)
		}
		ClassificationsTotal.WithLabelValues(outcome, category, source).Inc()
		ClassificationDurationSeconds.WithLabelValues(outcome, source).Observe(o.Duration.Seconds())
	}
}
